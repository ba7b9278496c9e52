// Package app assembles mixtape's components from configuration. The CLI
// and the server share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/mixtape/internal/config"
	"github.com/fruitsalade/mixtape/internal/explorer"
	"github.com/fruitsalade/mixtape/internal/handle"
	"github.com/fruitsalade/mixtape/internal/handle/osfs"
	"github.com/fruitsalade/mixtape/internal/ingest"
	"github.com/fruitsalade/mixtape/internal/link"
	"github.com/fruitsalade/mixtape/internal/logging"
	"github.com/fruitsalade/mixtape/internal/metadata"
	"github.com/fruitsalade/mixtape/internal/records"
	"github.com/fruitsalade/mixtape/internal/records/badgerstore"
	"github.com/fruitsalade/mixtape/internal/records/postgres"
	"github.com/fruitsalade/mixtape/internal/sandbox"
	"github.com/fruitsalade/mixtape/internal/worker"
)

// App holds the long-lived components of one process.
type App struct {
	Config   *config.Config
	Sandbox  *sandbox.Provider
	Store    records.Store
	Gate     *osfs.Gate
	Registry *explorer.Registry
	Linker   *link.Linker
	Worker   *worker.Worker
	// Audio keeps files with a supported extension.
	Audio func(handle.Handle) bool
}

// New opens the sandbox and record store and wires everything on top.
// prompter may be nil, in which case only GrantedPaths are accessible.
func New(ctx context.Context, cfg *config.Config, prompter osfs.Prompter) (*App, error) {
	provider, err := sandbox.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		provider.Close()
		return nil, err
	}
	return Assemble(cfg, provider, store, prompter), nil
}

// Assemble wires an App around an already opened sandbox and store.
func Assemble(cfg *config.Config, provider *sandbox.Provider, store records.Store, prompter osfs.Prompter) *App {
	gate := osfs.NewGate(cfg.GrantedPaths, prompter)
	resolvers := handle.Resolvers{osfs.Scheme: osfs.Resolver{Gate: gate}}
	return &App{
		Config:   cfg,
		Sandbox:  provider,
		Store:    store,
		Gate:     gate,
		Registry: explorer.NewRegistry(link.NewLocalStrategy(store, resolvers)),
		Linker:   link.NewLinker(store, provider),
		Worker: worker.New(provider, store, metadata.NewTagExtractor(),
			worker.Options{QueueSize: cfg.WorkerQueue}),
		Audio: explorer.FilterByExtensions(cfg.SupportedExtensions),
	}
}

// OpenStore opens the configured record store.
func OpenStore(ctx context.Context, cfg *config.Config) (records.Store, error) {
	switch cfg.RecordStore {
	case "postgres":
		logging.Info("connecting to PostgreSQL...")
		s, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		return s, nil
	case "badger":
		if cfg.BadgerPath == "" {
			return badgerstore.OpenInMemory()
		}
		logging.Info("opening record store", zap.String("path", cfg.BadgerPath))
		return badgerstore.Open(cfg.BadgerPath)
	}
	return nil, fmt.Errorf("unknown record store %q", cfg.RecordStore)
}

// Mounting returns a MountingExplorer at the sandbox root with the App's
// strategies.
func (a *App) Mounting(ctx context.Context) (*explorer.MountingExplorer, error) {
	root, err := a.Sandbox.Root(ctx)
	if err != nil {
		return nil, err
	}
	return explorer.NewMounting(root, a.Registry)
}

// ErrNotNavigable is returned by Navigate when a path crosses a mount whose
// target is a file.
var ErrNotNavigable = errors.New("mount target is not a directory")

// Navigate opens path in a new MountingExplorer. Every part before a "//"
// must end in a mountable file, which is mounted before the next part is
// applied, so "Music/@link-local-directory:Band//Live" lists Live inside the
// linked directory.
func (a *App) Navigate(ctx context.Context, path string) (*explorer.MountingExplorer, error) {
	m, err := a.Mounting(ctx)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(path, explorer.MountSeparator)
	for i, part := range parts {
		if i == len(parts)-1 {
			if err := m.ChangeDirectory(ctx, part); err != nil {
				return nil, err
			}
			break
		}
		dir, leaf := "", part
		if j := strings.LastIndex(part, "/"); j >= 0 {
			dir, leaf = part[:j+1], part[j+1:]
		}
		if err := m.ChangeDirectory(ctx, dir); err != nil {
			return nil, err
		}
		terminal, err := m.Mount(ctx, leaf)
		if err != nil {
			return nil, err
		}
		if terminal != nil {
			return nil, fmt.Errorf("%s: %w", leaf, ErrNotNavigable)
		}
	}
	return m, nil
}

// SplitPath splits a navigation path into the directory part and the final
// name: "a//b/c" gives "a//b/" and "c".
func SplitPath(path string) (dir, name string) {
	i := strings.LastIndex(path, "/")
	return path[:i+1], path[i+1:]
}

// OpenFile resolves a file path for reading. A final name matched by a
// mount strategy is mounted, so a file link yields its target.
func (a *App) OpenFile(ctx context.Context, path string) (handle.File, error) {
	dir, name := SplitPath(path)
	if name == "" {
		return nil, fmt.Errorf("%q does not name a file: %w", path, handle.ErrInvalidName)
	}
	m, err := a.Navigate(ctx, dir)
	if err != nil {
		return nil, err
	}
	strategy, err := m.GetMountStrategy(ctx, name)
	if err != nil {
		return nil, err
	}
	if strategy == "" {
		return m.FileHandle(ctx, name)
	}
	target, err := m.Mount(ctx, name)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("%s: %w", name, handle.ErrTypeMismatch)
	}
	return handle.AsFile(target)
}

// Browsable keeps directories, link placeholders and audio files.
func (a *App) Browsable(h handle.Handle) bool {
	return h.Kind() == handle.KindDirectory || link.IsLink(h.Name()) || a.Audio(h)
}

// OpenExternal opens a host path as a permission-gated handle and asks for
// read access.
func (a *App) OpenExternal(ctx context.Context, path string) (handle.Handle, error) {
	h, err := osfs.Open(a.Gate, path)
	if err != nil {
		return nil, err
	}
	if err := handle.EnsurePermission(ctx, h, handle.ModeRead); err != nil {
		return nil, err
	}
	return h, nil
}

// Pick opens external paths as a batch. With scan, picked directories are
// walked and only audio files are kept; without, only the picked items
// themselves are listed, which is all linking needs.
func (a *App) Pick(ctx context.Context, paths []string, scan bool) (ingest.Batch, error) {
	var b ingest.Batch
	for _, p := range paths {
		h, err := a.OpenExternal(ctx, p)
		if err != nil {
			return ingest.Batch{}, err
		}
		switch h := h.(type) {
		case handle.Directory:
			if !scan {
				b.Directories = append(b.Directories, ingest.DirectoryEntity{
					Meta:   ingest.Meta{Name: h.Name(), Path: h.Name()},
					Handle: h,
				})
				continue
			}
			sub, err := ingest.Scan(ctx, h, a.Audio)
			if err != nil {
				return ingest.Batch{}, err
			}
			b.Append(sub)
		case handle.File:
			b.Append(ingest.Files(h))
		}
	}
	if err := ingest.CheckOrder(b); err != nil {
		return ingest.Batch{}, err
	}
	return b, nil
}

// Close stops the worker and releases the sandbox and store.
func (a *App) Close() error {
	a.Worker.Stop()
	return errors.Join(a.Store.Close(), a.Sandbox.Close())
}
