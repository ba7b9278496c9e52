// Package sandbox provides the root directory of the private sandbox store.
// The provider is created once at process start and handed to every
// component that navigates the sandbox.
package sandbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fruitsalade/mixtape/internal/config"
	"github.com/fruitsalade/mixtape/internal/handle"
	"github.com/fruitsalade/mixtape/internal/handle/memfs"
	"github.com/fruitsalade/mixtape/internal/handle/objfs"
	"github.com/fruitsalade/mixtape/internal/logging"
	"github.com/fruitsalade/mixtape/internal/storage"
	"github.com/fruitsalade/mixtape/internal/storage/local"
	s3backend "github.com/fruitsalade/mixtape/internal/storage/s3"
)

// Provider hands out the sandbox root directory.
type Provider struct {
	root    handle.Directory
	backend storage.Backend
}

// New creates the provider selected by cfg.SandboxBackend.
func New(ctx context.Context, cfg *config.Config) (*Provider, error) {
	if cfg.SandboxBackend == "memory" {
		logging.Info("sandbox store initialized", zap.String("backend", "memory"))
		return NewWithRoot(memfs.New()), nil
	}

	b, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logging.Info("sandbox store initialized", zap.String("backend", b.Type()))
	return &Provider{root: objfs.New(b), backend: b}, nil
}

// NewWithRoot returns a provider serving root. Tests inject in-memory trees
// this way.
func NewWithRoot(root handle.Directory) *Provider {
	return &Provider{root: root}
}

// NewBackend creates the object store backing a persistent sandbox.
func NewBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.SandboxBackend {
	case "local":
		return local.New(local.Config{RootPath: cfg.SandboxPath, CreateDirs: true})
	case "s3":
		return s3backend.New(ctx, s3backend.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		})
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.SandboxBackend)
	}
}

// Root returns the sandbox root directory.
func (p *Provider) Root(_ context.Context) (handle.Directory, error) {
	if p.root == nil {
		return nil, fmt.Errorf("sandbox root not configured")
	}
	return p.root, nil
}

// Close releases the backing store, if any.
func (p *Provider) Close() error {
	if p.backend == nil {
		return nil
	}
	return p.backend.Close()
}
