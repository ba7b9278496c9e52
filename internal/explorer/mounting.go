package explorer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/mixtape/internal/handle"
	"github.com/fruitsalade/mixtape/internal/logging"
	"github.com/fruitsalade/mixtape/internal/metrics"
)

// MountSeparator marks mount-context boundaries in ChangeDirectory paths.
// Handle names cannot be empty, so "//" never occurs inside a single
// context's path.
const MountSeparator = "//"

// MountingExplorer keeps a stack of Explorers. The top one is active and
// receives every navigation and file operation.
type MountingExplorer struct {
	registry *Registry
	mounts   []*Explorer
}

// NewMounting creates a MountingExplorer whose root mount is at root.
func NewMounting(root handle.Directory, registry *Registry) (*MountingExplorer, error) {
	e, err := New(root)
	if err != nil {
		return nil, err
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &MountingExplorer{registry: registry, mounts: []*Explorer{e}}, nil
}

// Active returns the top of the mount stack.
func (m *MountingExplorer) Active() *Explorer {
	return m.mounts[len(m.mounts)-1]
}

// Depth returns the number of mounted contexts, root included.
func (m *MountingExplorer) Depth() int {
	return len(m.mounts)
}

// Registry returns the strategy set.
func (m *MountingExplorer) Registry() *Registry {
	return m.registry
}

func (m *MountingExplorer) CurrentDirectory() handle.Directory { return m.Active().CurrentDirectory() }
func (m *MountingExplorer) Path() []handle.Directory           { return m.Active().Path() }
func (m *MountingExplorer) PathString() string                 { return m.Active().PathString() }

// ChangeDirectory applies each "//"-separated part of path to the active
// Explorer in turn. It never enters a mount; use Mount for that.
func (m *MountingExplorer) ChangeDirectory(ctx context.Context, path string) error {
	for _, part := range strings.Split(path, MountSeparator) {
		if part == "" {
			continue
		}
		if err := m.Active().ChangeDirectory(ctx, part); err != nil {
			return err
		}
	}
	return nil
}

func (m *MountingExplorer) ListItems(ctx context.Context) ([]handle.Handle, error) {
	return m.Active().ListItems(ctx)
}

func (m *MountingExplorer) CreateDirectory(ctx context.Context, name string) (handle.Directory, error) {
	return m.Active().CreateDirectory(ctx, name)
}

func (m *MountingExplorer) Remove(ctx context.Context, name string) error {
	return m.Active().Remove(ctx, name)
}

func (m *MountingExplorer) PutFile(ctx context.Context, name string, content io.Reader) (handle.File, error) {
	return m.Active().PutFile(ctx, name, content)
}

func (m *MountingExplorer) FileHandle(ctx context.Context, name string) (handle.File, error) {
	return m.Active().FileHandle(ctx, name)
}

func (m *MountingExplorer) GetFile(ctx context.Context, name string) (io.ReadCloser, error) {
	return m.Active().GetFile(ctx, name)
}

// GetMountStrategy returns the name of the strategy that would mount name,
// or "" when none would. Only a failure to resolve name is an error.
func (m *MountingExplorer) GetMountStrategy(ctx context.Context, name string) (string, error) {
	h, err := m.Active().Handle(ctx, name)
	if err != nil {
		return "", err
	}
	if s, ok := m.registry.Match(h); ok {
		return s.Name(), nil
	}
	return "", nil
}

// Mount resolves name with the first matching strategy. A navigable result
// is pushed and Mount returns nil; a terminal result is returned and the
// mount stack is left as it was.
func (m *MountingExplorer) Mount(ctx context.Context, name string) (handle.Handle, error) {
	h, err := m.Active().Handle(ctx, name)
	if err != nil {
		return nil, err
	}
	s, ok := m.registry.Match(h)
	if !ok {
		return nil, &NoMountStrategyError{Name: name}
	}
	f, err := handle.AsFile(h)
	if err != nil {
		return nil, &NoMountStrategyError{Name: name}
	}

	result, err := s.Mount(ctx, f)
	metrics.RecordMount(s.Name(), err == nil)
	if err != nil {
		logging.Debug("mount failed",
			zap.String("name", name), zap.String("strategy", s.Name()), zap.Error(err))
		return nil, err
	}

	switch r := result.(type) {
	case Navigable:
		if r.Explorer == nil {
			return nil, fmt.Errorf("mount %s: strategy %s returned no explorer", name, s.Name())
		}
		m.mounts = append(m.mounts, r.Explorer)
		logging.Debug("mounted",
			zap.String("name", name), zap.String("strategy", s.Name()), zap.Int("depth", len(m.mounts)))
		return nil, nil
	case Terminal:
		logging.Debug("resolved terminal handle",
			zap.String("name", name), zap.String("strategy", s.Name()))
		return r.Handle, nil
	default:
		return nil, fmt.Errorf("mount %s: unexpected result %T", name, result)
	}
}

// Unmount pops the active context. The root mount cannot be popped.
func (m *MountingExplorer) Unmount() error {
	if len(m.mounts) <= 1 {
		return ErrUnmountRoot
	}
	m.mounts[len(m.mounts)-1] = nil
	m.mounts = m.mounts[:len(m.mounts)-1]
	return nil
}

// Spawn returns an independent MountingExplorer rooted at folder, relative
// to the active directory, sharing this one's strategies. An empty folder
// roots it at the active directory. This explorer's position is unchanged.
func (m *MountingExplorer) Spawn(ctx context.Context, folder string) (*MountingExplorer, error) {
	active := m.Active()
	stack := active.stack
	for _, part := range strings.Split(folder, MountSeparator) {
		if part == "" {
			continue
		}
		next, err := active.walk(ctx, stack, part)
		if err != nil {
			return nil, err
		}
		stack = next
	}
	return NewMounting(stack[len(stack)-1], m.registry)
}
