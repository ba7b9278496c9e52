package explorer

import (
	"context"
	"errors"

	"github.com/fruitsalade/mixtape/internal/handle"
)

// MountStrategy interprets a link-like file and resolves it to a new
// navigable context or to a terminal handle.
type MountStrategy interface {
	Name() string
	// Test reports whether the strategy understands h. It must be cheap and
	// free of side effects; it runs once per listed item.
	Test(h handle.Handle) bool
	// Mount resolves f. It may block on user interaction.
	Mount(ctx context.Context, f handle.File) (MountResult, error)
}

// MountResult is either Navigable or Terminal.
type MountResult interface {
	mountResult()
}

// Navigable is a mount result that becomes the new active context.
type Navigable struct {
	Explorer *Explorer
}

// Terminal is a mount result handed back to the caller unmounted.
type Terminal struct {
	Handle handle.Handle
}

func (Navigable) mountResult() {}
func (Terminal) mountResult()  {}

// Registry is an ordered, immutable set of strategies. The first strategy
// whose Test matches wins.
type Registry struct {
	strategies []MountStrategy
}

// NewRegistry returns a registry trying strategies in the given order.
func NewRegistry(strategies ...MountStrategy) *Registry {
	r := &Registry{strategies: make([]MountStrategy, len(strategies))}
	copy(r.strategies, strategies)
	return r
}

// Match returns the first strategy that understands h. Only files are
// mountable.
func (r *Registry) Match(h handle.Handle) (MountStrategy, bool) {
	if r == nil || h == nil || h.Kind() != handle.KindFile {
		return nil, false
	}
	for _, s := range r.strategies {
		if s.Test(h) {
			return s, true
		}
	}
	return nil, false
}

// Names lists the registered strategy names in order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name()
	}
	return names
}

// ErrNoMountStrategy matches every *NoMountStrategyError.
var ErrNoMountStrategy = errors.New("no mount strategy")

// ErrUnmountRoot is returned when unmounting with only the root mounted.
var ErrUnmountRoot = errors.New("unable to unmount: cannot unmount the root directory")

// NoMountStrategyError reports that no registered strategy recognized Name.
type NoMountStrategyError struct {
	Name string
}

func (e *NoMountStrategyError) Error() string {
	return "unable to mount: no mount strategy found for " + e.Name
}

func (e *NoMountStrategyError) Is(target error) bool {
	return target == ErrNoMountStrategy
}
