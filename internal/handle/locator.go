package handle

import (
	"context"
	"fmt"
)

// Locator is the persistable form of an external handle. It is what a link
// record stores so the handle can be reopened in a later session.
type Locator struct {
	Scheme string `json:"scheme"`
	Kind   Kind   `json:"kind"`
	Path   string `json:"path"`
}

func (l Locator) String() string {
	return l.Scheme + "://" + l.Path
}

// Locatable is implemented by handles that can produce a Locator.
type Locatable interface {
	Locator() Locator
}

// Resolver reopens handles from locators of one scheme.
type Resolver interface {
	Resolve(ctx context.Context, loc Locator) (Handle, error)
}

// Resolvers dispatches to a Resolver by locator scheme.
type Resolvers map[string]Resolver

// Resolve implements Resolver.
func (r Resolvers) Resolve(ctx context.Context, loc Locator) (Handle, error) {
	res, ok := r[loc.Scheme]
	if !ok {
		return nil, fmt.Errorf("no resolver for scheme %q", loc.Scheme)
	}
	return res.Resolve(ctx, loc)
}
