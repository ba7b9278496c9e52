package osfs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/mixtape/internal/handle"
	"github.com/fruitsalade/mixtape/internal/logging"
	"github.com/fruitsalade/mixtape/internal/metrics"
)

// Prompter asks a user a yes/no question.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Gate holds the permissions granted to external paths for the lifetime of
// the process. Access to a path is granted when the path or one of its
// ancestors was granted at the asked mode or above; readwrite implies read.
type Gate struct {
	mu       sync.Mutex
	granted  []grant
	denied   map[string]handle.Mode // weakest mode refused per path
	prompter Prompter
}

type grant struct {
	root string
	mode handle.Mode
}

// NewGate creates a Gate with the given roots pre-granted for reading. A nil
// prompter denies every request that is not pre-granted.
func NewGate(granted []string, prompter Prompter) *Gate {
	g := &Gate{denied: map[string]handle.Mode{}, prompter: prompter}
	for _, p := range granted {
		g.Grant(p, handle.ModeRead)
	}
	return g
}

// Grant grants mode on path and its subtree without asking.
func (g *Gate) Grant(path string, mode handle.Mode) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.granted = append(g.granted, grant{root: abs, mode: mode})
}

func within(path, root string) bool {
	if path == root {
		return true
	}
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Query reports the current permission for path at mode.
func (g *Gate) Query(path string, mode handle.Mode) handle.Permission {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queryLocked(path, mode)
}

func (g *Gate) queryLocked(path string, mode handle.Mode) handle.Permission {
	for _, gr := range g.granted {
		if gr.mode >= mode && within(path, gr.root) {
			return handle.PermissionGranted
		}
	}
	if refused, ok := g.denied[path]; ok && refused <= mode {
		return handle.PermissionDenied
	}
	return handle.PermissionPrompt
}

// Request asks the prompter to grant mode on path unless it is already
// granted. A positive answer grants the whole subtree for the session.
func (g *Gate) Request(ctx context.Context, path string, mode handle.Mode) (handle.Permission, error) {
	if p := g.Query(path, mode); p == handle.PermissionGranted {
		return p, nil
	}
	if g.prompter == nil {
		return handle.PermissionDenied, nil
	}

	ok, err := g.prompter.Confirm(ctx, fmt.Sprintf("Allow %s access to %s?", mode, path))
	if err != nil {
		return handle.PermissionPrompt, err
	}
	metrics.RecordPermissionRequest(ok)

	g.mu.Lock()
	defer g.mu.Unlock()
	if !ok {
		if refused, seen := g.denied[path]; !seen || mode < refused {
			g.denied[path] = mode
		}
		logging.Info("permission denied", zap.String("path", path), zap.String("mode", mode.String()))
		return handle.PermissionDenied, nil
	}
	if refused, seen := g.denied[path]; seen && refused <= mode {
		delete(g.denied, path)
	}
	g.granted = append(g.granted, grant{root: path, mode: mode})
	logging.Info("permission granted", zap.String("path", path), zap.String("mode", mode.String()))
	return handle.PermissionGranted, nil
}

// check fails unless mode is already granted on path. It never prompts.
func (g *Gate) check(path string, mode handle.Mode) error {
	if g.Query(path, mode) != handle.PermissionGranted {
		return fmt.Errorf("%s: %w", path, handle.ErrPermissionDenied)
	}
	return nil
}

// require is check for mutations: a missing readwrite grant is requested
// from the prompter first.
func (g *Gate) require(ctx context.Context, path string) error {
	p, err := g.Request(ctx, path, handle.ModeReadWrite)
	if err != nil {
		return fmt.Errorf("request write access to %s: %w", path, err)
	}
	if p != handle.PermissionGranted {
		return fmt.Errorf("%s: %w", path, handle.ErrPermissionDenied)
	}
	return nil
}
