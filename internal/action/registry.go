package action

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// Built-in action names
const (
	NameOpenDaily = "open_daily"
	NameHydration = "hydration"
)

// ErrUnknownAction is returned when no action is registered under a name
var ErrUnknownAction = errors.New("unknown action")

// Action performs one kind of portal work. Results follow the convention
// {"success": bool, "message": string, ...}.
type Action interface {
	Execute(ctx context.Context, payload map[string]any) (map[string]any, error)
}

// Registry maps action names to implementations and serves as the worker executor
type Registry struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger,
		actions: make(map[string]Action),
	}
}

// Register adds or replaces the action for name
func (r *Registry) Register(name string, a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = a
}

// Names returns the registered action names in order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named action
func (r *Registry) Execute(ctx context.Context, name string, payload map[string]any) (map[string]any, error) {
	r.mu.RLock()
	a, ok := r.actions[name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("Unknown action requested", slog.String("action", name))
		return nil, errors.Mark(errors.Newf("unknown action: %s", name), ErrUnknownAction)
	}

	r.logger.Debug("Executing action", slog.String("action", name))
	return a.Execute(ctx, payload)
}
