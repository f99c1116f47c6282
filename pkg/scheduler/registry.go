package scheduler

import (
	"context"
	"sort"
	"sync"

	"github.com/stackgate/admind/pkg/errdefs"
)

// HandlerFunc is the body of a scheduled job. The context carries the
// job's timeout; implementations must return promptly once it ends.
type HandlerFunc func(ctx context.Context, payload map[string]interface{}) error

// HandlerRegistry maps handler names to implementations. Jobs may only
// reference registered handlers; creation is rejected otherwise.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]HandlerFunc)}
}

// Register adds a handler under a name. Names are claimed once.
func (r *HandlerRegistry) Register(name string, fn HandlerFunc) error {
	if name == "" {
		return errdefs.Validation("handler name is required")
	}
	if fn == nil {
		return errdefs.Validation("handler %s has no implementation", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return errdefs.Conflict("handler %s is already registered", name)
	}
	r.handlers[name] = fn
	return nil
}

// Get looks up a handler by name.
func (r *HandlerRegistry) Get(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[name]
	return fn, ok
}

// Has reports whether a handler name is registered.
func (r *HandlerRegistry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns all registered handler names, sorted.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
