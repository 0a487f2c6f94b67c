// Package worker consumes task envelopes from a queue and executes the
// registered handler for each, recording outcomes in the result
// backend.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/taqastore/storefront/internal/queue"
)

// Handler executes one task. The returned raw JSON, if any, is stored
// as the task's output.
type Handler func(ctx context.Context, task *queue.Task) (json.RawMessage, error)

// Registry maps task names to handlers. Task names are namespaced like
// "maintenance.heartbeat".
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a task name. Registering the same name
// twice is an error.
func (r *Registry) Register(name string, handler Handler) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("task name must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("task %s: nil handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("task %s already registered", name)
	}
	r.handlers[name] = handler
	return nil
}

// Resolve looks up the handler for a task name.
func (r *Registry) Resolve(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Has reports whether a task name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Resolve(name)
	return ok
}

// Names lists the registered task names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
