package launcher

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Loader binds an entry point name to a Symbol.
type Loader interface {
	// Bind resolves target within env. It fails when nothing can be bound.
	Bind(ctx context.Context, target string, env *Environment) (Symbol, error)
}

// StaticRegistry binds in-process entry points registered by name.
type StaticRegistry struct {
	mu      sync.RWMutex
	symbols map[string]Symbol
}

// NewStaticRegistry creates an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{symbols: make(map[string]Symbol)}
}

// Register adds or replaces the symbol for name.
func (r *StaticRegistry) Register(name string, sym Symbol) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols[name] = sym
}

// Names lists the registered entry points.
func (r *StaticRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.symbols))
	for name := range r.symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bind implements Loader.
func (r *StaticRegistry) Bind(_ context.Context, target string, _ *Environment) (Symbol, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sym, ok := r.symbols[target]
	if !ok {
		return Symbol{}, fmt.Errorf("no entry point registered as %q", target)
	}
	return sym, nil
}
