package runtime

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory constructs a runtime. Factories run once per NewRegistry call so a
// registry never shares runtime state with another.
type Factory func() Runtime

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a runtime available under name. Runtime packages call it from
// init; registering a name twice replaces the earlier factory.
func Register(name string, factory Factory) {
	if strings.TrimSpace(name) == "" {
		panic("runtime.Register: name must not be empty")
	}
	if factory == nil {
		panic("runtime.Register: factory must not be nil")
	}

	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// NewRegistry builds a registry holding one instance of every registered
// runtime.
func NewRegistry() Registry {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	reg := make(Registry, len(factories))
	for name, factory := range factories {
		reg[name] = factory()
	}
	return reg
}

// Names lists the runtimes in r in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the runtime registered as name.
func (r Registry) Lookup(name string) (Runtime, error) {
	rt, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("runtime %q is not registered (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	return rt, nil
}
