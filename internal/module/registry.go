package module

import (
	"fmt"
	"sync"
)

// Factory builds a module from the shared Entry.
type Factory func(Entry) (Module, error)

type Registration struct {
	Name string
	New  Factory
}

var (
	registryMu sync.Mutex
	registry   []Registration
)

// Register adds a module factory. Feature packages call it from init so a
// blank import is enough to compile a module in. Registering a name twice
// panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if f == nil {
		panic("module: Register factory is nil for " + name)
	}
	for _, r := range registry {
		if r.Name == name {
			panic("module: Register called twice for " + name)
		}
	}
	registry = append(registry, Registration{Name: name, New: f})
}

// Factories returns the registrations in registration order.
func Factories() []Registration {
	registryMu.Lock()
	defer registryMu.Unlock()
	return append([]Registration(nil), registry...)
}

// Build creates one instance of every registered module.
func Build(entry Entry) ([]Module, error) {
	regs := Factories()
	out := make([]Module, 0, len(regs))
	for _, r := range regs {
		m, err := r.New(entry)
		if err != nil {
			return nil, fmt.Errorf("create module %s: %w", r.Name, err)
		}
		out = append(out, m)
	}
	return out, nil
}
