package module

import (
	"fmt"
	"sync"
)

// Registry is the process-wide, name-keyed set of loaded modules. Module
// names are unique process-wide: registering a second module under a name
// already present is rejected.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Instance
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*Instance)}
}

// Add registers inst under its name. Fails if the name is already taken.
func (r *Registry) Add(inst *Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[inst.Name()]; exists {
		return fmt.Errorf("module registry: module %q already registered", inst.Name())
	}
	r.modules[inst.Name()] = inst
	return nil
}

// Get returns the named module instance, if any.
func (r *Registry) Get(name string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.modules[name]
	return inst, ok
}

// Remove drops the named module from the registry. It does not unload it;
// callers are expected to call Instance.Unload first.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modules, name)
}

// List returns a snapshot of every registered module instance, in no
// particular order.
func (r *Registry) List() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instance, 0, len(r.modules))
	for _, inst := range r.modules {
		out = append(out, inst)
	}
	return out
}
