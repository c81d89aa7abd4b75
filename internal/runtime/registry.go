// Package runtime provides the libraries a script can reach: the global
// aliases np, pd, plt and px, and the modules behind require().
package runtime

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dop251/goja"
)

// Module is a library scripts can load.
type Module interface {
	// Name returns the require() identifier (e.g., "numeric", "plot").
	Name() string

	// Alias returns the global the module is bound to in every execution,
	// or "" when it is only reachable through require().
	Alias() string

	// Load builds the module object for one execution.
	Load(env *Env) (goja.Value, error)
}

// Registry maps module names to their implementations.
type Registry struct {
	modules map[string]Module
}

// NewRegistry creates a registry with every built-in module.
func NewRegistry() *Registry {
	r := &Registry{
		modules: make(map[string]Module),
	}
	r.Register(numericModule{})
	r.Register(dataframeModule{})
	r.Register(plotModule{})
	r.Register(chartModule{})
	r.Register(mathModule{})
	r.Register(statisticsModule{})
	r.Register(datetimeModule{})
	r.Register(collectionsModule{})
	r.Register(learnModule{})
	r.Register(clusterModule{})
	return r
}

// Register adds a module to the registry, replacing any module of the same name.
func (r *Registry) Register(m Module) {
	r.modules[m.Name()] = m
}

// Get returns the module for the given require() name. A path such as
// "statistics/extra" resolves to its top-level module.
func (r *Registry) Get(name string) (Module, error) {
	top, _, _ := strings.Cut(name, "/")
	m, ok := r.modules[top]
	if !ok {
		return nil, fmt.Errorf("unknown module: %q (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	return m, nil
}

// Names returns all registered module names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Aliases returns the global alias names bound in every execution, sorted.
func (r *Registry) Aliases() []string {
	var aliases []string
	for _, m := range r.modules {
		if a := m.Alias(); a != "" {
			aliases = append(aliases, a)
		}
	}
	slices.Sort(aliases)
	return aliases
}
