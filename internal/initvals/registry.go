// Package initvals is a registry of named initial-value generator
// functions. Callers reference a generator by name in the run
// configuration; the name is resolved and shape-checked at call entry, so a
// missing generator fails fast instead of surfacing mid-run.
package initvals

import (
	"fmt"
	"sort"
	"sync"
)

// Generator produces explicit initial values for one chain.
type Generator func(chain int) map[string]float64

var (
	mu         sync.RWMutex
	generators = make(map[string]Generator)
)

// Register installs a generator under name, replacing any previous one.
// Registering a nil generator panics: that is a programmer error.
func Register(name string, g Generator) {
	if g == nil {
		panic("initvals: Register called with nil generator")
	}
	mu.Lock()
	defer mu.Unlock()
	generators[name] = g
}

// Resolve looks up a registered generator by name.
func Resolve(name string) (Generator, error) {
	mu.RLock()
	defer mu.RUnlock()
	g, ok := generators[name]
	if !ok {
		return nil, fmt.Errorf("initvals: no generator registered under %q (registered: %v)", name, names())
	}
	return g, nil
}

// Names lists the registered generator names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return names()
}

func names() []string {
	out := make([]string, 0, len(generators))
	for name := range generators {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
