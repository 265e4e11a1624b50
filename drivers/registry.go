package drivers

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Symbols maps exported entry names to entry points.
type Symbols map[string]any

func (s Symbols) Lookup(symbol string) (any, error) {
	sym, ok := s[symbol]
	if !ok {
		return nil, errors.Wrap(ErrSymbolNotFound, symbol)
	}

	return sym, nil
}

// Registry is a Loader over modules linked into the binary.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Symbols
}

func NewRegistry() *Registry {
	return &Registry{modules: map[string]Symbols{}}
}

// Register adds or replaces a module.
func (r *Registry) Register(name string, syms Symbols) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.modules[name] = syms
}

func (r *Registry) Load(name string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	syms, ok := r.modules[name]
	if !ok {
		return nil, errors.Wrap(ErrModuleNotFound, name)
	}

	return syms, nil
}

// Names lists the registered modules in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

var builtin = NewRegistry()

// Register adds a module to the built-in registry. Driver packages call it
// from init().
func Register(name string, syms Symbols) {
	builtin.Register(name, syms)
}

// Builtin is the registry driver packages register into.
func Builtin() *Registry {
	return builtin
}

type chain []Loader

// Chain returns a Loader that tries each loader in turn and returns the
// first module found.
func Chain(loaders ...Loader) Loader {
	return chain(loaders)
}

func (c chain) Load(name string) (Module, error) {
	for _, l := range c {
		mod, err := l.Load(name)
		if err == nil {
			return mod, nil
		}
		if !errors.Is(err, ErrModuleNotFound) {
			return nil, err
		}
	}

	return nil, errors.Wrap(ErrModuleNotFound, name)
}
