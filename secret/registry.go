package secret

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ProviderFactory creates a Provider from its configuration block.
type ProviderFactory func(cfg map[string]any) (Provider, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// Register adds a factory. Names are unique.
func (r *Registry) Register(name string, factory ProviderFactory) error {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		return errors.New("secret: invalid provider registration")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("secret: provider %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates the named provider.
func (r *Registry) Create(name string, cfg map[string]any) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("secret: provider %q is not registered", name)
	}
	return factory(cfg)
}

// List returns the registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultRegistry knows the built-in providers:
//
//	file: {dir: string, allow_shared: bool}
//	env:  {}
//	age:  {identity_file: string (required), dir: string}
var DefaultRegistry = func() *Registry {
	r := NewRegistry()
	_ = r.Register("file", func(cfg map[string]any) (Provider, error) {
		return &FileProvider{Dir: stringOpt(cfg, "dir"), AllowShared: boolOpt(cfg, "allow_shared")}, nil
	})
	_ = r.Register("env", func(map[string]any) (Provider, error) {
		return EnvProvider{}, nil
	})
	_ = r.Register("age", func(cfg map[string]any) (Provider, error) {
		identity := stringOpt(cfg, "identity_file")
		if identity == "" {
			return nil, errors.New("secret: age provider requires identity_file")
		}
		return NewAgeProvider(identity, stringOpt(cfg, "dir"))
	})
	return r
}()

func stringOpt(cfg map[string]any, key string) string {
	s, _ := cfg[key].(string)
	return s
}

func boolOpt(cfg map[string]any, key string) bool {
	b, _ := cfg[key].(bool)
	return b
}
