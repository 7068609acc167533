package plugin

import (
	"fmt"
	"sync"

	"github.com/searchktools/ember-server/core"
	"github.com/searchktools/ember-server/core/middleware"
)

// Plugin is a named unit of server functionality with an explicit
// lifecycle. Plugins declare their dependencies by name; the registry
// initializes them in dependency order and shuts them down in reverse.
type Plugin interface {
	// Name returns the plugin's unique name.
	Name() string

	// DependsOn lists the names of plugins that must initialize first.
	DependsOn() []string

	// Init sets up the plugin's resources and registers its routes on
	// the engine.
	Init(engine *core.Engine) error

	// Shutdown releases the plugin's resources.
	Shutdown() error
}

// Middleware is implemented by plugins that contribute middleware to
// the engine's chain. Entries are installed during Init resolution, in
// the same order the plugins initialize.
type Middleware interface {
	Middleware() []middleware.Entry
}

// Registry holds registered plugins and resolves their initialization
// order.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register adds a plugin. Registering two plugins with the same name
// is an error.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %q already registered", name)
	}
	r.plugins[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get returns a registered plugin by name, or nil.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.plugins[name]
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Resolve returns the plugins in an order where every plugin follows
// its declared dependencies. A missing dependency or a dependency
// cycle is a configuration error. Ties keep registration order.
func (r *Registry) Resolve() ([]Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	const (
		unvisited = iota
		visiting
		done
	)

	marks := make(map[string]int, len(r.plugins))
	resolved := make([]Plugin, 0, len(r.plugins))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch marks[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("plugin dependency cycle: %v", append(path, name))
		}

		p, ok := r.plugins[name]
		if !ok {
			return fmt.Errorf("plugin %q depends on unregistered plugin %q", path[len(path)-1], name)
		}

		marks[name] = visiting
		for _, dep := range p.DependsOn() {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		marks[name] = done
		resolved = append(resolved, p)
		return nil
	}

	for _, name := range r.order {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

// Init resolves the dependency order, initializes every plugin, and
// installs contributed middleware. It returns the plugins in the order
// they initialized, so the caller can shut them down in reverse.
func (r *Registry) Init(engine *core.Engine) ([]Plugin, error) {
	resolved, err := r.Resolve()
	if err != nil {
		return nil, err
	}

	for i, p := range resolved {
		if err := p.Init(engine); err != nil {
			shutdownAll(resolved[:i])
			return nil, fmt.Errorf("init plugin %q: %w", p.Name(), err)
		}
		if m, ok := p.(Middleware); ok {
			for _, entry := range m.Middleware() {
				switch entry.Phase {
				case middleware.Post:
					engine.UsePost(entry.Name, entry.Fn)
				default:
					engine.Use(entry.Name, entry.Fn)
				}
			}
		}
	}
	return resolved, nil
}

// shutdownAll shuts down plugins in reverse order, ignoring errors.
// Used to unwind a partially initialized set.
func shutdownAll(plugins []Plugin) {
	for i := len(plugins) - 1; i >= 0; i-- {
		plugins[i].Shutdown()
	}
}
