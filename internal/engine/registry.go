package engine

import (
	"fmt"
	"portfolio-backtester/types"
	"sort"
)

// Registry maps strategy_type names to factories. It is filled once at
// process start and handed to the Engine; the engine never mutates it.
type Registry struct {
	factories map[types.StrategyType]StrategyFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[types.StrategyType]StrategyFactory)}
}

// Register adds a factory under name. Registering a name twice is an error.
func (r *Registry) Register(name types.StrategyType, factory StrategyFactory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("register strategy %q: empty name or nil factory", name)
	}
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("register strategy %q: already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is Register for process start-up code.
func (r *Registry) MustRegister(name types.StrategyType, factory StrategyFactory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Build resolves cfg.StrategyType and constructs the strategy.
func (r *Registry) Build(cfg types.StrategyConfig) (Strategy, error) {
	factory, ok := r.factories[cfg.StrategyType]
	if !ok {
		return nil, &ConfigurationError{Field: "strategy_type", Reason: fmt.Sprintf("unknown strategy %q", cfg.StrategyType)}
	}
	return factory(cfg)
}

// Names returns the registered strategy types in sorted order.
func (r *Registry) Names() []types.StrategyType {
	names := make([]types.StrategyType, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
