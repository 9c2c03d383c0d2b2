package rules

import (
	"fmt"
	"slices"
	"sync"

	"github.com/sahilm/fuzzy"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
)

// FilterFactory constructs a custom filter.
type FilterFactory func() Filter

// FormatterFactory constructs a custom formatter.
type FormatterFactory func() Formatter

// Registry maps the names used in rule documents to custom filter and
// formatter implementations. It is populated at startup.
type Registry struct {
	mu         sync.RWMutex
	filters    map[string]FilterFactory
	formatters map[string]FormatterFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		filters:    make(map[string]FilterFactory),
		formatters: make(map[string]FormatterFactory),
	}
}

// RegisterFilter adds or replaces a custom filter.
func (r *Registry) RegisterFilter(name string, f FilterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[name] = f
}

// RegisterFormatter adds or replaces a custom formatter.
func (r *Registry) RegisterFormatter(name string, f FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formatters[name] = f
}

// Filter instantiates the custom filter registered as name.
func (r *Registry) Filter(name string) (Filter, error) {
	r.mu.RLock()
	factory, ok := r.filters[name]
	_, other := r.formatters[name]
	r.mu.RUnlock()

	if !ok {
		return nil, r.lookupError(name, "filter", other)
	}
	return construct(name, factory)
}

// Formatter instantiates the custom formatter registered as name.
func (r *Registry) Formatter(name string) (Formatter, error) {
	r.mu.RLock()
	factory, ok := r.formatters[name]
	_, other := r.filters[name]
	r.mu.RUnlock()

	if !ok {
		return nil, r.lookupError(name, "formatter", other)
	}
	return construct(name, factory)
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.filters)+len(r.formatters))
	for n := range r.filters {
		names = append(names, n)
	}
	for n := range r.formatters {
		if _, dup := r.filters[n]; !dup {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}

// Suggest returns the registered name closest to name, if any.
func (r *Registry) Suggest(name string) (string, bool) {
	matches := fuzzy.Find(name, r.Names())
	if len(matches) == 0 {
		return "", false
	}
	return matches[0].Str, true
}

func (r *Registry) lookupError(name, capability string, registeredAsOther bool) error {
	if registeredAsOther {
		return ttypes.NewPipelineError(ttypes.ErrorCodeDynamicResolution,
			fmt.Sprintf("%q is not a %s", name, capability), ttypes.ErrWrongCapability).
			WithContext("name", name)
	}

	err := ttypes.NewPipelineError(ttypes.ErrorCodeDynamicResolution,
		fmt.Sprintf("no custom %s named %q", capability, name), ttypes.ErrCapabilityNotFound).
		WithContext("name", name)
	if s, ok := r.Suggest(name); ok {
		err.Message += fmt.Sprintf(" (did you mean %q?)", s)
		err.WithContext("suggestion", s)
	}
	return err
}

// construct runs a factory, turning a panic or nil result into an error.
func construct[T any](name string, factory func() T) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = ttypes.NewPipelineError(ttypes.ErrorCodeDynamicResolution,
				fmt.Sprintf("constructing %q panicked: %v", name, p), nil).
				WithContext("name", name)
		}
	}()

	v = factory()
	if any(v) == nil {
		return v, ttypes.NewPipelineError(ttypes.ErrorCodeDynamicResolution,
			fmt.Sprintf("constructor for %q returned nil", name), nil).
			WithContext("name", name)
	}
	return v, nil
}
