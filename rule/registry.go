package rule

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotRegistered is returned when a spec references an unknown rule.
	ErrNotRegistered = errors.New("rule: not registered")

	// ErrInvalidCondition is returned when a condition is malformed.
	ErrInvalidCondition = errors.New("rule: invalid condition")
)

// Built-in rule names, registered in every Registry.
const (
	NameAllow = "allow"
	NameDeny  = "deny"
)

// Registry maps rule names to implementations. Specs loaded from the store
// are resolved against a Registry; referencing an unregistered name is a
// data-integrity error, not a deny.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewRegistry creates a registry with the built-in allow and deny rules.
func NewRegistry() *Registry {
	return &Registry{
		rules: map[string]Rule{
			NameAllow: Allow,
			NameDeny:  Deny,
		},
	}
}

// Register adds a named rule. Registering an existing name overwrites it.
func (r *Registry) Register(name string, rl Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[name] = rl
}

// RegisterFunc adds a named rule from a plain function.
func (r *Registry) RegisterFunc(name string, fn Func) {
	r.Register(name, fn)
}

// Get returns a registered rule by name.
func (r *Registry) Get(name string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rl, ok := r.rules[name]
	return rl, ok
}

// Resolve turns a spec into an executable rule. A zero spec resolves to
// Allow. Name and Conditions compose with AND when both are present.
func (r *Registry) Resolve(spec *Spec) (Rule, error) {
	if spec.IsZero() {
		return Allow, nil
	}

	var parts []Rule
	if spec.Name != "" {
		named, ok := r.Get(spec.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNotRegistered, spec.Name)
		}
		if len(spec.Args) > 0 {
			named = &withArgs{inner: named, args: spec.Args}
		}
		parts = append(parts, named)
	}
	if len(spec.Conditions) > 0 {
		parts = append(parts, &conditionRule{conditions: spec.Conditions})
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	return &allOf{rules: parts}, nil
}
