// Package rule defines executable business rules for authorization items.
//
// Every role and permission carries a rule that is executed during
// evaluation. Rules are persisted as a Spec — either the name of a rule
// registered in a Registry, a declarative condition list, or both — and
// resolved into an executable Rule exactly once, when the item is loaded.
package rule

import "context"

// Params are the runtime parameters supplied to a business rule.
type Params map[string]any

// Rule evaluates runtime parameters to allow or deny, independently of
// hierarchy membership. Implementations may perform I/O; the engine treats
// the result as an opaque boolean and imposes no timeout of its own.
type Rule interface {
	Execute(ctx context.Context, params Params) (bool, error)
}

// Func adapts a plain function to the Rule interface.
type Func func(ctx context.Context, params Params) (bool, error)

// Execute implements Rule.
func (f Func) Execute(ctx context.Context, params Params) (bool, error) {
	return f(ctx, params)
}

// Spec is the serializable rule payload attached to an item.
//
// A zero Spec resolves to the built-in allow rule, so items created without
// an explicit rule always pass their own rule check. Name and Conditions
// compose with AND when both are present.
type Spec struct {
	// Name references a rule registered in the Registry.
	Name string `json:"name,omitempty"`

	// Args are defaults merged under the check params before execution.
	// Explicit check params win on key collisions.
	Args map[string]any `json:"args,omitempty"`

	// Conditions are declarative predicates over the check params.
	Conditions []Condition `json:"conditions,omitempty"`
}

// IsZero reports whether the spec carries no rule reference and no conditions.
func (s *Spec) IsZero() bool {
	return s == nil || (s.Name == "" && len(s.Args) == 0 && len(s.Conditions) == 0)
}

// Allow is a rule that always passes.
var Allow Rule = Func(func(context.Context, Params) (bool, error) { return true, nil })

// Deny is a rule that always fails.
var Deny Rule = Func(func(context.Context, Params) (bool, error) { return false, nil })

// withArgs merges spec args under the check params before delegating.
type withArgs struct {
	inner Rule
	args  map[string]any
}

func (w *withArgs) Execute(ctx context.Context, params Params) (bool, error) {
	merged := make(Params, len(w.args)+len(params))
	for k, v := range w.args {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return w.inner.Execute(ctx, merged)
}

// allOf passes only when every member rule passes, in order.
type allOf struct {
	rules []Rule
}

func (a *allOf) Execute(ctx context.Context, params Params) (bool, error) {
	for _, r := range a.rules {
		ok, err := r.Execute(ctx, params)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
