package bastion

import (
	"context"
	"fmt"
	"slices"

	"github.com/xraph/bastion/item"
	"github.com/xraph/bastion/rule"
)

// evaluate runs the check state machine over a snapshot.
//
// Role targets: a directly assigned role wins immediately; otherwise the
// first assignment whose role closure contains the target decides the
// outcome and no further assignments are consulted. Permission targets:
// the first assignment holding the target as a direct child decides the
// outcome; transitive descent does not grant a permission.
func (e *Engine) evaluate(ctx context.Context, snap *snapshot, req *CheckRequest) (*CheckResult, error) {
	target, ok := snap.items[req.Item]
	if !ok {
		return &CheckResult{
			Decision: DecisionDenyUnknownItem,
			Reason:   fmt.Sprintf("item %q does not exist", req.Item),
		}, nil
	}

	assignments, err := snap.assignmentsFor(ctx, e.store, req.UserID)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return &CheckResult{
			Decision: DecisionDenyNoAssignments,
			Reason:   "user has no roles assigned",
		}, nil
	}

	switch target.Type {
	case item.TypeRole:
		return e.evaluateRole(ctx, snap, target, assignments, req.Params)
	case item.TypePermission:
		return e.evaluatePermission(ctx, snap, target, assignments, req.Params)
	default:
		return nil, fmt.Errorf("%w: item %q has type %q", ErrUnknownItemType, target.Name, target.Type)
	}
}

func (e *Engine) evaluateRole(ctx context.Context, snap *snapshot, target *item.Item, assignments []string, params rule.Params) (*CheckResult, error) {
	if slices.Contains(assignments, target.Name) {
		return e.runRoleChain(ctx, snap, target.Name, params)
	}

	for _, assigned := range assignments {
		closure, err := snap.resolver.recursiveRoles(assigned)
		if err != nil {
			return nil, err
		}
		if slices.Contains(closure, target.Name) {
			return e.runRoleChain(ctx, snap, target.Name, params)
		}
	}

	return &CheckResult{
		Decision: DecisionDenyNotReachable,
		Reason:   fmt.Sprintf("no assigned role reaches %q", target.Name),
	}, nil
}

// runRoleChain evaluates the matched role's rule chain and maps the
// boolean outcome to a result. The caller has already committed to this
// chain; a false here is final.
func (e *Engine) runRoleChain(ctx context.Context, snap *snapshot, roleName string, params rule.Params) (*CheckResult, error) {
	passed, err := e.checkRecursive(ctx, snap, roleName, params, 0)
	if err != nil {
		return nil, err
	}
	if !passed {
		return &CheckResult{
			Decision: DecisionDenyRule,
			Reason:   fmt.Sprintf("rule chain of %q denied", roleName),
		}, nil
	}
	return &CheckResult{Allowed: true, Decision: DecisionAllow}, nil
}

func (e *Engine) evaluatePermission(ctx context.Context, snap *snapshot, target *item.Item, assignments []string, params rule.Params) (*CheckResult, error) {
	for _, assigned := range assignments {
		parent, ok := snap.items[assigned]
		if !ok || !parent.HasChild(target.Name) {
			continue
		}

		// The assignment role's own chain must pass first; params stay
		// with the target permission and are not handed to the chain.
		passed, err := e.checkRecursive(ctx, snap, assigned, nil, 0)
		if err != nil {
			return nil, err
		}
		if !passed {
			return &CheckResult{
				Decision: DecisionDenyRule,
				Reason:   fmt.Sprintf("rule chain of %q denied", assigned),
			}, nil
		}

		allowed, err := e.checkPermission(ctx, snap, target.Name, params)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return &CheckResult{
				Decision: DecisionDenyRule,
				Reason:   fmt.Sprintf("rule of %q denied", target.Name),
			}, nil
		}
		return &CheckResult{Allowed: true, Decision: DecisionAllow}, nil
	}

	return &CheckResult{
		Decision: DecisionDenyNotDirect,
		Reason:   fmt.Sprintf("%q is not a direct child of any assigned role", target.Name),
	}, nil
}

// checkRecursive validates an item and its whole subtree.
//
// A role passes when its own rule passes and every child passes
// recursively; params reach only the top-level item, descendants run
// with nil params. A permission encountered here passes unconditionally:
// the target permission's own rule runs in checkPermission, never on the
// way down a role chain.
func (e *Engine) checkRecursive(ctx context.Context, snap *snapshot, name string, params rule.Params, depth int) (bool, error) {
	if depth > e.config.MaxHierarchyDepth {
		return false, fmt.Errorf("%w: at %q", ErrMaxDepthExceeded, name)
	}

	it, ok := snap.items[name]
	if !ok {
		return false, nil
	}

	switch it.Type {
	case item.TypePermission:
		return true, nil
	case item.TypeRole:
	default:
		return false, fmt.Errorf("%w: item %q has type %q", ErrUnknownItemType, name, it.Type)
	}

	passed, err := it.Rule.Execute(ctx, params)
	if err != nil {
		return false, fmt.Errorf("execute rule of %q: %w", name, err)
	}
	if !passed {
		return false, nil
	}

	for _, child := range it.Children {
		passed, err := e.checkRecursive(ctx, snap, child, nil, depth+1)
		if err != nil {
			return false, err
		}
		if !passed {
			return false, nil
		}
	}
	return true, nil
}

// checkPermission runs the target permission's own rule with the check
// params. A stored item of the wrong type is corrupted configuration.
func (e *Engine) checkPermission(ctx context.Context, snap *snapshot, name string, params rule.Params) (bool, error) {
	it, ok := snap.items[name]
	if !ok {
		return false, nil
	}
	if !it.IsPermission() {
		return false, fmt.Errorf("%w: %q is a %s", ErrUnknownPermission, name, it.Type)
	}

	allowed, err := it.Rule.Execute(ctx, params)
	if err != nil {
		return false, fmt.Errorf("execute rule of %q: %w", name, err)
	}
	return allowed, nil
}
