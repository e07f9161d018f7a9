// Package bastion provides a hierarchical RBAC authorization engine for Go.
//
// Bastion evaluates "can user U do X?" questions over a graph of named
// authorization items: roles, which may contain child roles and permissions,
// and permissions, which are leaves. Every item can carry a business rule
// that is executed during evaluation, so hierarchy membership and runtime
// conditions are checked together.
//
//	eng, err := bastion.NewEngine(
//	    bastion.WithStore(memStore),
//	)
//	result, err := eng.Check(ctx, &bastion.CheckRequest{
//	    UserID: "user_123",
//	    Item:   "editPost",
//	})
package bastion

import "github.com/xraph/bastion/rule"

// CheckRequest is the input to an authorization check.
type CheckRequest struct {
	// UserID identifies the subject. Bastion treats it as opaque.
	UserID string `json:"user_id"`

	// Item is the name of the role or permission being checked.
	Item string `json:"item"`

	// Params are passed to the target item's business rule. They are
	// never propagated to rules of descendant items.
	Params rule.Params `json:"params,omitempty"`
}

// CheckResult is the outcome of an authorization check.
type CheckResult struct {
	Allowed    bool     `json:"allowed"`
	Decision   Decision `json:"decision"`
	Reason     string   `json:"reason,omitempty"`
	EvalTimeNs int64    `json:"eval_time_ns"`
}

// Decision is the authorization outcome.
type Decision string

const (
	// DecisionAllow means the request is permitted.
	DecisionAllow Decision = "allow"

	// DecisionDenyUnknownItem means the target item does not exist.
	DecisionDenyUnknownItem Decision = "deny_unknown_item"

	// DecisionDenyNoAssignments means the user has no roles assigned.
	DecisionDenyNoAssignments Decision = "deny_no_assignments"

	// DecisionDenyRule means a business rule along the chain returned false.
	DecisionDenyRule Decision = "deny_rule"

	// DecisionDenyNotReachable means no assigned role reaches the target role.
	DecisionDenyNotReachable Decision = "deny_not_reachable"

	// DecisionDenyNotDirect means the target permission is not a direct
	// child of any assigned role.
	DecisionDenyNotDirect Decision = "deny_not_direct"
)
