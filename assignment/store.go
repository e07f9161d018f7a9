package assignment

import "context"

// Store defines persistence operations for role assignments.
// ListRoleNamesForUser must return grant order: the engine consults
// assignments in that order and stops at the first match.
type Store interface {
	// CreateAssignment persists a new assignment. ErrDuplicate if the
	// role is already assigned to the user.
	CreateAssignment(ctx context.Context, a *Assignment) error

	// DeleteAssignment removes the grant of roleName to userID.
	// ErrNotFound if no such grant exists.
	DeleteAssignment(ctx context.Context, userID, roleName string) error

	// ListAssignments returns assignments matching the filter.
	ListAssignments(ctx context.Context, filter *ListFilter) ([]*Assignment, error)

	// ListRoleNamesForUser returns the role names directly granted to a
	// user, in grant order. Unknown users yield an empty slice.
	ListRoleNamesForUser(ctx context.Context, userID string) ([]string, error)

	// ListUserIDsForRole returns the users holding a role.
	ListUserIDsForRole(ctx context.Context, roleName string) ([]string, error)

	// HasAssignment reports whether roleName is directly granted to userID.
	HasAssignment(ctx context.Context, userID, roleName string) (bool, error)

	// DeleteAssignmentsByUser removes all grants held by a user.
	DeleteAssignmentsByUser(ctx context.Context, userID string) error

	// DeleteAssignmentsByRole removes all grants of a role.
	DeleteAssignmentsByRole(ctx context.Context, roleName string) error

	// DeleteAllAssignments removes every assignment.
	DeleteAllAssignments(ctx context.Context) error
}
