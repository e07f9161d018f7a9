package bastion

import (
	"errors"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/item"
)

var (
	// ErrAccessDenied is returned by Enforce when a check is denied.
	ErrAccessDenied = errors.New("bastion: access denied")

	// ErrUnknownRole is returned when a stored item exists under the
	// requested name but is not a role.
	ErrUnknownRole = errors.New("bastion: item is not a role")

	// ErrUnknownPermission is returned when a stored item exists under the
	// requested name but is not a permission.
	ErrUnknownPermission = errors.New("bastion: item is not a permission")

	// ErrCyclicHierarchy is returned when adding a child would create a
	// cycle in the item hierarchy.
	ErrCyclicHierarchy = errors.New("bastion: cyclic item hierarchy detected")

	// ErrMaxDepthExceeded is returned when hierarchy traversal exceeds the
	// configured depth limit.
	ErrMaxDepthExceeded = errors.New("bastion: hierarchy depth exceeded")
)

// Aliases for the sub-package sentinels so callers can match either
// surface with errors.Is.
var (
	// ErrItemNotFound is returned by management operations that require
	// an existing item. Lookup paths report absence as nil, not an error.
	ErrItemNotFound = item.ErrNotFound

	// ErrItemExists is returned when creating an item whose name is taken.
	ErrItemExists = item.ErrExists

	// ErrCorruptItemData is returned when an item's stored payload is
	// missing or does not decode into a business rule.
	ErrCorruptItemData = item.ErrCorruptData

	// ErrUnknownItemType is returned when an item's type tag is neither
	// role nor permission. This indicates corrupted data crossing the
	// store boundary and is never a normal negative result.
	ErrUnknownItemType = item.ErrUnknownType

	// ErrDuplicateAssignment is returned when a role is already assigned
	// to the user.
	ErrDuplicateAssignment = assignment.ErrDuplicate

	// ErrAssignmentNotFound is returned when revoking a role that was
	// never granted to the user.
	ErrAssignmentNotFound = assignment.ErrNotFound
)
