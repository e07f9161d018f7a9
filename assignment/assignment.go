// Package assignment defines the Assignment entity (role→user grant).
package assignment

import (
	"errors"
	"time"

	"github.com/xraph/bastion/id"
)

var (
	// ErrNotFound is returned by stores when an assignment does not exist.
	ErrNotFound = errors.New("assignment: not found")

	// ErrDuplicate is returned when the role is already assigned to the user.
	ErrDuplicate = errors.New("assignment: role already assigned")
)

// Assignment is a direct grant of a role to a user. Users may hold many
// roles; grant order is preserved and drives evaluation order.
type Assignment struct {
	ID        id.AssignmentID `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	RoleName  string          `json:"role_name" db:"role_name"`
	GrantedBy string          `json:"granted_by,omitempty" db:"granted_by"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// ListFilter contains filters for listing assignments.
type ListFilter struct {
	UserID   string `json:"user_id,omitempty"`
	RoleName string `json:"role_name,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}
