// Package checklog defines the check audit log Entry entity.
package checklog

import (
	"errors"
	"time"

	"github.com/xraph/bastion/id"
)

// ErrNotFound is returned by stores when a check log entry does not exist.
var ErrNotFound = errors.New("checklog: not found")

// Entry is a single authorization check audit record.
type Entry struct {
	ID         id.CheckLogID `json:"id" db:"id"`
	UserID     string        `json:"user_id" db:"user_id"`
	ItemName   string        `json:"item_name" db:"item_name"`
	ItemType   string        `json:"item_type,omitempty" db:"item_type"`
	Allowed    bool          `json:"allowed" db:"allowed"`
	Decision   string        `json:"decision" db:"decision"`
	Reason     string        `json:"reason,omitempty" db:"reason"`
	EvalTimeNs int64         `json:"eval_time_ns" db:"eval_time_ns"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// QueryFilter contains filters for querying check logs.
type QueryFilter struct {
	UserID   string     `json:"user_id,omitempty"`
	ItemName string     `json:"item_name,omitempty"`
	Decision string     `json:"decision,omitempty"`
	Allowed  *bool      `json:"allowed,omitempty"`
	After    *time.Time `json:"after,omitempty"`
	Before   *time.Time `json:"before,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}
