package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/checklog"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/item"
)

// ──────────────────────────────────────────────────
// Item model
// ──────────────────────────────────────────────────

type itemModel struct {
	grove.BaseModel `grove:"table:bastion_items"`
	Name            string         `grove:"name,pk"    bson:"_id"`
	Type            string         `grove:"type"       bson:"type"`
	Description     string         `grove:"description" bson:"description"`
	Data            string         `grove:"data"       bson:"data"` // JSON text
	Children        []string       `grove:"children"   bson:"children,omitempty"`
	Metadata        map[string]any `grove:"metadata"   bson:"metadata,omitempty"`
	CreatedAt       time.Time      `grove:"created_at" bson:"created_at"`
	UpdatedAt       time.Time      `grove:"updated_at" bson:"updated_at"`
}

func itemToModel(r *item.Record) (*itemModel, error) {
	data := r.Data
	if r.Rule != nil {
		var err error
		data, err = item.EncodePayload(r.Rule)
		if err != nil {
			return nil, fmt.Errorf("encode item payload: %w", err)
		}
	}
	return &itemModel{
		Name:        r.Name,
		Type:        string(r.Type),
		Description: r.Description,
		Data:        string(data),
		Children:    r.Children,
		Metadata:    r.Metadata,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func itemFromModel(m *itemModel) *item.Record {
	return &item.Record{
		Name:        m.Name,
		Type:        item.Type(m.Type),
		Description: m.Description,
		Data:        []byte(m.Data),
		Children:    m.Children,
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Assignment model
// ──────────────────────────────────────────────────

type assignmentModel struct {
	grove.BaseModel `grove:"table:bastion_assignments"`
	ID              string    `grove:"id,pk"      bson:"_id"`
	UserID          string    `grove:"user_id"    bson:"user_id"`
	RoleName        string    `grove:"role_name"  bson:"role_name"`
	GrantedBy       string    `grove:"granted_by" bson:"granted_by,omitempty"`
	CreatedAt       time.Time `grove:"created_at" bson:"created_at"`
}

func assignmentToModel(a *assignment.Assignment) *assignmentModel {
	return &assignmentModel{
		ID:        a.ID.String(),
		UserID:    a.UserID,
		RoleName:  a.RoleName,
		GrantedBy: a.GrantedBy,
		CreatedAt: a.CreatedAt,
	}
}

func assignmentFromModel(m *assignmentModel) *assignment.Assignment {
	aid, _ := id.ParseAssignmentID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &assignment.Assignment{
		ID:        aid,
		UserID:    m.UserID,
		RoleName:  m.RoleName,
		GrantedBy: m.GrantedBy,
		CreatedAt: m.CreatedAt,
	}
}

// ──────────────────────────────────────────────────
// Check log model
// ──────────────────────────────────────────────────

type checkLogModel struct {
	grove.BaseModel `grove:"table:bastion_check_logs"`
	ID              string    `grove:"id,pk"        bson:"_id"`
	UserID          string    `grove:"user_id"      bson:"user_id"`
	ItemName        string    `grove:"item_name"    bson:"item_name"`
	ItemType        string    `grove:"item_type"    bson:"item_type,omitempty"`
	Allowed         bool      `grove:"allowed"      bson:"allowed"`
	Decision        string    `grove:"decision"     bson:"decision"`
	Reason          string    `grove:"reason"       bson:"reason,omitempty"`
	EvalTimeNs      int64     `grove:"eval_time_ns" bson:"eval_time_ns"`
	CreatedAt       time.Time `grove:"created_at"   bson:"created_at"`
}

func checkLogToModel(e *checklog.Entry) *checkLogModel {
	return &checkLogModel{
		ID:         e.ID.String(),
		UserID:     e.UserID,
		ItemName:   e.ItemName,
		ItemType:   e.ItemType,
		Allowed:    e.Allowed,
		Decision:   e.Decision,
		Reason:     e.Reason,
		EvalTimeNs: e.EvalTimeNs,
		CreatedAt:  e.CreatedAt,
	}
}

func checkLogFromModel(m *checkLogModel) *checklog.Entry {
	lid, _ := id.ParseCheckLogID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &checklog.Entry{
		ID:         lid,
		UserID:     m.UserID,
		ItemName:   m.ItemName,
		ItemType:   m.ItemType,
		Allowed:    m.Allowed,
		Decision:   m.Decision,
		Reason:     m.Reason,
		EvalTimeNs: m.EvalTimeNs,
		CreatedAt:  m.CreatedAt,
	}
}
