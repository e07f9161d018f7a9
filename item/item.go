// Package item defines the authorization Item entity for the hierarchy.
//
// Roles and permissions share a single name-keyed namespace. A role may
// contain child items (roles or permissions) — the outgoing edges of the
// hierarchy graph. A permission is always a leaf.
package item

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/xraph/bastion/rule"
)

var (
	// ErrNotFound is returned by stores when an item does not exist.
	ErrNotFound = errors.New("item: not found")

	// ErrExists is returned by stores when an item name is already taken.
	ErrExists = errors.New("item: already exists")

	// ErrCorruptData is returned when a stored payload is missing or does
	// not decode into a rule spec. Corrupted configuration is fatal to the
	// current request, never masked as a deny.
	ErrCorruptData = errors.New("item: corrupt payload")

	// ErrUnknownType is returned when a stored type tag is neither role
	// nor permission.
	ErrUnknownType = errors.New("item: unknown type")
)

// Type discriminates roles from permissions.
type Type string

const (
	// TypeRole is a hierarchical item that may contain children.
	TypeRole Type = "role"

	// TypePermission is a leaf item representing a grantable capability.
	TypePermission Type = "permission"
)

// Valid reports whether t is a known type tag.
func (t Type) Valid() bool { return t == TypeRole || t == TypePermission }

// Item is a decoded authorization item: the in-memory form the engine
// evaluates. The business rule is resolved exactly once, when the record
// is loaded; it is never re-interpreted at check time.
type Item struct {
	Name        string         `json:"name"`
	Type        Type           `json:"type"`
	Description string         `json:"description,omitempty"`
	Children    []string       `json:"children,omitempty"`
	Rule        rule.Rule      `json:"-"`
	Spec        *rule.Spec     `json:"rule,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// IsRole reports whether the item is a role.
func (i *Item) IsRole() bool { return i.Type == TypeRole }

// IsPermission reports whether the item is a permission.
func (i *Item) IsPermission() bool { return i.Type == TypePermission }

// HasChild reports whether name is a direct child of the item.
// Transitive descendants do not count.
func (i *Item) HasChild(name string) bool {
	return slices.Contains(i.Children, name)
}

// Record is the persisted form of an item as supplied by a store.
//
// The rule payload is a tagged variant: either Rule (inline, already a
// spec) or Data (encoded JSON bytes). Exactly one must be set; Decode
// fails with ErrCorruptData otherwise.
type Record struct {
	Name        string         `json:"name" db:"name"`
	Type        Type           `json:"type" db:"type"`
	Description string         `json:"description,omitempty" db:"description"`
	Rule        *rule.Spec     `json:"rule,omitempty" db:"-"`
	Data        []byte         `json:"data,omitempty" db:"data"`
	Children    []string       `json:"children,omitempty" db:"-"`
	Metadata    map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Decode turns a stored record into an evaluatable Item, resolving the
// rule payload against the registry. Absent items are a store concern;
// a record that exists but cannot decode is corrupted configuration.
func (r *Record) Decode(reg *rule.Registry) (*Item, error) {
	if !r.Type.Valid() {
		return nil, fmt.Errorf("%w: item %q has type %q", ErrUnknownType, r.Name, r.Type)
	}

	spec, err := r.payload()
	if err != nil {
		return nil, err
	}

	rl, err := reg.Resolve(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: item %q: %w", ErrCorruptData, r.Name, err)
	}

	it := &Item{
		Name:        r.Name,
		Type:        r.Type,
		Description: r.Description,
		Rule:        rl,
		Spec:        spec,
		Metadata:    r.Metadata,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Type == TypeRole && len(r.Children) > 0 {
		it.Children = slices.Clone(r.Children)
	}
	return it, nil
}

// payload selects and decodes the tagged rule variant.
func (r *Record) payload() (*rule.Spec, error) {
	switch {
	case r.Rule != nil && len(r.Data) > 0:
		return nil, fmt.Errorf("%w: item %q has both inline and encoded payloads", ErrCorruptData, r.Name)
	case r.Rule != nil:
		return r.Rule, nil
	case len(r.Data) > 0:
		spec := new(rule.Spec)
		if err := json.Unmarshal(r.Data, spec); err != nil {
			return nil, fmt.Errorf("%w: item %q: %w", ErrCorruptData, r.Name, err)
		}
		return spec, nil
	default:
		return nil, fmt.Errorf("%w: item %q has no payload", ErrCorruptData, r.Name)
	}
}

// EncodePayload serializes a spec into the encoded variant. Stores that
// cannot keep structured payloads persist this form.
func EncodePayload(spec *rule.Spec) ([]byte, error) {
	if spec == nil {
		spec = &rule.Spec{}
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("item: encode payload: %w", err)
	}
	return data, nil
}

// ListFilter contains filters for listing item records.
type ListFilter struct {
	Type   *Type  `json:"type,omitempty"`
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}
