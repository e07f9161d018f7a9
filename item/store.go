package item

import "context"

// Store defines persistence operations for items. Implementations must
// preserve child order — evaluation visits children in insertion order.
type Store interface {
	// CreateItem persists a new item record. ErrExists if the name is taken.
	CreateItem(ctx context.Context, r *Record) error

	// GetItem retrieves an item record by name. ErrNotFound if absent.
	GetItem(ctx context.Context, name string) (*Record, error)

	// UpdateItem persists changes to an item record. ErrNotFound if absent.
	// The child list is managed through AddChild/RemoveChild/SetChildren.
	UpdateItem(ctx context.Context, r *Record) error

	// DeleteItem removes an item and detaches it from all parents.
	DeleteItem(ctx context.Context, name string) error

	// ListItems returns item records matching the filter.
	ListItems(ctx context.Context, filter *ListFilter) ([]*Record, error)

	// CountItems returns the number of items matching the filter.
	CountItems(ctx context.Context, filter *ListFilter) (int64, error)

	// HasItem reports whether an item exists.
	HasItem(ctx context.Context, name string) (bool, error)

	// AddChild appends child to parent's child list. The store performs no
	// cycle detection — that is the engine's responsibility before mutation.
	AddChild(ctx context.Context, parent, child string) error

	// RemoveChild removes child from parent's child list.
	RemoveChild(ctx context.Context, parent, child string) error

	// SetChildren replaces parent's child list.
	SetChildren(ctx context.Context, parent string, children []string) error

	// ListChildren returns parent's direct children in insertion order.
	ListChildren(ctx context.Context, parent string) ([]string, error)

	// DeleteAllItems removes every item. Used by bulk reloads and tests.
	DeleteAllItems(ctx context.Context) error
}
