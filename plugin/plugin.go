// Package plugin defines the plugin system for Bastion.
// Plugins are notified of lifecycle events (check performed, item created,
// role assigned, etc.) and can react — logging, metrics, tracing, etc.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/item"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Check lifecycle hooks
// ──────────────────────────────────────────────────

// BeforeCheck is called before an authorization check is evaluated.
// The req parameter is *bastion.CheckRequest (passed as any to avoid import cycle).
type BeforeCheck interface {
	OnBeforeCheck(ctx context.Context, req any) error
}

// AfterCheck is called after an authorization check completes.
// The req parameter is *bastion.CheckRequest; result is *bastion.CheckResult.
type AfterCheck interface {
	OnAfterCheck(ctx context.Context, req, result any) error
}

// ──────────────────────────────────────────────────
// Item lifecycle hooks
// ──────────────────────────────────────────────────

// ItemCreated is called after a role or permission is created.
type ItemCreated interface {
	OnItemCreated(ctx context.Context, it *item.Item) error
}

// ItemUpdated is called after an item is updated.
type ItemUpdated interface {
	OnItemUpdated(ctx context.Context, it *item.Item) error
}

// ItemDeleted is called after an item is deleted.
type ItemDeleted interface {
	OnItemDeleted(ctx context.Context, name string) error
}

// ──────────────────────────────────────────────────
// Hierarchy lifecycle hooks
// ──────────────────────────────────────────────────

// ChildAdded is called after a child item is attached to a role.
type ChildAdded interface {
	OnChildAdded(ctx context.Context, roleName, childName string) error
}

// ChildRemoved is called after a child item is detached from a role.
type ChildRemoved interface {
	OnChildRemoved(ctx context.Context, roleName, childName string) error
}

// ──────────────────────────────────────────────────
// Assignment lifecycle hooks
// ──────────────────────────────────────────────────

// RoleAssigned is called after a role is assigned to a user.
type RoleAssigned interface {
	OnRoleAssigned(ctx context.Context, a *assignment.Assignment) error
}

// RoleRevoked is called after a role is revoked from a user.
type RoleRevoked interface {
	OnRoleRevoked(ctx context.Context, userID, roleName string) error
}

// ──────────────────────────────────────────────────
// Engine lifecycle hooks
// ──────────────────────────────────────────────────

// Refreshed is called after the engine discards its caches.
type Refreshed interface {
	OnRefreshed(ctx context.Context) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
