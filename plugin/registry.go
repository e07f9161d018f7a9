package plugin

import (
	"context"
	"log/slog"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/item"
)

// Named entry types pair a hook with the plugin name for logging.

type beforeCheckEntry struct {
	name string
	hook BeforeCheck
}
type afterCheckEntry struct {
	name string
	hook AfterCheck
}
type itemCreatedEntry struct {
	name string
	hook ItemCreated
}
type itemUpdatedEntry struct {
	name string
	hook ItemUpdated
}
type itemDeletedEntry struct {
	name string
	hook ItemDeleted
}
type childAddedEntry struct {
	name string
	hook ChildAdded
}
type childRemovedEntry struct {
	name string
	hook ChildRemoved
}
type roleAssignedEntry struct {
	name string
	hook RoleAssigned
}
type roleRevokedEntry struct {
	name string
	hook RoleRevoked
}
type refreshedEntry struct {
	name string
	hook Refreshed
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	beforeCheck  []beforeCheckEntry
	afterCheck   []afterCheckEntry
	itemCreated  []itemCreatedEntry
	itemUpdated  []itemUpdatedEntry
	itemDeleted  []itemDeletedEntry
	childAdded   []childAddedEntry
	childRemoved []childRemovedEntry
	roleAssigned []roleAssignedEntry
	roleRevoked  []roleRevokedEntry
	refreshed    []refreshedEntry
	shutdown     []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable
// hook caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(BeforeCheck); ok {
		r.beforeCheck = append(r.beforeCheck, beforeCheckEntry{name, h})
	}
	if h, ok := p.(AfterCheck); ok {
		r.afterCheck = append(r.afterCheck, afterCheckEntry{name, h})
	}
	if h, ok := p.(ItemCreated); ok {
		r.itemCreated = append(r.itemCreated, itemCreatedEntry{name, h})
	}
	if h, ok := p.(ItemUpdated); ok {
		r.itemUpdated = append(r.itemUpdated, itemUpdatedEntry{name, h})
	}
	if h, ok := p.(ItemDeleted); ok {
		r.itemDeleted = append(r.itemDeleted, itemDeletedEntry{name, h})
	}
	if h, ok := p.(ChildAdded); ok {
		r.childAdded = append(r.childAdded, childAddedEntry{name, h})
	}
	if h, ok := p.(ChildRemoved); ok {
		r.childRemoved = append(r.childRemoved, childRemovedEntry{name, h})
	}
	if h, ok := p.(RoleAssigned); ok {
		r.roleAssigned = append(r.roleAssigned, roleAssignedEntry{name, h})
	}
	if h, ok := p.(RoleRevoked); ok {
		r.roleRevoked = append(r.roleRevoked, roleRevokedEntry{name, h})
	}
	if h, ok := p.(Refreshed); ok {
		r.refreshed = append(r.refreshed, refreshedEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// ──────────────────────────────────────────────────
// Check event emitters
// ──────────────────────────────────────────────────

// EmitBeforeCheck notifies all plugins that implement BeforeCheck.
func (r *Registry) EmitBeforeCheck(ctx context.Context, req any) {
	for _, e := range r.beforeCheck {
		if err := e.hook.OnBeforeCheck(ctx, req); err != nil {
			r.logHookError("OnBeforeCheck", e.name, err)
		}
	}
}

// EmitAfterCheck notifies all plugins that implement AfterCheck.
func (r *Registry) EmitAfterCheck(ctx context.Context, req, result any) {
	for _, e := range r.afterCheck {
		if err := e.hook.OnAfterCheck(ctx, req, result); err != nil {
			r.logHookError("OnAfterCheck", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Item event emitters
// ──────────────────────────────────────────────────

// EmitItemCreated notifies all plugins that implement ItemCreated.
func (r *Registry) EmitItemCreated(ctx context.Context, it *item.Item) {
	for _, e := range r.itemCreated {
		if err := e.hook.OnItemCreated(ctx, it); err != nil {
			r.logHookError("OnItemCreated", e.name, err)
		}
	}
}

// EmitItemUpdated notifies all plugins that implement ItemUpdated.
func (r *Registry) EmitItemUpdated(ctx context.Context, it *item.Item) {
	for _, e := range r.itemUpdated {
		if err := e.hook.OnItemUpdated(ctx, it); err != nil {
			r.logHookError("OnItemUpdated", e.name, err)
		}
	}
}

// EmitItemDeleted notifies all plugins that implement ItemDeleted.
func (r *Registry) EmitItemDeleted(ctx context.Context, name string) {
	for _, e := range r.itemDeleted {
		if err := e.hook.OnItemDeleted(ctx, name); err != nil {
			r.logHookError("OnItemDeleted", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Hierarchy event emitters
// ──────────────────────────────────────────────────

// EmitChildAdded notifies all plugins that implement ChildAdded.
func (r *Registry) EmitChildAdded(ctx context.Context, roleName, childName string) {
	for _, e := range r.childAdded {
		if err := e.hook.OnChildAdded(ctx, roleName, childName); err != nil {
			r.logHookError("OnChildAdded", e.name, err)
		}
	}
}

// EmitChildRemoved notifies all plugins that implement ChildRemoved.
func (r *Registry) EmitChildRemoved(ctx context.Context, roleName, childName string) {
	for _, e := range r.childRemoved {
		if err := e.hook.OnChildRemoved(ctx, roleName, childName); err != nil {
			r.logHookError("OnChildRemoved", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Assignment event emitters
// ──────────────────────────────────────────────────

// EmitRoleAssigned notifies all plugins that implement RoleAssigned.
func (r *Registry) EmitRoleAssigned(ctx context.Context, a *assignment.Assignment) {
	for _, e := range r.roleAssigned {
		if err := e.hook.OnRoleAssigned(ctx, a); err != nil {
			r.logHookError("OnRoleAssigned", e.name, err)
		}
	}
}

// EmitRoleRevoked notifies all plugins that implement RoleRevoked.
func (r *Registry) EmitRoleRevoked(ctx context.Context, userID, roleName string) {
	for _, e := range r.roleRevoked {
		if err := e.hook.OnRoleRevoked(ctx, userID, roleName); err != nil {
			r.logHookError("OnRoleRevoked", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Engine event emitters
// ──────────────────────────────────────────────────

// EmitRefreshed notifies all plugins that implement Refreshed.
func (r *Registry) EmitRefreshed(ctx context.Context) {
	for _, e := range r.refreshed {
		if err := e.hook.OnRefreshed(ctx); err != nil {
			r.logHookError("OnRefreshed", e.name, err)
		}
	}
}

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
