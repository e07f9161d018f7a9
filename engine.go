package bastion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/checklog"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/item"
	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/rule"
	"github.com/xraph/bastion/store"
)

// Engine is the central authorization engine. It evaluates checks over a
// decoded in-memory snapshot of the item hierarchy, manages the store,
// and fires extension hooks.
type Engine struct {
	store   store.Store
	rules   *rule.Registry
	cache   Cache
	plugins *plugin.Registry
	logger  *slog.Logger
	config  Config

	mu   sync.RWMutex
	snap *snapshot

	// edgeMu serializes AddChild so the cycle check and the edge write
	// act on a consistent view of the hierarchy.
	edgeMu sync.Mutex
}

// snapshot is an immutable decoded view of the item graph plus a lazy
// per-user assignment cache. Whole snapshots are discarded on Refresh or
// item mutation, so readers never observe partial state.
type snapshot struct {
	items    map[string]*item.Item
	resolver *resolver

	amu         sync.RWMutex
	assignments map[string][]string
}

// assignmentsFor returns the role names directly granted to a user, in
// grant order, memoized per user for the snapshot's lifetime.
func (s *snapshot) assignmentsFor(ctx context.Context, st store.Store, userID string) ([]string, error) {
	s.amu.RLock()
	names, ok := s.assignments[userID]
	s.amu.RUnlock()
	if ok {
		return names, nil
	}

	names, err := st.ListRoleNamesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list assignments for %q: %w", userID, err)
	}

	s.amu.Lock()
	s.assignments[userID] = names
	s.amu.Unlock()

	return names, nil
}

func (s *snapshot) invalidateUser(userID string) {
	s.amu.Lock()
	delete(s.assignments, userID)
	s.amu.Unlock()
}

// NewEngine creates a new Bastion engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		rules:  rule.NewRegistry(),
		logger: slog.Default(),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, errors.New("bastion: store is required")
	}
	if e.config.MaxHierarchyDepth <= 0 {
		e.config.MaxHierarchyDepth = DefaultConfig().MaxHierarchyDepth
	}
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Rules returns the business-rule registry.
func (e *Engine) Rules() *rule.Registry { return e.rules }

// Plugins returns the plugin registry (may be nil).
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Start performs any startup initialization.
func (e *Engine) Start(_ context.Context) error { return nil }

// Stop performs graceful shutdown.
func (e *Engine) Stop(ctx context.Context) error {
	if e.plugins != nil {
		e.plugins.EmitShutdown(ctx)
	}
	return nil
}

// CreateRole constructs a role item with the always-allow rule. It does
// not register the item; pass it to AddItem for that.
func CreateRole(name string) *item.Item {
	now := time.Now()
	return &item.Item{
		Name:      name,
		Type:      item.TypeRole,
		Rule:      rule.Allow,
		Spec:      &rule.Spec{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CreatePermission constructs a permission item with the always-allow
// rule. It does not register the item; pass it to AddItem for that.
func CreatePermission(name string) *item.Item {
	now := time.Now()
	return &item.Item{
		Name:      name,
		Type:      item.TypePermission,
		Rule:      rule.Allow,
		Spec:      &rule.Spec{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Check performs an authorization check. This is the hot path.
//
// A deny is a normal result, never an error. Errors indicate corrupted
// authorization data or store failures and are fatal to the request.
func (e *Engine) Check(ctx context.Context, req *CheckRequest) (*CheckResult, error) {
	start := time.Now()

	// Cached results are only safe for parameterless checks: business
	// rules may read params, so parameterized outcomes are not reusable.
	cacheable := e.cache != nil && e.config.CacheTTL > 0 && len(req.Params) == 0
	if cacheable {
		if cached, ok := e.cache.Get(ctx, req.UserID, req.Item); ok {
			// The cached result may be shared with concurrent checks;
			// stamp the eval time on a private copy.
			result := *cached
			result.EvalTimeNs = time.Since(start).Nanoseconds()
			return &result, nil
		}
	}

	if e.plugins != nil {
		e.plugins.EmitBeforeCheck(ctx, req)
	}

	snap, err := e.currentSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	result, err := e.evaluate(ctx, snap, req)
	if err != nil {
		return nil, fmt.Errorf("bastion check: %w", err)
	}
	result.EvalTimeNs = time.Since(start).Nanoseconds()

	if cacheable {
		e.cache.Set(ctx, req.UserID, req.Item, result, e.config.CacheTTL)
	}

	e.writeCheckLog(ctx, snap, req, result)

	if e.plugins != nil {
		e.plugins.EmitAfterCheck(ctx, req, result)
	}

	return result, nil
}

// Can is a shorthand for a simple authorization check.
func (e *Engine) Can(ctx context.Context, userID, itemName string, params rule.Params) (bool, error) {
	result, err := e.Check(ctx, &CheckRequest{UserID: userID, Item: itemName, Params: params})
	if err != nil {
		return false, err
	}
	return result.Allowed, nil
}

// Enforce returns an error if the authorization check is denied.
func (e *Engine) Enforce(ctx context.Context, req *CheckRequest) error {
	result, err := e.Check(ctx, req)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return fmt.Errorf("%w: %s: %s", ErrAccessDenied, result.Decision, result.Reason)
	}
	return nil
}

// GetItem returns an item by name. Unknown names yield (nil, nil):
// absence is an implicit deny for checks, not an error.
func (e *Engine) GetItem(ctx context.Context, name string) (*item.Item, error) {
	snap, err := e.currentSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.items[name], nil
}

// GetRole returns a role by name. Unknown names yield (nil, nil); a
// stored item of the wrong type is a data error, not a miss.
func (e *Engine) GetRole(ctx context.Context, name string) (*item.Item, error) {
	it, err := e.GetItem(ctx, name)
	if err != nil || it == nil {
		return nil, err
	}
	if !it.IsRole() {
		return nil, fmt.Errorf("%w: %q is a %s", ErrUnknownRole, name, it.Type)
	}
	return it, nil
}

// GetPermission returns a permission by name. Unknown names yield
// (nil, nil); a stored item of the wrong type is a data error.
func (e *Engine) GetPermission(ctx context.Context, name string) (*item.Item, error) {
	it, err := e.GetItem(ctx, name)
	if err != nil || it == nil {
		return nil, err
	}
	if !it.IsPermission() {
		return nil, fmt.Errorf("%w: %q is a %s", ErrUnknownPermission, name, it.Type)
	}
	return it, nil
}

// GetItems returns a name-keyed map for the requested names. Unknown
// names map to nil.
func (e *Engine) GetItems(ctx context.Context, names []string) (map[string]*item.Item, error) {
	snap, err := e.currentSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*item.Item, len(names))
	for _, name := range names {
		result[name] = snap.items[name]
	}
	return result, nil
}

// ListItems returns all items whose name matches any of the only
// patterns (all when only is empty) and none of the exclude patterns.
// Patterns support trailing '*' globs.
func (e *Engine) ListItems(ctx context.Context, only, exclude []string) (map[string]*item.Item, error) {
	snap, err := e.currentSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*item.Item)
	for name, it := range snap.items {
		if len(only) > 0 && !matchAny(only, name) {
			continue
		}
		if matchAny(exclude, name) {
			continue
		}
		result[name] = it
	}
	return result, nil
}

// HasItem reports whether an item exists under the given name.
func (e *Engine) HasItem(ctx context.Context, name string) (bool, error) {
	snap, err := e.currentSnapshot(ctx)
	if err != nil {
		return false, err
	}
	_, ok := snap.items[name]
	return ok, nil
}

// CountItems returns the number of items in the hierarchy.
func (e *Engine) CountItems(ctx context.Context) (int, error) {
	snap, err := e.currentSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	return len(snap.items), nil
}

// RecursiveRoles returns every role reachable from name, including name
// itself. Unknown names yield an empty set; permissions yield nil.
func (e *Engine) RecursiveRoles(ctx context.Context, name string) ([]string, error) {
	snap, err := e.currentSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.resolver.recursiveRoles(name)
}

// RecursivePermissions returns every permission reachable from name.
// Unknown names yield an empty set; childless roles yield nil.
func (e *Engine) RecursivePermissions(ctx context.Context, name string) ([]string, error) {
	snap, err := e.currentSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.resolver.recursivePermissions(name)
}

// AddItem registers a new role or permission. The item's rule spec is
// resolved against the registry up front so unregistered rule names are
// rejected at write time, not at first check.
func (e *Engine) AddItem(ctx context.Context, it *item.Item) error {
	if it.Name == "" {
		return errors.New("bastion: item name is required")
	}
	if !it.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownItemType, it.Type)
	}

	rec := recordFromItem(it)
	if _, err := e.rules.Resolve(rec.Rule); err != nil {
		return fmt.Errorf("bastion: item %q: %w", it.Name, err)
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	if err := e.store.CreateItem(ctx, rec); err != nil {
		return err
	}

	e.invalidateAll(ctx)
	if e.plugins != nil {
		e.plugins.EmitItemCreated(ctx, it)
	}
	return nil
}

// UpdateItem persists changes to an existing item's description, rule
// spec, and metadata. Children are managed via AddChild and RemoveChild.
func (e *Engine) UpdateItem(ctx context.Context, it *item.Item) error {
	if !it.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownItemType, it.Type)
	}

	rec := recordFromItem(it)
	if _, err := e.rules.Resolve(rec.Rule); err != nil {
		return fmt.Errorf("bastion: item %q: %w", it.Name, err)
	}
	rec.UpdatedAt = time.Now()

	if err := e.store.UpdateItem(ctx, rec); err != nil {
		return err
	}

	e.invalidateAll(ctx)
	if e.plugins != nil {
		e.plugins.EmitItemUpdated(ctx, it)
	}
	return nil
}

// RemoveItem deletes an item, detaching it from all parents. Removing a
// role also revokes every assignment of that role.
func (e *Engine) RemoveItem(ctx context.Context, name string) error {
	rec, err := e.store.GetItem(ctx, name)
	if err != nil {
		return err
	}

	if rec.Type == item.TypeRole {
		if err := e.store.DeleteAssignmentsByRole(ctx, name); err != nil {
			return fmt.Errorf("revoke assignments of %q: %w", name, err)
		}
	}
	if err := e.store.DeleteItem(ctx, name); err != nil {
		return err
	}

	e.invalidateAll(ctx)
	if e.plugins != nil {
		e.plugins.EmitItemDeleted(ctx, name)
	}
	return nil
}

// AddChild attaches childName under roleName. The edge is rejected with
// ErrCyclicHierarchy when it would make the hierarchy cyclic or when the
// child is already reachable from the role.
func (e *Engine) AddChild(ctx context.Context, roleName, childName string) error {
	e.edgeMu.Lock()
	defer e.edgeMu.Unlock()

	snap, err := e.currentSnapshot(ctx)
	if err != nil {
		return err
	}

	parent, ok := snap.items[roleName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, roleName)
	}
	if !parent.IsRole() {
		return fmt.Errorf("%w: %q is a %s", ErrUnknownRole, roleName, parent.Type)
	}
	if _, ok := snap.items[childName]; !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, childName)
	}

	cyclic, err := snap.resolver.detectCycle(parent, childName)
	if err != nil {
		return err
	}
	if cyclic {
		return fmt.Errorf("%w: %q -> %q", ErrCyclicHierarchy, roleName, childName)
	}

	if err := e.store.AddChild(ctx, roleName, childName); err != nil {
		return err
	}

	e.invalidateAll(ctx)
	if e.plugins != nil {
		e.plugins.EmitChildAdded(ctx, roleName, childName)
	}
	return nil
}

// RemoveChild detaches childName from roleName.
func (e *Engine) RemoveChild(ctx context.Context, roleName, childName string) error {
	if err := e.store.RemoveChild(ctx, roleName, childName); err != nil {
		return err
	}

	e.invalidateAll(ctx)
	if e.plugins != nil {
		e.plugins.EmitChildRemoved(ctx, roleName, childName)
	}
	return nil
}

// Assign grants roleName to userID. Only roles are assignable.
func (e *Engine) Assign(ctx context.Context, userID, roleName string) (*assignment.Assignment, error) {
	snap, err := e.currentSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	it, ok := snap.items[roleName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrItemNotFound, roleName)
	}
	if !it.IsRole() {
		return nil, fmt.Errorf("%w: %q is a %s", ErrUnknownRole, roleName, it.Type)
	}

	a := &assignment.Assignment{
		ID:        id.NewAssignmentID(),
		UserID:    userID,
		RoleName:  roleName,
		CreatedAt: time.Now(),
	}
	if err := e.store.CreateAssignment(ctx, a); err != nil {
		return nil, err
	}

	e.invalidateUserCaches(ctx, userID)
	if e.plugins != nil {
		e.plugins.EmitRoleAssigned(ctx, a)
	}
	return a, nil
}

// Revoke removes the grant of roleName from userID.
func (e *Engine) Revoke(ctx context.Context, userID, roleName string) error {
	if err := e.store.DeleteAssignment(ctx, userID, roleName); err != nil {
		return err
	}

	e.invalidateUserCaches(ctx, userID)
	if e.plugins != nil {
		e.plugins.EmitRoleRevoked(ctx, userID, roleName)
	}
	return nil
}

// HasAssigned reports whether roleName is directly granted to userID.
// Transitive reachability does not count.
func (e *Engine) HasAssigned(ctx context.Context, userID, roleName string) (bool, error) {
	names, err := e.Assignments(ctx, userID)
	if err != nil {
		return false, err
	}
	return slices.Contains(names, roleName), nil
}

// Assignments returns the role names directly granted to a user, in
// grant order. Unknown users yield an empty slice.
func (e *Engine) Assignments(ctx context.Context, userID string) ([]string, error) {
	snap, err := e.currentSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	names, err := snap.assignmentsFor(ctx, e.store, userID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(names), nil
}

// Refresh discards the item snapshot, assignment cache, closure memos,
// and the external check-result cache. The next read reloads from the
// store. Use after bulk data loads or out-of-band store writes.
func (e *Engine) Refresh(ctx context.Context) error {
	e.invalidateAll(ctx)
	if e.plugins != nil {
		e.plugins.EmitRefreshed(ctx)
	}
	return nil
}

// currentSnapshot returns the decoded item snapshot, loading it from the
// store on first use. Loading decodes every payload exactly once; a
// record that fails to decode aborts the load.
func (e *Engine) currentSnapshot(ctx context.Context) (*snapshot, error) {
	e.mu.RLock()
	snap := e.snap
	e.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snap != nil {
		return e.snap, nil
	}

	records, err := e.store.ListItems(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("bastion: load items: %w", err)
	}

	items := make(map[string]*item.Item, len(records))
	for _, rec := range records {
		it, err := rec.Decode(e.rules)
		if err != nil {
			return nil, err
		}
		items[it.Name] = it
	}

	e.snap = &snapshot{
		items:       items,
		resolver:    newResolver(items, e.config.MaxHierarchyDepth),
		assignments: make(map[string][]string),
	}
	return e.snap, nil
}

func (e *Engine) invalidateAll(ctx context.Context) {
	e.mu.Lock()
	e.snap = nil
	e.mu.Unlock()
	if e.cache != nil {
		e.cache.Purge(ctx)
	}
}

func (e *Engine) invalidateUserCaches(ctx context.Context, userID string) {
	e.mu.RLock()
	snap := e.snap
	e.mu.RUnlock()
	if snap != nil {
		snap.invalidateUser(userID)
	}
	if e.cache != nil {
		e.cache.InvalidateUser(ctx, userID)
	}
}

// writeCheckLog appends an audit entry for a completed check. Audit
// failures are logged and never fail the check itself.
func (e *Engine) writeCheckLog(ctx context.Context, snap *snapshot, req *CheckRequest, result *CheckResult) {
	if !e.config.checkLogEnabled() {
		return
	}

	itemType := ""
	if it, ok := snap.items[req.Item]; ok {
		itemType = string(it.Type)
	}

	entry := &checklog.Entry{
		ID:         id.NewCheckLogID(),
		UserID:     req.UserID,
		ItemName:   req.Item,
		ItemType:   itemType,
		Allowed:    result.Allowed,
		Decision:   string(result.Decision),
		Reason:     result.Reason,
		EvalTimeNs: result.EvalTimeNs,
		CreatedAt:  time.Now(),
	}
	if err := e.store.CreateCheckLog(ctx, entry); err != nil {
		e.logger.Warn("check log write failed",
			slog.String("user_id", req.UserID),
			slog.String("item", req.Item),
			slog.String("error", err.Error()),
		)
	}
}

// recordFromItem builds the persisted form of an item. The rule spec is
// carried inline; stores encode it as needed.
func recordFromItem(it *item.Item) *item.Record {
	rec := &item.Record{
		Name:        it.Name,
		Type:        it.Type,
		Description: it.Description,
		Rule:        it.Spec,
		Metadata:    it.Metadata,
		CreatedAt:   it.CreatedAt,
		UpdatedAt:   it.UpdatedAt,
	}
	if rec.Rule == nil {
		rec.Rule = &rule.Spec{}
	}
	if it.IsRole() {
		rec.Children = slices.Clone(it.Children)
	}
	return rec
}
