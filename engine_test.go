package bastion

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/xraph/bastion/checklog"
	"github.com/xraph/bastion/item"
	"github.com/xraph/bastion/rule"
	"github.com/xraph/bastion/store"
	"github.com/xraph/bastion/store/memory"
)

// countingStore wraps a store and counts loads, so tests can observe
// snapshot and assignment memoization.
type countingStore struct {
	store.Store
	listItems int
	listRoles int
}

func (c *countingStore) ListItems(ctx context.Context, f *item.ListFilter) ([]*item.Record, error) {
	c.listItems++
	return c.Store.ListItems(ctx, f)
}

func (c *countingStore) ListRoleNamesForUser(ctx context.Context, userID string) ([]string, error) {
	c.listRoles++
	return c.Store.ListRoleNamesForUser(ctx, userID)
}

// fakeCache is an in-process Cache that records traffic. Entries are
// handed out as-is so tests can observe pointer identity.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*CheckResult
	sets    int
	hits    int
	purges  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*CheckResult)}
}

func (f *fakeCache) Get(_ context.Context, userID, itemName string) (*CheckResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.entries[userID+":"+itemName]
	if ok {
		f.hits++
	}
	return r, ok
}

func (f *fakeCache) Set(_ context.Context, userID, itemName string, result *CheckResult, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.entries[userID+":"+itemName] = result
}

func (f *fakeCache) InvalidateUser(_ context.Context, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.entries {
		if len(k) > len(userID) && k[:len(userID)+1] == userID+":" {
			delete(f.entries, k)
		}
	}
}

func (f *fakeCache) Purge(_ context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purges++
	f.entries = make(map[string]*CheckResult)
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	eng, err := NewEngine(append([]Option{WithStore(memory.New())}, opts...)...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

// seedBlog builds the canonical test hierarchy:
//
//	admin ─┬─ editor ─┬─ viewer ── readPost
//	       │          └─ updatePost
//	       └─ deletePost
func seedBlog(t *testing.T, eng *Engine) {
	t.Helper()
	ctx := context.Background()

	for _, name := range []string{"admin", "editor", "viewer"} {
		if err := eng.AddItem(ctx, CreateRole(name)); err != nil {
			t.Fatalf("add role %q: %v", name, err)
		}
	}
	for _, name := range []string{"readPost", "updatePost", "deletePost"} {
		if err := eng.AddItem(ctx, CreatePermission(name)); err != nil {
			t.Fatalf("add permission %q: %v", name, err)
		}
	}
	for _, edge := range [][2]string{
		{"admin", "editor"},
		{"admin", "deletePost"},
		{"editor", "viewer"},
		{"editor", "updatePost"},
		{"viewer", "readPost"},
	} {
		if err := eng.AddChild(ctx, edge[0], edge[1]); err != nil {
			t.Fatalf("add child %q -> %q: %v", edge[0], edge[1], err)
		}
	}
	for user, role := range map[string]string{
		"u_admin":  "admin",
		"u_editor": "editor",
		"u_viewer": "viewer",
	} {
		if _, err := eng.Assign(ctx, user, role); err != nil {
			t.Fatalf("assign %q to %q: %v", role, user, err)
		}
	}
}

func checkDecision(t *testing.T, eng *Engine, userID, itemName string, want Decision) {
	t.Helper()
	result, err := eng.Check(context.Background(), &CheckRequest{UserID: userID, Item: itemName})
	if err != nil {
		t.Fatalf("check %q for %q: %v", itemName, userID, err)
	}
	if result.Decision != want {
		t.Errorf("check %q for %q: decision %q, want %q (reason: %s)",
			itemName, userID, result.Decision, want, result.Reason)
	}
	if result.Allowed != (want == DecisionAllow) {
		t.Errorf("check %q for %q: allowed %v inconsistent with decision %q",
			itemName, userID, result.Allowed, result.Decision)
	}
}

func TestCheckRoleHierarchy(t *testing.T) {
	eng := newTestEngine(t)
	seedBlog(t, eng)

	// Direct and inherited roles.
	checkDecision(t, eng, "u_editor", "editor", DecisionAllow)
	checkDecision(t, eng, "u_admin", "editor", DecisionAllow)
	checkDecision(t, eng, "u_admin", "viewer", DecisionAllow)

	// Hierarchy is directed: viewer never reaches admin.
	checkDecision(t, eng, "u_viewer", "admin", DecisionDenyNotReachable)
	checkDecision(t, eng, "u_editor", "admin", DecisionDenyNotReachable)
}

func TestCheckPermissionDirectChildOnly(t *testing.T) {
	eng := newTestEngine(t)
	seedBlog(t, eng)

	// Permissions are granted through the directly assigned role only.
	checkDecision(t, eng, "u_editor", "updatePost", DecisionAllow)
	checkDecision(t, eng, "u_viewer", "readPost", DecisionAllow)
	checkDecision(t, eng, "u_admin", "deletePost", DecisionAllow)

	// Transitive descent does not grant a permission.
	checkDecision(t, eng, "u_admin", "updatePost", DecisionDenyNotDirect)
	checkDecision(t, eng, "u_admin", "readPost", DecisionDenyNotDirect)
	checkDecision(t, eng, "u_editor", "readPost", DecisionDenyNotDirect)
}

func TestCheckUnknownItem(t *testing.T) {
	eng := newTestEngine(t)
	seedBlog(t, eng)

	checkDecision(t, eng, "u_admin", "ghost", DecisionDenyUnknownItem)
}

func TestCheckNoAssignments(t *testing.T) {
	eng := newTestEngine(t)
	seedBlog(t, eng)

	checkDecision(t, eng, "u_nobody", "editor", DecisionDenyNoAssignments)
	checkDecision(t, eng, "u_nobody", "readPost", DecisionDenyNoAssignments)
}

func TestCheckRoleRuleDenies(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	auditor := CreateRole("auditor")
	auditor.Spec = &rule.Spec{Name: rule.NameDeny}
	if err := eng.AddItem(ctx, auditor); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := eng.Assign(ctx, "u1", "auditor"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	checkDecision(t, eng, "u1", "auditor", DecisionDenyRule)
}

func TestCheckChildRoleRuleDeniesChain(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	if err := eng.AddItem(ctx, CreateRole("lead")); err != nil {
		t.Fatal(err)
	}
	locked := CreateRole("locked")
	locked.Spec = &rule.Spec{Name: rule.NameDeny}
	if err := eng.AddItem(ctx, locked); err != nil {
		t.Fatal(err)
	}
	if err := eng.AddChild(ctx, "lead", "locked"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Assign(ctx, "u1", "lead"); err != nil {
		t.Fatal(err)
	}

	// A role passes only when its whole subtree passes.
	checkDecision(t, eng, "u1", "lead", DecisionDenyRule)
}

func TestCheckPermissionRuleSkippedInRoleChain(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	if err := eng.AddItem(ctx, CreateRole("writer")); err != nil {
		t.Fatal(err)
	}
	publish := CreatePermission("publish")
	publish.Spec = &rule.Spec{Name: rule.NameDeny}
	if err := eng.AddItem(ctx, publish); err != nil {
		t.Fatal(err)
	}
	if err := eng.AddChild(ctx, "writer", "publish"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Assign(ctx, "u1", "writer"); err != nil {
		t.Fatal(err)
	}

	// Checking the role passes: permission rules do not run on the way
	// down a role chain.
	checkDecision(t, eng, "u1", "writer", DecisionAllow)

	// Checking the permission itself runs its own rule.
	checkDecision(t, eng, "u1", "publish", DecisionDenyRule)
}

func TestCheckFirstMatchingAssignmentWins(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, eng *Engine) {
		t.Helper()
		denying := CreateRole("denyingLead")
		denying.Spec = &rule.Spec{Name: rule.NameDeny}
		for _, it := range []*item.Item{denying, CreateRole("allowingLead"), CreatePermission("approve")} {
			if err := eng.AddItem(ctx, it); err != nil {
				t.Fatal(err)
			}
		}
		for _, parent := range []string{"denyingLead", "allowingLead"} {
			if err := eng.AddChild(ctx, parent, "approve"); err != nil {
				t.Fatal(err)
			}
		}
	}

	t.Run("denying role granted first", func(t *testing.T) {
		eng := newTestEngine(t)
		seed(t, eng)
		for _, role := range []string{"denyingLead", "allowingLead"} {
			if _, err := eng.Assign(ctx, "u1", role); err != nil {
				t.Fatal(err)
			}
		}
		// The first assignment holding the permission decides; the
		// allowing role is never consulted.
		checkDecision(t, eng, "u1", "approve", DecisionDenyRule)
	})

	t.Run("allowing role granted first", func(t *testing.T) {
		eng := newTestEngine(t)
		seed(t, eng)
		for _, role := range []string{"allowingLead", "denyingLead"} {
			if _, err := eng.Assign(ctx, "u1", role); err != nil {
				t.Fatal(err)
			}
		}
		checkDecision(t, eng, "u1", "approve", DecisionAllow)
	})
}

func TestCheckParamsReachTargetPermissionOnly(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	eng.Rules().RegisterFunc("flagged", func(_ context.Context, p rule.Params) (bool, error) {
		v, _ := p["granted"].(bool)
		return v, nil
	})

	if err := eng.AddItem(ctx, CreateRole("author")); err != nil {
		t.Fatal(err)
	}
	own := CreatePermission("updateOwnPost")
	own.Spec = &rule.Spec{Name: "flagged"}
	if err := eng.AddItem(ctx, own); err != nil {
		t.Fatal(err)
	}
	if err := eng.AddChild(ctx, "author", "updateOwnPost"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Assign(ctx, "u1", "author"); err != nil {
		t.Fatal(err)
	}

	allowed, err := eng.Can(ctx, "u1", "updateOwnPost", rule.Params{"granted": true})
	if err != nil {
		t.Fatalf("can: %v", err)
	}
	if !allowed {
		t.Error("expected allow with matching params")
	}

	allowed, err = eng.Can(ctx, "u1", "updateOwnPost", nil)
	if err != nil {
		t.Fatalf("can: %v", err)
	}
	if allowed {
		t.Error("expected deny without params")
	}
}

func TestCheckParamsNotPropagatedToDescendants(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	eng.Rules().RegisterFunc("flagged", func(_ context.Context, p rule.Params) (bool, error) {
		v, _ := p["granted"].(bool)
		return v, nil
	})

	if err := eng.AddItem(ctx, CreateRole("lead")); err != nil {
		t.Fatal(err)
	}
	timed := CreateRole("timed")
	timed.Spec = &rule.Spec{Name: "flagged"}
	if err := eng.AddItem(ctx, timed); err != nil {
		t.Fatal(err)
	}
	if err := eng.AddChild(ctx, "lead", "timed"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Assign(ctx, "u1", "lead"); err != nil {
		t.Fatal(err)
	}

	// The child role runs with nil params, so the flag never reaches it.
	result, err := eng.Check(ctx, &CheckRequest{UserID: "u1", Item: "lead", Params: rule.Params{"granted": true}})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Allowed {
		t.Error("params must not propagate to descendant rules")
	}

	// Checking the child directly hands it the params.
	allowed, err := eng.Can(ctx, "u1", "timed", rule.Params{"granted": true})
	if err != nil {
		t.Fatalf("can: %v", err)
	}
	if !allowed {
		t.Error("expected allow when params reach the target")
	}
}

func TestAddChildRejectsCycles(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedBlog(t, eng)

	cases := []struct {
		parent, child string
	}{
		{"admin", "admin"},  // self edge
		{"admin", "editor"}, // duplicate edge
		{"admin", "viewer"}, // already reachable
		{"viewer", "admin"}, // would close a loop
		{"editor", "admin"},
	}
	for _, tc := range cases {
		if err := eng.AddChild(ctx, tc.parent, tc.child); !errors.Is(err, ErrCyclicHierarchy) {
			t.Errorf("AddChild(%q, %q): expected ErrCyclicHierarchy, got %v", tc.parent, tc.child, err)
		}
	}

	if err := eng.AddChild(ctx, "viewer", "ghost"); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound for unknown child, got %v", err)
	}
	if err := eng.AddChild(ctx, "readPost", "viewer"); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole for permission parent, got %v", err)
	}
}

func TestAddItemValidation(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	if err := eng.AddItem(ctx, &item.Item{Type: item.TypeRole}); err == nil {
		t.Error("expected error for empty name")
	}
	if err := eng.AddItem(ctx, &item.Item{Name: "x", Type: "group"}); !errors.Is(err, ErrUnknownItemType) {
		t.Errorf("expected ErrUnknownItemType, got %v", err)
	}

	bad := CreateRole("bad")
	bad.Spec = &rule.Spec{Name: "not_registered"}
	if err := eng.AddItem(ctx, bad); !errors.Is(err, rule.ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}

	if err := eng.AddItem(ctx, CreateRole("dup")); err != nil {
		t.Fatal(err)
	}
	if err := eng.AddItem(ctx, CreateRole("dup")); !errors.Is(err, ErrItemExists) {
		t.Errorf("expected ErrItemExists, got %v", err)
	}
}

func TestAssignAndRevoke(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedBlog(t, eng)

	if _, err := eng.Assign(ctx, "u1", "ghost"); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
	if _, err := eng.Assign(ctx, "u1", "readPost"); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole for permission, got %v", err)
	}

	if _, err := eng.Assign(ctx, "u_admin", "admin"); !errors.Is(err, ErrDuplicateAssignment) {
		t.Errorf("expected ErrDuplicateAssignment, got %v", err)
	}

	ok, err := eng.HasAssigned(ctx, "u_admin", "admin")
	if err != nil || !ok {
		t.Fatalf("expected direct assignment, got %v %v", ok, err)
	}
	// Reachable but not directly assigned.
	ok, err = eng.HasAssigned(ctx, "u_admin", "editor")
	if err != nil || ok {
		t.Fatalf("transitive roles must not count as assigned, got %v %v", ok, err)
	}

	if err := eng.Revoke(ctx, "u_admin", "admin"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := eng.Revoke(ctx, "u_admin", "admin"); !errors.Is(err, ErrAssignmentNotFound) {
		t.Errorf("expected ErrAssignmentNotFound, got %v", err)
	}
	checkDecision(t, eng, "u_admin", "editor", DecisionDenyNoAssignments)
}

func TestAssignmentsGrantOrder(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedBlog(t, eng)

	for _, role := range []string{"viewer", "editor"} {
		if _, err := eng.Assign(ctx, "u_multi", role); err != nil {
			t.Fatal(err)
		}
	}

	names, err := eng.Assignments(ctx, "u_multi")
	if err != nil {
		t.Fatalf("assignments: %v", err)
	}
	if !slices.Equal(names, []string{"viewer", "editor"}) {
		t.Errorf("expected grant order [viewer editor], got %v", names)
	}
}

func TestRemoveItemRevokesAssignments(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedBlog(t, eng)

	if err := eng.RemoveItem(ctx, "editor"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	names, err := eng.Assignments(ctx, "u_editor")
	if err != nil {
		t.Fatalf("assignments: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("removing a role must revoke its assignments, got %v", names)
	}

	// The edge from admin is gone too.
	roles, err := eng.RecursiveRoles(ctx, "admin")
	if err != nil {
		t.Fatalf("recursive roles: %v", err)
	}
	if slices.Contains(roles, "editor") {
		t.Errorf("removed item still reachable: %v", roles)
	}
}

func TestSnapshotMemoization(t *testing.T) {
	ctx := context.Background()
	cs := &countingStore{Store: memory.New()}
	eng, err := NewEngine(WithStore(cs))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	seedBlog(t, eng)

	if _, err := eng.Check(ctx, &CheckRequest{UserID: "u_admin", Item: "editor"}); err != nil {
		t.Fatal(err)
	}
	items, roles := cs.listItems, cs.listRoles

	// Repeated checks run entirely off the snapshot and memos.
	for range 5 {
		if _, err := eng.Check(ctx, &CheckRequest{UserID: "u_admin", Item: "editor"}); err != nil {
			t.Fatal(err)
		}
	}
	if cs.listItems != items {
		t.Errorf("snapshot reloaded on warm checks: %d -> %d", items, cs.listItems)
	}
	if cs.listRoles != roles {
		t.Errorf("assignments reloaded on warm checks: %d -> %d", roles, cs.listRoles)
	}

	// Refresh discards everything.
	if err := eng.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Check(ctx, &CheckRequest{UserID: "u_admin", Item: "editor"}); err != nil {
		t.Fatal(err)
	}
	if cs.listItems != items+1 {
		t.Errorf("expected one reload after refresh, got %d -> %d", items, cs.listItems)
	}
}

func TestCheckResultCaching(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCache()
	eng := newTestEngine(t,
		WithCache(fc),
		WithConfig(Config{CacheTTL: time.Minute}),
	)
	seedBlog(t, eng)

	if _, err := eng.Check(ctx, &CheckRequest{UserID: "u_admin", Item: "editor"}); err != nil {
		t.Fatal(err)
	}
	if fc.sets != 1 {
		t.Fatalf("expected one cache write, got %d", fc.sets)
	}

	result, err := eng.Check(ctx, &CheckRequest{UserID: "u_admin", Item: "editor"})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Allowed {
		t.Error("cached result should allow")
	}
	if fc.hits != 1 {
		t.Errorf("expected one cache hit, got %d", fc.hits)
	}

	// Parameterized checks bypass the cache entirely.
	if _, err := eng.Check(ctx, &CheckRequest{UserID: "u_admin", Item: "editor", Params: rule.Params{"k": "v"}}); err != nil {
		t.Fatal(err)
	}
	if fc.sets != 1 {
		t.Errorf("parameterized check must not be cached, writes %d", fc.sets)
	}

	// Item mutations purge the cache wholesale.
	purges := fc.purges
	if err := eng.AddItem(ctx, CreateRole("extra")); err != nil {
		t.Fatal(err)
	}
	if fc.purges != purges+1 {
		t.Errorf("expected purge on item mutation, purges %d -> %d", purges, fc.purges)
	}

	// Assignment mutations invalidate just that user.
	if _, err := eng.Check(ctx, &CheckRequest{UserID: "u_admin", Item: "editor"}); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Assign(ctx, "u_admin", "extra"); err != nil {
		t.Fatal(err)
	}
	if _, ok := fc.entries["u_admin:editor"]; ok {
		t.Error("assignment mutation should invalidate the user's cached results")
	}
}

func TestCheckWarmHitsReturnPrivateResults(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCache()
	eng := newTestEngine(t,
		WithCache(fc),
		WithConfig(Config{CacheTTL: time.Minute}),
	)
	seedBlog(t, eng)

	if _, err := eng.Check(ctx, &CheckRequest{UserID: "u_viewer", Item: "readPost"}); err != nil {
		t.Fatal(err)
	}
	stored, ok := fc.Get(ctx, "u_viewer", "readPost")
	if !ok {
		t.Fatal("expected a cached entry")
	}

	// Each warm hit stamps its eval time on a private copy, never on
	// the entry shared with other checks.
	got, err := eng.Check(ctx, &CheckRequest{UserID: "u_viewer", Item: "readPost"})
	if err != nil {
		t.Fatal(err)
	}
	if got == stored {
		t.Fatal("warm check must not return the shared cached result")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				res, err := eng.Check(ctx, &CheckRequest{UserID: "u_viewer", Item: "readPost"})
				if err != nil {
					t.Errorf("warm check: %v", err)
					return
				}
				if !res.Allowed {
					t.Error("warm check should allow")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestAddChildConcurrentReverseEdges(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	for _, name := range []string{"a", "b"} {
		if err := eng.AddItem(ctx, CreateRole(name)); err != nil {
			t.Fatal(err)
		}
	}

	// Racing a->b against b->a must never produce a cycle: edge writes
	// are serialized against the cycle check.
	edges := [][2]string{{"a", "b"}, {"b", "a"}}
	errs := make([]error, len(edges))
	var wg sync.WaitGroup
	for i, edge := range edges {
		wg.Add(1)
		go func(i int, parent, child string) {
			defer wg.Done()
			errs[i] = eng.AddChild(ctx, parent, child)
		}(i, edge[0], edge[1])
	}
	wg.Wait()

	var accepted, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, ErrCyclicHierarchy):
			rejected++
		default:
			t.Fatalf("unexpected AddChild error: %v", err)
		}
	}
	if accepted != 1 || rejected != 1 {
		t.Fatalf("expected one accepted and one rejected edge, got %d/%d", accepted, rejected)
	}

	for _, name := range []string{"a", "b"} {
		if _, err := eng.RecursiveRoles(ctx, name); err != nil {
			t.Fatalf("closure of %q after concurrent edge writes: %v", name, err)
		}
	}
}

func TestEnforceAndCan(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedBlog(t, eng)

	if err := eng.Enforce(ctx, &CheckRequest{UserID: "u_editor", Item: "updatePost"}); err != nil {
		t.Errorf("enforce allowed check: %v", err)
	}
	err := eng.Enforce(ctx, &CheckRequest{UserID: "u_viewer", Item: "updatePost"})
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}

	allowed, err := eng.Can(ctx, "u_viewer", "readPost", nil)
	if err != nil || !allowed {
		t.Errorf("expected allow, got %v %v", allowed, err)
	}
}

func TestCheckLogAudit(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedBlog(t, eng)

	if _, err := eng.Check(ctx, &CheckRequest{UserID: "u_viewer", Item: "updatePost"}); err != nil {
		t.Fatal(err)
	}

	logs, err := eng.Store().ListCheckLogs(ctx, &checklog.QueryFilter{UserID: "u_viewer"})
	if err != nil {
		t.Fatalf("list check logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(logs))
	}
	entry := logs[0]
	if entry.ItemName != "updatePost" || entry.Allowed || entry.Decision != string(DecisionDenyNotDirect) {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
	if entry.ItemType != string(item.TypePermission) {
		t.Errorf("expected item type recorded, got %q", entry.ItemType)
	}
}

func TestCheckLogDisabled(t *testing.T) {
	ctx := context.Background()
	off := false
	eng := newTestEngine(t, WithConfig(Config{EnableCheckLog: &off}))
	seedBlog(t, eng)

	if _, err := eng.Check(ctx, &CheckRequest{UserID: "u_viewer", Item: "readPost"}); err != nil {
		t.Fatal(err)
	}
	n, err := eng.Store().CountCheckLogs(ctx, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no audit entries, got %d", n)
	}
}

func TestGetItemAndTypedLookups(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedBlog(t, eng)

	it, err := eng.GetItem(ctx, "ghost")
	if err != nil || it != nil {
		t.Errorf("unknown item should be (nil, nil), got %v %v", it, err)
	}

	if _, err := eng.GetRole(ctx, "readPost"); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole, got %v", err)
	}
	if _, err := eng.GetPermission(ctx, "admin"); !errors.Is(err, ErrUnknownPermission) {
		t.Errorf("expected ErrUnknownPermission, got %v", err)
	}

	role, err := eng.GetRole(ctx, "admin")
	if err != nil || role == nil || !role.IsRole() {
		t.Errorf("expected admin role, got %v %v", role, err)
	}

	ok, err := eng.HasItem(ctx, "viewer")
	if err != nil || !ok {
		t.Errorf("expected viewer to exist, got %v %v", ok, err)
	}
	n, err := eng.CountItems(ctx)
	if err != nil || n != 6 {
		t.Errorf("expected 6 items, got %d %v", n, err)
	}
}

func TestListItemsPatterns(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	for _, name := range []string{"post.update", "post.read", "user.create"} {
		if err := eng.AddItem(ctx, CreatePermission(name)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := eng.ListItems(ctx, []string{"post.*"}, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 post permissions, got %d", len(got))
	}

	got, err = eng.ListItems(ctx, nil, []string{"post.*"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 item after exclusion, got %d", len(got))
	}
	if _, ok := got["user.create"]; !ok {
		t.Errorf("expected user.create to survive exclusion, got %v", got)
	}
}

func TestEngineClosures(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedBlog(t, eng)

	roles, err := eng.RecursiveRoles(ctx, "admin")
	if err != nil {
		t.Fatalf("recursive roles: %v", err)
	}
	if !slices.Equal(roles, []string{"admin", "editor", "viewer"}) {
		t.Errorf("unexpected role closure: %v", roles)
	}

	perms, err := eng.RecursivePermissions(ctx, "admin")
	if err != nil {
		t.Fatalf("recursive permissions: %v", err)
	}
	if !slices.Equal(perms, []string{"deletePost", "readPost", "updatePost"}) {
		t.Errorf("unexpected permission closure: %v", perms)
	}
}

func TestUpdateItemChangesRule(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedBlog(t, eng)

	checkDecision(t, eng, "u_viewer", "viewer", DecisionAllow)

	viewer, err := eng.GetRole(ctx, "viewer")
	if err != nil {
		t.Fatal(err)
	}
	viewer.Spec = &rule.Spec{Name: rule.NameDeny}
	if err := eng.UpdateItem(ctx, viewer); err != nil {
		t.Fatalf("update: %v", err)
	}

	checkDecision(t, eng, "u_viewer", "viewer", DecisionDenyRule)

	// Children survive a rule update.
	perms, err := eng.RecursivePermissions(ctx, "viewer")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(perms, []string{"readPost"}) {
		t.Errorf("children lost on update: %v", perms)
	}
}
