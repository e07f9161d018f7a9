package bastion

import (
	"errors"
	"slices"
	"testing"

	"github.com/xraph/bastion/item"
	"github.com/xraph/bastion/rule"
)

func roleItem(name string, children ...string) *item.Item {
	return &item.Item{
		Name:     name,
		Type:     item.TypeRole,
		Children: children,
		Rule:     rule.Allow,
	}
}

func permItem(name string) *item.Item {
	return &item.Item{
		Name: name,
		Type: item.TypePermission,
		Rule: rule.Allow,
	}
}

func itemMap(items ...*item.Item) map[string]*item.Item {
	m := make(map[string]*item.Item, len(items))
	for _, it := range items {
		m[it.Name] = it
	}
	return m
}

func TestRecursiveRolesSelfInclusion(t *testing.T) {
	r := newResolver(itemMap(roleItem("viewer")), 10)

	got, err := r.recursiveRoles("viewer")
	if err != nil {
		t.Fatalf("recursiveRoles: %v", err)
	}
	if len(got) != 1 || got[0] != "viewer" {
		t.Errorf("childless role should yield itself, got %v", got)
	}
}

func TestRecursiveRolesClosure(t *testing.T) {
	r := newResolver(itemMap(
		roleItem("admin", "editor", "updatePost"),
		roleItem("editor", "viewer", "readPost"),
		roleItem("viewer"),
		permItem("updatePost"),
		permItem("readPost"),
	), 10)

	got, err := r.recursiveRoles("admin")
	if err != nil {
		t.Fatalf("recursiveRoles: %v", err)
	}
	want := []string{"admin", "editor", "viewer"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestRecursiveRolesUnknownAndPermission(t *testing.T) {
	r := newResolver(itemMap(permItem("readPost")), 10)

	got, err := r.recursiveRoles("ghost")
	if err != nil {
		t.Fatalf("recursiveRoles unknown: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("unknown name should yield an empty set, got %v", got)
	}

	got, err = r.recursiveRoles("readPost")
	if err != nil {
		t.Fatalf("recursiveRoles permission: %v", err)
	}
	if got != nil {
		t.Errorf("permission should yield nil, got %v", got)
	}
}

func TestRecursivePermissions(t *testing.T) {
	r := newResolver(itemMap(
		roleItem("admin", "editor", "updatePost"),
		roleItem("editor", "readPost"),
		roleItem("viewer"),
		permItem("updatePost"),
		permItem("readPost"),
	), 10)

	got, err := r.recursivePermissions("admin")
	if err != nil {
		t.Fatalf("recursivePermissions: %v", err)
	}
	want := []string{"readPost", "updatePost"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	// A permission yields itself.
	got, err = r.recursivePermissions("readPost")
	if err != nil {
		t.Fatalf("recursivePermissions leaf: %v", err)
	}
	if !slices.Equal(got, []string{"readPost"}) {
		t.Errorf("expected [readPost], got %v", got)
	}

	// A childless role has no permission branch.
	got, err = r.recursivePermissions("viewer")
	if err != nil {
		t.Fatalf("recursivePermissions childless: %v", err)
	}
	if got != nil {
		t.Errorf("childless role should yield nil, got %v", got)
	}
}

func TestRecursiveRolesMemoized(t *testing.T) {
	items := itemMap(
		roleItem("admin", "editor"),
		roleItem("editor", "viewer"),
		roleItem("viewer"),
		roleItem("auditor"),
	)
	r := newResolver(items, 10)

	first, err := r.recursiveRoles("admin")
	if err != nil {
		t.Fatalf("first: %v", err)
	}

	// Grow the hierarchy behind the resolver's back. A second call must
	// serve the memo, not re-traverse and pick up the new edge.
	items["admin"].Children = append(items["admin"].Children, "auditor")

	second, err := r.recursiveRoles("admin")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !slices.Equal(first, second) {
		t.Errorf("memoized result differs: %v vs %v", first, second)
	}
	if slices.Contains(second, "auditor") {
		t.Errorf("second call re-traversed instead of serving the memo: %v", second)
	}
}

func TestDetectCycle(t *testing.T) {
	items := itemMap(
		roleItem("admin", "editor"),
		roleItem("editor", "viewer"),
		roleItem("viewer"),
		permItem("readPost"),
	)
	r := newResolver(items, 10)

	cases := []struct {
		name   string
		role   string
		child  string
		cyclic bool
	}{
		{"self edge", "admin", "admin", true},
		{"duplicate direct child", "admin", "editor", true},
		{"already reachable", "admin", "viewer", true},
		{"reverse edge", "viewer", "admin", true},
		{"reverse edge transitive", "editor", "admin", true},
		{"fresh edge", "viewer", "readPost", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.detectCycle(items[tc.role], tc.child)
			if err != nil {
				t.Fatalf("detectCycle: %v", err)
			}
			if got != tc.cyclic {
				t.Errorf("detectCycle(%q, %q) = %v, want %v", tc.role, tc.child, got, tc.cyclic)
			}
		})
	}
}

func TestClosureDepthGuard(t *testing.T) {
	items := itemMap(
		roleItem("r0", "r1"),
		roleItem("r1", "r2"),
		roleItem("r2", "r3"),
		roleItem("r3", "r4"),
		roleItem("r4"),
	)
	r := newResolver(items, 2)

	if _, err := r.recursiveRoles("r0"); !errors.Is(err, ErrMaxDepthExceeded) {
		t.Errorf("expected ErrMaxDepthExceeded, got %v", err)
	}
}
