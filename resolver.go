package bastion

import (
	"fmt"
	"slices"
	"sync"

	"github.com/xraph/bastion/item"
)

// resolver computes transitive closures over a decoded item snapshot and
// detects hierarchy cycles before edges are inserted.
//
// Closure memos are write-once-per-key and idempotent: two goroutines
// computing the same key produce the same value, so population races are
// harmless. A resolver is built per snapshot and discarded with it, which
// makes Refresh a wholesale invalidation.
type resolver struct {
	items    map[string]*item.Item
	maxDepth int

	mu    sync.RWMutex
	roles map[string][]string
	perms map[string][]string
}

func newResolver(items map[string]*item.Item, maxDepth int) *resolver {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	return &resolver{
		items:    items,
		maxDepth: maxDepth,
		roles:    make(map[string][]string),
		perms:    make(map[string][]string),
	}
}

// recursiveRoles returns every role reachable from name, including name
// itself. Unknown names yield an empty set. Permissions yield nil, the
// sentinel for "not a role branch". Results are sorted for determinism.
func (r *resolver) recursiveRoles(name string) ([]string, error) {
	return r.rolesClosure(name, 0)
}

func (r *resolver) rolesClosure(name string, depth int) ([]string, error) {
	if depth > r.maxDepth {
		return nil, fmt.Errorf("%w: at %q", ErrMaxDepthExceeded, name)
	}

	it, ok := r.items[name]
	if !ok {
		return []string{}, nil
	}

	switch it.Type {
	case item.TypePermission:
		return nil, nil
	case item.TypeRole:
	default:
		return nil, fmt.Errorf("%w: item %q has type %q", ErrUnknownItemType, name, it.Type)
	}

	if len(it.Children) == 0 {
		return []string{name}, nil
	}

	r.mu.RLock()
	memo, hit := r.roles[name]
	r.mu.RUnlock()
	if hit {
		return memo, nil
	}

	names := []string{name}
	seen := map[string]struct{}{name: {}}
	for _, child := range it.Children {
		result, err := r.rolesClosure(child, depth+1)
		if err != nil {
			return nil, err
		}
		for _, n := range result {
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			names = append(names, n)
		}
	}
	slices.Sort(names)

	r.mu.Lock()
	r.roles[name] = names
	r.mu.Unlock()

	return names, nil
}

// recursivePermissions returns every permission reachable from name. A
// permission yields itself. A childless role yields nil, the sentinel for
// "no permission branch". Results are sorted for determinism.
func (r *resolver) recursivePermissions(name string) ([]string, error) {
	return r.permsClosure(name, 0)
}

func (r *resolver) permsClosure(name string, depth int) ([]string, error) {
	if depth > r.maxDepth {
		return nil, fmt.Errorf("%w: at %q", ErrMaxDepthExceeded, name)
	}

	it, ok := r.items[name]
	if !ok {
		return []string{}, nil
	}

	switch it.Type {
	case item.TypePermission:
		return []string{name}, nil
	case item.TypeRole:
	default:
		return nil, fmt.Errorf("%w: item %q has type %q", ErrUnknownItemType, name, it.Type)
	}

	if len(it.Children) == 0 {
		return nil, nil
	}

	r.mu.RLock()
	memo, hit := r.perms[name]
	r.mu.RUnlock()
	if hit {
		return memo, nil
	}

	var names []string
	seen := make(map[string]struct{})
	for _, child := range it.Children {
		result, err := r.permsClosure(child, depth+1)
		if err != nil {
			return nil, err
		}
		for _, n := range result {
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			names = append(names, n)
		}
	}
	slices.Sort(names)

	r.mu.Lock()
	r.perms[name] = names
	r.mu.Unlock()

	return names, nil
}

// detectCycle reports whether adding childName under role would corrupt
// the hierarchy: the child is the role itself, the child is already
// reachable from the role, or the role is reachable from the child.
func (r *resolver) detectCycle(role *item.Item, childName string) (bool, error) {
	if childName == role.Name {
		return true, nil
	}
	if role.HasChild(childName) {
		return true, nil
	}

	reachableRoles, err := r.recursiveRoles(role.Name)
	if err != nil {
		return false, err
	}
	if slices.Contains(reachableRoles, childName) {
		return true, nil
	}

	reachablePerms, err := r.recursivePermissions(role.Name)
	if err != nil {
		return false, err
	}
	if slices.Contains(reachablePerms, childName) {
		return true, nil
	}

	childRoles, err := r.recursiveRoles(childName)
	if err != nil {
		return false, err
	}
	return slices.Contains(childRoles, role.Name), nil
}
