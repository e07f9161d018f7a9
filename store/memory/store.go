// Package memory provides an in-memory implementation of the Bastion
// composite store. It is intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/checklog"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/item"
	"github.com/xraph/bastion/store"
)

// Compile-time interface checks.
var (
	_ item.Store       = (*Store)(nil)
	_ assignment.Store = (*Store)(nil)
	_ checklog.Store   = (*Store)(nil)
	_ store.Store      = (*Store)(nil)
)

// Store is a thread-safe in-memory store for all Bastion entities.
// Assignments are held in a slice so grant order survives round trips.
type Store struct {
	mu sync.RWMutex

	items       map[string]*item.Record
	assignments []*assignment.Assignment
	checkLogs   map[string]*checklog.Entry
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		items:     make(map[string]*item.Record),
		checkLogs: make(map[string]*checklog.Entry),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Item Store
// ──────────────────────────────────────────────────

func (s *Store) CreateItem(_ context.Context, r *item.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[r.Name]; ok {
		return fmt.Errorf("item %q: %w", r.Name, item.ErrExists)
	}
	s.items[r.Name] = copyRecord(r)
	return nil
}

func (s *Store) GetItem(_ context.Context, name string) (*item.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[name]
	if !ok {
		return nil, fmt.Errorf("item %q: %w", name, item.ErrNotFound)
	}
	return copyRecord(r), nil
}

func (s *Store) UpdateItem(_ context.Context, r *item.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.items[r.Name]
	if !ok {
		return fmt.Errorf("item %q: %w", r.Name, item.ErrNotFound)
	}
	updated := copyRecord(r)
	// Children are managed through AddChild/RemoveChild/SetChildren.
	updated.Children = old.Children
	updated.CreatedAt = old.CreatedAt
	s.items[r.Name] = updated
	return nil
}

func (s *Store) DeleteItem(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[name]; !ok {
		return fmt.Errorf("item %q: %w", name, item.ErrNotFound)
	}
	delete(s.items, name)
	// Detach from all parents.
	for _, r := range s.items {
		if i := slices.Index(r.Children, name); i >= 0 {
			r.Children = slices.Delete(r.Children, i, i+1)
		}
	}
	return nil
}

func (s *Store) ListItems(_ context.Context, filter *item.ListFilter) ([]*item.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*item.Record, 0, len(s.items))
	for _, r := range s.items {
		if !matchItemFilter(r, filter) {
			continue
		}
		result = append(result, copyRecord(r))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return applyPagination(result, paginationOptsItem(filter)), nil
}

func (s *Store) CountItems(_ context.Context, filter *item.ListFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, r := range s.items {
		if matchItemFilter(r, filter) {
			count++
		}
	}
	return count, nil
}

func (s *Store) HasItem(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[name]
	return ok, nil
}

func (s *Store) AddChild(_ context.Context, parent, child string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[parent]
	if !ok {
		return fmt.Errorf("item %q: %w", parent, item.ErrNotFound)
	}
	if _, ok := s.items[child]; !ok {
		return fmt.Errorf("item %q: %w", child, item.ErrNotFound)
	}
	if slices.Contains(p.Children, child) {
		return nil
	}
	p.Children = append(p.Children, child)
	return nil
}

func (s *Store) RemoveChild(_ context.Context, parent, child string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[parent]
	if !ok {
		return fmt.Errorf("item %q: %w", parent, item.ErrNotFound)
	}
	if i := slices.Index(p.Children, child); i >= 0 {
		p.Children = slices.Delete(p.Children, i, i+1)
	}
	return nil
}

func (s *Store) SetChildren(_ context.Context, parent string, children []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[parent]
	if !ok {
		return fmt.Errorf("item %q: %w", parent, item.ErrNotFound)
	}
	p.Children = slices.Clone(children)
	return nil
}

func (s *Store) ListChildren(_ context.Context, parent string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[parent]
	if !ok {
		return nil, fmt.Errorf("item %q: %w", parent, item.ErrNotFound)
	}
	return slices.Clone(p.Children), nil
}

func (s *Store) DeleteAllItems(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*item.Record)
	return nil
}

// ──────────────────────────────────────────────────
// Assignment Store
// ──────────────────────────────────────────────────

func (s *Store) CreateAssignment(_ context.Context, a *assignment.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assignments {
		if existing.UserID == a.UserID && existing.RoleName == a.RoleName {
			return fmt.Errorf("%q -> %q: %w", a.RoleName, a.UserID, assignment.ErrDuplicate)
		}
	}
	s.assignments = append(s.assignments, copyAssignment(a))
	return nil
}

func (s *Store) DeleteAssignment(_ context.Context, userID, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.assignments {
		if a.UserID == userID && a.RoleName == roleName {
			s.assignments = slices.Delete(s.assignments, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("%q -> %q: %w", roleName, userID, assignment.ErrNotFound)
}

func (s *Store) ListAssignments(_ context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*assignment.Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		if filter != nil {
			if filter.UserID != "" && a.UserID != filter.UserID {
				continue
			}
			if filter.RoleName != "" && a.RoleName != filter.RoleName {
				continue
			}
		}
		result = append(result, copyAssignment(a))
	}
	return applyPagination(result, paginationOptsAssign(filter)), nil
}

func (s *Store) ListRoleNamesForUser(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for _, a := range s.assignments {
		if a.UserID == userID {
			names = append(names, a.RoleName)
		}
	}
	return names, nil
}

func (s *Store) ListUserIDsForRole(_ context.Context, roleName string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var users []string
	for _, a := range s.assignments {
		if a.RoleName == roleName {
			users = append(users, a.UserID)
		}
	}
	return users, nil
}

func (s *Store) HasAssignment(_ context.Context, userID, roleName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assignments {
		if a.UserID == userID && a.RoleName == roleName {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DeleteAssignmentsByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = slices.DeleteFunc(s.assignments, func(a *assignment.Assignment) bool {
		return a.UserID == userID
	})
	return nil
}

func (s *Store) DeleteAssignmentsByRole(_ context.Context, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = slices.DeleteFunc(s.assignments, func(a *assignment.Assignment) bool {
		return a.RoleName == roleName
	})
	return nil
}

func (s *Store) DeleteAllAssignments(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = nil
	return nil
}

// ──────────────────────────────────────────────────
// Check Log Store
// ──────────────────────────────────────────────────

func (s *Store) CreateCheckLog(_ context.Context, e *checklog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkLogs[e.ID.String()] = copyCheckLog(e)
	return nil
}

func (s *Store) GetCheckLog(_ context.Context, logID id.CheckLogID) (*checklog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.checkLogs[logID.String()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", logID, checklog.ErrNotFound)
	}
	return copyCheckLog(e), nil
}

func (s *Store) ListCheckLogs(_ context.Context, filter *checklog.QueryFilter) ([]*checklog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*checklog.Entry, 0, len(s.checkLogs))
	for _, e := range s.checkLogs {
		if !matchCheckLogFilter(e, filter) {
			continue
		}
		result = append(result, copyCheckLog(e))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return applyPagination(result, paginationOptsCL(filter)), nil
}

func (s *Store) CountCheckLogs(_ context.Context, filter *checklog.QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, e := range s.checkLogs {
		if matchCheckLogFilter(e, filter) {
			count++
		}
	}
	return count, nil
}

func (s *Store) PurgeCheckLogs(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for k, e := range s.checkLogs {
		if e.CreatedAt.Before(before) {
			delete(s.checkLogs, k)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func matchItemFilter(r *item.Record, f *item.ListFilter) bool {
	if f == nil {
		return true
	}
	if f.Type != nil && r.Type != *f.Type {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

func matchCheckLogFilter(e *checklog.Entry, f *checklog.QueryFilter) bool {
	if f == nil {
		return true
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.ItemName != "" && e.ItemName != f.ItemName {
		return false
	}
	if f.Decision != "" && e.Decision != f.Decision {
		return false
	}
	if f.Allowed != nil && e.Allowed != *f.Allowed {
		return false
	}
	if f.After != nil && e.CreatedAt.Before(*f.After) {
		return false
	}
	if f.Before != nil && e.CreatedAt.After(*f.Before) {
		return false
	}
	return true
}

func copyRecord(r *item.Record) *item.Record {
	c := *r
	c.Children = slices.Clone(r.Children)
	if r.Data != nil {
		c.Data = slices.Clone(r.Data)
	}
	return &c
}

func copyAssignment(a *assignment.Assignment) *assignment.Assignment {
	c := *a
	return &c
}

func copyCheckLog(e *checklog.Entry) *checklog.Entry {
	c := *e
	return &c
}

type pagOpts struct{ limit, offset int }

func applyPagination[T any](items []*T, p pagOpts) []*T {
	if p.offset > 0 && p.offset < len(items) {
		items = items[p.offset:]
	} else if p.offset >= len(items) && p.offset > 0 {
		return nil
	}
	if p.limit > 0 && p.limit < len(items) {
		items = items[:p.limit]
	}
	return items
}

func paginationOptsItem(f *item.ListFilter) pagOpts {
	if f == nil {
		return pagOpts{}
	}
	return pagOpts{limit: f.Limit, offset: f.Offset}
}

func paginationOptsAssign(f *assignment.ListFilter) pagOpts {
	if f == nil {
		return pagOpts{}
	}
	return pagOpts{limit: f.Limit, offset: f.Offset}
}

func paginationOptsCL(f *checklog.QueryFilter) pagOpts {
	if f == nil {
		return pagOpts{}
	}
	return pagOpts{limit: f.Limit, offset: f.Offset}
}
