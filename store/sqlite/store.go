// Package sqlite provides a SQLite implementation of the Bastion
// composite store using grove ORM with Go-based migrations. Suited to
// embedded deployments and tests that want real SQL without a server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/checklog"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/item"
	"github.com/xraph/bastion/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a SQLite implementation of the composite Bastion store.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("bastion/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("bastion/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ──────────────────────────────────────────────────
// Item operations
// ──────────────────────────────────────────────────

func (s *Store) CreateItem(ctx context.Context, r *item.Record) error {
	m, err := itemToModel(r)
	if err != nil {
		return fmt.Errorf("bastion: create item: %w", err)
	}
	res, err := s.sdb.NewInsert(m).
		OnConflict("(name) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: create item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bastion: create item rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("item %q: %w", r.Name, item.ErrExists)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, name string) (*item.Record, error) {
	m := new(itemModel)
	err := s.sdb.NewSelect(m).Where("name = ?", name).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("item %q: %w", name, item.ErrNotFound)
		}
		return nil, fmt.Errorf("bastion: get item: %w", err)
	}
	rec, err := itemFromModel(m)
	if err != nil {
		return nil, fmt.Errorf("bastion: get item: %w", err)
	}
	children, err := s.ListChildren(ctx, name)
	if err != nil {
		return nil, err
	}
	rec.Children = children
	return rec, nil
}

func (s *Store) UpdateItem(ctx context.Context, r *item.Record) error {
	m, err := itemToModel(r)
	if err != nil {
		return fmt.Errorf("bastion: update item: %w", err)
	}
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: update item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bastion: update item rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("item %q: %w", r.Name, item.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, name string) error {
	res, err := s.sdb.NewDelete((*itemModel)(nil)).
		Where("name = ?", name).Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: delete item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bastion: delete item rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("item %q: %w", name, item.ErrNotFound)
	}
	return nil
}

func (s *Store) ListItems(ctx context.Context, filter *item.ListFilter) ([]*item.Record, error) {
	var models []itemModel
	q := s.sdb.NewSelect(&models).OrderExpr("name ASC")
	if filter != nil {
		if filter.Type != nil {
			q = q.Where("type = ?", string(*filter.Type))
		}
		if filter.Search != "" {
			q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list items: %w", err)
	}

	children, err := s.loadAllChildren(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]*item.Record, len(models))
	for i := range models {
		rec, err := itemFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("bastion: list items: %w", err)
		}
		rec.Children = children[rec.Name]
		result[i] = rec
	}
	return result, nil
}

func (s *Store) CountItems(ctx context.Context, filter *item.ListFilter) (int64, error) {
	q := s.sdb.NewSelect((*itemModel)(nil))
	if filter != nil {
		if filter.Type != nil {
			q = q.Where("type = ?", string(*filter.Type))
		}
		if filter.Search != "" {
			q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count items: %w", err)
	}
	return count, nil
}

func (s *Store) HasItem(ctx context.Context, name string) (bool, error) {
	count, err := s.sdb.NewSelect((*itemModel)(nil)).
		Where("name = ?", name).Count(ctx)
	if err != nil {
		return false, fmt.Errorf("bastion: has item: %w", err)
	}
	return count > 0, nil
}

func (s *Store) AddChild(ctx context.Context, parent, child string) error {
	count, err := s.sdb.NewSelect((*itemChildModel)(nil)).
		Where("parent = ?", parent).Count(ctx)
	if err != nil {
		return fmt.Errorf("bastion: add child: %w", err)
	}
	m := &itemChildModel{
		Parent:   parent,
		Child:    child,
		Position: int(count),
	}
	_, err = s.sdb.NewInsert(m).
		OnConflict("(parent, child) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: add child: %w", err)
	}
	return nil
}

func (s *Store) RemoveChild(ctx context.Context, parent, child string) error {
	_, err := s.sdb.NewDelete((*itemChildModel)(nil)).
		Where("parent = ?", parent).
		Where("child = ?", child).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: remove child: %w", err)
	}
	return nil
}

func (s *Store) SetChildren(ctx context.Context, parent string, children []string) error {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("bastion: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	_, err = tx.NewDelete((*itemChildModel)(nil)).
		Where("parent = ?", parent).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: clear children: %w", err)
	}

	if len(children) > 0 {
		models := make([]itemChildModel, len(children))
		for i, child := range children {
			models[i] = itemChildModel{
				Parent:   parent,
				Child:    child,
				Position: i,
			}
		}
		if _, err := tx.NewInsert(&models).Exec(ctx); err != nil {
			return fmt.Errorf("bastion: set children: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bastion: commit tx: %w", err)
	}
	return nil
}

func (s *Store) ListChildren(ctx context.Context, parent string) ([]string, error) {
	var models []itemChildModel
	err := s.sdb.NewSelect(&models).
		Where("parent = ?", parent).
		OrderExpr("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bastion: list children: %w", err)
	}
	children := make([]string, len(models))
	for i := range models {
		children[i] = models[i].Child
	}
	return children, nil
}

func (s *Store) DeleteAllItems(ctx context.Context) error {
	_, err := s.sdb.NewDelete((*itemModel)(nil)).
		Where("1 = 1").Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: delete all items: %w", err)
	}
	return nil
}

// loadAllChildren returns every child edge grouped by parent, in position
// order.
func (s *Store) loadAllChildren(ctx context.Context) (map[string][]string, error) {
	var models []itemChildModel
	err := s.sdb.NewSelect(&models).
		OrderExpr("parent ASC, position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bastion: load children: %w", err)
	}
	children := make(map[string][]string)
	for i := range models {
		children[models[i].Parent] = append(children[models[i].Parent], models[i].Child)
	}
	return children, nil
}

// ──────────────────────────────────────────────────
// Assignment operations
// ──────────────────────────────────────────────────

func (s *Store) CreateAssignment(ctx context.Context, a *assignment.Assignment) error {
	m := assignmentToModel(a)
	res, err := s.sdb.NewInsert(m).
		OnConflict("(user_id, role_name) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: create assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bastion: create assignment rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("role %q user %q: %w", a.RoleName, a.UserID, assignment.ErrDuplicate)
	}
	return nil
}

func (s *Store) DeleteAssignment(ctx context.Context, userID, roleName string) error {
	res, err := s.sdb.NewDelete((*assignmentModel)(nil)).
		Where("user_id = ?", userID).
		Where("role_name = ?", roleName).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: delete assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bastion: delete assignment rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("role %q user %q: %w", roleName, userID, assignment.ErrNotFound)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC, id ASC")
	if filter != nil {
		if filter.UserID != "" {
			q = q.Where("user_id = ?", filter.UserID)
		}
		if filter.RoleName != "" {
			q = q.Where("role_name = ?", filter.RoleName)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list assignments: %w", err)
	}
	result := make([]*assignment.Assignment, len(models))
	for i := range models {
		result[i] = assignmentFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListRoleNamesForUser(ctx context.Context, userID string) ([]string, error) {
	var models []assignmentModel
	err := s.sdb.NewSelect(&models).
		Where("user_id = ?", userID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bastion: list roles for user: %w", err)
	}
	names := make([]string, len(models))
	for i := range models {
		names[i] = models[i].RoleName
	}
	return names, nil
}

func (s *Store) ListUserIDsForRole(ctx context.Context, roleName string) ([]string, error) {
	var models []assignmentModel
	err := s.sdb.NewSelect(&models).
		Where("role_name = ?", roleName).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bastion: list users for role: %w", err)
	}
	users := make([]string, len(models))
	for i := range models {
		users[i] = models[i].UserID
	}
	return users, nil
}

func (s *Store) HasAssignment(ctx context.Context, userID, roleName string) (bool, error) {
	count, err := s.sdb.NewSelect((*assignmentModel)(nil)).
		Where("user_id = ?", userID).
		Where("role_name = ?", roleName).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("bastion: has assignment: %w", err)
	}
	return count > 0, nil
}

func (s *Store) DeleteAssignmentsByUser(ctx context.Context, userID string) error {
	_, err := s.sdb.NewDelete((*assignmentModel)(nil)).
		Where("user_id = ?", userID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: delete assignments by user: %w", err)
	}
	return nil
}

func (s *Store) DeleteAssignmentsByRole(ctx context.Context, roleName string) error {
	_, err := s.sdb.NewDelete((*assignmentModel)(nil)).
		Where("role_name = ?", roleName).Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: delete assignments by role: %w", err)
	}
	return nil
}

func (s *Store) DeleteAllAssignments(ctx context.Context) error {
	_, err := s.sdb.NewDelete((*assignmentModel)(nil)).
		Where("1 = 1").Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: delete all assignments: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Check log operations
// ──────────────────────────────────────────────────

func (s *Store) CreateCheckLog(ctx context.Context, e *checklog.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m := checkLogToModel(e)
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("bastion: create check log: %w", err)
	}
	return nil
}

func (s *Store) GetCheckLog(ctx context.Context, logID id.CheckLogID) (*checklog.Entry, error) {
	m := new(checkLogModel)
	err := s.sdb.NewSelect(m).Where("id = ?", logID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("check log %s: %w", logID, checklog.ErrNotFound)
		}
		return nil, fmt.Errorf("bastion: get check log: %w", err)
	}
	return checkLogFromModel(m), nil
}

func (s *Store) ListCheckLogs(ctx context.Context, filter *checklog.QueryFilter) ([]*checklog.Entry, error) {
	var models []checkLogModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC, id ASC")
	if filter != nil {
		if filter.UserID != "" {
			q = q.Where("user_id = ?", filter.UserID)
		}
		if filter.ItemName != "" {
			q = q.Where("item_name = ?", filter.ItemName)
		}
		if filter.Decision != "" {
			q = q.Where("decision = ?", filter.Decision)
		}
		if filter.Allowed != nil {
			q = q.Where("allowed = ?", *filter.Allowed)
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list check logs: %w", err)
	}
	result := make([]*checklog.Entry, len(models))
	for i := range models {
		result[i] = checkLogFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountCheckLogs(ctx context.Context, filter *checklog.QueryFilter) (int64, error) {
	q := s.sdb.NewSelect((*checkLogModel)(nil))
	if filter != nil {
		if filter.UserID != "" {
			q = q.Where("user_id = ?", filter.UserID)
		}
		if filter.ItemName != "" {
			q = q.Where("item_name = ?", filter.ItemName)
		}
		if filter.Decision != "" {
			q = q.Where("decision = ?", filter.Decision)
		}
		if filter.Allowed != nil {
			q = q.Where("allowed = ?", *filter.Allowed)
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count check logs: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeCheckLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*checkLogModel)(nil)).
		Where("created_at < ?", before).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: purge check logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bastion: purge check logs rows: %w", err)
	}
	return n, nil
}
