// Package mongo provides a MongoDB implementation of the Bastion
// composite store backed by grove ORM. Child lists are embedded in the
// item document, which keeps insertion order without a junction
// collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/checklog"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/item"
	"github.com/xraph/bastion/store"
)

// Collection name constants.
const (
	colItems       = "bastion_items"
	colAssignments = "bastion_assignments"
	colCheckLogs   = "bastion_check_logs"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of the composite Bastion store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all bastion collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()
	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("bastion/mongo: migrate %s indexes: %w", col, err)
		}
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all bastion collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colItems: {
			{Keys: bson.D{{Key: "type", Value: 1}}},
			{Keys: bson.D{{Key: "children", Value: 1}}},
		},
		colAssignments: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "role_name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "role_name", Value: 1}}},
		},
		colCheckLogs: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "item_name", Value: 1}}},
			{Keys: bson.D{{Key: "decision", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// Item operations
// ──────────────────────────────────────────────────

func (s *Store) CreateItem(ctx context.Context, r *item.Record) error {
	m, err := itemToModel(r)
	if err != nil {
		return fmt.Errorf("bastion: create item: %w", err)
	}
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("item %q: %w", r.Name, item.ErrExists)
		}
		return fmt.Errorf("bastion: create item: %w", err)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, name string) (*item.Record, error) {
	var m itemModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": name}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("item %q: %w", name, item.ErrNotFound)
		}
		return nil, fmt.Errorf("bastion: get item: %w", err)
	}
	return itemFromModel(&m), nil
}

func (s *Store) UpdateItem(ctx context.Context, r *item.Record) error {
	m, err := itemToModel(r)
	if err != nil {
		return fmt.Errorf("bastion: update item: %w", err)
	}
	// The child list is owned by AddChild/RemoveChild/SetChildren;
	// carry the stored one through a full-document update.
	existing, err := s.GetItem(ctx, r.Name)
	if err != nil {
		return err
	}
	m.Children = existing.Children

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.Name}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: update item: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("item %q: %w", r.Name, item.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, name string) error {
	// Detach from every parent first.
	_, err := s.mdb.Collection(colItems).UpdateMany(ctx,
		bson.M{"children": name},
		bson.M{"$pull": bson.M{"children": name}})
	if err != nil {
		return fmt.Errorf("bastion: detach item: %w", err)
	}

	res, err := s.mdb.NewDelete((*itemModel)(nil)).
		Filter(bson.M{"_id": name}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: delete item: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("item %q: %w", name, item.ErrNotFound)
	}
	return nil
}

func (s *Store) ListItems(ctx context.Context, filter *item.ListFilter) ([]*item.Record, error) {
	var models []itemModel
	f := bson.M{}
	if filter != nil {
		if filter.Type != nil {
			f["type"] = string(*filter.Type)
		}
		if filter.Search != "" {
			f["_id"] = bson.M{"$regex": filter.Search, "$options": "i"}
		}
	}
	q := s.mdb.NewFind(&models).
		Filter(f).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list items: %w", err)
	}
	result := make([]*item.Record, len(models))
	for i := range models {
		result[i] = itemFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountItems(ctx context.Context, filter *item.ListFilter) (int64, error) {
	f := bson.M{}
	if filter != nil {
		if filter.Type != nil {
			f["type"] = string(*filter.Type)
		}
		if filter.Search != "" {
			f["_id"] = bson.M{"$regex": filter.Search, "$options": "i"}
		}
	}
	count, err := s.mdb.NewFind((*itemModel)(nil)).
		Filter(f).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count items: %w", err)
	}
	return count, nil
}

func (s *Store) HasItem(ctx context.Context, name string) (bool, error) {
	count, err := s.mdb.NewFind((*itemModel)(nil)).
		Filter(bson.M{"_id": name}).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("bastion: has item: %w", err)
	}
	return count > 0, nil
}

func (s *Store) AddChild(ctx context.Context, parent, child string) error {
	// $addToSet appends at the end when absent and is a no-op when
	// already present, preserving insertion order.
	_, err := s.mdb.Collection(colItems).UpdateOne(ctx,
		bson.M{"_id": parent},
		bson.M{"$addToSet": bson.M{"children": child}})
	if err != nil {
		return fmt.Errorf("bastion: add child: %w", err)
	}
	return nil
}

func (s *Store) RemoveChild(ctx context.Context, parent, child string) error {
	_, err := s.mdb.Collection(colItems).UpdateOne(ctx,
		bson.M{"_id": parent},
		bson.M{"$pull": bson.M{"children": child}})
	if err != nil {
		return fmt.Errorf("bastion: remove child: %w", err)
	}
	return nil
}

func (s *Store) SetChildren(ctx context.Context, parent string, children []string) error {
	_, err := s.mdb.Collection(colItems).UpdateOne(ctx,
		bson.M{"_id": parent},
		bson.M{"$set": bson.M{"children": children}})
	if err != nil {
		return fmt.Errorf("bastion: set children: %w", err)
	}
	return nil
}

func (s *Store) ListChildren(ctx context.Context, parent string) ([]string, error) {
	rec, err := s.GetItem(ctx, parent)
	if err != nil {
		return nil, err
	}
	return rec.Children, nil
}

func (s *Store) DeleteAllItems(ctx context.Context) error {
	_, err := s.mdb.NewDelete((*itemModel)(nil)).
		Many().
		Filter(bson.M{}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: delete all items: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Assignment operations
// ──────────────────────────────────────────────────

func (s *Store) CreateAssignment(ctx context.Context, a *assignment.Assignment) error {
	m := assignmentToModel(a)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("role %q user %q: %w", a.RoleName, a.UserID, assignment.ErrDuplicate)
		}
		return fmt.Errorf("bastion: create assignment: %w", err)
	}
	return nil
}

func (s *Store) DeleteAssignment(ctx context.Context, userID, roleName string) error {
	res, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Filter(bson.M{"user_id": userID, "role_name": roleName}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: delete assignment: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("role %q user %q: %w", roleName, userID, assignment.ErrNotFound)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	f := bson.M{}
	if filter != nil {
		if filter.UserID != "" {
			f["user_id"] = filter.UserID
		}
		if filter.RoleName != "" {
			f["role_name"] = filter.RoleName
		}
	}
	q := s.mdb.NewFind(&models).
		Filter(f).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"user_id": userID}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
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
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"role_name": roleName}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
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
	count, err := s.mdb.NewFind((*assignmentModel)(nil)).
		Filter(bson.M{"user_id": userID, "role_name": roleName}).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("bastion: has assignment: %w", err)
	}
	return count > 0, nil
}

func (s *Store) DeleteAssignmentsByUser(ctx context.Context, userID string) error {
	_, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Many().
		Filter(bson.M{"user_id": userID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: delete assignments by user: %w", err)
	}
	return nil
}

func (s *Store) DeleteAssignmentsByRole(ctx context.Context, roleName string) error {
	_, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Many().
		Filter(bson.M{"role_name": roleName}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: delete assignments by role: %w", err)
	}
	return nil
}

func (s *Store) DeleteAllAssignments(ctx context.Context) error {
	_, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Many().
		Filter(bson.M{}).
		Exec(ctx)
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
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("bastion: create check log: %w", err)
	}
	return nil
}

func (s *Store) GetCheckLog(ctx context.Context, logID id.CheckLogID) (*checklog.Entry, error) {
	var m checkLogModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": logID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("check log %s: %w", logID, checklog.ErrNotFound)
		}
		return nil, fmt.Errorf("bastion: get check log: %w", err)
	}
	return checkLogFromModel(&m), nil
}

func (s *Store) ListCheckLogs(ctx context.Context, filter *checklog.QueryFilter) ([]*checklog.Entry, error) {
	var models []checkLogModel
	q := s.mdb.NewFind(&models).
		Filter(checkLogFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*checkLogModel)(nil)).
		Filter(checkLogFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count check logs: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeCheckLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*checkLogModel)(nil)).
		Many().
		Filter(bson.M{"created_at": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: purge check logs: %w", err)
	}
	return res.DeletedCount(), nil
}

func checkLogFilter(filter *checklog.QueryFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.UserID != "" {
		f["user_id"] = filter.UserID
	}
	if filter.ItemName != "" {
		f["item_name"] = filter.ItemName
	}
	if filter.Decision != "" {
		f["decision"] = filter.Decision
	}
	if filter.Allowed != nil {
		f["allowed"] = *filter.Allowed
	}
	created := bson.M{}
	if filter.After != nil {
		created["$gt"] = *filter.After
	}
	if filter.Before != nil {
		created["$lt"] = *filter.Before
	}
	if len(created) > 0 {
		f["created_at"] = created
	}
	return f
}
