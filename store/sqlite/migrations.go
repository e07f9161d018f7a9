package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Bastion store (SQLite).
var Migrations = migrate.NewGroup("bastion")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_items",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_items (
    name            TEXT PRIMARY KEY,
    type            TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    data            TEXT NOT NULL DEFAULT '{}',
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_bastion_items_type ON bastion_items (type);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_items`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_item_children",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_item_children (
    parent          TEXT NOT NULL REFERENCES bastion_items(name) ON DELETE CASCADE,
    child           TEXT NOT NULL REFERENCES bastion_items(name) ON DELETE CASCADE,
    position        INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (parent, child)
);

CREATE INDEX IF NOT EXISTS idx_bastion_children_parent ON bastion_item_children (parent, position);
CREATE INDEX IF NOT EXISTS idx_bastion_children_child ON bastion_item_children (child);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_item_children`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_assignments",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_assignments (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    role_name       TEXT NOT NULL REFERENCES bastion_items(name) ON DELETE CASCADE,
    granted_by      TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE (user_id, role_name)
);

CREATE INDEX IF NOT EXISTS idx_bastion_assign_user ON bastion_assignments (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_bastion_assign_role ON bastion_assignments (role_name);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_assignments`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_check_logs",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_check_logs (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    item_name       TEXT NOT NULL,
    item_type       TEXT NOT NULL DEFAULT '',
    allowed         INTEGER NOT NULL DEFAULT 0,
    decision        TEXT NOT NULL,
    reason          TEXT NOT NULL DEFAULT '',
    eval_time_ns    INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_bastion_clogs_user ON bastion_check_logs (user_id);
CREATE INDEX IF NOT EXISTS idx_bastion_clogs_item ON bastion_check_logs (item_name);
CREATE INDEX IF NOT EXISTS idx_bastion_clogs_decision ON bastion_check_logs (decision);
CREATE INDEX IF NOT EXISTS idx_bastion_clogs_created ON bastion_check_logs (created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_check_logs`)
				return err
			},
		},
	)
}
