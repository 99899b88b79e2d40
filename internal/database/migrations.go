package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations run in order; append new ones with the next Version.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at TEXT DEFAULT (datetime('now')),
    fetched INTEGER DEFAULT 0,
    new_items INTEGER DEFAULT 0,
    delivered INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    suppressed INTEGER DEFAULT 0,
    dropped INTEGER DEFAULT 0,
    initialized INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS deliveries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id),
    thread_id TEXT NOT NULL,
    title TEXT NOT NULL,
    link TEXT NOT NULL,
    retailer TEXT,
    priority INTEGER DEFAULT 3,
    status TEXT NOT NULL CHECK(status IN ('delivered', 'failed', 'suppressed', 'skipped')),
    error TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_deliveries_run ON deliveries(run_id);
CREATE INDEX IF NOT EXISTS idx_deliveries_thread ON deliveries(thread_id);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "record matched keyword",
		Up: func(tx *sql.Tx) error {
			exists, err := hasColumn(tx, "deliveries", "keyword")
			if err != nil || exists {
				return err
			}
			_, err = tx.Exec(`ALTER TABLE deliveries ADD COLUMN keyword TEXT`)
			return err
		},
	},
}

func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
