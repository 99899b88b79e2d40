package database

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

func schemaVersion(q queryer) (int, error) {
	var version int
	if err := q.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// hasColumn reports whether table already has column.
func hasColumn(q queryer, table, column string) (bool, error) {
	var n int
	err := q.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspecting %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

// migrate applies every migration newer than PRAGMA user_version.
// Each step must tolerate being re-run: the version is stamped after the
// step's transaction commits, so a crash in between replays the step.
func migrate(conn *sql.DB, logger *zap.Logger) error {
	current, err := schemaVersion(conn)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Info("applying delivery log migration",
			zap.Int("version", m.Version), zap.String("description", m.Description))

		if err := apply(conn, m); err != nil {
			return err
		}
		// modernc/sqlite does not honour user_version inside a transaction.
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return fmt.Errorf("stamping version %d: %w", m.Version, err)
		}
	}
	return nil
}

func apply(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	return nil
}
