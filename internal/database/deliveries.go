package database

import "database/sql"

// InsertRun stores the summary of a check.
func (db *DB) InsertRun(r Run) error {
	_, err := db.conn.Exec(
		`INSERT INTO runs (id, fetched, new_items, delivered, failed, suppressed, dropped, initialized)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Fetched, r.NewItems, r.Delivered, r.Failed, r.Suppressed, r.Dropped, boolToInt(r.Initialized),
	)
	return err
}

// InsertDelivery records the outcome for one item. The run must exist.
func (db *DB) InsertDelivery(d Delivery) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO deliveries (run_id, thread_id, title, link, retailer, priority, status, error, keyword)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.ThreadID, d.Title, d.Link, d.Retailer, d.Priority, d.Status, d.Error, d.Keyword,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetRecentDeliveries returns the newest deliveries first.
func (db *DB) GetRecentDeliveries(limit int) ([]Delivery, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_id, thread_id, title, link, retailer, priority, status, error, keyword, created_at
		FROM deliveries ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.RunID, &d.ThreadID, &d.Title, &d.Link, &d.Retailer,
			&d.Priority, &d.Status, &d.Error, &d.Keyword, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetRecentRuns returns the newest runs first.
func (db *DB) GetRecentRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(
		`SELECT id, started_at, fetched, new_items, delivered, failed, suppressed, dropped, initialized
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var initialized int
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.Fetched, &r.NewItems, &r.Delivered,
			&r.Failed, &r.Suppressed, &r.Dropped, &initialized); err != nil {
			return nil, err
		}
		r.Initialized = initialized != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetStats returns aggregate statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM runs", &s.Runs},
		{"SELECT COUNT(*) FROM runs WHERE initialized = 1", &s.InitRuns},
		{"SELECT COUNT(*) FROM deliveries WHERE status = 'delivered'", &s.Delivered},
		{"SELECT COUNT(*) FROM deliveries WHERE status = 'failed'", &s.Failed},
		{"SELECT COUNT(*) FROM deliveries WHERE status = 'suppressed'", &s.Suppressed},
		{"SELECT COUNT(*) FROM deliveries WHERE status = 'delivered' AND priority = 5", &s.UrgentSent},
	}
	for _, q := range queries {
		if err := db.conn.QueryRow(q.query).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	var last sql.NullString
	if err := db.conn.QueryRow("SELECT MAX(started_at) FROM runs").Scan(&last); err != nil {
		return nil, err
	}
	if last.Valid {
		s.LastRunStarted = &last.String
	}
	return s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
