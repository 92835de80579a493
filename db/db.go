package db

import (
	"database/sql"
	"fmt"
	"time"

	"fleet-browser-inventory/internal/dispatch"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection of the run journal. The journal records
// which hosts each run reached; the extension data itself lives in the
// CSV output.
type DB struct {
	conn *sql.DB
}

// Run describes one survey run
type Run struct {
	ID          string
	Started     time.Time
	Finished    time.Time
	Selector    string
	Concurrency int
	Hosts       int
	Records     int
	Output      string
}

// HostRow is the journaled terminal state of one host
type HostRow struct {
	Host     string
	Status   dispatch.Status
	Records  int
	Error    string
	Duration time.Duration
}

var schema = []string{`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started INTEGER NOT NULL,
		finished INTEGER,
		selector TEXT NOT NULL,
		concurrency INTEGER NOT NULL,
		hosts INTEGER NOT NULL DEFAULT 0,
		records INTEGER NOT NULL DEFAULT 0,
		output TEXT
	)`, `
	CREATE TABLE IF NOT EXISTS host_results (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		host TEXT NOT NULL,
		status TEXT NOT NULL,
		records INTEGER NOT NULL,
		error TEXT,
		duration_ms INTEGER NOT NULL
	)`, `
	CREATE INDEX IF NOT EXISTS host_results_run ON host_results(run_id)`,
}

// NewDB initializes a new SQLite database connection
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, query := range schema {
		if _, err := conn.Exec(query); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create journal schema: %w", err)
		}
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// StartRun records the beginning of a run
func (d *DB) StartRun(run Run) error {
	_, err := d.conn.Exec(
		"INSERT INTO runs (id, started, selector, concurrency) VALUES (?, ?, ?, ?)",
		run.ID, run.Started.Unix(), run.Selector, run.Concurrency)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// RecordHosts stores the terminal state of every host of a run
func (d *DB) RecordHosts(runID string, results []dispatch.HostResult) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `INSERT INTO host_results (run_id, host, status, records, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)`
	for _, result := range results {
		var errText sql.NullString
		if result.Err != nil {
			errText = sql.NullString{String: result.Err.Error(), Valid: true}
		}
		if _, err := tx.Exec(query, runID, result.Host, string(result.Status),
			len(result.Records), errText, result.Duration.Milliseconds()); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert host result: %w", err)
		}
	}

	return tx.Commit()
}

// FinishRun records the end of a run and its totals
func (d *DB) FinishRun(runID string, finished time.Time, hosts, records int, output string) error {
	res, err := d.conn.Exec(
		"UPDATE runs SET finished = ?, hosts = ?, records = ?, output = ? WHERE id = ?",
		finished.Unix(), hosts, records, output, runID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// LastRun returns the most recently started run, or nil if there is none
func (d *DB) LastRun() (*Run, error) {
	row := d.conn.QueryRow(`SELECT id, started, finished, selector, concurrency,
		hosts, records, output FROM runs ORDER BY started DESC, rowid DESC LIMIT 1`)

	var (
		run      Run
		started  int64
		finished sql.NullInt64
		output   sql.NullString
	)
	err := row.Scan(&run.ID, &started, &finished, &run.Selector, &run.Concurrency,
		&run.Hosts, &run.Records, &output)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	run.Started = time.Unix(started, 0)
	if finished.Valid {
		run.Finished = time.Unix(finished.Int64, 0)
	}
	run.Output = output.String
	return &run, nil
}

// HostResults returns the journaled hosts of a run in completion order
func (d *DB) HostResults(runID string) ([]HostRow, error) {
	rows, err := d.conn.Query(`SELECT host, status, records, error, duration_ms
		FROM host_results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch host results: %w", err)
	}
	defer rows.Close()

	var results []HostRow
	for rows.Next() {
		var (
			r        HostRow
			status   string
			errText  sql.NullString
			duration int64
		)
		if err := rows.Scan(&r.Host, &status, &r.Records, &errText, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Status = dispatch.Status(status)
		r.Error = errText.String
		r.Duration = time.Duration(duration) * time.Millisecond
		results = append(results, r)
	}

	return results, rows.Err()
}
