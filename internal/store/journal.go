package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// Run is one engine session recorded in the journal.
type Run struct {
	ID        string     `json:"id"`
	Topology  string     `json:"topology"`
	Command   string     `json:"command,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	StartTick uint64     `json:"start_tick"`
	Ticks     uint64     `json:"ticks"`
}

// TickRecord is the telemetry of one tick.
type TickRecord struct {
	Tick           uint64        `json:"tick"`
	Time           float64       `json:"time"`
	Nodes          int           `json:"nodes"`
	Edges          int           `json:"edges"`
	TemporaryEdges int           `json:"temporary_edges"`
	Hyperedges     int           `json:"hyperedges"`
	ActiveNodes    int           `json:"active_nodes"`
	Fired          int           `json:"fired"`
	Emergence      float64       `json:"emergence"`
	OpsApplied     int           `json:"ops_applied"`
	OpsSkipped     int           `json:"ops_skipped"`
	Duration       time.Duration `json:"duration"`
}

// OpRecord is one structural operation. Detail is the JSON encoding of
// the operation; Error is empty when it was applied.
type OpRecord struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Tick       uint64    `json:"tick"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail,omitempty"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Journal records runs, tick telemetry and operations in SQLite.
type Journal struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// OpenJournal opens (or creates) the journal at .loom/journal.db under
// projectRoot.
func OpenJournal(projectRoot string) (*Journal, error) {
	dir := LocalLoomPath(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .loom directory: %w", err)
	}
	return OpenJournalPath(filepath.Join(dir, "journal.db"))
}

// OpenJournalPath opens (or creates) a journal database at dbPath.
func OpenJournalPath(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Journal{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (j *Journal) Path() string { return j.dbPath }

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// StartRun records the start of a session over topology and returns it.
func (j *Journal) StartRun(ctx context.Context, topology, command string, startTick uint64) (Run, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	r := Run{
		ID:        uuid.NewString(),
		Topology:  topology,
		Command:   command,
		StartedAt: time.Now().UTC(),
		StartTick: startTick,
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, topology, command, started_at, start_tick) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Topology, nullString(r.Command), r.StartedAt.Format(time.RFC3339Nano), int64(startTick))
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}
	return r, nil
}

// EndRun marks a run finished after ticks ticks.
func (j *Journal) EndRun(ctx context.Context, runID string, ticks uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, ticks = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), int64(ticks), runID)
	if err != nil {
		return fmt.Errorf("failed to end run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// RecordTicks writes tick telemetry for a run in one transaction.
func (j *Journal) RecordTicks(ctx context.Context, runID string, records []TickRecord) error {
	if len(records) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO ticks (
			run_id, tick, time, nodes, edges, temporary_edges, hyperedges,
			active_nodes, fired, emergence, ops_applied, ops_skipped, duration_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare tick insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			runID, int64(r.Tick), r.Time, r.Nodes, r.Edges, r.TemporaryEdges, r.Hyperedges,
			r.ActiveNodes, r.Fired, r.Emergence, r.OpsApplied, r.OpsSkipped, r.Duration.Nanoseconds()); err != nil {
			return fmt.Errorf("failed to insert tick %d: %w", r.Tick, err)
		}
	}
	return tx.Commit()
}

// RecordOp appends an operation to the journal.
func (j *Journal) RecordOp(ctx context.Context, op OpRecord) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if op.RecordedAt.IsZero() {
		op.RecordedAt = time.Now().UTC()
	}
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO ops (run_id, tick, kind, detail, error, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		op.RunID, int64(op.Tick), op.Kind, nullString(op.Detail), nullString(op.Error),
		op.RecordedAt.Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to insert op: %w", err)
	}
	return res.LastInsertId()
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, topology, command, started_at, ended_at, start_tick, ticks
		FROM runs ORDER BY rowid DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                Run
			command, ended   sql.NullString
			started          string
			startTick, ticks int64
		)
		if err := rows.Scan(&r.ID, &r.Topology, &command, &started, &ended, &startTick, &ticks); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Command = command.String
		r.StartedAt = parseTime(started)
		if ended.Valid {
			t := parseTime(ended.String)
			r.EndedAt = &t
		}
		r.StartTick = uint64(startTick)
		r.Ticks = uint64(ticks)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Ticks returns the tick telemetry of a run in tick order. limit <= 0
// returns all; otherwise the last limit ticks are returned.
func (j *Journal) Ticks(ctx context.Context, runID string, limit int) ([]TickRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx, `
		SELECT tick, time, nodes, edges, temporary_edges, hyperedges,
		       active_nodes, fired, emergence, ops_applied, ops_skipped, duration_ns
		FROM (SELECT * FROM ticks WHERE run_id = ? ORDER BY tick DESC LIMIT ?)
		ORDER BY tick ASC`, runID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query ticks: %w", err)
	}
	defer rows.Close()

	var out []TickRecord
	for rows.Next() {
		var (
			r        TickRecord
			tick, ns int64
		)
		if err := rows.Scan(&tick, &r.Time, &r.Nodes, &r.Edges, &r.TemporaryEdges, &r.Hyperedges,
			&r.ActiveNodes, &r.Fired, &r.Emergence, &r.OpsApplied, &r.OpsSkipped, &ns); err != nil {
			return nil, fmt.Errorf("failed to scan tick: %w", err)
		}
		r.Tick = uint64(tick)
		r.Duration = time.Duration(ns)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ops returns the operations of a run in insertion order. An empty runID
// returns operations of every run.
func (j *Journal) Ops(ctx context.Context, runID string) ([]OpRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	query := `SELECT id, run_id, tick, kind, detail, error, recorded_at FROM ops`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY id ASC`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ops: %w", err)
	}
	defer rows.Close()

	var out []OpRecord
	for rows.Next() {
		var (
			r            OpRecord
			tick         int64
			detail, fail sql.NullString
			recorded     string
		)
		if err := rows.Scan(&r.ID, &r.RunID, &tick, &r.Kind, &detail, &fail, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan op: %w", err)
		}
		r.Tick = uint64(tick)
		r.Detail = detail.String
		r.Error = fail.String
		r.RecordedAt = parseTime(recorded)
		out = append(out, r)
	}
	return out, rows.Err()
}

// TotalTicks returns the highest tick any ended run over topology
// reached, counting from the first run. It is the tick offset of the
// next run.
func (j *Journal) TotalTicks(ctx context.Context, topology string) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var total int64
	err := j.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(start_tick + ticks), 0) FROM runs WHERE topology = ? AND ended_at IS NOT NULL`,
		topology).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum ticks: %w", err)
	}
	return uint64(total), nil
}

// DeleteRun removes a run and, by cascade, its ticks and ops.
func (j *Journal) DeleteRun(ctx context.Context, runID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	return nil
}

// Check runs the SQLite integrity checks on the journal database.
func (j *Journal) Check(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ValidateIntegrity(ctx, j.db)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// sqlLimit maps limit <= 0 to SQLite's "no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
