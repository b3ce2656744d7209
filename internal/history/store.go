package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"yanode/internal/config"
	"yanode/internal/job"
)

// ErrNotFound is returned when no job has the requested ID.
var ErrNotFound = errors.New("job not found")

// Record is a stored job plus bookkeeping the job itself does not carry.
type Record struct {
	Job        job.Snapshot `json:"job"`
	RunID      string       `json:"runId,omitempty"`
	FinishedAt *time.Time   `json:"finishedAt,omitempty"`
}

// Finished reports whether the job was cleared.
func (r Record) Finished() bool { return r.FinishedAt != nil }

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the history database at cfg.HistoryPath().
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.HistoryPath())
}

// OpenPath opens the database file at path.
func OpenPath(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts a job snapshot. finished_at is left untouched.
func (s *Store) Save(ctx context.Context, snap job.Snapshot, runID string) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", snap.ID, err)
	}
	var paymentState any
	if snap.PaymentStatus != nil {
		paymentState = string(snap.PaymentStatus.State)
	}
	paid := totalPaid(snap)
	_, err = s.execWithRetry(ctx,
		`INSERT INTO jobs (
            id, activity_id, requestor_id, status, reward, paid, payment_state,
            snapshot_json, run_id, started_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            activity_id = excluded.activity_id,
            status = excluded.status,
            reward = excluded.reward,
            paid = excluded.paid,
            payment_state = excluded.payment_state,
            snapshot_json = excluded.snapshot_json,
            run_id = COALESCE(jobs.run_id, excluded.run_id),
            updated_at = excluded.updated_at`,
		snap.ID,
		nullableString(snap.ActivityID),
		snap.RequestorID,
		snap.Status.String(),
		snap.Reward.String(),
		paid,
		paymentState,
		string(payload),
		nullableString(runID),
		snap.StartedAt.UTC().UnixNano(),
		snap.UpdatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", snap.ID, err)
	}
	return nil
}

// Finish stamps a job as cleared. Finishing twice keeps the first time.
func (s *Store) Finish(ctx context.Context, id string, at time.Time) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET finished_at = COALESCE(finished_at, ?) WHERE id = ?`,
		at.UTC().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish job %s: %w", id, ErrNotFound)
	}
	return nil
}

// FinishDangling stamps every unfinished job, used at startup after a crash.
func (s *Store) FinishDangling(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET finished_at = ? WHERE finished_at IS NULL`,
		at.UTC().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("finish dangling jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Get loads one job.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT snapshot_json, run_id, finished_at FROM jobs WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("load job %s: %w", id, err)
	}
	return rec, nil
}

// FindByActivity loads the job that ran an activity.
func (s *Store) FindByActivity(ctx context.Context, activityID string) (Record, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT snapshot_json, run_id, finished_at FROM jobs WHERE activity_id = ?
         ORDER BY started_at DESC LIMIT 1`, activityID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("activity %s: %w", activityID, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("load activity %s: %w", activityID, err)
	}
	return rec, nil
}

// List returns jobs started at or after since, newest first.
func (s *Store) List(ctx context.Context, since time.Time) ([]Record, error) {
	var sinceNanos int64
	if !since.IsZero() {
		sinceNanos = since.UTC().UnixNano()
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT snapshot_json, run_id, finished_at FROM jobs
         WHERE started_at >= ? ORDER BY started_at DESC, id`, sinceNanos)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

// Update applies fn to a stored job and saves the result when it changed.
func (s *Store) Update(ctx context.Context, id string, fn func(*job.Job) *job.Job) (bool, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	current, err := job.FromSnapshot(rec.Job)
	if err != nil {
		return false, fmt.Errorf("restore job %s: %w", id, err)
	}
	next := fn(current)
	if next == nil || next == current {
		return false, nil
	}
	if err := s.Save(ctx, next.Snapshot(), rec.RunID); err != nil {
		return false, err
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		payload  string
		runID    sql.NullString
		finished sql.NullInt64
	)
	if err := row.Scan(&payload, &runID, &finished); err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(payload), &rec.Job); err != nil {
		return Record{}, fmt.Errorf("decode snapshot: %w", err)
	}
	rec.RunID = runID.String
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		rec.FinishedAt = &t
	}
	return rec, nil
}

func totalPaid(snap job.Snapshot) string {
	if len(snap.Payments) == 0 {
		return "0"
	}
	total := snap.Payments[0].Amount
	for _, p := range snap.Payments[1:] {
		total = total.Add(p.Amount)
	}
	return total.String()
}

func nullableString(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}
