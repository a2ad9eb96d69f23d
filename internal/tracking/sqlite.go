package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kousskous/menu-extractor/internal/llm"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS params (
	run_id TEXT NOT NULL REFERENCES runs(id),
	key    TEXT NOT NULL,
	value  TEXT NOT NULL,
	PRIMARY KEY (run_id, key)
);
CREATE TABLE IF NOT EXISTS metrics (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	key       TEXT NOT NULL,
	value     REAL NOT NULL,
	step      INTEGER NOT NULL,
	logged_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS metrics_run_key ON metrics(run_id, key, step);
CREATE TABLE IF NOT EXISTS artifacts (
	run_id TEXT NOT NULL REFERENCES runs(id),
	name   TEXT NOT NULL,
	path   TEXT NOT NULL,
	PRIMARY KEY (run_id, name)
);
CREATE TABLE IF NOT EXISTS llm_calls (
	request_id        TEXT PRIMARY KEY,
	run_id            TEXT NOT NULL REFERENCES runs(id),
	call_number       INTEGER NOT NULL,
	filename          TEXT NOT NULL,
	attempt           INTEGER NOT NULL,
	model             TEXT NOT NULL,
	prompt_hash       TEXT NOT NULL,
	prompt            TEXT NOT NULL,
	response          TEXT NOT NULL,
	prompt_tokens     INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	elapsed_ms        INTEGER NOT NULL,
	error             TEXT,
	called_at         TIMESTAMP NOT NULL
);
`

// Store persists runs, params, metrics, artifacts and oracle calls in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates (if needed) and migrates the tracking database at dsn (a file path).
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(dsn); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("tracking dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open tracking db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tracking pragmas: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate tracking db: %w", err)
	}
	logger.Debug("tracking.open.ok", "dsn", dsn)
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// StartRun inserts a RUNNING run and returns its handle.
func (s *Store) StartRun(ctx context.Context, name string) (*Run, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, status, started_at) VALUES (?, ?, ?, ?)`,
		id, name, "RUNNING", time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	s.logger.Info("tracking.run.start", "run_id", id, "name", name)
	return &Run{ID: id, store: s}, nil
}

// RunSummary is one row of RecentRuns.
type RunSummary struct {
	ID         string
	Name       string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Calls      int
}

// RecentRuns lists the latest runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.status, r.started_at, r.finished_at,
		       (SELECT COUNT(*) FROM llm_calls c WHERE c.run_id = r.id)
		FROM runs r ORDER BY r.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var finished sql.NullTime
		if err := rows.Scan(&rs.ID, &rs.Name, &rs.Status, &rs.StartedAt, &finished, &rs.Calls); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			rs.FinishedAt = &t
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Run is a handle to one tracked run. Logging methods never fail the caller:
// errors are logged and swallowed because tracking is not part of the data path.
type Run struct {
	ID    string
	store *Store
	mu    sync.Mutex
	calls int
}

func (r *Run) warn(event string, err error) {
	r.store.logger.Warn(event, "run_id", r.ID, "error", err)
}

// LogParams upserts string parameters.
func (r *Run) LogParams(ctx context.Context, params map[string]string) {
	for k, v := range params {
		_, err := r.store.db.ExecContext(ctx,
			`INSERT INTO params (run_id, key, value) VALUES (?, ?, ?)
			 ON CONFLICT(run_id, key) DO UPDATE SET value = excluded.value`, r.ID, k, v)
		if err != nil {
			r.warn("tracking.param.error", err)
		}
	}
}

// LogMetric appends a metric point.
func (r *Run) LogMetric(ctx context.Context, key string, value float64, step int) {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO metrics (run_id, key, value, step, logged_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, key, value, step, time.Now().UTC())
	if err != nil {
		r.warn("tracking.metric.error", err)
	}
}

// LogArtifact records where an output file was written.
func (r *Run) LogArtifact(ctx context.Context, name, path string) {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO artifacts (run_id, name, path) VALUES (?, ?, ?)
		 ON CONFLICT(run_id, name) DO UPDATE SET path = excluded.path`, r.ID, name, path)
	if err != nil {
		r.warn("tracking.artifact.error", err)
	}
}

// LogCall implements llm.CallLogger.
func (r *Run) LogCall(ctx context.Context, rec llm.CallRecord) {
	r.mu.Lock()
	r.calls++
	n := r.calls
	r.mu.Unlock()

	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO llm_calls (request_id, run_id, call_number, filename, attempt, model,
			prompt_hash, prompt, response, prompt_tokens, completion_tokens, elapsed_ms, error, called_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, r.ID, n, rec.Filename, rec.Attempt, rec.Model,
		rec.PromptHash, rec.Prompt, rec.Response, rec.PromptTokens, rec.CompletionTokens,
		rec.Elapsed.Milliseconds(), errText, rec.Timestamp)
	if err != nil {
		r.warn("tracking.call.error", err)
		return
	}
	r.LogMetric(ctx, "total_llm_calls", float64(n), n)
}

// End marks the run finished with status (FINISHED, FAILED, KILLED).
func (r *Run) End(ctx context.Context, status string) {
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`, status, time.Now().UTC(), r.ID)
	if err != nil {
		r.warn("tracking.run.end_error", err)
		return
	}
	r.store.logger.Info("tracking.run.end", "run_id", r.ID, "status", status)
}

// Params returns the parameters logged for the run.
func (r *Run) Params(ctx context.Context) (map[string]string, error) {
	rows, err := r.store.db.QueryContext(ctx, `SELECT key, value FROM params WHERE run_id = ?`, r.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// LatestMetric returns the value at the highest step for key.
func (r *Run) LatestMetric(ctx context.Context, key string) (float64, bool, error) {
	var v float64
	err := r.store.db.QueryRowContext(ctx,
		`SELECT value FROM metrics WHERE run_id = ? AND key = ? ORDER BY step DESC, rowid DESC LIMIT 1`,
		r.ID, key).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
