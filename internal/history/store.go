package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// latestSchemaVersion is bumped whenever a migration is appended to migrations.
const latestSchemaVersion = 2

// Store records pipeline runs in SQLite. Safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// RunRecord is one persisted pipeline run.
type RunRecord struct {
	ID            string
	Branch        string
	Commit        string
	MatrixVersion string
	Outcome       string
	Deployed      bool
	ArtifactHash  string
	StartedAt     time.Time
	DurationMS    int64
	ReportJSON    string
}

// StageRecord is one stage outcome within a run.
type StageRecord struct {
	RunID      string
	Stage      string
	Result     string
	DurationMS int64
}

// Open opens (or creates) the run store at dbPath and applies pending schema
// migrations. Use ":memory:" for an in-memory store.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return store, nil
}

// migrations holds forward-only schema steps; index i migrates version i to i+1.
var migrations = []string{
	// v0 -> v1: runs table.
	`CREATE TABLE runs (
		id TEXT PRIMARY KEY,
		branch TEXT NOT NULL,
		commit_hash TEXT NOT NULL,
		matrix_version TEXT NOT NULL,
		outcome TEXT NOT NULL,
		deployed INTEGER NOT NULL DEFAULT 0,
		artifact_hash TEXT,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		report_json TEXT
	);
	CREATE INDEX idx_runs_started_at ON runs(started_at);
	CREATE INDEX idx_runs_branch ON runs(branch);`,
	// v1 -> v2: per-run stage rows.
	`CREATE TABLE run_stages (
		run_id TEXT NOT NULL REFERENCES runs(id),
		stage TEXT NOT NULL,
		result TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		PRIMARY KEY (run_id, stage)
	);`,
}

// migrate brings the database to latestSchemaVersion, applying each pending
// step in order. The version is tracked in a single-row schema_version table.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	version, err := s.schemaVersion()
	if err != nil {
		return err
	}
	if version > latestSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, latestSchemaVersion)
	}

	for v := version; v < latestSchemaVersion; v++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d -> %d: %w", v, v+1, err)
		}
		if err := setVersion(tx, v+1); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) schemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func setVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
		return err
	}
	return nil
}

// InsertRun persists one completed run.
func (s *Store) InsertRun(ctx context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, branch, commit_hash, matrix_version, outcome, deployed, artifact_hash, started_at, duration_ms, report_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Branch, rec.Commit, rec.MatrixVersion, rec.Outcome,
		boolToInt(rec.Deployed), rec.ArtifactHash, rec.StartedAt.Unix(), rec.DurationMS, rec.ReportJSON,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// InsertStages persists the stage outcomes for a run.
func (s *Store) InsertStages(ctx context.Context, stages []StageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, st := range stages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_stages (run_id, stage, result, duration_ms) VALUES (?, ?, ?, ?)`,
			st.RunID, st.Stage, st.Result, st.DurationMS,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert stage %s: %w", st.Stage, err)
		}
	}
	return tx.Commit()
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, branch, commit_hash, matrix_version, outcome, deployed, artifact_hash, started_at, duration_ms, report_json
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var deployed int
		var startedAt int64
		var artifactHash, reportJSON sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Branch, &rec.Commit, &rec.MatrixVersion, &rec.Outcome,
			&deployed, &artifactHash, &startedAt, &rec.DurationMS, &reportJSON); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Deployed = deployed != 0
		rec.ArtifactHash = artifactHash.String
		rec.ReportJSON = reportJSON.String
		rec.StartedAt = time.Unix(startedAt, 0)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

// RunStages returns the stage rows for one run in insertion order.
func (s *Store) RunStages(ctx context.Context, runID string) ([]StageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, result, duration_ms FROM run_stages WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}
	defer rows.Close()

	var stages []StageRecord
	for rows.Next() {
		var st StageRecord
		if err := rows.Scan(&st.RunID, &st.Stage, &st.Result, &st.DurationMS); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		stages = append(stages, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return stages, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
