package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver

	"firegrid/pkg/automaton"
)

// PostgresStore persists runs and snapshots to Postgres. Re-running a
// scenario under the same name starts a fresh run row; snapshots upsert on
// (run_id, minute) so a resumed write never duplicates a step.
type PostgresStore struct {
	db    *sql.DB
	runID int64
}

// NewPostgresStore connects with the given DSN and ensures the schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		seed BIGINT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		cell_size DOUBLE PRECISION NOT NULL,
		time_step INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		final_time INTEGER,
		final_stats JSONB,
		started_at TIMESTAMP WITH TIME ZONE NOT NULL,
		finished_at TIMESTAMP WITH TIME ZONE
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id INTEGER REFERENCES runs(id),
		minute INTEGER NOT NULL,
		stats JSONB NOT NULL,
		cells BYTEA NOT NULL,
		UNIQUE(run_id, minute)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *PostgresStore) BeginRun(meta RunMeta) error {
	query := `
	INSERT INTO runs (name, seed, width, height, cell_size, time_step, started_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id
	`
	err := s.db.QueryRow(query,
		meta.Name, meta.Seed, meta.Width, meta.Height,
		meta.CellSize, meta.TimeStep, meta.StartedAt).Scan(&s.runID)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	return nil
}

func (s *PostgresStore) WriteSnapshot(snap automaton.Snapshot) error {
	statsJSON, err := json.Marshal(snap.Stats)
	if err != nil {
		return fmt.Errorf("store: marshal stats: %w", err)
	}
	query := `
	INSERT INTO snapshots (run_id, minute, stats, cells)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (run_id, minute)
	DO UPDATE SET stats = $3, cells = $4
	`
	if _, err := s.db.Exec(query, s.runID, snap.Time, string(statsJSON), snap.Cells); err != nil {
		return fmt.Errorf("store: insert snapshot at minute %d: %w", snap.Time, err)
	}
	return nil
}

func (s *PostgresStore) EndRun(result automaton.Result) error {
	statsJSON, err := json.Marshal(result.Stats)
	if err != nil {
		return fmt.Errorf("store: marshal stats: %w", err)
	}
	query := `
	UPDATE runs
	SET status = $2, final_time = $3, final_stats = $4, finished_at = NOW()
	WHERE id = $1
	`
	if _, err := s.db.Exec(query, s.runID, result.Status.String(), result.FinalTime, string(statsJSON)); err != nil {
		return fmt.Errorf("store: finalize run: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
