// Package trainstore persists training runs in SQLite: run metadata,
// per-episode outcomes, and scheduling provenance. The counters it exposes
// gate the improve/evaluate schedule and are read-only to consumers.
package trainstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	config_json  TEXT NOT NULL,
	started_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS episode_outcomes (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id           TEXT NOT NULL,
	episode_id       TEXT NOT NULL,
	mode             TEXT NOT NULL,
	steps            INTEGER NOT NULL,
	subgoal_tests    INTEGER NOT NULL,
	subgoals_reached INTEGER NOT NULL,
	relabeled_added  INTEGER NOT NULL DEFAULT 0,
	final_reward     REAL NOT NULL,
	success          INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_episode_outcomes_run
ON episode_outcomes(run_id, mode);

CREATE TABLE IF NOT EXISTS decision_provenance (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	episode_id  TEXT NOT NULL,
	level       INTEGER NOT NULL,
	decision    TEXT NOT NULL,
	reason      TEXT,
	created_at  TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// #endregion schema

// #region store

// Store manages run persistence in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion store

// #region begin-run

// BeginRun registers a new training run and returns its ID.
func (s *Store) BeginRun(configJSON string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, config_json, started_at) VALUES (?, ?, ?)`,
		id, configJSON, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// #endregion begin-run

// #region record-episode

// RecordEpisode persists a single episode outcome row.
func (s *Store) RecordEpisode(o EpisodeOutcome) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	success := 0
	if o.Success {
		success = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO episode_outcomes
		(run_id, episode_id, mode, steps, subgoal_tests, subgoals_reached,
		 relabeled_added, final_reward, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID,
		o.EpisodeID,
		o.Mode,
		o.Steps,
		o.SubgoalTests,
		o.SubgoalsReached,
		o.RelabeledAdded,
		o.FinalReward,
		success,
		o.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record episode: %w", err)
	}
	return nil
}

// #endregion record-episode

// #region list-episodes

// ListEpisodes returns the most recent episode outcomes of a run, newest
// first, capped at limit.
func (s *Store) ListEpisodes(runID string, limit int) ([]EpisodeOutcome, error) {
	rows, err := s.db.Query(`
		SELECT episode_id, mode, steps, subgoal_tests, subgoals_reached,
		       relabeled_added, final_reward, success, created_at
		FROM episode_outcomes
		WHERE run_id = ?
		ORDER BY id DESC LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var out []EpisodeOutcome
	for rows.Next() {
		o := EpisodeOutcome{RunID: runID}
		var success int
		var createdAt string
		if err := rows.Scan(&o.EpisodeID, &o.Mode, &o.Steps, &o.SubgoalTests,
			&o.SubgoalsReached, &o.RelabeledAdded, &o.FinalReward, &success, &createdAt); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		o.Success = success == 1
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			o.CreatedAt = ts
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// #endregion list-episodes

// #region progress

// Progress aggregates a run's counters.
func (s *Store) Progress(runID string) (Progress, error) {
	var p Progress
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN mode = 'train' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN mode = 'eval' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(steps), 0),
		       COALESCE(SUM(success), 0)
		FROM episode_outcomes WHERE run_id = ?`,
		runID,
	).Scan(&p.Episodes, &p.TrainEpisodes, &p.EvalEpisodes, &p.Steps, &p.Successes)
	if err != nil {
		return Progress{}, fmt.Errorf("progress: %w", err)
	}
	return p, nil
}

// ListRuns returns the IDs of the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT run_id FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// #endregion progress
