// Package store archives finished attempts in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pavelanni/ielts/internal/model"

	_ "modernc.org/sqlite"
)

// Store is the SQLite archive of finished attempts.
type Store struct {
	db *sql.DB
}

// New opens or creates the archive at dbPath and applies the schema.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		report_path TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id TEXT NOT NULL,
		part INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		question TEXT NOT NULL DEFAULT '',
		transcript TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT '',
		fluency INTEGER NOT NULL DEFAULT 0,
		pronunciation INTEGER NOT NULL DEFAULT 0,
		grammar INTEGER NOT NULL DEFAULT 0,
		vocabulary INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (attempt_id) REFERENCES attempts(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_responses_attempt ON responses(attempt_id, part, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveAttempt stores an attempt and all its responses in one transaction.
func (s *Store) SaveAttempt(a model.Attempt) error {
	if a.ID == "" {
		return fmt.Errorf("attempt id is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO attempts (id, mode, started_at, finished_at, report_path) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Mode, a.StartedAt.UTC(), a.FinishedAt.UTC(), a.ReportPath,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	for _, r := range a.Responses {
		_, err := tx.Exec(
			`INSERT INTO responses (attempt_id, part, seq, question, transcript, confidence, feedback,
			 fluency, pronunciation, grammar, vocabulary)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, r.Part, r.Seq, r.Question, r.Transcript, r.Confidence, r.Feedback,
			r.Scores.Fluency, r.Scores.Pronunciation, r.Scores.Grammar, r.Scores.Vocabulary,
		)
		if err != nil {
			return fmt.Errorf("insert response %d/%d: %w", r.Part, r.Seq, err)
		}
	}

	return tx.Commit()
}

// ListAttempts returns attempt summaries, newest first.
func (s *Store) ListAttempts() ([]model.AttemptSummary, error) {
	rows, err := s.db.Query(
		`SELECT a.id, a.mode, a.started_at, a.finished_at, a.report_path, COUNT(r.id)
		 FROM attempts a LEFT JOIN responses r ON r.attempt_id = a.id
		 GROUP BY a.id
		 ORDER BY a.started_at DESC, a.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.AttemptSummary
	for rows.Next() {
		var a model.AttemptSummary
		if err := rows.Scan(&a.ID, &a.Mode, &a.StartedAt, &a.FinishedAt, &a.ReportPath, &a.ResponseCount); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// GetAttempt returns an attempt with its responses in part and sequence
// order. A missing attempt yields sql.ErrNoRows.
func (s *Store) GetAttempt(id string) (model.Attempt, error) {
	var a model.Attempt
	err := s.db.QueryRow(
		`SELECT id, mode, started_at, finished_at, report_path FROM attempts WHERE id = ?`, id,
	).Scan(&a.ID, &a.Mode, &a.StartedAt, &a.FinishedAt, &a.ReportPath)
	if err != nil {
		return a, err
	}

	a.Responses, err = s.getResponses(id)
	return a, err
}

func (s *Store) getResponses(attemptID string) ([]model.ScoredResponse, error) {
	rows, err := s.db.Query(
		`SELECT part, seq, question, transcript, confidence, feedback, fluency, pronunciation, grammar, vocabulary
		 FROM responses WHERE attempt_id = ? ORDER BY part, seq, id`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var responses []model.ScoredResponse
	for rows.Next() {
		var r model.ScoredResponse
		if err := rows.Scan(&r.Part, &r.Seq, &r.Question, &r.Transcript, &r.Confidence, &r.Feedback,
			&r.Scores.Fluency, &r.Scores.Pronunciation, &r.Scores.Grammar, &r.Scores.Vocabulary); err != nil {
			return nil, err
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// DeleteAttempt removes an attempt and its responses. Deleting a missing
// attempt yields sql.ErrNoRows.
func (s *Store) DeleteAttempt(id string) error {
	res, err := s.db.Exec(`DELETE FROM attempts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AttemptCount returns the number of archived attempts.
func (s *Store) AttemptCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM attempts`).Scan(&count)
	return count, err
}
