// Package storage persists interview sessions so an interrupted session can
// be resumed after a restart.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pkale/intervue/internal/interview"
)

const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusAbandoned = "abandoned"
)

// SessionRecord is one persisted session with its question set and the
// results recorded so far, in question order.
type SessionRecord struct {
	ID          string
	CreatedAt   time.Time
	CompletedAt *time.Time
	Status      string
	Questions   []interview.QuestionAnswer
	Results     []interview.Result
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "intervue.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			completed_at TEXT,
			status TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS questions (
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			question TEXT NOT NULL,
			reference_answer TEXT NOT NULL,
			PRIMARY KEY(session_id, position),
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create questions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			question TEXT NOT NULL,
			correct_answer TEXT NOT NULL,
			user_answer TEXT NOT NULL,
			emotion TEXT NOT NULL,
			similarity REAL NOT NULL,
			PRIMARY KEY(session_id, position),
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create results table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status, created_at)"); err != nil {
		return fmt.Errorf("create sessions index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateSession inserts the session and its immutable question set. Any
// previously active session is marked abandoned: at most one session is
// ever resumable.
func (s *SQLiteStore) CreateSession(id string, questions []interview.QuestionAnswer, createdAt time.Time) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session id is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`UPDATE sessions SET status = ? WHERE status = ?`,
		StatusAbandoned, StatusActive,
	); err != nil {
		return fmt.Errorf("abandon previous sessions: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO sessions(id, created_at, status) VALUES(?, ?, ?)`,
		id,
		createdAt.UTC().Format(time.RFC3339Nano),
		StatusActive,
	); err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}

	for i, qa := range questions {
		if _, err := tx.Exec(
			`INSERT INTO questions(session_id, position, question, reference_answer) VALUES(?, ?, ?, ?)`,
			id, i, qa.Question, qa.ReferenceAnswer,
		); err != nil {
			return fmt.Errorf("store question %d for session %s: %w", i, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}
	return nil
}

// AppendResult records the result for one question. The primary key on
// (session_id, position) rejects duplicate positions.
func (s *SQLiteStore) AppendResult(sessionID string, position int, r interview.Result) error {
	_, err := s.db.Exec(
		`INSERT INTO results(session_id, position, question, correct_answer, user_answer, emotion, similarity)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		sessionID, position, r.Question, r.CorrectAnswer, r.UserAnswer, r.Emotion, r.Similarity,
	)
	if err != nil {
		return fmt.Errorf("append result %d for session %s: %w", position, sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) CompleteSession(id string, completedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET completed_at = ?, status = ? WHERE id = ?`,
		completedAt.UTC().Format(time.RFC3339Nano),
		StatusCompleted,
		id,
	)
	if err != nil {
		return fmt.Errorf("complete session %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete session rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLiteStore) AbandonSession(id string) error {
	_, err := s.db.Exec(`UPDATE sessions SET status = ? WHERE id = ?`, StatusAbandoned, id)
	if err != nil {
		return fmt.Errorf("abandon session %s: %w", id, err)
	}
	return nil
}

// LoadActive returns the most recent active session with its questions and
// results, or nil when there is nothing to resume.
func (s *SQLiteStore) LoadActive() (*SessionRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, status FROM sessions WHERE status = ? ORDER BY created_at DESC LIMIT 1`,
		StatusActive,
	)

	var rec SessionRecord
	var createdAt string
	if err := row.Scan(&rec.ID, &createdAt, &rec.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query active session: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse session %s created_at: %w", rec.ID, err)
	}
	rec.CreatedAt = parsed

	if rec.Questions, err = s.getQuestions(rec.ID); err != nil {
		return nil, err
	}
	if rec.Results, err = s.GetResults(rec.ID); err != nil {
		return nil, err
	}

	return &rec, nil
}

func (s *SQLiteStore) getQuestions(sessionID string) ([]interview.QuestionAnswer, error) {
	rows, err := s.db.Query(
		`SELECT question, reference_answer FROM questions WHERE session_id = ? ORDER BY position ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var questions []interview.QuestionAnswer
	for rows.Next() {
		var qa interview.QuestionAnswer
		if err := rows.Scan(&qa.Question, &qa.ReferenceAnswer); err != nil {
			return nil, fmt.Errorf("scan question for session %s: %w", sessionID, err)
		}
		questions = append(questions, qa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question rows for session %s: %w", sessionID, err)
	}

	return questions, nil
}

// GetResults returns the session's results ordered by position.
func (s *SQLiteStore) GetResults(sessionID string) ([]interview.Result, error) {
	rows, err := s.db.Query(
		`SELECT question, correct_answer, user_answer, emotion, similarity
		 FROM results
		 WHERE session_id = ?
		 ORDER BY position ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query results for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var results []interview.Result
	for rows.Next() {
		var r interview.Result
		if err := rows.Scan(&r.Question, &r.CorrectAnswer, &r.UserAnswer, &r.Emotion, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan result for session %s: %w", sessionID, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows for session %s: %w", sessionID, err)
	}

	return results, nil
}
