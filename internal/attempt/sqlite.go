package attempt

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/osceprep/patientsim/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the sqlite-backed attempt store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		scenario_id TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		clinical INTEGER NOT NULL,
		communication INTEGER NOT NULL,
		empathy INTEGER NOT NULL,
		professionalism INTEGER NOT NULL,
		time_management INTEGER NOT NULL,
		mentor_comment TEXT NOT NULL DEFAULT '',
		mentor_override TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS attempt_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		content TEXT NOT NULL,
		at DATETIME NOT NULL,
		FOREIGN KEY (attempt_id) REFERENCES attempts(id)
	);

	CREATE TABLE IF NOT EXISTS server_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertAttempt stores an attempt with its transcript.
func (s *SQLiteStore) InsertAttempt(a model.ScenarioAttempt) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	override, err := marshalOverride(a.MentorOverride)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		`INSERT INTO attempts (id, scenario_id, started_at, duration_seconds,
			clinical, communication, empathy, professionalism, time_management,
			mentor_comment, mentor_override)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ScenarioID, a.StartedAt, int(a.Duration.Seconds()),
		a.FinalScore.Clinical, a.FinalScore.Communication, a.FinalScore.Empathy,
		a.FinalScore.Professionalism, a.FinalScore.TimeManagement,
		a.MentorComment, override,
	)
	if err != nil {
		return err
	}

	for _, m := range a.Transcript {
		_, err := tx.Exec(
			`INSERT INTO attempt_messages (attempt_id, sender, content, at) VALUES (?, ?, ?, ?)`,
			a.ID, string(m.Sender), m.Text, m.At,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetAttempt returns an attempt by id, or (nil, nil) if absent.
func (s *SQLiteStore) GetAttempt(id string) (*model.ScenarioAttempt, error) {
	var a model.ScenarioAttempt
	var durationSeconds int
	var override string
	err := s.db.QueryRow(
		`SELECT id, scenario_id, started_at, duration_seconds,
			clinical, communication, empathy, professionalism, time_management,
			mentor_comment, mentor_override
		 FROM attempts WHERE id = ?`, id,
	).Scan(&a.ID, &a.ScenarioID, &a.StartedAt, &durationSeconds,
		&a.FinalScore.Clinical, &a.FinalScore.Communication, &a.FinalScore.Empathy,
		&a.FinalScore.Professionalism, &a.FinalScore.TimeManagement,
		&a.MentorComment, &override)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Duration = time.Duration(durationSeconds) * time.Second
	if a.MentorOverride, err = unmarshalOverride(override); err != nil {
		return nil, err
	}
	if a.Transcript, err = s.getMessages(id); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteStore) getMessages(attemptID string) ([]model.ChatMessage, error) {
	rows, err := s.db.Query(
		`SELECT sender, content, at FROM attempt_messages WHERE attempt_id = ? ORDER BY id`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		var sender string
		if err := rows.Scan(&sender, &m.Text, &m.At); err != nil {
			return nil, err
		}
		m.Sender = model.Sender(sender)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ListAttempts returns all attempts, newest first, with transcripts.
func (s *SQLiteStore) ListAttempts() ([]model.ScenarioAttempt, error) {
	rows, err := s.db.Query(`SELECT id FROM attempts ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var attempts []model.ScenarioAttempt
	for _, id := range ids {
		a, err := s.GetAttempt(id)
		if err != nil {
			return nil, err
		}
		if a != nil {
			attempts = append(attempts, *a)
		}
	}
	return attempts, nil
}

// UpdateAttemptReview merges a mentor review into a stored attempt.
func (s *SQLiteStore) UpdateAttemptReview(id string, score model.PerformanceScore, override map[string]int, comment string) error {
	data, err := marshalOverride(override)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE attempts SET clinical = ?, communication = ?, empathy = ?,
			professionalism = ?, time_management = ?, mentor_comment = ?, mentor_override = ?
		 WHERE id = ?`,
		score.Clinical, score.Communication, score.Empathy,
		score.Professionalism, score.TimeManagement, comment, data, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("attempt %s not found", id)
	}
	return nil
}

// SetMetadata upserts a key-value pair.
func (s *SQLiteStore) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO server_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a key, or "" if missing.
func (s *SQLiteStore) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM server_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func marshalOverride(override map[string]int) (string, error) {
	if len(override) == 0 {
		return "", nil
	}
	data, err := json.Marshal(override)
	if err != nil {
		return "", fmt.Errorf("marshal override: %w", err)
	}
	return string(data), nil
}

func unmarshalOverride(data string) (map[string]int, error) {
	if data == "" {
		return nil, nil
	}
	var override map[string]int
	if err := json.Unmarshal([]byte(data), &override); err != nil {
		return nil, fmt.Errorf("parse override: %w", err)
	}
	return override, nil
}
