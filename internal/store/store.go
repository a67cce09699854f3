package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides access to the notetaker SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sessionId TEXT NOT NULL,
		mime TEXT NOT NULL,
		data BLOB NOT NULL,
		createdAt REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT,
		device TEXT,
		startedAt REAL NOT NULL,
		endedAt REAL,
		status TEXT NOT NULL DEFAULT 'completed',
		createdAt REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		sessionId TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		startTime REAL NOT NULL,
		text TEXT NOT NULL,
		sequenceNumber INTEGER NOT NULL,
		createdAt REAL NOT NULL,
		UNIQUE(sessionId, sequenceNumber)
	);

	CREATE TABLE IF NOT EXISTS summaries (
		id TEXT PRIMARY KEY,
		sessionId TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		summaryType TEXT NOT NULL,
		modelId TEXT NOT NULL,
		createdAt REAL NOT NULL
	);
`

// Open opens (creating if needed) the database in read-write mode with WAL.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing database in read-only mode with WAL.
// Used by the TUI and the MCP server, which never write.
func OpenReadOnly(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendChunk durably logs an audio fragment. The fragment is on disk when
// this returns without error.
func (s *Store) AppendChunk(sessionID, mime string, data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO chunks (sessionId, mime, data, createdAt)
		VALUES (?, ?, ?, ?)
	`, sessionID, mime, data, unixNow())
	if err != nil {
		return fmt.Errorf("append chunk: %w", err)
	}
	return nil
}

// Chunks returns all logged fragments in insertion order.
func (s *Store) Chunks() ([]Chunk, error) {
	rows, err := s.db.Query(`
		SELECT id, sessionId, mime, data, createdAt
		FROM chunks
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var createdAt float64
		if err := rows.Scan(&c.ID, &c.SessionID, &c.MIME, &c.Data, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.CreatedAt = timeFromUnix(createdAt)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ChunkCount returns the number of logged fragments.
func (s *Store) ChunkCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// ClearChunks removes all logged fragments.
func (s *Store) ClearChunks() error {
	if _, err := s.db.Exec(`DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	return nil
}

// SaveSession stores a session together with its transcript entries in one
// transaction. Existing entries for the session are replaced.
func (s *Store) SaveSession(sess Session, entries []Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var endedAt any
	if sess.EndedAt != nil {
		endedAt = unixFromTime(*sess.EndedAt)
	}
	_, err = tx.Exec(`
		INSERT INTO sessions (id, title, device, startedAt, endedAt, status, createdAt)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			endedAt = excluded.endedAt,
			status = excluded.status
	`, sess.ID, sess.Title, sess.Device, unixFromTime(sess.StartedAt), endedAt,
		sess.Status, unixNow())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM entries WHERE sessionId = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	for _, e := range entries {
		_, err := tx.Exec(`
			INSERT INTO entries (id, sessionId, startTime, text, sequenceNumber, createdAt)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.ID, sess.ID, e.StartTime, e.Text, e.SequenceNumber, unixNow())
		if err != nil {
			return fmt.Errorf("save entry %d: %w", e.SequenceNumber, err)
		}
	}

	return tx.Commit()
}

// ReplaceEntries swaps the transcript entries of a session, preserving the
// session row. Used after refinement.
func (s *Store) ReplaceEntries(sessionID string, entries []Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entries WHERE sessionId = ?`, sessionID); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	for _, e := range entries {
		_, err := tx.Exec(`
			INSERT INTO entries (id, sessionId, startTime, text, sequenceNumber, createdAt)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.ID, sessionID, e.StartTime, e.Text, e.SequenceNumber, unixNow())
		if err != nil {
			return fmt.Errorf("save entry %d: %w", e.SequenceNumber, err)
		}
	}

	return tx.Commit()
}

// SaveSummary stores a generated summary.
func (s *Store) SaveSummary(sum Summary) error {
	_, err := s.db.Exec(`
		INSERT INTO summaries (id, sessionId, content, summaryType, modelId, createdAt)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sum.ID, sum.SessionID, sum.Content, sum.SummaryType, sum.ModelID, unixNow())
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// Sessions returns all sessions, newest first.
func (s *Store) Sessions() ([]Session, error) {
	rows, err := s.db.Query(`
		SELECT id, title, device, startedAt, endedAt, status, createdAt
		FROM sessions
		ORDER BY startedAt DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SessionByID returns one session, or nil when the id is unknown.
func (s *Store) SessionByID(id string) (*Session, error) {
	rows, err := s.db.Query(`
		SELECT id, title, device, startedAt, endedAt, status, createdAt
		FROM sessions
		WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	sess, err := scanSession(rows)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// LatestSession returns the most recent session, or nil if none exist.
func (s *Store) LatestSession() (*Session, error) {
	rows, err := s.db.Query(`
		SELECT id, title, device, startedAt, endedAt, status, createdAt
		FROM sessions
		ORDER BY startedAt DESC
		LIMIT 1
	`)
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	sess, err := scanSession(rows)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// EntriesForSession returns a session's transcript in sequence order.
func (s *Store) EntriesForSession(sessionID string) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, sessionId, startTime, text, sequenceNumber, createdAt
		FROM entries
		WHERE sessionId = ?
		ORDER BY sequenceNumber ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt float64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.StartTime, &e.Text,
			&e.SequenceNumber, &createdAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.CreatedAt = timeFromUnix(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SummariesForSession returns a session's summaries, newest first.
func (s *Store) SummariesForSession(sessionID string) ([]Summary, error) {
	rows, err := s.db.Query(`
		SELECT id, sessionId, content, summaryType, modelId, createdAt
		FROM summaries
		WHERE sessionId = ?
		ORDER BY createdAt DESC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		var createdAt float64
		if err := rows.Scan(&sum.ID, &sum.SessionID, &sum.Content,
			&sum.SummaryType, &sum.ModelID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.CreatedAt = timeFromUnix(createdAt)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func scanSession(rows *sql.Rows) (Session, error) {
	var sess Session
	var startedAt, createdAt float64
	var endedAt sql.NullFloat64
	var title, device sql.NullString

	if err := rows.Scan(&sess.ID, &title, &device, &startedAt, &endedAt,
		&sess.Status, &createdAt); err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}

	sess.StartedAt = timeFromUnix(startedAt)
	sess.CreatedAt = timeFromUnix(createdAt)
	if endedAt.Valid {
		t := timeFromUnix(endedAt.Float64)
		sess.EndedAt = &t
	}
	if title.Valid {
		sess.Title = title.String
	}
	if device.Valid {
		sess.Device = device.String
	}

	return sess, nil
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func unixNow() float64 {
	return unixFromTime(time.Now())
}
