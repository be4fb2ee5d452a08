package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cvlive/pkg/types"
)

// SQLiteStore persists each session and submission as a full JSON record in
// a single row, preserving the whole-record-replace contract while getting
// durable writes from SQLite. All writes funnel through one goroutine;
// reads run concurrently against the connection pool.
type SQLiteStore struct {
	db       *sql.DB
	writeCh  chan writeOp
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex // protects closed
}

type writeOp struct {
	fn     func(*sql.DB) error
	result chan error
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS submissions (
	token      TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// NewSQLiteStore opens the database, applies the schema and starts the
// write loop.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		writeCh:  make(chan writeOp, 100),
		shutdown: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// writeLoop processes all write operations in a single goroutine, avoiding
// SQLite write contention.
func (s *SQLiteStore) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeCh:
			op.result <- op.fn(s.db)
		case <-s.shutdown:
			log.Println("store: sqlite write loop shutting down")
			return
		}
	}
}

func (s *SQLiteStore) executeWrite(fn func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case s.writeCh <- writeOp{fn: fn, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-s.shutdown:
		return fmt.Errorf("store is shutting down")
	}
}

func (s *SQLiteStore) LoadSessions(ctx context.Context) ([]*types.Session, error) {
	return s.ListSessions(ctx)
}

func (s *SQLiteStore) PutSession(ctx context.Context, session *types.Session) error {
	record, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT OR REPLACE INTO sessions (session_id, record, created_at) VALUES (?, ?, ?)`,
			session.SessionID, string(record), session.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to write session record: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM sessions WHERE session_id = ?`, sessionID).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, types.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return decodeSession(record)
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM sessions ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		session, err := decodeSession(record)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

func (s *SQLiteStore) PutSubmission(ctx context.Context, sub *types.Submission) error {
	record, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal submission record: %w", err)
	}
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT OR REPLACE INTO submissions (token, record, updated_at) VALUES (?, ?, ?)`,
			sub.Token, string(record), time.Now())
		if err != nil {
			return fmt.Errorf("failed to write submission record: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, token string) (*types.Submission, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM submissions WHERE token = ?`, token).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, types.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query submission: %w", err)
	}
	var sub types.Submission
	if err := json.Unmarshal([]byte(record), &sub); err != nil {
		return nil, fmt.Errorf("failed to decode submission record: %w", err)
	}
	return &sub, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func decodeSession(record string) (*types.Session, error) {
	var session types.Session
	if err := json.Unmarshal([]byte(record), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session record: %w", err)
	}
	return &session, nil
}
