package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cvlive/pkg/types"
)

const (
	sessionsFile    = "sessions.json"
	submissionsFile = "submissions.json"
)

// FileStore keeps all sessions in one JSON array file and all submissions in
// another. Every write re-reads the file, replaces the matching record and
// rewrites the whole file through a temp file plus rename, so a crash
// mid-write never truncates the data.
type FileStore struct {
	dir string
	mu  sync.Mutex // serializes read-rewrite cycles across both files
}

// NewFileStore creates the data directory and the two record files if they
// do not exist yet.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	fs := &FileStore{dir: dir}
	for _, name := range []string{sessionsFile, submissionsFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := atomicWrite(path, []byte("[]\n")); err != nil {
				return nil, fmt.Errorf("failed to initialize %s: %w", name, err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", name, err)
		}
	}
	return fs, nil
}

func (fs *FileStore) LoadSessions(ctx context.Context) ([]*types.Session, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.readSessions()
}

func (fs *FileStore) PutSession(ctx context.Context, session *types.Session) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sessions, err := fs.readSessions()
	if err != nil {
		return err
	}

	replaced := false
	for i, s := range sessions {
		if s.SessionID == session.SessionID {
			sessions[i] = session
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append(sessions, session)
	}

	return fs.writeJSON(sessionsFile, sessions)
}

func (fs *FileStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sessions, err := fs.readSessions()
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if s.SessionID == sessionID {
			return s, nil
		}
	}
	return nil, types.ErrSessionNotFound
}

func (fs *FileStore) ListSessions(ctx context.Context) ([]*types.Session, error) {
	return fs.LoadSessions(ctx)
}

func (fs *FileStore) PutSubmission(ctx context.Context, sub *types.Submission) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	subs, err := fs.readSubmissions()
	if err != nil {
		return err
	}

	replaced := false
	for i, s := range subs {
		if s.Token == sub.Token {
			subs[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		subs = append(subs, sub)
	}

	return fs.writeJSON(submissionsFile, subs)
}

func (fs *FileStore) GetSubmission(ctx context.Context, token string) (*types.Submission, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	subs, err := fs.readSubmissions()
	if err != nil {
		return nil, err
	}
	for _, s := range subs {
		if s.Token == token {
			return s, nil
		}
	}
	return nil, types.ErrSubmissionNotFound
}

func (fs *FileStore) Ping(ctx context.Context) error {
	for _, name := range []string{sessionsFile, submissionsFile} {
		if _, err := os.Stat(filepath.Join(fs.dir, name)); err != nil {
			return fmt.Errorf("data file %s unavailable: %w", name, err)
		}
	}
	return nil
}

func (fs *FileStore) Close() error { return nil }

func (fs *FileStore) readSessions() ([]*types.Session, error) {
	data, err := os.ReadFile(filepath.Join(fs.dir, sessionsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions file: %w", err)
	}
	var sessions []*types.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("failed to parse sessions file: %w", err)
	}
	return sessions, nil
}

func (fs *FileStore) readSubmissions() ([]*types.Submission, error) {
	data, err := os.ReadFile(filepath.Join(fs.dir, submissionsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read submissions file: %w", err)
	}
	var subs []*types.Submission
	if err := json.Unmarshal(data, &subs); err != nil {
		return nil, fmt.Errorf("failed to parse submissions file: %w", err)
	}
	return subs, nil
}

func (fs *FileStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	if err := atomicWrite(filepath.Join(fs.dir, name), append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// atomicWrite writes to a temp file in the same directory and renames it
// over the target, so readers never observe a partial file.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
