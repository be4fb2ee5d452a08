package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cvlive/pkg/types"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_PutAndGetSession(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.PutSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.SessionName != "Workshop" || len(got.Students) != 2 {
		t.Errorf("unexpected session: %+v", got)
	}

	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("GetSession(missing) = %v, want ErrSessionNotFound", err)
	}
}

func TestSQLiteStore_PutSession_ReplacesWholeRecord(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	session := testSession("s1")
	if err := s.PutSession(ctx, session); err != nil {
		t.Fatalf("PutSession: %v", err)
	}
	updated := session.Clone()
	updated.Students[0].Submitted = true
	if err := s.PutSession(ctx, updated); err != nil {
		t.Fatalf("PutSession update: %v", err)
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || !sessions[0].Students[0].Submitted {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestSQLiteStore_SubmissionRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.PutSubmission(ctx, &types.Submission{
		Token:       "tok",
		CVData:      json.RawMessage(`{"profile":"first"}`),
		LastUpdated: &now,
	}); err != nil {
		t.Fatalf("PutSubmission: %v", err)
	}
	if err := s.PutSubmission(ctx, &types.Submission{
		Token:       "tok",
		CVData:      json.RawMessage(`{"profile":"second"}`),
		SubmittedAt: &now,
	}); err != nil {
		t.Fatalf("second PutSubmission: %v", err)
	}

	sub, err := s.GetSubmission(ctx, "tok")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if string(sub.CVData) != `{"profile":"second"}` || sub.SubmittedAt == nil {
		t.Errorf("submission = %+v", sub)
	}

	if _, err := s.GetSubmission(ctx, "missing"); !errors.Is(err, types.ErrSubmissionNotFound) {
		t.Errorf("GetSubmission(missing) = %v, want ErrSubmissionNotFound", err)
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s.PutSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("PutSession: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	sessions, err := reopened.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "s1" {
		t.Errorf("sessions after reopen: %+v", sessions)
	}
}

func TestSQLiteStore_Ping(t *testing.T) {
	s := newTestSQLiteStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
