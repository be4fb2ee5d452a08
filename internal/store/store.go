// Package store provides the durable backends for session and submission
// records. A record write always replaces the whole record; read-modify-write
// serialization happens one layer up, in the session manager.
package store

import (
	"context"

	"cvlive/pkg/types"
)

// Store is the durable source of truth. After any mutation the persisted
// record wins over in-memory state: callers must treat a failed write as a
// failed operation.
type Store interface {
	// LoadSessions returns every session record, for building the token
	// index at startup.
	LoadSessions(ctx context.Context) ([]*types.Session, error)

	// PutSession persists the full session record, replacing any previous
	// record with the same sessionId.
	PutSession(ctx context.Context, session *types.Session) error

	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	ListSessions(ctx context.Context) ([]*types.Session, error)

	// PutSubmission persists the full submission record for its token,
	// replacing any previous one. Last writer wins.
	PutSubmission(ctx context.Context, sub *types.Submission) error
	GetSubmission(ctx context.Context, token string) (*types.Submission, error)

	Ping(ctx context.Context) error
	Close() error
}
