// Package session owns the authoritative session state: an in-memory cache
// of all session records backed by the durable store, a system-wide token
// index for O(1) identity resolution, and the per-session locking that makes
// read-modify-persist cycles safe under concurrent writers.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"cvlive/internal/store"
	"cvlive/pkg/types"
)

// Manager coordinates all session and submission state. Session records are
// copy-on-write: every mutation clones the current record, persists the
// clone, and only then swaps it into the cache, so a failed write leaves the
// in-memory state untouched and previously returned records stay immutable.
type Manager struct {
	store store.Store

	mu       sync.RWMutex              // guards sessions and tokens
	sessions map[string]*types.Session // sessionID -> current record
	tokens   map[string]string         // token -> sessionID, system-wide

	locksMu      sync.Mutex
	sessionLocks map[string]*sync.Mutex // per-session write serialization
	tokenLocks   map[string]*sync.Mutex // per-token submission serialization
}

// NewManager creates a session manager on top of the given store.
func NewManager(st store.Store) *Manager {
	return &Manager{
		store:        st,
		sessions:     make(map[string]*types.Session),
		tokens:       make(map[string]string),
		sessionLocks: make(map[string]*sync.Mutex),
		tokenLocks:   make(map[string]*sync.Mutex),
	}
}

// Load reads all session records from the store and builds the token index.
// Must be called once before the manager serves traffic.
func (m *Manager) Load(ctx context.Context) error {
	sessions, err := m.store.LoadSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range sessions {
		m.sessions[s.SessionID] = s
		for _, slot := range s.Students {
			m.tokens[slot.Token] = s.SessionID
		}
	}

	log.Printf("session: loaded %d sessions, %d tokens", len(m.sessions), len(m.tokens))
	return nil
}

// CreateSession generates a new session with slotCount anonymous slots, each
// holding a token unique across every session in the system.
func (m *Manager) CreateSession(ctx context.Context, name string, slotCount int) (*types.Session, error) {
	if err := types.ValidateSessionName(name); err != nil {
		return nil, err
	}
	if err := types.ValidateSlotCount(slotCount); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sessionID, err := m.uniqueSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &types.Session{
		SessionID:   sessionID,
		SessionName: name,
		CreatedAt:   now,
		Students:    make([]*types.Slot, 0, slotCount),
		ActivityLog: []types.ActivityEvent{{
			Timestamp: now,
			Event:     "Session created",
			Details:   fmt.Sprintf("Created with %d student slots", slotCount),
		}},
	}

	// Collision-check freshly generated tokens against the whole index and
	// against each other.
	fresh := make(map[string]bool, slotCount)
	for i := 0; i < slotCount; i++ {
		token, err := m.uniqueToken(fresh)
		if err != nil {
			return nil, err
		}
		fresh[token] = true
		session.Students = append(session.Students, &types.Slot{
			Token:         token,
			StudentNumber: i + 1,
		})
	}

	if err := m.store.PutSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	m.sessions[sessionID] = session
	for token := range fresh {
		m.tokens[token] = sessionID
	}

	log.Printf("session: created id=%s name=%q slots=%d", sessionID, name, slotCount)
	return session, nil
}

// GetSession returns the current record for sessionID.
func (m *Manager) GetSession(sessionID string) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, types.ErrSessionNotFound
	}
	return session, nil
}

// ListSessions returns all sessions ordered by creation time.
func (m *Manager) ListSessions() []*types.Session {
	m.mu.RLock()
	sessions := make([]*types.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].SessionID < sessions[j].SessionID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// Resolve maps a token to its session and slot. The returned slot is a copy.
func (m *Manager) Resolve(token string) (string, types.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessionID, ok := m.tokens[token]
	if !ok {
		return "", types.Slot{}, types.ErrTokenNotFound
	}
	slot := m.sessions[sessionID].SlotByToken(token)
	if slot == nil {
		return "", types.Slot{}, types.ErrTokenNotFound
	}
	return sessionID, *slot, nil
}

// MutateSlot applies fn to the slot holding token and persists the whole
// session record. Mutations for the same session are serialized, so two
// concurrent edits to different slots never lose each other's update. The
// returned session is the persisted snapshot; the slot pointer belongs to
// that snapshot.
func (m *Manager) MutateSlot(ctx context.Context, token string, fn func(*types.Session, *types.Slot)) (*types.Session, *types.Slot, error) {
	m.mu.RLock()
	sessionID, ok := m.tokens[token]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, types.ErrTokenNotFound
	}

	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	current := m.sessions[sessionID]
	m.mu.RUnlock()

	clone := current.Clone()
	slot := clone.SlotByToken(token)
	if slot == nil {
		// Token was reassigned between resolution and locking.
		return nil, nil, types.ErrTokenNotFound
	}

	fn(clone, slot)

	if err := m.store.PutSession(ctx, clone); err != nil {
		return nil, nil, fmt.Errorf("failed to persist session %s: %w", sessionID, err)
	}

	m.mu.Lock()
	m.sessions[sessionID] = clone
	m.mu.Unlock()

	return clone, slot, nil
}

// ReassignToken atomically swaps a slot's token. Fails with ErrTokenConflict
// if newToken already identifies any slot in the system; reassigning a token
// to itself is a no-op success. The index is updated under the same lock as
// the conflict check, so concurrent resolves see either the old token or the
// new one, never both and never neither.
func (m *Manager) ReassignToken(ctx context.Context, sessionID, oldToken, newToken string) (*types.Slot, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sessions[sessionID]
	if !ok {
		return nil, types.ErrSessionNotFound
	}
	slot := current.SlotByToken(oldToken)
	if slot == nil {
		return nil, types.ErrTokenNotFound
	}
	if newToken == oldToken {
		unchanged := *slot
		return &unchanged, nil
	}
	if _, exists := m.tokens[newToken]; exists {
		return nil, types.ErrTokenConflict
	}

	clone := current.Clone()
	reassigned := clone.SlotByToken(oldToken)
	reassigned.Token = newToken

	if err := m.store.PutSession(ctx, clone); err != nil {
		return nil, fmt.Errorf("failed to persist session %s: %w", sessionID, err)
	}

	m.sessions[sessionID] = clone
	delete(m.tokens, oldToken)
	m.tokens[newToken] = sessionID

	log.Printf("session: reassigned token for student %d in session %s", reassigned.StudentNumber, sessionID)
	updated := *reassigned
	return &updated, nil
}

// UpsertSubmission replaces the submission record for token. Final submits
// stamp SubmittedAt, autosaves stamp LastUpdated; either way the previous
// content is overwritten entirely. Upserts for the same token are
// serialized; different tokens proceed independently.
func (m *Manager) UpsertSubmission(ctx context.Context, token string, cvData []byte, kind types.SubmissionKind) (*types.Submission, error) {
	lock := m.tokenLock(token)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	sub := &types.Submission{
		Token:  token,
		CVData: cvData,
	}
	if kind == types.SubmissionFinal {
		sub.SubmittedAt = &now
	} else {
		sub.LastUpdated = &now
	}

	if err := m.store.PutSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to persist submission for token: %w", err)
	}
	return sub, nil
}

// GetSubmission returns the latest submission for token, if any.
func (m *Manager) GetSubmission(ctx context.Context, token string) (*types.Submission, error) {
	return m.store.GetSubmission(ctx, token)
}

// Stats reports cache sizes for the health endpoint.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int{
		"sessions": len(m.sessions),
		"tokens":   len(m.tokens),
	}
}

func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	lock, ok := m.sessionLocks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.sessionLocks[sessionID] = lock
	}
	return lock
}

func (m *Manager) tokenLock(token string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	lock, ok := m.tokenLocks[token]
	if !ok {
		lock = &sync.Mutex{}
		m.tokenLocks[token] = lock
	}
	return lock
}

func (m *Manager) uniqueSessionID() (string, error) {
	for i := 0; i < 10; i++ {
		id, err := generateToken()
		if err != nil {
			return "", err
		}
		if _, exists := m.sessions[id]; !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique session id")
}

// uniqueToken must be called with m.mu held; extra holds tokens generated in
// the same batch that are not indexed yet.
func (m *Manager) uniqueToken(extra map[string]bool) (string, error) {
	for i := 0; i < 10; i++ {
		token, err := generateToken()
		if err != nil {
			return "", err
		}
		if _, exists := m.tokens[token]; !exists && !extra[token] {
			return token, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique token")
}

// generateToken returns 16 random bytes hex-encoded: a 32 character opaque
// capability string.
func generateToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
