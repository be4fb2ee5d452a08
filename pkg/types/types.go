package types

import (
	"encoding/json"
	"time"
)

// Session is the authoritative record for one workshop session. Records are
// copy-on-write: mutations clone the record, persist the clone, then swap it
// into the cache, so any *Session handed out stays safe to read and marshal
// concurrently.
type Session struct {
	SessionID   string          `json:"sessionId"`
	SessionName string          `json:"sessionName"`
	CreatedAt   time.Time       `json:"createdAt"`
	Students    []*Slot         `json:"students"`
	ActivityLog []ActivityEvent `json:"activityLog"`
}

// Slot is one student's seat within a session, addressed by its token.
// StudentNumber is 1-based and immutable after creation.
type Slot struct {
	Token         string     `json:"token"`
	StudentNumber int        `json:"studentNumber"`
	Name          *string    `json:"name"`
	Submitted     bool       `json:"submitted"`
	Online        bool       `json:"online"`
	LastActivity  *time.Time `json:"lastActivity"`
	Progress      int        `json:"progress"`
	SubmittedAt   *time.Time `json:"submittedAt,omitempty"`
	CVViewLink    string     `json:"cvViewLink,omitempty"`
}

// ActivityEvent is one append-only entry in a session's activity log.
type ActivityEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Details   string    `json:"details"`
}

// Submission holds the latest CV payload for a token. Last writer wins:
// autosaves and final submits overwrite the whole record. SubmittedAt is set
// on final submits, LastUpdated on autosaves.
type Submission struct {
	Token       string          `json:"token"`
	CVData      json.RawMessage `json:"cvData"`
	SubmittedAt *time.Time      `json:"submittedAt,omitempty"`
	LastUpdated *time.Time      `json:"lastUpdated,omitempty"`
}

// SubmissionKind distinguishes autosave upserts from final submits.
type SubmissionKind string

const (
	SubmissionAutosave SubmissionKind = "autosave"
	SubmissionFinal    SubmissionKind = "final"
)

// Clone returns a deep copy of the session record.
func (s *Session) Clone() *Session {
	c := *s
	c.Students = make([]*Slot, len(s.Students))
	for i, slot := range s.Students {
		sc := *slot
		c.Students[i] = &sc
	}
	c.ActivityLog = make([]ActivityEvent, len(s.ActivityLog))
	copy(c.ActivityLog, s.ActivityLog)
	return &c
}

// SlotByToken returns the slot holding token, or nil.
func (s *Session) SlotByToken(token string) *Slot {
	for _, slot := range s.Students {
		if slot.Token == token {
			return slot
		}
	}
	return nil
}
