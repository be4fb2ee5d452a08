package types

import (
	"encoding/json"
	"time"
)

// Client-to-server event names.
const (
	EventTeacherJoin = "teacherJoin"
	EventPeerJoin    = "peerJoin"
	EventStudentJoin = "studentJoin"
	EventCVUpdate    = "cvUpdate"
)

// Server-to-client event names.
const (
	EventSessionUpdate    = "sessionUpdate"
	EventStudentOnline    = "studentOnline"
	EventStudentOffline   = "studentOffline"
	EventStudentSubmitted = "studentSubmitted"
	EventLiveUpdate       = "liveUpdate"
	EventExistingData     = "existingData"
	EventInvalidToken     = "invalidToken"
)

// Envelope is the wire format for realtime messages in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SessionChannel names the broadcast topic observed by teacher dashboards
// and co-observers of a session.
func SessionChannel(sessionID string) string { return "session:" + sessionID }

// PeerChannel names the broadcast topic observed by reviewers of one student.
func PeerChannel(token string) string { return "peer:" + token }

// CVUpdateRequest is the payload of a cvUpdate client event.
type CVUpdateRequest struct {
	Token  string          `json:"token"`
	CVData json.RawMessage `json:"cvData"`
	Field  string          `json:"field"`
}

// StudentPresencePayload announces studentOnline / studentOffline on the
// session channel.
type StudentPresencePayload struct {
	Token         string `json:"token"`
	StudentNumber int    `json:"studentNumber"`
}

// StudentSubmittedPayload announces a completed submission on the session
// channel.
type StudentSubmittedPayload struct {
	Token       string    `json:"token"`
	CVViewLink  string    `json:"cvViewLink"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// PeerSubmittedPayload is the reduced studentSubmitted payload sent to the
// peer channel.
type PeerSubmittedPayload struct {
	Token string `json:"token"`
}

// LiveUpdatePayload carries an in-progress edit to the session channel.
type LiveUpdatePayload struct {
	Token         string          `json:"token"`
	CVData        json.RawMessage `json:"cvData"`
	Field         string          `json:"field"`
	StudentNumber int             `json:"studentNumber"`
	Timestamp     time.Time       `json:"timestamp"`
}

// PeerLiveUpdatePayload is the reduced liveUpdate payload sent to the peer
// channel.
type PeerLiveUpdatePayload struct {
	Token  string          `json:"token"`
	CVData json.RawMessage `json:"cvData"`
}
