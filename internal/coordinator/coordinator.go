// Package coordinator implements the per-slot state machine that ties
// identity resolution, the document store, the connection registry and the
// broadcaster together. Every inbound event runs to completion here:
// resolve, mutate, persist, then publish. Nothing is broadcast unless the
// state change behind it was persisted first.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"cvlive/internal/broadcast"
	"cvlive/internal/metrics"
	"cvlive/internal/registry"
	"cvlive/internal/session"
	"cvlive/pkg/cv"
	"cvlive/pkg/interfaces"
	"cvlive/pkg/types"
)

// Coordinator handles connect, edit, submit and disconnect transitions.
type Coordinator struct {
	sessions      *session.Manager
	registry      *registry.Registry
	broadcaster   *broadcast.Broadcaster
	publicBaseURL string
}

// NewCoordinator wires the coordinator with its dependencies. publicBaseURL
// is the externally visible origin used to build CV view links.
func NewCoordinator(sessions *session.Manager, reg *registry.Registry, b *broadcast.Broadcaster, publicBaseURL string) *Coordinator {
	return &Coordinator{
		sessions:      sessions,
		registry:      reg,
		broadcaster:   b,
		publicBaseURL: publicBaseURL,
	}
}

// TeacherJoin subscribes the connection to a session's channel and replays
// the current session snapshot, since channels never replay missed events.
func (c *Coordinator) TeacherJoin(conn interfaces.Connection, sessionID string) {
	c.registry.JoinChannel(conn.ID(), types.SessionChannel(sessionID))
	log.Printf("coordinator: teacher %s joined session %s", conn.ID(), sessionID)

	if s, err := c.sessions.GetSession(sessionID); err == nil {
		if err := conn.Send(types.EventSessionUpdate, s); err != nil {
			log.Printf("coordinator: snapshot send to %s failed: %v", conn.ID(), err)
		}
	}
}

// PeerJoin subscribes the connection to one student's review channel.
func (c *Coordinator) PeerJoin(conn interfaces.Connection, token string) {
	c.registry.JoinChannel(conn.ID(), types.PeerChannel(token))
	log.Printf("coordinator: peer %s joined for token review", conn.ID())
}

// StudentJoin binds the connection to its slot and marks the slot online.
// An unresolvable token produces invalidToken on this connection only, with
// no state change anywhere.
func (c *Coordinator) StudentJoin(ctx context.Context, conn interfaces.Connection, token string) error {
	if _, _, err := c.sessions.Resolve(token); err != nil {
		metrics.InvalidTokens.Inc()
		if err := conn.Send(types.EventInvalidToken, nil); err != nil {
			log.Printf("coordinator: invalidToken send to %s failed: %v", conn.ID(), err)
		}
		return nil
	}

	now := time.Now().UTC()
	updated, slot, err := c.sessions.MutateSlot(ctx, token, func(s *types.Session, slot *types.Slot) {
		slot.Online = true
		slot.LastActivity = &now
		s.ActivityLog = append(s.ActivityLog, types.ActivityEvent{
			Timestamp: now,
			Event:     "Student connected",
			Details:   fmt.Sprintf("Student %d came online", slot.StudentNumber),
		})
	})
	if err != nil {
		metrics.StorageFailures.Inc()
		return err
	}

	c.registry.Bind(conn.ID(), token)
	metrics.EventsProcessed.WithLabelValues("connect").Inc()

	channel := types.SessionChannel(updated.SessionID)
	c.broadcaster.Publish(channel, types.EventStudentOnline, types.StudentPresencePayload{
		Token:         token,
		StudentNumber: slot.StudentNumber,
	})
	c.broadcaster.Publish(channel, types.EventSessionUpdate, updated)

	// Replay any prior work to the student so a reconnect resumes where the
	// last autosave left off.
	if sub, err := c.sessions.GetSubmission(ctx, token); err == nil {
		if err := conn.Send(types.EventExistingData, sub.CVData); err != nil {
			log.Printf("coordinator: existingData send to %s failed: %v", conn.ID(), err)
		}
	}

	return nil
}

// Edit applies an in-progress document update: refreshes activity and
// progress on the slot, autosaves the submission, then publishes liveUpdate
// to the session and peer channels. Edits are honored for any resolvable
// token regardless of join state, and editing after submission re-runs this
// same path.
func (c *Coordinator) Edit(ctx context.Context, token string, cvData json.RawMessage, field string) error {
	if _, _, err := c.sessions.Resolve(token); err != nil {
		metrics.InvalidTokens.Inc()
		return err
	}

	now := time.Now().UTC()
	progress := cv.Progress(cvData)

	updated, slot, err := c.sessions.MutateSlot(ctx, token, func(_ *types.Session, slot *types.Slot) {
		slot.LastActivity = &now
		slot.Progress = progress
	})
	if err != nil {
		metrics.StorageFailures.Inc()
		return err
	}

	if _, err := c.sessions.UpsertSubmission(ctx, token, cvData, types.SubmissionAutosave); err != nil {
		metrics.StorageFailures.Inc()
		return err
	}
	metrics.EventsProcessed.WithLabelValues("edit").Inc()

	c.broadcaster.Publish(types.SessionChannel(updated.SessionID), types.EventLiveUpdate, types.LiveUpdatePayload{
		Token:         token,
		CVData:        cvData,
		Field:         field,
		StudentNumber: slot.StudentNumber,
		Timestamp:     now,
	})
	c.broadcaster.Publish(types.PeerChannel(token), types.EventLiveUpdate, types.PeerLiveUpdatePayload{
		Token:  token,
		CVData: cvData,
	})

	return nil
}

// Submit finalizes a slot: marks it submitted, stores the CV view link,
// writes the final submission, and notifies both channels. Returns the view
// link for the HTTP response.
func (c *Coordinator) Submit(ctx context.Context, token string, cvData json.RawMessage) (string, time.Time, error) {
	if _, _, err := c.sessions.Resolve(token); err != nil {
		metrics.InvalidTokens.Inc()
		return "", time.Time{}, err
	}

	now := time.Now().UTC()
	viewLink := fmt.Sprintf("%s/cv-view.html?token=%s", c.publicBaseURL, token)

	updated, _, err := c.sessions.MutateSlot(ctx, token, func(s *types.Session, slot *types.Slot) {
		slot.Submitted = true
		slot.SubmittedAt = &now
		slot.LastActivity = &now
		slot.CVViewLink = viewLink
		s.ActivityLog = append(s.ActivityLog, types.ActivityEvent{
			Timestamp: now,
			Event:     "Submission completed",
			Details:   fmt.Sprintf("Student %d (%s) submitted their CV", slot.StudentNumber, cv.DisplayName(cvData)),
		})
	})
	if err != nil {
		metrics.StorageFailures.Inc()
		return "", time.Time{}, err
	}

	if _, err := c.sessions.UpsertSubmission(ctx, token, cvData, types.SubmissionFinal); err != nil {
		metrics.StorageFailures.Inc()
		return "", time.Time{}, err
	}
	metrics.EventsProcessed.WithLabelValues("submit").Inc()

	c.broadcaster.Publish(types.SessionChannel(updated.SessionID), types.EventStudentSubmitted, types.StudentSubmittedPayload{
		Token:       token,
		CVViewLink:  viewLink,
		SubmittedAt: now,
	})
	c.broadcaster.Publish(types.PeerChannel(token), types.EventStudentSubmitted, types.PeerSubmittedPayload{
		Token: token,
	})

	return viewLink, now, nil
}

// Disconnect tears down a connection. If a token was bound, the slot goes
// offline and the owning session's channel (and nobody else) hears about it.
// Connections that never bound a token (teachers, peers) just leave their
// channels.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) {
	token := c.registry.Remove(connID)
	if token == "" {
		return
	}

	now := time.Now().UTC()
	updated, slot, err := c.sessions.MutateSlot(ctx, token, func(s *types.Session, slot *types.Slot) {
		slot.Online = false
		slot.LastActivity = &now
		s.ActivityLog = append(s.ActivityLog, types.ActivityEvent{
			Timestamp: now,
			Event:     "Student disconnected",
			Details:   fmt.Sprintf("Student %d went offline", slot.StudentNumber),
		})
	})
	if err != nil {
		// Token may have been reassigned while the student was connected;
		// nothing to publish either way.
		metrics.StorageFailures.Inc()
		log.Printf("coordinator: offline transition for %s failed: %v", connID, err)
		return
	}
	metrics.EventsProcessed.WithLabelValues("disconnect").Inc()

	channel := types.SessionChannel(updated.SessionID)
	c.broadcaster.Publish(channel, types.EventStudentOffline, types.StudentPresencePayload{
		Token:         token,
		StudentNumber: slot.StudentNumber,
	})
	c.broadcaster.Publish(channel, types.EventSessionUpdate, updated)
}
