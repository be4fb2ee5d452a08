package types

import (
	"strings"
	"testing"
	"time"
)

func TestSession_Clone_Independent(t *testing.T) {
	now := time.Now()
	original := &Session{
		SessionID:   "s1",
		SessionName: "Workshop",
		CreatedAt:   now,
		Students: []*Slot{
			{Token: "tok-a", StudentNumber: 1},
			{Token: "tok-b", StudentNumber: 2},
		},
		ActivityLog: []ActivityEvent{{Timestamp: now, Event: "Session created"}},
	}

	clone := original.Clone()
	clone.Students[0].Online = true
	clone.Students[0].Progress = 80
	clone.ActivityLog = append(clone.ActivityLog, ActivityEvent{Event: "Student connected"})

	if original.Students[0].Online {
		t.Error("mutating clone slot changed the original")
	}
	if original.Students[0].Progress != 0 {
		t.Error("mutating clone progress changed the original")
	}
	if len(original.ActivityLog) != 1 {
		t.Errorf("original activity log length = %d, want 1", len(original.ActivityLog))
	}
}

func TestSession_SlotByToken(t *testing.T) {
	s := &Session{Students: []*Slot{
		{Token: "tok-a", StudentNumber: 1},
		{Token: "tok-b", StudentNumber: 2},
	}}

	if slot := s.SlotByToken("tok-b"); slot == nil || slot.StudentNumber != 2 {
		t.Errorf("SlotByToken(tok-b) = %+v, want student 2", slot)
	}
	if slot := s.SlotByToken("missing"); slot != nil {
		t.Errorf("SlotByToken(missing) = %+v, want nil", slot)
	}
}

func TestChannelNames(t *testing.T) {
	if got := SessionChannel("abc"); got != "session:abc" {
		t.Errorf("SessionChannel = %q", got)
	}
	if got := PeerChannel("tok"); got != "peer:tok" {
		t.Errorf("PeerChannel = %q", got)
	}
}

func TestValidateSessionName(t *testing.T) {
	if err := ValidateSessionName("CV Workshop"); err != nil {
		t.Errorf("valid name rejected: %v", err)
	}
	if err := ValidateSessionName(""); err != ErrInvalidSessionName {
		t.Errorf("empty name: got %v, want ErrInvalidSessionName", err)
	}
	if err := ValidateSessionName(strings.Repeat("a", 201)); err != ErrInvalidSessionName {
		t.Errorf("long name: got %v, want ErrInvalidSessionName", err)
	}
}

func TestValidateSlotCount(t *testing.T) {
	for _, count := range []int{1, 30, 500} {
		if err := ValidateSlotCount(count); err != nil {
			t.Errorf("count %d rejected: %v", count, err)
		}
	}
	for _, count := range []int{0, -1, 501} {
		if err := ValidateSlotCount(count); err != ErrInvalidSlotCount {
			t.Errorf("count %d: got %v, want ErrInvalidSlotCount", count, err)
		}
	}
}
