package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"cvlive/internal/broadcast"
	"cvlive/internal/coordinator"
	"cvlive/internal/registry"
	"cvlive/internal/session"
	"cvlive/internal/store"
	"cvlive/pkg/types"
)

func newTestStack(t *testing.T) (*httptest.Server, *session.Manager) {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	sessions := session.NewManager(fs)
	if err := sessions.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	reg := registry.NewRegistry()
	coord := coordinator.NewCoordinator(sessions, reg, broadcast.NewBroadcaster(reg), "http://cvlive.test")
	handler := NewHandler(reg, coord, Options{
		PingInterval: 10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Second,
		SendBuffer:   16,
	})

	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(srv.Close)
	return srv, sessions
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	msg, err := json.Marshal(types.Envelope{Event: event, Data: raw})
	if err != nil {
		t.Fatalf("marshal %s envelope: %v", event, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) types.Envelope {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var envelope types.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return envelope
}

func TestStudentJoin_InvalidTokenOverWire(t *testing.T) {
	srv, _ := newTestStack(t)
	conn := dial(t, srv)

	sendEvent(t, conn, types.EventStudentJoin, "not-a-real-token")

	envelope := readEvent(t, conn)
	if envelope.Event != types.EventInvalidToken {
		t.Errorf("event = %q, want invalidToken", envelope.Event)
	}
}

func TestSessionLifecycleOverWire(t *testing.T) {
	srv, sessions := newTestStack(t)
	created, err := sessions.CreateSession(context.Background(), "Workshop", 1)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	token := created.Students[0].Token

	teacher := dial(t, srv)
	sendEvent(t, teacher, types.EventTeacherJoin, created.SessionID)

	// Joining replays the current snapshot.
	envelope := readEvent(t, teacher)
	if envelope.Event != types.EventSessionUpdate {
		t.Fatalf("snapshot event = %q", envelope.Event)
	}
	var snapshot types.Session
	if err := json.Unmarshal(envelope.Data, &snapshot); err != nil || snapshot.SessionID != created.SessionID {
		t.Fatalf("snapshot = %s, %v", envelope.Data, err)
	}

	student := dial(t, srv)
	sendEvent(t, student, types.EventStudentJoin, token)

	envelope = readEvent(t, teacher)
	if envelope.Event != types.EventStudentOnline {
		t.Fatalf("event = %q, want studentOnline", envelope.Event)
	}
	envelope = readEvent(t, teacher)
	if envelope.Event != types.EventSessionUpdate {
		t.Fatalf("event = %q, want sessionUpdate", envelope.Event)
	}

	sendEvent(t, student, types.EventCVUpdate, types.CVUpdateRequest{
		Token:  token,
		CVData: json.RawMessage(`{"profile":"Backend engineer"}`),
		Field:  "profile",
	})

	envelope = readEvent(t, teacher)
	if envelope.Event != types.EventLiveUpdate {
		t.Fatalf("event = %q, want liveUpdate", envelope.Event)
	}
	var live types.LiveUpdatePayload
	if err := json.Unmarshal(envelope.Data, &live); err != nil {
		t.Fatalf("decode liveUpdate: %v", err)
	}
	if live.Token != token || live.Field != "profile" || live.StudentNumber != 1 {
		t.Errorf("liveUpdate = %+v", live)
	}

	// Closing the student socket drives the offline transition.
	student.Close()

	envelope = readEvent(t, teacher)
	if envelope.Event != types.EventStudentOffline {
		t.Fatalf("event = %q, want studentOffline", envelope.Event)
	}
	envelope = readEvent(t, teacher)
	if envelope.Event != types.EventSessionUpdate {
		t.Fatalf("event = %q, want sessionUpdate", envelope.Event)
	}
}

func TestStudentJoin_ReplaysSavedWorkOverWire(t *testing.T) {
	srv, sessions := newTestStack(t)
	created, _ := sessions.CreateSession(context.Background(), "Workshop", 1)
	token := created.Students[0].Token

	payload := json.RawMessage(`{"profile":"saved draft"}`)
	if _, err := sessions.UpsertSubmission(context.Background(), token, payload, types.SubmissionAutosave); err != nil {
		t.Fatalf("UpsertSubmission: %v", err)
	}

	student := dial(t, srv)
	sendEvent(t, student, types.EventStudentJoin, token)

	envelope := readEvent(t, student)
	if envelope.Event != types.EventExistingData {
		t.Fatalf("event = %q, want existingData", envelope.Event)
	}
	if string(envelope.Data) != string(payload) {
		t.Errorf("replayed data = %s", envelope.Data)
	}
}

func TestDecodeString(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
		err  error
	}{
		{"plain string", `"abc123"`, "abc123", nil},
		{"empty string", `""`, "", ErrInvalidPayload},
		{"object", `{"token":"abc"}`, "", ErrInvalidPayload},
		{"number", `42`, "", ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeString(json.RawMessage(tt.data))
			if got != tt.want || !errors.Is(err, tt.err) {
				t.Errorf("decodeString(%s) = %q, %v", tt.data, got, err)
			}
		})
	}
}

func TestConnectionSend_AfterClose(t *testing.T) {
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(done)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewConnection(conn, "test-conn", 1, time.Second)
		c.Close()
		if err := c.Send("sessionUpdate", nil); !errors.Is(err, ErrConnectionClosed) {
			t.Errorf("Send after Close = %v, want ErrConnectionClosed", err)
		}
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server handler did not finish")
	}
}
