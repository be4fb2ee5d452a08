package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"cvlive/internal/coordinator"
	"cvlive/internal/metrics"
	"cvlive/internal/registry"
	"cvlive/pkg/types"
)

var upgrader = websocket.Upgrader{
	// Token possession is the only credential; origin checking adds nothing
	// for anonymous classroom clients.
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

// Options tune connection liveness detection and write buffering.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

// Handler upgrades HTTP requests and translates the realtime protocol
// (teacherJoin, peerJoin, studentJoin, cvUpdate) into coordinator calls.
// Identity travels inside events, not in the upgrade request: a connection
// is anonymous until its first join.
type Handler struct {
	registry    *registry.Registry
	coordinator *coordinator.Coordinator
	opts        Options
}

// NewHandler creates a WebSocket handler.
func NewHandler(reg *registry.Registry, coord *coordinator.Coordinator, opts Options) *Handler {
	return &Handler{
		registry:    reg,
		coordinator: coord,
		opts:        opts,
	}
}

// HandleWebSocket upgrades the request and starts the connection lifecycle.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket: upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, uuid.New().String(), h.opts.SendBuffer, h.opts.WriteTimeout)
	h.registry.Add(wsConn)
	metrics.ActiveConnections.Inc()
	log.Printf("websocket: connection %s opened", wsConn.ID())

	go h.handleConnection(wsConn)
}

// handleConnection runs the read loop with ping/pong liveness detection. A
// dead or departed connection always ends here, which is what guarantees the
// disconnect transition eventually fires.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.coordinator.Disconnect(context.Background(), conn.ID())
		_ = conn.Close()
		metrics.ActiveConnections.Dec()
		log.Printf("websocket: connection %s closed", conn.ID())
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("websocket: read error on %s: %v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.dispatch(conn, data)
	}
}

// dispatch decodes one client envelope and routes it. Join events carry a
// bare JSON string (the session id or token); cvUpdate carries a structured
// payload.
func (h *Handler) dispatch(conn *Connection, data []byte) {
	var envelope types.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		log.Printf("websocket: malformed message from %s: %v", conn.ID(), err)
		return
	}

	ctx := context.Background()

	switch envelope.Event {
	case types.EventTeacherJoin:
		sessionID, err := decodeString(envelope.Data)
		if err != nil {
			log.Printf("websocket: bad teacherJoin from %s: %v", conn.ID(), err)
			return
		}
		h.coordinator.TeacherJoin(conn, sessionID)

	case types.EventPeerJoin:
		token, err := decodeString(envelope.Data)
		if err != nil {
			log.Printf("websocket: bad peerJoin from %s: %v", conn.ID(), err)
			return
		}
		h.coordinator.PeerJoin(conn, token)

	case types.EventStudentJoin:
		token, err := decodeString(envelope.Data)
		if err != nil {
			log.Printf("websocket: bad studentJoin from %s: %v", conn.ID(), err)
			return
		}
		if err := h.coordinator.StudentJoin(ctx, conn, token); err != nil {
			log.Printf("websocket: studentJoin failed for %s: %v", conn.ID(), err)
		}

	case types.EventCVUpdate:
		var req types.CVUpdateRequest
		if err := json.Unmarshal(envelope.Data, &req); err != nil {
			log.Printf("websocket: bad cvUpdate from %s: %v", conn.ID(), err)
			return
		}
		if err := h.coordinator.Edit(ctx, req.Token, req.CVData, req.Field); err != nil {
			log.Printf("websocket: cvUpdate failed for %s: %v", conn.ID(), err)
		}

	default:
		log.Printf("websocket: unknown event %q from %s", envelope.Event, conn.ID())
	}
}

func decodeString(data json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", ErrInvalidPayload
	}
	if s == "" {
		return "", ErrInvalidPayload
	}
	return s, nil
}
