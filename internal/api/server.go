// Package api is the administrative HTTP surface: session management, token
// validation and the submission endpoints. No business logic lives here;
// handlers translate HTTP to session-manager and coordinator calls.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"cvlive/internal/coordinator"
	"cvlive/internal/registry"
	"cvlive/internal/session"
	"cvlive/internal/store"
	"cvlive/pkg/types"
)

// Server routes the /api endpoints.
type Server struct {
	sessions    *session.Manager
	coordinator *coordinator.Coordinator
	registry    *registry.Registry
	store       store.Store
	router      *http.ServeMux
}

// NewServer wires the API routes.
func NewServer(sessions *session.Manager, coord *coordinator.Coordinator, reg *registry.Registry, st store.Store) *Server {
	s := &Server{
		sessions:    sessions,
		coordinator: coord,
		registry:    reg,
		store:       st,
		router:      http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	wrap := func(h http.HandlerFunc) http.Handler {
		return s.corsMiddleware(s.jsonMiddleware(h))
	}
	s.router.Handle("/api/sessions", wrap(s.handleSessions))
	s.router.Handle("/api/sessions/", wrap(s.handleSessionByID))
	s.router.Handle("/api/validate/", wrap(s.handleValidate))
	s.router.Handle("/api/submission/", wrap(s.handleSubmission))
	s.router.Handle("/api/cv/", wrap(s.handleCV))
	s.router.Handle("/health", wrap(s.handleHealth))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type createSessionRequest struct {
	SessionName  string `json:"sessionName"`
	StudentCount int    `json:"studentCount"`
}

type reassignTokenRequest struct {
	NewToken string `json:"newToken"`
}

type submitRequest struct {
	CVData json.RawMessage `json:"cvData"`
}

type validateResponse struct {
	Valid         bool   `json:"valid"`
	SessionID     string `json:"sessionId,omitempty"`
	StudentNumber int    `json:"studentNumber,omitempty"`
	Submitted     bool   `json:"submitted"`
	TokenName     string `json:"tokenName,omitempty"`
	Error         string `json:"error,omitempty"`
}

// POST /api/sessions, GET /api/sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		created, err := s.sessions.CreateSession(r.Context(), req.SessionName, req.StudentCount)
		if err != nil {
			if errors.Is(err, types.ErrInvalidSessionName) || errors.Is(err, types.ErrInvalidSlotCount) {
				s.sendError(w, err.Error(), http.StatusBadRequest)
			} else {
				log.Printf("api: create session failed: %v", err)
				s.sendError(w, "Failed to create session", http.StatusInternalServerError)
			}
			return
		}
		s.sendJSON(w, http.StatusOK, map[string]any{"success": true, "session": created})

	case http.MethodGet:
		s.sendJSON(w, http.StatusOK, s.sessions.ListSessions())

	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/sessions/{id}
// PUT /api/sessions/{id}/student/{oldToken}
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		found, err := s.sessions.GetSession(parts[0])
		if err != nil {
			s.sendError(w, "Session not found", http.StatusNotFound)
			return
		}
		s.sendJSON(w, http.StatusOK, found)

	case len(parts) == 3 && parts[1] == "student":
		if r.Method != http.MethodPut {
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.reassignToken(w, r, parts[0], parts[2])

	default:
		s.sendError(w, "Invalid session path", http.StatusBadRequest)
	}
}

func (s *Server) reassignToken(w http.ResponseWriter, r *http.Request, sessionID, oldToken string) {
	var req reassignTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewToken == "" {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	slot, err := s.sessions.ReassignToken(r.Context(), sessionID, oldToken, req.NewToken)
	switch {
	case errors.Is(err, types.ErrSessionNotFound):
		s.sendError(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, types.ErrTokenNotFound):
		s.sendError(w, "Student not found", http.StatusNotFound)
	case errors.Is(err, types.ErrTokenConflict):
		s.sendError(w, "Token already exists", http.StatusBadRequest)
	case err != nil:
		log.Printf("api: reassign token failed: %v", err)
		s.sendError(w, "Failed to update token", http.StatusInternalServerError)
	default:
		s.sendJSON(w, http.StatusOK, map[string]any{"success": true, "student": slot})
	}
}

// GET /api/validate/{token}
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := strings.TrimPrefix(r.URL.Path, "/api/validate/")

	sessionID, slot, err := s.sessions.Resolve(token)
	if err != nil {
		s.sendJSON(w, http.StatusNotFound, validateResponse{Valid: false, Error: "Invalid token"})
		return
	}
	s.sendJSON(w, http.StatusOK, validateResponse{
		Valid:         true,
		SessionID:     sessionID,
		StudentNumber: slot.StudentNumber,
		Submitted:     slot.Submitted,
		TokenName:     token,
	})
}

// GET /api/submission/{token} returns the latest autosaved or submitted data.
// POST /api/submission/{token} is the final submit.
func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Path, "/api/submission/")

	switch r.Method {
	case http.MethodGet:
		sub, err := s.sessions.GetSubmission(r.Context(), token)
		if errors.Is(err, types.ErrSubmissionNotFound) {
			s.sendJSON(w, http.StatusOK, map[string]any{"exists": false, "data": nil})
			return
		}
		if err != nil {
			log.Printf("api: get submission failed: %v", err)
			s.sendError(w, "Failed to read submission", http.StatusInternalServerError)
			return
		}
		s.sendJSON(w, http.StatusOK, map[string]any{"exists": true, "data": sub.CVData})

	case http.MethodPost:
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		viewLink, _, err := s.coordinator.Submit(r.Context(), token, req.CVData)
		if errors.Is(err, types.ErrTokenNotFound) {
			s.sendError(w, "Invalid token", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Printf("api: submit failed: %v", err)
			s.sendError(w, "Failed to store submission", http.StatusInternalServerError)
			return
		}
		s.sendJSON(w, http.StatusOK, map[string]any{"success": true, "cvViewLink": viewLink})

	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/cv/{token} returns the full submission record for the CV view.
func (s *Server) handleCV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := strings.TrimPrefix(r.URL.Path, "/api/cv/")

	sub, err := s.sessions.GetSubmission(r.Context(), token)
	if errors.Is(err, types.ErrSubmissionNotFound) {
		s.sendError(w, "CV not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("api: get cv failed: %v", err)
		s.sendError(w, "Failed to read submission", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, http.StatusOK, sub)
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	storageStatus := "healthy"
	code := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		status = "unhealthy"
		storageStatus = err.Error()
		code = http.StatusServiceUnavailable
	}

	s.sendJSON(w, code, map[string]any{
		"status":      status,
		"storage":     storageStatus,
		"timestamp":   time.Now().UTC(),
		"sessions":    s.sessions.Stats(),
		"connections": s.registry.Stats(),
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: response encoding failed: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, map[string]string{"error": message})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
