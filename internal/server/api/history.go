package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/facewatch/facewatch/internal/store"
)

// Default page sizes.
const (
	defaultSessionLimit = 50
	defaultEventLimit   = 100
)

// HistoryHandler serves recorded sessions and expression events.
type HistoryHandler struct {
	store *store.Store
}

// NewHistoryHandler creates a new HistoryHandler with the given store.
func NewHistoryHandler(s *store.Store) *HistoryHandler {
	return &HistoryHandler{store: s}
}

// Register mounts the history routes.
func (h *HistoryHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/sessions", h.listSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}/events", h.listEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/events", h.recentEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", h.stats).Methods(http.MethodGet)
	r.HandleFunc("/api/stats/chart", h.statsChart).Methods(http.MethodGet)
}

type sessionResponse struct {
	ID        string  `json:"id"`
	Source    string  `json:"source"`
	StartedAt string  `json:"started_at"`
	EndedAt   *string `json:"ended_at"`
	EndReason string  `json:"end_reason,omitempty"`
	Active    bool    `json:"active"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type eventResponse struct {
	ID          int64           `json:"id"`
	SessionID   string          `json:"session_id"`
	Expression  string          `json:"expression"`
	FaceID      string          `json:"face_id,omitempty"`
	BlendShapes json.RawMessage `json:"blend_shapes"`
	OccurredAt  string          `json:"occurred_at"`
}

type listEventsResponse struct {
	Events []eventResponse `json:"events"`
}

type statsResponse struct {
	SessionID string         `json:"session_id,omitempty"`
	Counts    map[string]int `json:"counts"`
	Total     int            `json:"total"`
}

func toSessionResponse(s *store.Session) sessionResponse {
	resp := sessionResponse{
		ID:        s.ID,
		Source:    s.Source,
		StartedAt: formatTime(s.StartedAt),
		EndReason: s.EndReason,
		Active:    s.Active(),
	}
	if s.EndedAt != nil {
		ended := formatTime(*s.EndedAt)
		resp.EndedAt = &ended
	}
	return resp
}

func toEventResponses(events []*store.Event) listEventsResponse {
	resp := listEventsResponse{Events: make([]eventResponse, 0, len(events))}
	for _, e := range events {
		shapes := e.BlendShapes
		if len(shapes) == 0 {
			shapes = json.RawMessage("{}")
		}
		resp.Events = append(resp.Events, eventResponse{
			ID:          e.ID,
			SessionID:   e.SessionID,
			Expression:  e.Label,
			FaceID:      e.FaceID,
			BlendShapes: shapes,
			OccurredAt:  formatTime(e.OccurredAt),
		})
	}
	return resp
}

// listSessions handles GET /api/sessions?limit=N.
func (h *HistoryHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions().List(queryLimit(r, defaultSessionLimit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	response := listSessionsResponse{Sessions: make([]sessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		response.Sessions = append(response.Sessions, toSessionResponse(s))
	}

	writeJSON(w, http.StatusOK, response)
}

// listEvents handles GET /api/sessions/{id}/events.
func (h *HistoryHandler) listEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := h.store.Sessions().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	events, err := h.store.Events().ListBySession(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, toEventResponses(events))
}

// recentEvents handles GET /api/events?limit=N across all sessions.
func (h *HistoryHandler) recentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.Events().ListRecent(queryLimit(r, defaultEventLimit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, toEventResponses(events))
}

// stats handles GET /api/stats?session=ID, counting onsets per expression.
func (h *HistoryHandler) stats(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")

	counts, err := h.store.Events().CountByLabel(sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count events")
		return
	}

	response := statsResponse{SessionID: sessionID, Counts: make(map[string]int, len(counts))}
	for _, c := range counts {
		response.Counts[c.Label] = c.Count
		response.Total += c.Count
	}

	writeJSON(w, http.StatusOK, response)
}
