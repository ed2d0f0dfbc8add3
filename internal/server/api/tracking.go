package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/facewatch/facewatch/internal/expression"
	"github.com/facewatch/facewatch/internal/session"
)

// TrackingHandler exposes the classifier and the live tracking session.
type TrackingHandler struct {
	controller *session.Controller
}

// NewTrackingHandler creates a TrackingHandler. A nil controller serves only
// the stateless classify endpoint.
func NewTrackingHandler(c *session.Controller) *TrackingHandler {
	return &TrackingHandler{controller: c}
}

// Register mounts the tracking routes.
func (h *TrackingHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/classify", h.classify).Methods(http.MethodPost)
	if h.controller == nil {
		return
	}
	r.HandleFunc("/api/report", h.report).Methods(http.MethodGet)
	r.HandleFunc("/api/session", h.session).Methods(http.MethodGet)
	r.HandleFunc("/api/session/{event}", h.sessionEvent).Methods(http.MethodPost)
	r.HandleFunc("/api/mesh", h.getMesh).Methods(http.MethodGet)
	r.HandleFunc("/api/mesh", h.putMesh).Methods(http.MethodPut)
}

type classifyRequest struct {
	BlendShapes map[string]float64 `json:"blend_shapes"`
}

type classifyResponse struct {
	Labels []string `json:"labels"`
	Text   string   `json:"text"`
}

type sessionStateResponse struct {
	State     session.State `json:"state"`
	SessionID string        `json:"session_id,omitempty"`
}

type meshRequest struct {
	Visible *bool `json:"visible"`
}

type meshResponse struct {
	Visible bool    `json:"visible"`
	Opacity float64 `json:"opacity"`
}

// classify handles POST /api/classify. Unknown blend shape keys are ignored
// and missing ones read as zero.
func (h *TrackingHandler) classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	report := expression.Classify(expression.ParseSample(req.BlendShapes))
	writeJSON(w, http.StatusOK, classifyResponse{
		Labels: report.Strings(),
		Text:   report.Text(),
	})
}

// report handles GET /api/report and returns the latest update.
func (h *TrackingHandler) report(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Latest())
}

// session handles GET /api/session.
func (h *TrackingHandler) session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionStateResponse{
		State:     h.controller.State(),
		SessionID: h.controller.SessionID(),
	})
}

// sessionEvent handles POST /api/session/{event}.
func (h *TrackingHandler) sessionEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := session.ParseEvent(mux.Vars(r)["event"])
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown session event")
		return
	}

	if err := h.controller.Handle(ev); err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, session.ErrNotRunning):
			writeError(w, http.StatusServiceUnavailable, "Tracking is shut down")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.session(w, r)
}

// getMesh handles GET /api/mesh.
func (h *TrackingHandler) getMesh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toMeshResponse(h.controller.MeshVisible()))
}

// putMesh handles PUT /api/mesh with {"visible": bool}.
func (h *TrackingHandler) putMesh(w http.ResponseWriter, r *http.Request) {
	var req meshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Visible == nil {
		writeError(w, http.StatusBadRequest, "visible is required")
		return
	}

	if err := h.controller.SetMeshVisible(*req.Visible); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save mesh setting")
		return
	}

	writeJSON(w, http.StatusOK, toMeshResponse(*req.Visible))
}

func toMeshResponse(visible bool) meshResponse {
	resp := meshResponse{Visible: visible}
	if visible {
		resp.Opacity = 1.0
	}
	return resp
}
