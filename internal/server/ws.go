package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/facewatch/facewatch/internal/expression"
	"github.com/facewatch/facewatch/internal/session"
	"github.com/facewatch/facewatch/internal/tracker"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// ExpressionsHandler pushes every controller update to WebSocket clients.
type ExpressionsHandler struct {
	controller *session.Controller
	log        *logrus.Entry
}

// NewExpressionsHandler creates a new ExpressionsHandler for the controller.
func NewExpressionsHandler(c *session.Controller, logger *logrus.Logger) *ExpressionsHandler {
	return &ExpressionsHandler{
		controller: c,
		log:        logger.WithField("component", "ws.expressions"),
	}
}

// ServeHTTP upgrades the connection, sends the latest update and then
// streams updates until the client goes away.
func (h *ExpressionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade")
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.controller.Subscribe()
	defer unsubscribe()

	// Reads only detect the close; clients never send anything useful.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeUpdate(conn, h.controller.Latest()); err != nil {
		return
	}

	for {
		select {
		case <-gone:
			return
		case u, ok := <-updates:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if err := writeUpdate(conn, u); err != nil {
				h.log.WithError(err).Debug("write update")
				return
			}
		}
	}
}

func writeUpdate(conn *websocket.Conn, u session.Update) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(u)
}

// ingestMessage is one frame from an external face tracker. An empty
// message (no blend shapes) reports that no face is visible. Event, when
// set, is a lifecycle event and carries no frame.
type ingestMessage struct {
	Event       string             `json:"event,omitempty"`
	ID          string             `json:"id"`
	BlendShapes map[string]float64 `json:"blend_shapes"`

	// Score is the tracker's confidence. Trackers that do not report one
	// omit it and are trusted.
	Score *float64 `json:"score,omitempty"`
}

type ingestError struct {
	Error string `json:"error"`
}

// IngestHandler accepts face anchors from an external AR tracker and feeds
// them through the controller. Each frame is answered with the resulting
// update, or an error object.
type IngestHandler struct {
	controller *session.Controller
	log        *logrus.Entry
}

// NewIngestHandler creates a new IngestHandler for the controller.
func NewIngestHandler(c *session.Controller, logger *logrus.Logger) *IngestHandler {
	return &IngestHandler{
		controller: c,
		log:        logger.WithField("component", "ws.ingest"),
	}
}

// ServeHTTP upgrades the connection and processes frames until it closes.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade")
		return
	}
	defer conn.Close()

	h.log.WithField("remote", r.RemoteAddr).Info("ingest client connected")
	defer h.log.WithField("remote", r.RemoteAddr).Info("ingest client disconnected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		reply := h.handle(data)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func (h *IngestHandler) handle(data []byte) any {
	var msg ingestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ingestError{Error: "invalid frame: " + err.Error()}
	}

	if msg.Event != "" {
		ev, err := session.ParseEvent(msg.Event)
		if err != nil {
			return ingestError{Error: err.Error()}
		}
		if err := h.controller.Handle(ev); err != nil {
			return ingestError{Error: err.Error()}
		}
		return h.controller.Latest()
	}

	// Faces under the confidence floor count as no face, as in the camera loop.
	var anchor *tracker.FaceAnchor
	if len(msg.BlendShapes) > 0 {
		face := tracker.FaceAnchor{
			ID:          msg.ID,
			BlendShapes: expression.ParseSample(msg.BlendShapes),
			Score:       1,
		}
		if msg.Score != nil {
			face.Score = *msg.Score
		}
		if primary, ok := tracker.Primary([]tracker.FaceAnchor{face}, h.controller.MinConfidence()); ok {
			anchor = &primary
		}
	}

	u, err := h.controller.Process(anchor)
	if err != nil {
		if errors.Is(err, session.ErrNotRunning) {
			return ingestError{Error: "tracking is " + h.controller.State().String()}
		}
		return ingestError{Error: err.Error()}
	}
	return u
}
