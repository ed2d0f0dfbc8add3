package server

import (
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"github.com/facewatch/facewatch/internal/capture"
	"github.com/facewatch/facewatch/internal/session"
)

const (
	streamInterval = 66 * time.Millisecond // ~15 FPS
	streamBoundary = "frame"
	lineHeight     = 28
)

var overlayColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}

// StreamHandler serves the camera as MJPEG with the current expression
// report drawn over each frame.
type StreamHandler struct {
	camera     capture.Camera
	controller *session.Controller
}

// NewStreamHandler creates a StreamHandler. With a nil controller frames
// are served without an overlay.
func NewStreamHandler(camera capture.Camera, controller *session.Controller) *StreamHandler {
	return &StreamHandler{camera: camera, controller: controller}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(streamBoundary); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+streamBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		jpeg, ok := h.encodeFrame()
		if !ok {
			continue
		}

		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":   {"image/jpeg"},
			"Content-Length": {strconv.Itoa(len(jpeg))},
		})
		if err != nil {
			return
		}
		if _, err := part.Write(jpeg); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// encodeFrame reads one frame, overlays the report and returns it as JPEG.
// Camera gaps are skipped rather than ending the stream.
func (h *StreamHandler) encodeFrame() ([]byte, bool) {
	frame, err := h.camera.ReadFrame()
	if err != nil {
		return nil, false
	}
	defer frame.Close()

	if h.controller != nil {
		drawReport(frame, h.controller.Latest().Text)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, false
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), true
}

// drawReport writes one report line per row in the top-left corner.
func drawReport(frame *gocv.Mat, text string) {
	if text == "" || frame.Empty() {
		return
	}
	for i, line := range strings.Split(text, "\n") {
		gocv.PutText(frame, line, image.Pt(12, lineHeight*(i+1)), gocv.FontHersheySimplex, 0.8, overlayColor, 2)
	}
}
