// Package tracker supplies per-frame face anchors with blend shape coefficients.
package tracker

import (
	"errors"
	"sort"

	"gocv.io/x/gocv"

	"github.com/facewatch/facewatch/internal/expression"
)

// ErrUnsupported is returned when face tracking is not available on this host.
var ErrUnsupported = errors.New("face tracking is not supported on this device")

// FaceAnchor is one tracked face in one frame.
type FaceAnchor struct {
	ID          string            `json:"id"`
	BlendShapes expression.Sample `json:"blend_shapes"`
	Score       float64           `json:"score"`
}

// Tracker defines the interface for face tracking implementations.
type Tracker interface {
	// Track analyzes a video frame and returns the faces found in it.
	// Returns an empty slice if no face is detected.
	Track(frame *gocv.Mat) ([]FaceAnchor, error)

	// Close releases any resources held by the tracker.
	Close() error
}

// Config holds configuration options for face tracking.
type Config struct {
	// MaxFaces is the maximum number of faces to track (default: 1).
	MaxFaces int

	// MinConfidence is the minimum detection confidence (0.0-1.0).
	MinConfidence float64

	// ScriptPath overrides the location of the MediaPipe service script.
	ScriptPath string

	// Python overrides the interpreter used to run the script.
	Python string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxFaces:      1,
		MinConfidence: 0.5,
	}
}

// Primary returns the highest-scoring anchor at or above minConfidence.
// The second result is false when no anchor qualifies.
func Primary(anchors []FaceAnchor, minConfidence float64) (FaceAnchor, bool) {
	best := -1
	for i, a := range anchors {
		if a.Score < minConfidence {
			continue
		}
		if best < 0 || a.Score > anchors[best].Score {
			best = i
		}
	}
	if best < 0 {
		return FaceAnchor{}, false
	}
	return anchors[best], true
}

// ByScore sorts anchors by descending score.
func ByScore(anchors []FaceAnchor) {
	sort.SliceStable(anchors, func(i, j int) bool {
		return anchors[i].Score > anchors[j].Score
	})
}
