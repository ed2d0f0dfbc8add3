package tracker

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/facewatch/facewatch/internal/expression"
)

// MockTracker is a test implementation of the Tracker interface.
// It allows tests to control the tracking results.
type MockTracker struct {
	mu     sync.Mutex
	faces  []FaceAnchor
	err    error
	calls  int
	closed bool
}

// NewMockTracker creates a new MockTracker instance.
func NewMockTracker() *MockTracker {
	return &MockTracker{}
}

// SetFaces sets the anchors that will be returned by Track.
func (m *MockTracker) SetFaces(faces ...FaceAnchor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// SetError sets the error that will be returned by Track.
func (m *MockTracker) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Track returns the pre-configured anchors or error.
func (m *MockTracker) Track(frame *gocv.Mat) ([]FaceAnchor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]FaceAnchor, len(m.faces))
	copy(out, m.faces)
	return out, nil
}

// Calls returns how many times Track has been called.
func (m *MockTracker) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the mock closed.
func (m *MockTracker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockTracker) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// NeutralAnchor returns a relaxed face with no active expression.
func NeutralAnchor() FaceAnchor {
	return FaceAnchor{
		ID:    "face-0",
		Score: 0.97,
		BlendShapes: expression.Sample{
			expression.MouthSmileLeft:  0.05,
			expression.MouthSmileRight: 0.04,
			expression.CheekPuff:       0.01,
			expression.TongueOut:       0.0,
			expression.EyeBlinkLeft:    0.08,
			expression.EyeBlinkRight:   0.07,
			expression.JawOpen:         0.02,
		},
	}
}

// SmilingAnchor returns a broad, even smile.
func SmilingAnchor() FaceAnchor {
	return FaceAnchor{
		ID:    "face-0",
		Score: 0.96,
		BlendShapes: expression.Sample{
			expression.MouthSmileLeft:   0.72,
			expression.MouthSmileRight:  0.68,
			expression.CheekSquintLeft:  0.35,
			expression.CheekSquintRight: 0.33,
			expression.EyeBlinkLeft:     0.12,
			expression.EyeBlinkRight:    0.10,
		},
	}
}

// WinkAnchor returns a face closing only the eye reported as eyeBlinkLeft.
func WinkAnchor() FaceAnchor {
	return FaceAnchor{
		ID:    "face-0",
		Score: 0.95,
		BlendShapes: expression.Sample{
			expression.MouthSmileLeft:  0.20,
			expression.MouthSmileRight: 0.10,
			expression.EyeBlinkLeft:    0.91,
			expression.EyeBlinkRight:   0.15,
			expression.EyeSquintLeft:   0.40,
		},
	}
}
