package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// MockCamera replays a fixed set of frames. ReadFrame hands out clones, so
// the originals stay owned by the test.
type MockCamera struct {
	mu     sync.Mutex
	frames []*gocv.Mat
	loop   bool
	fps    int
	open   bool
	next   int
	served int
}

// NewMockCamera returns a closed mock. With loop set, playback wraps around
// instead of running dry.
func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{frames: frames, loop: loop, fps: DefaultFPS}
}

// Open starts playback from the first frame.
func (m *MockCamera) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open, m.next = true, 0
	return nil
}

func (m *MockCamera) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}

func (m *MockCamera) ReadFrame() (*gocv.Mat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case !m.open:
		return nil, ErrCameraNotOpen
	case len(m.frames) == 0:
		return nil, fmt.Errorf("mock camera is empty: %w", ErrNoFrame)
	case m.next == len(m.frames) && !m.loop:
		return nil, fmt.Errorf("mock camera played %d frames: %w", m.served, ErrNoFrame)
	}

	frame := m.frames[m.next%len(m.frames)].Clone()
	m.next = m.next%len(m.frames) + 1
	m.served++
	return &frame, nil
}

func (m *MockCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	m.mu.Lock()
	m.fps = fps
	m.mu.Unlock()
}

func (m *MockCamera) FPS() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps
}

func (m *MockCamera) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Reads returns how many frames have been served since creation.
func (m *MockCamera) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.served
}

// Reset rewinds playback to the first frame.
func (m *MockCamera) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = 0
}
