package session

import (
	"errors"
	"time"

	"github.com/facewatch/facewatch/internal/tracker"
)

// startLoopLocked launches the frame loop when a camera and tracker are
// configured. Ingest-only controllers have no loop.
func (c *Controller) startLoopLocked() {
	if !c.hasFrameSource() || c.stopCh != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.stopCh = stop
	c.loopDone = done
	go c.runLoop(stop, done)
}

// stopLoopLocked signals the loop to exit. It does not wait: the loop may be
// blocked on mu inside Process.
func (c *Controller) stopLoopLocked() {
	if c.stopCh == nil {
		return
	}
	close(c.stopCh)
	c.stopCh = nil
}

// runLoop reads, tracks and classifies one frame per tick:
//  1. Read a frame from the camera
//  2. Track faces in it
//  3. Pick the primary face above the confidence floor
//  4. Classify and publish through Process
//
// Frames that fail to read or track are skipped. ErrUnsupported from the
// tracker fails the session.
func (c *Controller) runLoop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Second / time.Duration(c.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		frame, err := c.cfg.Camera.ReadFrame()
		if err != nil {
			c.log.WithError(err).Debug("read frame")
			continue
		}

		anchors, err := c.cfg.Tracker.Track(frame)
		frame.Close()
		if err != nil {
			if errors.Is(err, tracker.ErrUnsupported) {
				c.fail(stop, err)
				return
			}
			c.log.WithError(err).Warn("track frame")
			continue
		}

		var primary *tracker.FaceAnchor
		if face, ok := tracker.Primary(anchors, c.cfg.MinConfidence); ok {
			primary = &face
		}

		// A stop may race the tick; frames from a stopped loop are discarded.
		if _, err := c.process(stop, primary); err != nil && !errors.Is(err, ErrNotRunning) {
			c.log.WithError(err).Warn("process frame")
		}
	}
}
