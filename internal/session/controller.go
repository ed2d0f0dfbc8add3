package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/facewatch/facewatch/internal/capture"
	"github.com/facewatch/facewatch/internal/expression"
	"github.com/facewatch/facewatch/internal/logging"
	"github.com/facewatch/facewatch/internal/store"
	"github.com/facewatch/facewatch/internal/tracker"
)

// Defaults.
const (
	DefaultFPS = 30
	// subscriberBuffer is how many updates a slow subscriber may lag before
	// updates are dropped for it.
	subscriberBuffer = 16
)

// Dispatcher starts the actions bound to an expression onset.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID string, label expression.Label, sample expression.Sample) int
}

// Config holds the controller's collaborators.
type Config struct {
	// Store persists sessions, onsets and the mesh setting. Optional.
	Store *store.Store
	// Camera and Tracker drive the frame loop. When either is nil the
	// controller only processes frames handed to Process (ingest mode).
	Camera  capture.Camera
	Tracker tracker.Tracker
	// Actions runs bound plugins on onsets. Optional.
	Actions Dispatcher

	Source        string
	FPS           int
	MinConfidence float64
	Logger        *logrus.Logger
}

// Update is one classification result as seen by presenters.
type Update struct {
	SessionID    string            `json:"session_id,omitempty"`
	State        State             `json:"state"`
	Labels       []string          `json:"labels"`
	Text         string            `json:"text"`
	FaceDetected bool              `json:"face_detected"`
	FaceID       string            `json:"face_id,omitempty"`
	MeshVisible  bool              `json:"mesh_visible"`
	MeshOpacity  float64           `json:"mesh_opacity"`
	Timestamp    int64             `json:"timestamp"`
	Report       expression.Report `json:"-"`
}

// Controller is the state-owning tracking controller.
type Controller struct {
	cfg Config
	log *logrus.Entry

	// ctx scopes dispatched actions; canceled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	sessionID   string
	latest      Update
	meshVisible bool
	subs        map[int]chan Update
	nextSub     int
	stopCh      chan struct{}
	loopDone    chan struct{}
	closed      bool
}

// New creates a controller in the Idle state. The mesh visibility is restored
// from the store and defaults to visible.
func New(cfg Config) (*Controller, error) {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Source == "" {
		cfg.Source = "camera"
	}

	meshVisible := true
	if cfg.Store != nil {
		v, err := cfg.Store.Settings().GetBool(store.SettingMeshVisible, true)
		if err != nil {
			return nil, fmt.Errorf("load mesh setting: %w", err)
		}
		meshVisible = v
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:         cfg,
		log:         cfg.Logger.WithField("component", "session"),
		ctx:         ctx,
		cancel:      cancel,
		state:       Idle,
		meshVisible: meshVisible,
		subs:        make(map[int]chan Update),
	}
	c.latest = c.emptyUpdateLocked()
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the ID of the current persisted session, or "".
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Latest returns the most recent update.
func (c *Controller) Latest() Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// MeshVisible reports the face mesh switch.
func (c *Controller) MeshVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meshVisible
}

// MinConfidence is the score a face needs to be classified.
func (c *Controller) MinConfidence() float64 {
	return c.cfg.MinConfidence
}

// Handle applies a lifecycle event.
func (c *Controller) Handle(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrNotRunning
	}

	to, err := next(c.state, ev)
	if err != nil {
		return err
	}
	from := c.state
	entry := c.log.WithFields(logrus.Fields{"event": ev, "from": from, "to": to})

	switch ev {
	case Start:
		if err := c.openCameraLocked(); err != nil {
			c.failLocked(err)
			return fmt.Errorf("start tracking: %w", err)
		}
		if err := c.beginSessionLocked(); err != nil {
			c.closeCameraLocked()
			return err
		}
		c.state = to
		c.startLoopLocked()

	case Pause:
		c.stopLoopLocked()
		c.closeCameraLocked()
		c.endSessionLocked("paused")
		c.state = to

	case Interrupt:
		c.stopLoopLocked()
		c.state = to

	case Resume:
		// Tracking restarts from scratch after an interruption.
		c.state = to
		c.latest = c.emptyUpdateLocked()
		c.startLoopLocked()
	}

	entry.WithField("session_id", c.sessionID).Info("session transition")
	c.latest.State = c.state
	c.publishLocked(c.latest)
	return nil
}

// Fail moves the controller to Failed, ending the current session with err
// as the reason.
func (c *Controller) Fail(err error) {
	c.fail(nil, err)
}

// fail is Fail on behalf of the loop owning stop. A nil stop is an external
// caller; a loop that has since been stopped is ignored.
func (c *Controller) fail(stop chan struct{}, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state == Failed || (stop != nil && c.stopCh != stop) {
		return
	}
	c.failLocked(err)
	c.latest.State = c.state
	c.publishLocked(c.latest)
}

func (c *Controller) failLocked(err error) {
	c.log.WithError(err).WithField("session_id", c.sessionID).Error("tracking failed")
	c.stopLoopLocked()
	c.closeCameraLocked()
	c.endSessionLocked(err.Error())
	c.state = Failed
}

// Process classifies one tracked face and publishes the result. A nil
// anchor means no face was found in the frame. It returns ErrNotRunning
// unless the controller is Running.
func (c *Controller) Process(anchor *tracker.FaceAnchor) (Update, error) {
	return c.process(nil, anchor)
}

// process is Process on behalf of the loop owning stop. Frames from a loop
// that has been stopped are discarded even if tracking was restarted since.
func (c *Controller) process(stop chan struct{}, anchor *tracker.FaceAnchor) (Update, error) {
	c.mu.Lock()

	if c.state != Running || (stop != nil && c.stopCh != stop) {
		c.mu.Unlock()
		return Update{}, ErrNotRunning
	}

	var sample expression.Sample
	update := c.emptyUpdateLocked()
	if anchor != nil {
		sample = anchor.BlendShapes
		update.FaceDetected = true
		update.FaceID = anchor.ID
	}
	update.Report = expression.Classify(sample)
	update.Labels = update.Report.Strings()
	update.Text = update.Report.Text()

	onsets := expression.Onsets(c.latest.Report, update.Report)
	c.latest = update
	sessionID := c.sessionID
	c.publishLocked(update)
	c.mu.Unlock()

	if len(onsets) > 0 {
		c.recordOnsets(sessionID, update, onsets, sample)
	}

	return update, nil
}

func (c *Controller) recordOnsets(sessionID string, update Update, onsets []expression.Label, sample expression.Sample) {
	entry := c.log.WithField("session_id", sessionID)

	if c.cfg.Store != nil && sessionID != "" {
		shapes, err := json.Marshal(sample.Wire())
		if err != nil {
			entry.WithError(err).Warn("encode blend shapes")
			shapes = nil
		}

		at := time.UnixMilli(update.Timestamp)
		events := make([]*store.Event, len(onsets))
		for i, l := range onsets {
			events[i] = &store.Event{
				SessionID:   sessionID,
				Label:       string(l),
				FaceID:      update.FaceID,
				BlendShapes: shapes,
				OccurredAt:  at,
			}
		}
		if err := c.cfg.Store.Events().Create(events...); err != nil {
			entry.WithError(err).Error("record expression events")
		}
	}

	for _, l := range onsets {
		entry.WithField("expression", l).Debug("expression onset")
		if c.cfg.Actions != nil {
			c.cfg.Actions.Dispatch(c.ctx, sessionID, l, sample)
		}
	}
}

// SetMeshVisible flips the face mesh switch, persists it and publishes the
// change.
func (c *Controller) SetMeshVisible(visible bool) error {
	if c.cfg.Store != nil {
		if err := c.cfg.Store.Settings().SetBool(store.SettingMeshVisible, visible); err != nil {
			return fmt.Errorf("save mesh setting: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.meshVisible = visible
	c.latest.MeshVisible = visible
	c.latest.MeshOpacity = meshOpacity(visible)
	c.latest.Timestamp = time.Now().UnixMilli()
	c.publishLocked(c.latest)

	c.log.WithField("visible", visible).Info("face mesh toggled")
	return nil
}

// meshOpacity maps the switch to the mesh material's opacity.
func meshOpacity(visible bool) float64 {
	if visible {
		return 1.0
	}
	return 0.0
}

// Subscribe registers a presenter. The returned function unsubscribes and
// closes the channel. Updates are dropped for subscribers that fall behind.
func (c *Controller) Subscribe() (<-chan Update, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Update, subscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

func (c *Controller) publishLocked(u Update) {
	for _, ch := range c.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Close stops tracking, ends the session and releases the camera and tracker.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	c.stopLoopLocked()
	done := c.loopDone
	c.closeCameraLocked()
	c.endSessionLocked("shutdown")
	c.state = Idle

	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	c.cancel()

	if c.cfg.Tracker != nil {
		if err := c.cfg.Tracker.Close(); err != nil {
			return fmt.Errorf("close tracker: %w", err)
		}
	}
	return nil
}

func (c *Controller) emptyUpdateLocked() Update {
	return Update{
		SessionID:   c.sessionID,
		State:       c.state,
		Labels:      []string{},
		Report:      expression.Report{},
		MeshVisible: c.meshVisible,
		MeshOpacity: meshOpacity(c.meshVisible),
		Timestamp:   time.Now().UnixMilli(),
	}
}

func (c *Controller) beginSessionLocked() error {
	id := uuid.New().String()
	if c.cfg.Store != nil {
		err := c.cfg.Store.Sessions().Create(&store.Session{ID: id, Source: c.cfg.Source})
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
	}
	c.sessionID = id
	c.latest = c.emptyUpdateLocked()
	return nil
}

func (c *Controller) endSessionLocked(reason string) {
	if c.sessionID == "" {
		return
	}
	if c.cfg.Store != nil {
		err := c.cfg.Store.Sessions().End(c.sessionID, reason, time.Now())
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			c.log.WithError(err).WithField("session_id", c.sessionID).Error("end session")
		}
	}
	c.sessionID = ""
	c.latest = c.emptyUpdateLocked()
}

func (c *Controller) hasFrameSource() bool {
	return c.cfg.Camera != nil && c.cfg.Tracker != nil
}

func (c *Controller) openCameraLocked() error {
	if !c.hasFrameSource() {
		return nil
	}
	if err := c.cfg.Camera.Open(); err != nil {
		return err
	}
	c.cfg.Camera.SetFPS(c.cfg.FPS)
	return nil
}

func (c *Controller) closeCameraLocked() {
	if !c.hasFrameSource() {
		return
	}
	if err := c.cfg.Camera.Close(); err != nil {
		c.log.WithError(err).Warn("close camera")
	}
}
