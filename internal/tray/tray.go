// Package tray provides a system tray interface for the FaceWatch expression tracker.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
	"github.com/sirupsen/logrus"

	"github.com/facewatch/facewatch/internal/logging"
	"github.com/facewatch/facewatch/internal/session"
)

// Controller is the part of the tracking session the tray drives.
type Controller interface {
	State() session.State
	Handle(ev session.Event) error
	MeshVisible() bool
	SetMeshVisible(visible bool) error
	Subscribe() (<-chan session.Update, func())
}

// Tray represents the system tray application.
type Tray struct {
	controller  Controller
	log         *logrus.Entry
	onDashboard func()
	onQuit      func()
	mu          sync.RWMutex

	// Menu items stored for later updates
	menuTracking *systray.MenuItem
	menuMesh     *systray.MenuItem
	menuLast     *systray.MenuItem
}

// New creates a new Tray driving the given controller.
func New(c Controller, logger *logrus.Logger) *Tray {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Tray{
		controller: c,
		log:        logger.WithField("component", "tray"),
	}
}

// OnDashboard sets the callback for the Open Dashboard menu item.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops the tray event loop.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("FaceWatch")
	systray.SetTooltip("FaceWatch Expression Tracking")

	t.mu.Lock()
	t.menuTracking = systray.AddMenuItem(trackingTitle(t.controller.State()), "Start or pause tracking")
	t.menuMesh = systray.AddMenuItemCheckbox("Face Mesh", "Show the face mesh overlay", t.controller.MeshVisible())
	systray.AddSeparator()

	t.menuLast = systray.AddMenuItem(lastTitle(nil), "Current expressions")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit FaceWatch")

	updates, unsubscribe := t.controller.Subscribe()
	go func() {
		for u := range updates {
			t.apply(u)
		}
	}()

	go func() {
		defer unsubscribe()
		for {
			select {
			case <-t.menuTracking.ClickedCh:
				t.handleTracking()
			case <-t.menuMesh.ClickedCh:
				t.handleMesh()
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// handleTracking starts, pauses or resumes tracking depending on the state.
func (t *Tray) handleTracking() {
	ev := toggleEvent(t.controller.State())
	if err := t.controller.Handle(ev); err != nil {
		t.log.WithError(err).WithField("event", ev).Warn("tracking toggle")
	}
}

// handleMesh flips the face mesh switch.
func (t *Tray) handleMesh() {
	visible := !t.controller.MeshVisible()
	if err := t.controller.SetMeshVisible(visible); err != nil {
		t.log.WithError(err).Warn("face mesh toggle")
	}
}

// handleDashboard handles the Open Dashboard menu item click.
func (t *Tray) handleDashboard() {
	t.mu.RLock()
	callback := t.onDashboard
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// apply reflects a controller update in the menu.
func (t *Tray) apply(u session.Update) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuTracking != nil {
		t.menuTracking.SetTitle(trackingTitle(u.State))
	}
	if t.menuMesh != nil {
		if u.MeshVisible {
			t.menuMesh.Check()
		} else {
			t.menuMesh.Uncheck()
		}
	}
	if t.menuLast != nil {
		t.menuLast.SetTitle(lastTitle(u.Labels))
	}
}

// toggleEvent is the event a click on the tracking item sends.
func toggleEvent(s session.State) session.Event {
	switch s {
	case session.Running:
		return session.Pause
	case session.Interrupted:
		return session.Resume
	default:
		return session.Start
	}
}

func trackingTitle(s session.State) string {
	switch s {
	case session.Running:
		return "● Tracking"
	case session.Interrupted:
		return "◐ Interrupted"
	case session.Failed:
		return "✕ Tracking failed"
	default:
		return "○ Paused"
	}
}

func lastTitle(labels []string) string {
	if len(labels) == 0 {
		return "Last: none"
	}
	return "Last: " + labels[0]
}
