// Package session owns the tracking lifecycle: it receives lifecycle events,
// drives the per-frame classification loop and fans results out to presenters.
package session

import (
	"errors"
	"fmt"
)

// State is the controller's lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Paused
	Interrupted
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Interrupted:
		return "interrupted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st := Idle; st <= Failed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Event is a lifecycle event delivered by the tracking source or a user.
type Event string

const (
	Start     Event = "start"
	Pause     Event = "pause"
	Interrupt Event = "interrupt"
	Resume    Event = "resume"
)

// ParseEvent maps a name to an Event.
func ParseEvent(name string) (Event, error) {
	switch e := Event(name); e {
	case Start, Pause, Interrupt, Resume:
		return e, nil
	}
	return "", fmt.Errorf("unknown session event %q", name)
}

var (
	// ErrInvalidTransition is returned when an event does not apply to the current state.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrNotRunning is returned when a frame arrives while tracking is not running.
	ErrNotRunning = errors.New("session is not running")
)

// transitions lists the legal state changes.
var transitions = map[State]map[Event]State{
	Idle:        {Start: Running},
	Running:     {Pause: Paused, Interrupt: Interrupted},
	Paused:      {Start: Running},
	Interrupted: {Resume: Running, Pause: Paused},
	Failed:      {Start: Running},
}

// next returns the state reached from s on e.
func next(s State, e Event) (State, error) {
	to, ok := transitions[s][e]
	if !ok {
		return s, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, e, s)
	}
	return to, nil
}
