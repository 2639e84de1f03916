package fulfillment

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a session is asked to move to a
// state that does not follow its current one.
var ErrInvalidTransition = errors.New("invalid fulfillment state transition")

// State is a fulfillment lifecycle state.
type State int

const (
	Idle State = iota
	Started
	AssetsPrepared
	Uploaded
	SyncRequestsSent
	AllTasksAwaited
	Finished
	Discarded
)

var stateNames = map[State]string{
	Idle:             "Idle",
	Started:          "Started",
	AssetsPrepared:   "AssetsPrepared",
	Uploaded:         "Uploaded",
	SyncRequestsSent: "SyncRequestsSent",
	AllTasksAwaited:  "AllTasksAwaited",
	Finished:         "Finished",
	Discarded:        "Discarded",
}

// String returns the state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == Finished || s == Discarded
}

// canTransition reports whether from may move to to. Forward moves go one
// step at a time; Discarded is reachable from any non-terminal state after
// Started.
func canTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == Discarded {
		return from >= Started
	}
	return to == from+1
}

// Transition records one state change.
type Transition struct {
	From State     `json:"from" yaml:"from"`
	To   State     `json:"to" yaml:"to"`
	At   time.Time `json:"at" yaml:"at"`
}
