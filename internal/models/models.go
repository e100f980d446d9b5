// package models defines the data model for the relay service
package models

import (
	"fmt"
	"time"
)

// Model defines the base interface for persistent models.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	Validate() error      // Validate checks the model's data
}

// Playback-control actions recorded in history.
const (
	ActionPlay  = "play"
	ActionPause = "pause"
)

// PlayEvent records one playback-control command issued through the relay.
type PlayEvent struct {
	id        string
	action    string
	trackURI  string
	createdAt time.Time
}

// NewPlayEvent creates a PlayEvent for the given action. trackURI is empty
// for pause events.
func NewPlayEvent(action, trackURI string) *PlayEvent {
	return &PlayEvent{
		action:    action,
		trackURI:  trackURI,
		createdAt: time.Now().UTC(),
	}
}

// RestorePlayEvent rebuilds a PlayEvent from persisted columns.
func RestorePlayEvent(id, action, trackURI string, createdAt time.Time) *PlayEvent {
	return &PlayEvent{id: id, action: action, trackURI: trackURI, createdAt: createdAt}
}

func (e *PlayEvent) ID() string           { return e.id }
func (e *PlayEvent) Action() string       { return e.action }
func (e *PlayEvent) TrackURI() string     { return e.trackURI }
func (e *PlayEvent) CreatedAt() time.Time { return e.createdAt }

// SetID assigns the generated identifier before the first insert.
func (e *PlayEvent) SetID(id string) { e.id = id }

// Validate checks that the event has a known action and, for play events, a
// target track.
func (e *PlayEvent) Validate() error {
	switch e.action {
	case ActionPause:
		return nil
	case ActionPlay:
		if e.trackURI == "" {
			return fmt.Errorf("play event requires a track uri")
		}
		return nil
	default:
		return fmt.Errorf("unknown action %q", e.action)
	}
}
