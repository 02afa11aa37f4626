package mpd

import "time"

// EventKind tags the payload carried by an Event.
type EventKind int

// Event kinds delivered on a session's notification stream.
const (
	EventVolume EventKind = iota
	EventPlayState
	EventTrackPosition
	EventOutput
)

func (k EventKind) String() string {
	switch k {
	case EventVolume:
		return "volume"
	case EventPlayState:
		return "play_state"
	case EventTrackPosition:
		return "track_position"
	case EventOutput:
		return "output"
	default:
		return "unknown"
	}
}

// PlayStatus is a daemon play-state transition.
type PlayStatus int

// Play-state transitions.
const (
	StatusStarted PlayStatus = iota
	StatusStopped
	StatusPaused
	StatusUnpaused
)

// Playing reports whether the transition leaves the player playing.
func (s PlayStatus) Playing() bool {
	return s == StatusStarted || s == StatusUnpaused
}

func (s PlayStatus) String() string {
	switch s {
	case StatusStarted:
		return "started"
	case StatusStopped:
		return "stopped"
	case StatusPaused:
		return "paused"
	case StatusUnpaused:
		return "unpaused"
	default:
		return "unknown"
	}
}

// Event is a daemon notification. Only the field matching Kind is set.
type Event struct {
	PlayerID string
	Kind     EventKind

	// Volume is the raw mixer volume for EventVolume. It may lie outside
	// 0..100 when the daemon has no mixer.
	Volume int

	// Status is the transition for EventPlayState.
	Status PlayStatus

	// Elapsed is the playback position for EventTrackPosition.
	Elapsed time.Duration
}
