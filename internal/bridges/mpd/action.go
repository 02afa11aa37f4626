package mpd

import (
	"fmt"
	"strings"
)

// Action is an abstract player operation named by a binding.
type Action string

// Supported actions.
const (
	ActionPause          Action = "PAUSE"
	ActionPlay           Action = "PLAY"
	ActionStop           Action = "STOP"
	ActionVolumeIncrease Action = "VOLUME_INCREASE"
	ActionVolumeDecrease Action = "VOLUME_DECREASE"
	ActionVolume         Action = "VOLUME"
	ActionNext           Action = "NEXT"
	ActionPrev           Action = "PREV"
	ActionPlaySong       Action = "PLAYSONG"
	ActionPlaySongID     Action = "PLAYSONGID"
	ActionEnable         Action = "ENABLE"
	ActionDisable        Action = "DISABLE"
	ActionTrackArtist    Action = "TRACKARTIST"
	ActionTrackInfo      Action = "TRACKINFO"
)

var knownActions = map[Action]bool{
	ActionPause:          true,
	ActionPlay:           true,
	ActionStop:           true,
	ActionVolumeIncrease: true,
	ActionVolumeDecrease: true,
	ActionVolume:         true,
	ActionNext:           true,
	ActionPrev:           true,
	ActionPlaySong:       true,
	ActionPlaySongID:     true,
	ActionEnable:         true,
	ActionDisable:        true,
	ActionTrackArtist:    true,
	ActionTrackInfo:      true,
}

// ParseAction parses an action name, ignoring case and surrounding space.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if !knownActions[a] {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

// Known reports whether a is one of the supported actions, exactly as named.
func (a Action) Known() bool {
	return knownActions[a]
}

// Inbound reports whether the action can be sent to a daemon as a command.
// TRACKARTIST and TRACKINFO only carry state from the daemon.
func (a Action) Inbound() bool {
	return knownActions[a] && a != ActionTrackArtist && a != ActionTrackInfo
}

func (a Action) String() string {
	return string(a)
}
