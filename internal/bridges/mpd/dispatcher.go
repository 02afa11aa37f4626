package mpd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// DefaultVolumeStep is the change applied by VOLUME_INCREASE and VOLUME_DECREASE.
const DefaultVolumeStep = 5

// Volume bounds.
const (
	minVolume = 0
	maxVolume = 100
)

// Dispatcher executes actions against player sessions.
type Dispatcher struct {
	loggable

	registry   *Registry
	supervisor *Supervisor
	volumeStep int
}

// NewDispatcher creates a dispatcher. A volumeStep below 1 uses DefaultVolumeStep.
func NewDispatcher(registry *Registry, supervisor *Supervisor, volumeStep int) *Dispatcher {
	if volumeStep < 1 {
		volumeStep = DefaultVolumeStep
	}
	return &Dispatcher{
		registry:   registry,
		supervisor: supervisor,
		volumeStep: volumeStep,
	}
}

// Dispatch runs action on the player's daemon. param is interpreted per
// action: a volume for VOLUME, a title for PLAYSONG, a song id for
// PLAYSONGID and a 1-based output index for ENABLE and DISABLE.
//
// A player without a session gets one reconnect attempt first.
func (d *Dispatcher) Dispatch(ctx context.Context, playerID string, action Action, param string) error {
	if !action.Known() {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	if !action.Inbound() {
		d.logWarn("action cannot be sent to a player", "player_id", playerID, "action", action)
		return fmt.Errorf("%w: %s", ErrUnsupportedAction, action)
	}

	session, err := d.session(ctx, playerID)
	if err != nil {
		return err
	}

	if err := d.execute(ctx, session, playerID, action, param); err != nil {
		d.logError("player command failed", err, "player_id", playerID, "action", action)
		return err
	}

	d.logDebug("player command executed", "player_id", playerID, "action", action, "param", param)
	return nil
}

// session returns the player's session, connecting once if needed.
func (d *Dispatcher) session(ctx context.Context, playerID string) (Session, error) {
	if s, ok := d.registry.Session(playerID); ok {
		return s, nil
	}
	if _, ok := d.registry.Get(playerID); !ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrPlayerUnavailable, ErrUnknownPlayer, playerID)
	}

	d.logInfo("player not connected, reconnecting", "player_id", playerID)
	if err := d.supervisor.Connect(ctx, playerID); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPlayerUnavailable, playerID, err)
	}

	s, ok := d.registry.Session(playerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlayerUnavailable, playerID)
	}
	return s, nil
}

func (d *Dispatcher) execute(ctx context.Context, s Session, playerID string, action Action, param string) error {
	switch action {
	case ActionPause:
		return commandErr(playerID, action, s.Pause(ctx))
	case ActionPlay:
		return commandErr(playerID, action, s.Play(ctx))
	case ActionStop:
		return commandErr(playerID, action, s.Stop(ctx))
	case ActionNext:
		return commandErr(playerID, action, s.Next(ctx))
	case ActionPrev:
		return commandErr(playerID, action, s.Previous(ctx))

	case ActionVolumeIncrease:
		return d.stepVolume(ctx, s, playerID, action, d.volumeStep)
	case ActionVolumeDecrease:
		return d.stepVolume(ctx, s, playerID, action, -d.volumeStep)

	case ActionVolume:
		volume, err := parseIntParam(action, param)
		if err != nil {
			return err
		}
		if volume < minVolume || volume > maxVolume {
			return fmt.Errorf("%w: %s %d outside %d..%d", ErrInvalidParameter, action, volume, minVolume, maxVolume)
		}
		return commandErr(playerID, action, s.SetVolume(ctx, volume))

	case ActionPlaySong:
		return d.playSong(ctx, s, playerID, param)

	case ActionPlaySongID:
		id, err := parseIntParam(action, param)
		if err != nil {
			return err
		}
		return commandErr(playerID, action, s.PlayID(ctx, id))

	case ActionEnable, ActionDisable:
		index, err := parseIntParam(action, param)
		if err != nil {
			return err
		}
		if index < 1 {
			return fmt.Errorf("%w: %s output %d (outputs are numbered from 1)", ErrInvalidParameter, action, index)
		}
		if action == ActionEnable {
			return commandErr(playerID, action, s.EnableOutput(ctx, index-1))
		}
		return commandErr(playerID, action, s.DisableOutput(ctx, index-1))

	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
}

func (d *Dispatcher) stepVolume(ctx context.Context, s Session, playerID string, action Action, delta int) error {
	current, err := s.Volume(ctx)
	if err != nil {
		return commandErr(playerID, action, err)
	}
	return commandErr(playerID, action, s.SetVolume(ctx, clampVolume(current+delta)))
}

// playSong replaces the queue with the first song matching title and
// starts playback. No match leaves the queue untouched.
func (d *Dispatcher) playSong(ctx context.Context, s Session, playerID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: %s requires a title", ErrInvalidParameter, ActionPlaySong)
	}

	songs, err := s.SearchTitle(ctx, title)
	if err != nil {
		return commandErr(playerID, ActionPlaySong, err)
	}
	if len(songs) == 0 {
		d.logInfo("no song matches title", "player_id", playerID, "title", title)
		return nil
	}

	if err := s.ClearQueue(ctx); err != nil {
		return commandErr(playerID, ActionPlaySong, err)
	}
	if err := s.Enqueue(ctx, songs[0]); err != nil {
		return commandErr(playerID, ActionPlaySong, err)
	}
	return commandErr(playerID, ActionPlaySong, s.Play(ctx))
}

func parseIntParam(action Action, param string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(param))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidParameter, action, param)
	}
	return n, nil
}

func commandErr(playerID string, action Action, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, playerID, action, err)
}

func clampVolume(v int) int {
	return max(minVolume, min(maxVolume, v))
}
