package mpd

import (
	"errors"
	"fmt"
)

// Domain errors for the MPD bridge package.
var (
	// ErrUnknownConfigKey is returned for a configuration key that does not
	// match <playerId>.(host|port|password).
	ErrUnknownConfigKey = errors.New("mpd: unknown configuration key")

	// ErrInvalidConfigValue is returned when a configuration value cannot be
	// parsed (for example a non-numeric port).
	ErrInvalidConfigValue = errors.New("mpd: invalid configuration value")

	// ErrUnknownHost is returned when a daemon host name cannot be resolved.
	ErrUnknownHost = errors.New("mpd: unknown host")

	// ErrConnectionFailed is returned when dialling or authenticating with a
	// daemon fails.
	ErrConnectionFailed = errors.New("mpd: connection to daemon failed")

	// ErrNotConnected is returned when an operation requires a live session.
	ErrNotConnected = errors.New("mpd: not connected to daemon")

	// ErrSessionExists is returned when a session is installed for a player
	// that already has one.
	ErrSessionExists = errors.New("mpd: player already has a session")

	// ErrUnknownPlayer is returned for a player ID that is not configured.
	ErrUnknownPlayer = errors.New("mpd: unknown player")

	// ErrUnknownAction is returned for an action name the bridge does not know.
	ErrUnknownAction = errors.New("mpd: unknown action")

	// ErrUnsupportedAction is returned for outbound-only actions sent as commands.
	ErrUnsupportedAction = errors.New("mpd: action not supported as a command")

	// ErrInvalidParameter is returned when a command parameter cannot be parsed.
	ErrInvalidParameter = errors.New("mpd: invalid command parameter")

	// ErrPlayerUnavailable is returned when no session exists for a player
	// even after a reconnect attempt.
	ErrPlayerUnavailable = errors.New("mpd: player unavailable")

	// ErrCommandFailed is returned when the daemon rejects or fails a command.
	ErrCommandFailed = errors.New("mpd: command failed")

	// ErrInvalidBinding is returned when a binding entry cannot be parsed.
	ErrInvalidBinding = errors.New("mpd: invalid binding")

	// ErrNoBinding is returned when no binding matches an item command.
	ErrNoBinding = errors.New("mpd: no binding for item command")

	// ErrInvalidMessage is returned when an inbound MQTT payload is malformed.
	ErrInvalidMessage = errors.New("mpd: invalid message")
)

// ConfigError reports a problem with a single configuration key.
// Other keys of the same update are still applied.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config key %q: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
