package mpd

import "context"

// Song is the subset of daemon song metadata the bridge uses.
type Song struct {
	ID     int
	Title  string
	Artist string
	File   string
}

// Output is an audio output as enumerated by the daemon.
// ID is the daemon's 0-based index.
type Output struct {
	ID      int
	Name    string
	Enabled bool
}

// Session is one authenticated daemon connection plus its notification stream.
//
// Daemon operations are not cancellable once issued; ctx is only checked
// before the request is sent.
type Session interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error

	Volume(ctx context.Context) (int, error)
	SetVolume(ctx context.Context, volume int) error

	// SearchTitle returns library songs whose title matches.
	SearchTitle(ctx context.Context, title string) ([]Song, error)
	ClearQueue(ctx context.Context) error
	Enqueue(ctx context.Context, song Song) error
	PlayID(ctx context.Context, id int) error

	Outputs(ctx context.Context) ([]Output, error)
	EnableOutput(ctx context.Context, id int) error
	DisableOutput(ctx context.Context, id int) error

	// CurrentSong returns nil when nothing is queued.
	CurrentSong(ctx context.Context) (*Song, error)

	// Events returns the notification stream. The channel is closed when
	// the stream ends, either after StopEvents or when the connection is lost.
	Events() <-chan Event

	// StopEvents ends the notification stream. Safe to call more than once.
	StopEvents() error

	// Close releases the connection.
	Close() error
}

// Dialer opens sessions to daemons.
type Dialer interface {
	Dial(ctx context.Context, cfg PlayerConfig) (Session, error)
}
