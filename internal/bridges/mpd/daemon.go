package mpd

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
)

// Daemon connection constants.
const (
	// keepAliveInterval is how often an idle session pings its daemon.
	// MPD drops clients idle for longer than its connection_timeout (60s).
	keepAliveInterval = 30 * time.Second

	// eventBuffer is the notification queue depth per session.
	eventBuffer = 16
)

// watchedSubsystems are the MPD idle subsystems the bridge listens to.
var watchedSubsystems = []string{"player", "mixer", "output"}

// GompdDialer dials MPD daemons with gompd.
type GompdDialer struct {
	// Resolver resolves daemon host names. Default: net.DefaultResolver.
	Resolver *net.Resolver

	Logger Logger
}

// Dial connects the command client and the idle watcher, then starts the
// notification stream. It fails with ErrUnknownHost when the host does not
// resolve and ErrConnectionFailed otherwise.
func (d *GompdDialer) Dial(ctx context.Context, cfg PlayerConfig) (Session, error) {
	resolver := d.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if _, err := resolver.LookupHost(ctx, cfg.Host); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnknownHost, cfg.Host, err)
	}

	addr := cfg.Address()
	client, err := dialWithContext(ctx, func() (*mpd.Client, error) {
		return mpd.DialAuthenticated("tcp", addr, cfg.Password)
	}, func(c *mpd.Client) { c.Close() })
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, addr, err)
	}

	watcher, err := dialWithContext(ctx, func() (*mpd.Watcher, error) {
		return mpd.NewWatcher("tcp", addr, cfg.Password, watchedSubsystems...)
	}, func(w *mpd.Watcher) { w.Close() })
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: watcher: %w", ErrConnectionFailed, addr, err)
	}

	s := &gompdSession{
		playerID: cfg.ID,
		client:   client,
		watcher:  watcher,
		events:   make(chan Event, eventBuffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.SetLogger(d.Logger)

	st, err := client.Status()
	if err != nil {
		watcher.Close()
		client.Close()
		return nil, fmt.Errorf("%w: %s: status: %w", ErrConnectionFailed, addr, err)
	}
	s.lastState = st["state"]

	go s.monitor()
	return s, nil
}

// dialWithContext runs a blocking dial and gives up when ctx ends.
// A connection that completes after ctx ended is released with discard.
func dialWithContext[T any](ctx context.Context, dial func() (T, error), discard func(T)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := dial()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				discard(r.v)
			}
		}()
		var zero T
		return zero, ctx.Err()
	}
}

// gompdSession is a Session backed by one gompd client for commands and
// one watcher for idle notifications.
type gompdSession struct {
	loggable

	playerID string

	// mu serialises commands; gompd clients are not safe for concurrent use.
	mu     sync.Mutex
	client *mpd.Client

	watcher   *mpd.Watcher
	events    chan Event
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
	lastState string
}

func (s *gompdSession) do(ctx context.Context, fn func(c *mpd.Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.client)
}

func (s *gompdSession) Play(ctx context.Context) error {
	return s.do(ctx, func(c *mpd.Client) error { return c.Play(-1) })
}

func (s *gompdSession) Pause(ctx context.Context) error {
	return s.do(ctx, func(c *mpd.Client) error { return c.Pause(true) })
}

func (s *gompdSession) Stop(ctx context.Context) error {
	return s.do(ctx, func(c *mpd.Client) error { return c.Stop() })
}

func (s *gompdSession) Next(ctx context.Context) error {
	return s.do(ctx, func(c *mpd.Client) error { return c.Next() })
}

func (s *gompdSession) Previous(ctx context.Context) error {
	return s.do(ctx, func(c *mpd.Client) error { return c.Previous() })
}

func (s *gompdSession) Volume(ctx context.Context) (int, error) {
	var volume int
	err := s.do(ctx, func(c *mpd.Client) error {
		st, err := c.Status()
		if err != nil {
			return err
		}
		volume, err = strconv.Atoi(st["volume"])
		if err != nil {
			return fmt.Errorf("volume %q: %w", st["volume"], err)
		}
		return nil
	})
	return volume, err
}

func (s *gompdSession) SetVolume(ctx context.Context, volume int) error {
	return s.do(ctx, func(c *mpd.Client) error { return c.SetVolume(volume) })
}

func (s *gompdSession) SearchTitle(ctx context.Context, title string) ([]Song, error) {
	var songs []Song
	err := s.do(ctx, func(c *mpd.Client) error {
		found, err := c.Find("title", title)
		if err != nil {
			return err
		}
		songs = make([]Song, 0, len(found))
		for _, attrs := range found {
			songs = append(songs, songFromAttrs(attrs))
		}
		return nil
	})
	return songs, err
}

func (s *gompdSession) ClearQueue(ctx context.Context) error {
	return s.do(ctx, func(c *mpd.Client) error { return c.Clear() })
}

func (s *gompdSession) Enqueue(ctx context.Context, song Song) error {
	if song.File == "" {
		return fmt.Errorf("song %q has no file", song.Title)
	}
	return s.do(ctx, func(c *mpd.Client) error { return c.Add(song.File) })
}

func (s *gompdSession) PlayID(ctx context.Context, id int) error {
	return s.do(ctx, func(c *mpd.Client) error { return c.PlayID(id) })
}

func (s *gompdSession) Outputs(ctx context.Context) ([]Output, error) {
	var outputs []Output
	err := s.do(ctx, func(c *mpd.Client) error {
		list, err := c.ListOutputs()
		if err != nil {
			return err
		}
		outputs = make([]Output, 0, len(list))
		for _, attrs := range list {
			id, err := strconv.Atoi(attrs["outputid"])
			if err != nil {
				return fmt.Errorf("output id %q: %w", attrs["outputid"], err)
			}
			outputs = append(outputs, Output{
				ID:      id,
				Name:    attrs["outputname"],
				Enabled: attrs["outputenabled"] == "1",
			})
		}
		return nil
	})
	return outputs, err
}

func (s *gompdSession) EnableOutput(ctx context.Context, id int) error {
	return s.do(ctx, func(c *mpd.Client) error { return c.EnableOutput(id) })
}

func (s *gompdSession) DisableOutput(ctx context.Context, id int) error {
	return s.do(ctx, func(c *mpd.Client) error { return c.DisableOutput(id) })
}

func (s *gompdSession) CurrentSong(ctx context.Context) (*Song, error) {
	var song *Song
	err := s.do(ctx, func(c *mpd.Client) error {
		attrs, err := c.CurrentSong()
		if err != nil {
			return err
		}
		if len(attrs) == 0 {
			return nil
		}
		cur := songFromAttrs(attrs)
		song = &cur
		return nil
	})
	return song, err
}

func (s *gompdSession) Events() <-chan Event {
	return s.events
}

func (s *gompdSession) StopEvents() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stop)
		err = s.watcher.Close()
	})
	<-s.done
	return err
}

func (s *gompdSession) Close() error {
	//nolint:errcheck // the watcher is being discarded with the session
	s.StopEvents()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Close()
}

// monitor turns watcher notifications into events until stopped or until
// the daemon stops answering. The events channel is closed on exit.
func (s *gompdSession) monitor() {
	defer close(s.done)
	defer close(s.events)

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return

		case subsystem, ok := <-s.watcher.Event:
			if !ok {
				s.logWarn("idle watcher closed", "player_id", s.playerID)
				return
			}
			if !s.handleSubsystem(subsystem) {
				return
			}

		case err, ok := <-s.watcher.Error:
			if !ok {
				return
			}
			// Watcher errors do not close the event channel; check the
			// command connection to tell a hiccup from a dead daemon.
			s.logWarn("idle watcher error", "player_id", s.playerID, "error", err)
			if !s.alive() {
				return
			}

		case <-ticker.C:
			if !s.alive() {
				return
			}
		}
	}
}

func (s *gompdSession) alive() bool {
	s.mu.Lock()
	err := s.client.Ping()
	s.mu.Unlock()
	if err != nil {
		s.logWarn("daemon not answering", "player_id", s.playerID, "error", err)
		return false
	}
	return true
}

// handleSubsystem maps one idle notification to events. It returns false
// once the session is stopping.
func (s *gompdSession) handleSubsystem(subsystem string) bool {
	switch subsystem {
	case "player":
		st, err := s.status()
		if err != nil {
			s.logWarn("failed to read status", "player_id", s.playerID, "error", err)
			return true
		}
		if status, ok := transition(s.lastState, st["state"]); ok {
			if !s.emit(Event{Kind: EventPlayState, Status: status}) {
				return false
			}
		}
		s.lastState = st["state"]
		return s.emit(Event{Kind: EventTrackPosition, Elapsed: parseElapsed(st["elapsed"])})

	case "mixer":
		st, err := s.status()
		if err != nil {
			s.logWarn("failed to read status", "player_id", s.playerID, "error", err)
			return true
		}
		volume, err := strconv.Atoi(st["volume"])
		if err != nil {
			volume = -1
		}
		return s.emit(Event{Kind: EventVolume, Volume: volume})

	case "output":
		return s.emit(Event{Kind: EventOutput})

	default:
		return true
	}
}

func (s *gompdSession) status() (mpd.Attrs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Status()
}

func (s *gompdSession) emit(ev Event) bool {
	ev.PlayerID = s.playerID
	select {
	case s.events <- ev:
		return true
	case <-s.stop:
		return false
	}
}

// transition maps a change of the MPD "state" field to a play status.
func transition(from, to string) (PlayStatus, bool) {
	if from == to {
		return 0, false
	}
	switch to {
	case "play":
		if from == "pause" {
			return StatusUnpaused, true
		}
		return StatusStarted, true
	case "pause":
		return StatusPaused, true
	case "stop":
		return StatusStopped, true
	default:
		return 0, false
	}
}

func parseElapsed(s string) time.Duration {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

func songFromAttrs(attrs mpd.Attrs) Song {
	song := Song{
		Title:  attrs["Title"],
		Artist: attrs["Artist"],
		File:   attrs["file"],
	}
	if id, err := strconv.Atoi(attrs["Id"]); err == nil {
		song.ID = id
	}
	return song
}
