package mpd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultConnectTimeout bounds a single daemon dial.
const DefaultConnectTimeout = 5 * time.Second

// DefaultSweepSchedule reconnects every player daily at midnight.
// The first field is seconds.
const DefaultSweepSchedule = "0 0 0 * * *"

// Scheduler runs jobs on a cron schedule.
// It is satisfied by *scheduler.Cron.
type Scheduler interface {
	Schedule(expr string, job func()) (int, error)
	Cancel(id int)
}

// EventSink consumes daemon notifications. s is the session that produced ev.
type EventSink interface {
	HandleEvent(ctx context.Context, s Session, ev Event)
}

// SupervisorOptions holds the dependencies of a Supervisor.
type SupervisorOptions struct {
	Registry  *Registry
	Dialer    Dialer
	Sink      EventSink
	Scheduler Scheduler

	// ConnectTimeout bounds each dial. Default: 5 seconds.
	ConnectTimeout time.Duration

	// Context is passed to the sink for every event and to the sweep.
	// Default: context.Background().
	Context context.Context

	// OnChange is called after a player connects or disconnects. Optional.
	OnChange func(playerID string, connected bool)

	Logger Logger
}

// eventWorker drains one session's notification stream.
type eventWorker struct {
	session Session
	done    chan struct{}
}

// Supervisor owns the connect/disconnect lifecycle of every player.
//
// Lifecycle operations on one player are serialised by that player's
// lifecycle lock; different players proceed independently.
type Supervisor struct {
	loggable

	registry  *Registry
	dialer    Dialer
	sink      EventSink
	scheduler Scheduler
	timeout   time.Duration
	baseCtx   context.Context
	onChange  func(playerID string, connected bool)

	// reconfig is held for writing while a new configuration is applied.
	// Connects take it for reading so none can dial a stale config.
	reconfig sync.RWMutex

	workers   map[string]*eventWorker
	workersMu sync.Mutex

	sweepID     int
	sweepActive bool
	sweepMu     sync.Mutex
}

// NewSupervisor creates a supervisor.
func NewSupervisor(opts SupervisorOptions) (*Supervisor, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.Dialer == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("event sink is required")
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	s := &Supervisor{
		registry:  opts.Registry,
		dialer:    opts.Dialer,
		sink:      opts.Sink,
		scheduler: opts.Scheduler,
		timeout:   timeout,
		baseCtx:   ctx,
		onChange:  opts.OnChange,
		workers:   make(map[string]*eventWorker),
	}
	s.SetLogger(opts.Logger)
	return s, nil
}

// Connect opens a session to the player unless one is already live.
// Failures leave the player disconnected and are returned wrapped in
// ErrUnknownHost or ErrConnectionFailed by the dialer.
//
// Connect waits while Reconfigure is running.
func (s *Supervisor) Connect(ctx context.Context, playerID string) error {
	s.reconfig.RLock()
	defer s.reconfig.RUnlock()
	return s.connect(ctx, playerID)
}

func (s *Supervisor) connect(ctx context.Context, playerID string) error {
	e, ok := s.registry.entry(playerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	return s.connectLocked(ctx, playerID)
}

// Disconnect stops the player's notification stream, waits for its worker,
// closes the session and clears the player's caches. A player without a
// session is left alone.
func (s *Supervisor) Disconnect(playerID string) error {
	e, ok := s.registry.entry(playerID)
	if !ok {
		return nil
	}
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	return s.disconnectLocked(playerID)
}

// Reconnect disconnects then connects the player.
func (s *Supervisor) Reconnect(ctx context.Context, playerID string) error {
	s.reconfig.RLock()
	defer s.reconfig.RUnlock()
	return s.reconnect(ctx, playerID)
}

func (s *Supervisor) reconnect(ctx context.Context, playerID string) error {
	e, ok := s.registry.entry(playerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if err := s.disconnectLocked(playerID); err != nil {
		s.logWarn("error closing session before reconnect", "player_id", playerID, "error", err)
	}
	return s.connectLocked(ctx, playerID)
}

// ConnectAll connects every configured player in turn.
// A failing player does not prevent the others from connecting.
func (s *Supervisor) ConnectAll(ctx context.Context) error {
	s.reconfig.RLock()
	defer s.reconfig.RUnlock()
	return s.connectAll(ctx)
}

func (s *Supervisor) connectAll(ctx context.Context) error {
	var errs []error
	for _, id := range s.registry.PlayerIDs() {
		if err := s.connect(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DisconnectAll disconnects every configured player in turn.
func (s *Supervisor) DisconnectAll() error {
	var errs []error
	for _, id := range s.registry.PlayerIDs() {
		if err := s.Disconnect(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReconnectAll reconnects every configured player in turn.
func (s *Supervisor) ReconnectAll(ctx context.Context) error {
	s.reconfig.RLock()
	defer s.reconfig.RUnlock()

	var errs []error
	for _, id := range s.registry.PlayerIDs() {
		if err := s.reconnect(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reconfigure disconnects every player, calls apply, then connects every
// player named afterwards. Connects requested by other goroutines wait
// until it returns, so no session outlives the configuration it was
// dialed with. apply must not call back into the supervisor.
func (s *Supervisor) Reconfigure(ctx context.Context, apply func()) error {
	s.reconfig.Lock()
	defer s.reconfig.Unlock()

	var errs []error
	if err := s.DisconnectAll(); err != nil {
		errs = append(errs, err)
	}
	apply()
	if err := s.connectAll(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Connected reports whether the player holds a live session.
func (s *Supervisor) Connected(playerID string) bool {
	_, ok := s.registry.Session(playerID)
	return ok
}

// ScheduleSweep registers ReconnectAll with the scheduler, replacing any
// previously scheduled sweep.
func (s *Supervisor) ScheduleSweep(expr string) error {
	if expr == "" {
		expr = DefaultSweepSchedule
	}

	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	if s.sweepActive {
		s.scheduler.Cancel(s.sweepID)
		s.sweepActive = false
	}

	id, err := s.scheduler.Schedule(expr, s.sweep)
	if err != nil {
		return fmt.Errorf("scheduling reconnect sweep %q: %w", expr, err)
	}
	s.sweepID = id
	s.sweepActive = true
	s.logInfo("reconnect sweep scheduled", "schedule", expr)
	return nil
}

// CancelSweep removes the scheduled sweep, if any.
func (s *Supervisor) CancelSweep() {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	if !s.sweepActive {
		return
	}
	s.scheduler.Cancel(s.sweepID)
	s.sweepActive = false
}

func (s *Supervisor) sweep() {
	s.logInfo("reconnect sweep started", "players", s.registry.Len())
	if err := s.ReconnectAll(s.baseCtx); err != nil {
		s.logWarn("reconnect sweep finished with errors", "error", err)
	}
}

// connectLocked must be called with the player's lifecycle lock held.
func (s *Supervisor) connectLocked(ctx context.Context, playerID string) error {
	if _, ok := s.registry.Session(playerID); ok {
		return nil
	}
	cfg, ok := s.registry.Get(playerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.timeout)
	session, err := s.dialer.Dial(dialCtx, cfg)
	cancel()
	if err != nil {
		s.logWarn("failed to connect to player",
			"player_id", playerID,
			"address", cfg.Address(),
			"error", err)
		return fmt.Errorf("connecting player %s: %w", playerID, err)
	}

	if err := s.registry.SetSession(playerID, session); err != nil {
		//nolint:errcheck // discarding a session that was never installed
		session.StopEvents()
		//nolint:errcheck // discarding a session that was never installed
		session.Close()
		return err
	}
	s.registry.ResetCaches(playerID)

	w := &eventWorker{session: session, done: make(chan struct{})}
	s.workersMu.Lock()
	s.workers[playerID] = w
	s.workersMu.Unlock()
	go s.runEvents(playerID, w)

	s.logInfo("player connected", "player", cfg)
	s.notify(playerID, true)
	return nil
}

// disconnectLocked must be called with the player's lifecycle lock held.
func (s *Supervisor) disconnectLocked(playerID string) error {
	s.workersMu.Lock()
	w := s.workers[playerID]
	delete(s.workers, playerID)
	s.workersMu.Unlock()

	session, ok := s.registry.Session(playerID)
	if !ok && w == nil {
		return nil
	}

	var errs []error
	if w != nil {
		if err := w.session.StopEvents(); err != nil {
			errs = append(errs, fmt.Errorf("stopping events: %w", err))
		}
		<-w.done
		if session == nil {
			session = w.session
		}
	}
	if err := session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing session: %w", err))
	}

	//nolint:errcheck // clearing a session never fails for a known player
	s.registry.SetSession(playerID, nil)
	s.registry.ResetCaches(playerID)

	s.logInfo("player disconnected", "player_id", playerID)
	s.notify(playerID, false)

	if len(errs) > 0 {
		return fmt.Errorf("disconnecting player %s: %w", playerID, errors.Join(errs...))
	}
	return nil
}

// runEvents forwards a session's notifications to the sink until the
// stream closes. A stream that ends while the session is still installed
// means the connection was lost.
func (s *Supervisor) runEvents(playerID string, w *eventWorker) {
	defer close(w.done)

	for ev := range w.session.Events() {
		ev.PlayerID = playerID
		s.sink.HandleEvent(s.baseCtx, w.session, ev)
	}

	go s.handleLost(playerID, w)
}

// handleLost tears down a session whose stream ended on its own.
// It does nothing if the worker was already replaced or removed.
func (s *Supervisor) handleLost(playerID string, w *eventWorker) {
	e, ok := s.registry.entry(playerID)
	if !ok {
		return
	}
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	s.workersMu.Lock()
	current := s.workers[playerID]
	s.workersMu.Unlock()
	if current != w {
		return
	}

	s.logWarn("player connection lost", "player_id", playerID)
	if err := s.disconnectLocked(playerID); err != nil {
		s.logDebug("error tearing down lost session", "player_id", playerID, "error", err)
	}
}

func (s *Supervisor) notify(playerID string, connected bool) {
	if s.onChange != nil {
		s.onChange(playerID, connected)
	}
}
