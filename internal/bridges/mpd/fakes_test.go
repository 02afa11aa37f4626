package mpd

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeSession records every call and serves canned daemon state.
type fakeSession struct {
	mu      sync.Mutex
	calls   []string
	volume  int
	library []Song
	current *Song
	outputs []Output
	failOn  map[string]error

	events   chan Event
	stopOnce sync.Once
	closed   bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events: make(chan Event, 16),
		failOn: make(map[string]error),
	}
}

func (s *fakeSession) record(name string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := name
	for _, a := range args {
		call += fmt.Sprintf(" %v", a)
	}
	s.calls = append(s.calls, call)
	return s.failOn[name]
}

func (s *fakeSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeSession) fail(name string, err error) {
	s.mu.Lock()
	s.failOn[name] = err
	s.mu.Unlock()
}

func (s *fakeSession) Play(context.Context) error     { return s.record("Play") }
func (s *fakeSession) Pause(context.Context) error    { return s.record("Pause") }
func (s *fakeSession) Stop(context.Context) error     { return s.record("Stop") }
func (s *fakeSession) Next(context.Context) error     { return s.record("Next") }
func (s *fakeSession) Previous(context.Context) error { return s.record("Previous") }

func (s *fakeSession) Volume(context.Context) (int, error) {
	err := s.record("Volume")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume, err
}

func (s *fakeSession) SetVolume(_ context.Context, v int) error {
	if err := s.record("SetVolume", v); err != nil {
		return err
	}
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) SearchTitle(_ context.Context, title string) ([]Song, error) {
	if err := s.record("SearchTitle", title); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Song
	for _, song := range s.library {
		if song.Title == title {
			out = append(out, song)
		}
	}
	return out, nil
}

func (s *fakeSession) ClearQueue(context.Context) error { return s.record("ClearQueue") }

func (s *fakeSession) Enqueue(_ context.Context, song Song) error {
	return s.record("Enqueue", song.File)
}

func (s *fakeSession) PlayID(_ context.Context, id int) error { return s.record("PlayID", id) }

func (s *fakeSession) Outputs(context.Context) ([]Output, error) {
	if err := s.record("Outputs"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Output(nil), s.outputs...), nil
}

func (s *fakeSession) EnableOutput(_ context.Context, id int) error {
	return s.record("EnableOutput", id)
}

func (s *fakeSession) DisableOutput(_ context.Context, id int) error {
	return s.record("DisableOutput", id)
}

func (s *fakeSession) CurrentSong(context.Context) (*Song, error) {
	if err := s.record("CurrentSong"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, nil
	}
	song := *s.current
	return &song, nil
}

func (s *fakeSession) setCurrent(song *Song) {
	s.mu.Lock()
	s.current = song
	s.mu.Unlock()
}

func (s *fakeSession) Events() <-chan Event { return s.events }

func (s *fakeSession) StopEvents() error {
	//nolint:errcheck // recording only
	s.record("StopEvents")
	s.stopOnce.Do(func() { close(s.events) })
	return nil
}

// lose simulates the daemon dropping the connection.
func (s *fakeSession) lose() {
	s.stopOnce.Do(func() { close(s.events) })
}

func (s *fakeSession) Close() error {
	err := s.record("Close")
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeDialer hands out fakeSessions and remembers them per player.
type fakeDialer struct {
	mu       sync.Mutex
	sessions map[string][]*fakeSession
	hosts    map[string][]string
	errs     map[string]error
	prepare  func(playerID string, s *fakeSession)
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		sessions: make(map[string][]*fakeSession),
		hosts:    make(map[string][]string),
		errs:     make(map[string]error),
	}
}

func (d *fakeDialer) Dial(_ context.Context, cfg PlayerConfig) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.errs[cfg.ID]; err != nil {
		return nil, err
	}
	s := newFakeSession()
	if d.prepare != nil {
		d.prepare(cfg.ID, s)
	}
	d.sessions[cfg.ID] = append(d.sessions[cfg.ID], s)
	d.hosts[cfg.ID] = append(d.hosts[cfg.ID], cfg.Host)
	return s, nil
}

func (d *fakeDialer) failFor(playerID string, err error) {
	d.mu.Lock()
	d.errs[playerID] = err
	d.mu.Unlock()
}

func (d *fakeDialer) dials(playerID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions[playerID])
}

// dialedHosts lists the host of every dial for the player, in order.
func (d *fakeDialer) dialedHosts(playerID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.hosts[playerID]...)
}

func (d *fakeDialer) last(playerID string) *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.sessions[playerID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// fakeScheduler stores jobs and runs them on demand.
type fakeScheduler struct {
	mu     sync.Mutex
	nextID int
	jobs   map[int]func()
	exprs  map[int]string
	err    error

	// onCancel runs after every Cancel, outside the scheduler lock.
	onCancel func()
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[int]func()), exprs: make(map[int]string)}
}

func (f *fakeScheduler) Schedule(expr string, job func()) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.nextID++
	f.jobs[f.nextID] = job
	f.exprs[f.nextID] = expr
	return f.nextID, nil
}

func (f *fakeScheduler) Cancel(id int) {
	f.mu.Lock()
	delete(f.jobs, id)
	delete(f.exprs, id)
	hook := f.onCancel
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (f *fakeScheduler) setOnCancel(hook func()) {
	f.mu.Lock()
	f.onCancel = hook
	f.mu.Unlock()
}

func (f *fakeScheduler) active() map[int]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]string, len(f.exprs))
	for id, expr := range f.exprs {
		out[id] = expr
	}
	return out
}

func (f *fakeScheduler) runAll() {
	f.mu.Lock()
	jobs := make([]func(), 0, len(f.jobs))
	for _, j := range f.jobs {
		jobs = append(jobs, j)
	}
	f.mu.Unlock()
	for _, j := range jobs {
		j()
	}
}

// recordingPublisher captures published updates.
type recordingPublisher struct {
	mu      sync.Mutex
	updates []Update
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, u Update) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
	return p.err
}

func (p *recordingPublisher) Updates() []Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Update(nil), p.updates...)
}

func (p *recordingPublisher) forItem(item string) []Update {
	var out []Update
	for _, u := range p.Updates() {
		if u.Item == item {
			out = append(out, u)
		}
	}
	return out
}

// recordingSink captures events delivered by the supervisor.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) HandleEvent(_ context.Context, _ Session, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// recordingLogger captures log lines by level.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, level+": "+msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *recordingLogger) has(line string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.lines {
		if got == line {
			return true
		}
	}
	return false
}

const testBindings = `
items:
  kitchen_play:
    ON: "kitchen:PLAY"
    OFF: "kitchen:STOP"
  kitchen_pause:
    ON: "kitchen:PAUSE"
  kitchen_volume:
    PERCENT: "kitchen:VOLUME"
    INCREASE: "kitchen:VOLUME_INCREASE"
    DECREASE: "kitchen:VOLUME_DECREASE"
  kitchen_title:
    "-": "kitchen:TRACKINFO"
  kitchen_artist:
    "-": "kitchen:TRACKARTIST"
  kitchen_song:
    NUMBER: "kitchen:PLAYSONGID"
    "*": "kitchen:PLAYSONG"
  kitchen_yesterday:
    ON: "kitchen:PLAYSONG:Yesterday"
  kitchen_speakers:
    ON: "kitchen:ENABLE:2"
    OFF: "kitchen:DISABLE:2"
  kitchen_headphones:
    ON: "kitchen:ENABLE:1"
    OFF: "kitchen:DISABLE:1"
  lounge_play:
    ON: "lounge:PLAY"
    OFF: "lounge:STOP"
`

func mustBindings(t *testing.T, data string) *BindingSet {
	t.Helper()
	set, err := ParseBindings([]byte(data))
	if err != nil {
		t.Fatalf("ParseBindings() error = %v", err)
	}
	return set
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

// newTestSupervisor builds a supervisor with kitchen and lounge configured.
func newTestSupervisor(t *testing.T, sink EventSink) (*Supervisor, *Registry, *fakeDialer, *fakeScheduler) {
	t.Helper()
	reg := NewRegistry()
	reg.Upsert(PlayerConfig{ID: "kitchen", Host: "10.0.0.5", Port: 6600})
	reg.Upsert(PlayerConfig{ID: "lounge", Host: "10.0.0.6", Port: 6600})

	dialer := newFakeDialer()
	sched := newFakeScheduler()
	if sink == nil {
		sink = &recordingSink{}
	}
	sup, err := NewSupervisor(SupervisorOptions{
		Registry:  reg,
		Dialer:    dialer,
		Sink:      sink,
		Scheduler: sched,
	})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}
	t.Cleanup(func() {
		//nolint:errcheck // test cleanup
		sup.DisconnectAll()
	})
	return sup, reg, dialer, sched
}
