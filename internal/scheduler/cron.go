package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrUnknownJob is returned by Next for a handle that is not scheduled.
var ErrUnknownJob = errors.New("scheduler: unknown job")

// Logger is the logging surface the scheduler reports through.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Cron schedules jobs on a robfig/cron runner.
//
// Thread Safety: All methods are safe for concurrent use.
type Cron struct {
	runner *cron.Cron

	mu      sync.Mutex
	running bool
}

// New creates a scheduler using the local time zone. A nil logger
// discards cron's own output.
func New(logger Logger) *Cron {
	var cl cron.Logger = cron.DiscardLogger
	if logger != nil {
		cl = cronLogger{logger}
	}
	return &Cron{
		runner: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
	}
}

// Schedule registers job under expr and returns a handle for Cancel.
func (c *Cron) Schedule(expr string, job func()) (int, error) {
	if job == nil {
		return 0, fmt.Errorf("scheduling %q: job is nil", expr)
	}
	id, err := c.runner.AddFunc(expr, job)
	if err != nil {
		return 0, fmt.Errorf("scheduling %q: %w", expr, err)
	}
	return int(id), nil
}

// Cancel removes a scheduled job. Unknown handles are ignored.
func (c *Cron) Cancel(handle int) {
	c.runner.Remove(cron.EntryID(handle))
}

// Next returns the next activation time of a scheduled job. The time is
// zero until the scheduler has been started.
func (c *Cron) Next(handle int) (time.Time, error) {
	entry := c.runner.Entry(cron.EntryID(handle))
	if !entry.Valid() {
		return time.Time{}, fmt.Errorf("%w: %d", ErrUnknownJob, handle)
	}
	return entry.Next, nil
}

// Len returns the number of scheduled jobs.
func (c *Cron) Len() int {
	return len(c.runner.Entries())
}

// Start begins running jobs in the background. Calling Start on a running
// scheduler is a no-op.
func (c *Cron) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.runner.Start()
}

// Stop halts the scheduler and waits for running jobs to finish.
func (c *Cron) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	<-c.runner.Stop().Done()
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	l Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
