// Package controller runs long-running analysis jobs against pursuit
// records: it starts a job, polls the record store until the job's result
// field is populated, enforces a deadline, and writes the run's history
// entry back through a partial merge-save.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pursuit-cli/internal/history"
	"github.com/sells-group/pursuit-cli/internal/model"
	"github.com/sells-group/pursuit-cli/internal/store"
)

// ErrAlreadyRunning signals that a job of the same kind is already in flight
// for the record. It is a no-op signal, not a failure: callers should treat
// it as "nothing to do".
var ErrAlreadyRunning = eris.New("controller: job already running")

// State is a job controller lifecycle state.
type State string

const (
	StateStarting  State = "starting"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
)

// Terminal reports whether the controller stops transitioning after s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// JobState is one observed transition of a running job.
type JobState struct {
	State State
	// Entry is the history entry written on completion.
	Entry *model.JobRunEntry
	// Err is set when State is StateFailed.
	Err error
}

// Config tunes controller behavior.
type Config struct {
	// PollInterval is the delay between status checks. Default: 2s.
	PollInterval time.Duration
	// Deadline bounds the whole polling phase. Default: 60s.
	Deadline time.Duration
	// PollRetryBudget is how many consecutive poll failures are tolerated
	// before the run is surfaced as failed. Default: 3.
	PollRetryBudget int
	// Initiator is recorded on every history entry this controller writes.
	Initiator string
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.Deadline <= 0 {
		c.Deadline = 60 * time.Second
	}
	if c.PollRetryBudget <= 0 {
		c.PollRetryBudget = 3
	}
	if c.Initiator == "" {
		c.Initiator = "cli"
	}
	return c
}

// Controller coordinates analysis jobs. Single-flight is enforced per
// (record, job kind) within this instance's lifetime only; a restart loses
// the guard, which is accepted.
type Controller struct {
	store store.Store
	cfg   Config

	// inflight is the synchronous side-channel guard: it is checked and
	// reserved under mu before any asynchronous step, so two triggers
	// firing back-to-back can never both reach the store.
	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a Controller backed by the given record store.
func New(st store.Store, cfg Config) *Controller {
	return &Controller{
		store:    st,
		cfg:      cfg.withDefaults(),
		inflight: make(map[string]struct{}),
	}
}

func flightKey(id string, kind model.JobKind) string {
	return id + "/" + string(kind)
}

// InFlight reports whether a job of the given kind is currently running for
// the record.
func (c *Controller) InFlight(id string, kind model.JobKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.inflight[flightKey(id, kind)]
	return busy
}

// Run starts a job of the given kind for the record and returns a channel of
// state transitions. The channel is closed after the terminal state, or
// without one if ctx is cancelled (caller teardown stops polling but never
// cancels the server-side job).
//
// If a job of the same kind is already in flight for the record, Run is a
// no-op returning ErrAlreadyRunning; no store call is made.
func (c *Controller) Run(ctx context.Context, id string, kind model.JobKind, payload map[string]any) (<-chan JobState, error) {
	if !kind.Valid() {
		return nil, eris.Errorf("controller: unknown job kind %q", kind)
	}

	key := flightKey(id, kind)
	c.mu.Lock()
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	c.inflight[key] = struct{}{}
	c.mu.Unlock()

	// Buffer covers every state the run can emit, so a slow consumer never
	// blocks teardown.
	states := make(chan JobState, 4)
	go c.run(ctx, key, id, kind, payload, states)
	return states, nil
}

func (c *Controller) run(ctx context.Context, key, id string, kind model.JobKind, payload map[string]any, states chan<- JobState) {
	log := zap.L().With(zap.String("pursuit", id), zap.String("kind", string(kind)))

	release := func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}
	defer release()
	defer close(states)

	started := time.Now().UTC()

	states <- JobState{State: StateStarting}
	if err := c.store.StartJob(ctx, id, kind, payload); err != nil {
		log.Error("controller: start failed", zap.Error(err))
		states <- JobState{State: StateFailed, Err: eris.Wrap(err, "controller: start job")}
		return
	}
	log.Info("controller: job started")
	states <- JobState{State: StatePolling}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.cfg.Deadline)
	defer deadline.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			// Caller teardown: stop polling. The job keeps running
			// server-side and shows up on the next manual refresh.
			log.Debug("controller: polling stopped by caller")
			return

		case <-deadline.C:
			// Soft failure: no result observed in time, but nothing is
			// lost — no history entry is written without a result.
			log.Warn("controller: analysis did not complete before deadline",
				zap.Duration("deadline", c.cfg.Deadline))
			states <- JobState{State: StateTimedOut}
			return

		case <-ticker.C:
			p, err := c.store.GetPursuit(ctx, id)
			if err != nil {
				failures++
				log.Warn("controller: poll failed",
					zap.Int("consecutive", failures),
					zap.Error(err))
				if failures >= c.cfg.PollRetryBudget {
					states <- JobState{State: StateFailed, Err: eris.Wrap(err, "controller: polling gave up")}
					return
				}
				continue
			}
			failures = 0

			metrics := p.ResultFor(kind)
			if metrics == nil {
				continue
			}
			// A timestamped result older than this run is a leftover from a
			// previous run, not this job's output.
			if !metrics.GeneratedAt.IsZero() && metrics.GeneratedAt.Before(started) {
				continue
			}

			entry, err := c.recordCompletion(ctx, p, kind, metrics)
			if err != nil {
				log.Error("controller: record completion", zap.Error(err))
				states <- JobState{State: StateFailed, Err: err}
				return
			}
			log.Info("controller: job complete",
				zap.String("run_id", entry.ID),
				zap.Int("tokens_in", entry.TokensIn),
				zap.Int("tokens_out", entry.TokensOut),
				zap.Float64("cost_usd", entry.CostUSD))
			states <- JobState{State: StateCompleted, Entry: entry}
			return
		}
	}
}

// recordCompletion builds the run entry from the result's metrics, prepends
// it to the kind's history, and writes exactly one merge-save carrying only
// that history key.
func (c *Controller) recordCompletion(ctx context.Context, p *model.Pursuit, kind model.JobKind, metrics *model.RunMetrics) (*model.JobRunEntry, error) {
	entry := model.NewRunEntry(uuid.New().String(), c.cfg.Initiator, metrics, model.RunEntrySuccess, p.SummaryFor(kind))

	existing, err := history.ForKind(p, kind)
	if err != nil {
		return nil, eris.Wrap(err, "controller: read history")
	}
	updated := history.Append(existing, entry)

	if _, err := c.store.SavePursuit(ctx, p.ID, history.PayloadFor(kind, updated)); err != nil {
		return nil, eris.Wrap(err, "controller: save history")
	}
	return &entry, nil
}

// History returns the run history for a record and job kind, newest first.
func (c *Controller) History(ctx context.Context, id string, kind model.JobKind) ([]model.JobRunEntry, error) {
	p, err := c.store.GetPursuit(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "controller: get pursuit")
	}
	return history.ForKind(p, kind)
}
