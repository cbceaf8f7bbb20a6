package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"ipotracker/internal/core/domain"
	"ipotracker/internal/core/ports"
	"ipotracker/internal/log"
	"ipotracker/internal/logparse"
)

const (
	DefaultPollInterval       = 10 * time.Second
	DefaultTimeout            = 15 * time.Minute
	DefaultMaxTransportErrors = 3

	msgDispatching = "Triggering workflow"
	msgDispatched  = "Workflow triggered"
	msgNotReady    = "Logs not available yet"
	msgUnreadable  = "Artifact downloaded but could not be extracted. Workflow may still be running."
	msgEmptyLog    = "Log is empty. Workflow may still be running."
	msgTransport   = "Could not reach the platform, retrying"
	msgCompleted   = "Logs fetched successfully"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("orchestrator is closed")

// Options tune the polling loop.
type Options struct {
	// PollInterval is the delay between two fetches.
	PollInterval time.Duration
	// Timeout bounds the polling phase. Zero disables it.
	Timeout time.Duration
	// MaxTransportErrors is the number of consecutive transport errors
	// tolerated before the job fails.
	MaxTransportErrors int
	// JobID generates job identifiers. Defaults to domain.NewJobID.
	JobID func(time.Time) string
}

func DefaultOptions() Options {
	return Options{
		PollInterval:       DefaultPollInterval,
		Timeout:            DefaultTimeout,
		MaxTransportErrors: DefaultMaxTransportErrors,
	}
}

// Orchestrator tracks at most one job: it dispatches the batch, polls for
// the artifact and publishes the parsed result.
//
// Every transition is tagged with the epoch it was started under. Reset and
// Start bump the epoch, so late results of an abandoned worker are dropped.
type Orchestrator struct {
	dispatcher ports.Dispatcher
	fetcher    ports.ArtifactFetcher
	opener     ports.ArchiveOpener
	opts       Options

	mu     sync.Mutex
	epoch  uint64
	cancel context.CancelFunc
	snap   domain.Snapshot
	subs   map[int]chan domain.Snapshot
	nextID int
	closed bool

	wg sync.WaitGroup
}

// NewOrchestrator creates a new Orchestrator. Zero option values fall back
// to the defaults, except Timeout where zero means no ceiling.
func NewOrchestrator(
	dispatcher ports.Dispatcher,
	fetcher ports.ArtifactFetcher,
	opener ports.ArchiveOpener,
	opts Options,
) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxTransportErrors <= 0 {
		opts.MaxTransportErrors = DefaultMaxTransportErrors
	}
	if opts.JobID == nil {
		opts.JobID = domain.NewJobID
	}
	return &Orchestrator{
		dispatcher: dispatcher,
		fetcher:    fetcher,
		opener:     opener,
		opts:       opts,
		snap:       domain.Snapshot{State: domain.StateIdle, UpdatedAt: time.Now()},
		subs:       make(map[int]chan domain.Snapshot),
	}
}

// Start dispatches entities as a new job and begins tracking it. The job
// outlives ctx: only Reset or Close stop it. A finished job is discarded.
func (o *Orchestrator) Start(ctx context.Context, entities []domain.Entity) (string, error) {
	if len(entities) == 0 {
		return "", fmt.Errorf("%w: no accounts to submit", domain.ErrInvalidInput)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return "", ErrClosed
	}
	if o.snap.State.Active() {
		return "", fmt.Errorf("%w: %s is %s", domain.ErrJobActive, o.snap.JobID, o.snap.State)
	}

	now := time.Now()
	job := domain.Job{
		ID:        o.opts.JobID(now),
		Entities:  slices.Clone(entities),
		State:     domain.StateDispatching,
		CreatedAt: now,
	}

	o.epoch++
	epoch := o.epoch
	wctx, cancel := context.WithCancel(log.ContextAttrs(context.WithoutCancel(ctx), log.JobID(job.ID)))
	o.cancel = cancel
	o.snap = domain.Snapshot{
		JobID:     job.ID,
		State:     job.State,
		Message:   msgDispatching,
		UpdatedAt: now,
	}
	o.publishLocked()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.run(wctx, epoch, job)
	}()
	return job.ID, nil
}

// Reset abandons the current job and returns to idle. It does not wait
// for the worker, see Close.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked()
}

func (o *Orchestrator) resetLocked() {
	o.epoch++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.snap = domain.Snapshot{State: domain.StateIdle, UpdatedAt: time.Now()}
	o.publishLocked()
}

// Close resets the orchestrator, waits for the worker to exit and closes
// every subscription.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.resetLocked()
	o.mu.Unlock()

	o.wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	for id, ch := range o.subs {
		close(ch)
		delete(o.subs, id)
	}
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() domain.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap.Clone()
}

// Subscribe returns a channel that receives the current snapshot and then
// every change. A slow reader only sees the latest value. The channel is
// closed by cancel or Close.
func (o *Orchestrator) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 1)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		close(ch)
		return ch, func() {}
	}
	id := o.nextID
	o.nextID++
	o.subs[id] = ch
	ch <- o.snap.Clone()

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if _, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(ch)
		}
	}
}

func (o *Orchestrator) publishLocked() {
	for _, ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		ch <- o.snap.Clone()
	}
}

// update applies fn when epoch is still current. It reports whether the
// change was applied.
func (o *Orchestrator) update(epoch uint64, fn func(*domain.Snapshot)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch {
		return false
	}
	fn(&o.snap)
	o.snap.UpdatedAt = time.Now()
	o.publishLocked()
	return true
}

// finish moves the job to a terminal error state.
func (o *Orchestrator) finish(ctx context.Context, epoch uint64, state domain.State, attempts int, err error) {
	applied := o.update(epoch, func(s *domain.Snapshot) {
		s.State = state
		s.Attempts = attempts
		s.Err = err
		s.Error = err.Error()
		s.StatusHint = domain.StatusHint(err)
		s.Message = ""
	})
	if applied {
		slog.ErrorContext(ctx, "job finished", "state", state, "attempts", attempts, "error", err)
	}
}

func (o *Orchestrator) run(ctx context.Context, epoch uint64, job domain.Job) {
	slog.InfoContext(ctx, "dispatching job", "accounts", len(job.Entities))
	if err := o.dispatcher.Dispatch(ctx, job.ID, job.Entities); err != nil {
		if ctx.Err() != nil {
			return
		}
		o.finish(ctx, epoch, domain.StateFailed, 0, err)
		return
	}
	if !o.update(epoch, func(s *domain.Snapshot) {
		s.State = domain.StatePolling
		s.Message = msgDispatched
		s.StatusHint = http.StatusOK
	}) {
		return
	}

	pctx := ctx
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeoutCause(ctx, o.opts.Timeout,
			fmt.Errorf("%w after %s", domain.ErrTimedOut, o.opts.Timeout))
		defer cancel()
	}

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	p := poller{o: o, epoch: epoch, job: job}
	for {
		if p.poll(pctx) {
			return
		}
		select {
		case <-pctx.Done():
			p.expire(pctx)
			return
		case <-ticker.C:
		}
	}
}

// poller holds the state of one polling loop.
type poller struct {
	o               *Orchestrator
	epoch           uint64
	job             domain.Job
	attempts        int
	transportErrors int
}

// poll fetches once and reports whether the job reached a terminal state.
func (p *poller) poll(ctx context.Context) bool {
	p.attempts++
	rec, err := FetchLogs(ctx, p.o.fetcher, p.o.opener, p.job.ID)
	if ctx.Err() != nil {
		p.expire(ctx)
		return true
	}

	var transport *domain.TransportError
	if !errors.As(err, &transport) {
		p.transportErrors = 0
	}

	switch {
	case err == nil:
		lines := logparse.Lines(rec.Text)
		results := logparse.ParseSections(lines, p.job.Entities)
		if len(results) == 0 {
			p.waiting(ctx, http.StatusAccepted, msgEmptyLog, nil)
			return false
		}
		overall := logparse.Classify(lines)
		if p.o.update(p.epoch, func(s *domain.Snapshot) {
			s.State = domain.StateCompleted
			s.Attempts = p.attempts
			s.LogLines = lines
			s.OverallStatus = overall
			s.AccountResults = results
			s.Message = msgCompleted
			s.StatusHint = http.StatusOK
			s.Error = ""
			s.Err = nil
		}) {
			slog.InfoContext(ctx, "job completed", "entry", rec.Entry, "overall", overall, "accounts", len(results), "attempts", p.attempts)
		}
		return true
	case errors.Is(err, domain.ErrNotReady):
		p.waiting(ctx, http.StatusNotFound, msgNotReady, nil)
		return false
	case errors.Is(err, domain.ErrLogNotFound):
		var nf *domain.LogNotFoundError
		msg := msgUnreadable
		if errors.As(err, &nf) {
			msg = nf.Error()
		}
		p.waiting(ctx, http.StatusAccepted, msg, err)
		return false
	case errors.Is(err, domain.ErrCorruptArchive):
		p.waiting(ctx, http.StatusAccepted, msgUnreadable, err)
		return false
	case transport != nil:
		p.transportErrors++
		if p.transportErrors >= p.o.opts.MaxTransportErrors {
			p.o.finish(ctx, p.epoch, domain.StateFailed, p.attempts, err)
			return true
		}
		p.waiting(ctx, http.StatusBadGateway, msgTransport, err)
		return false
	default:
		p.o.finish(ctx, p.epoch, domain.StateFailed, p.attempts, err)
		return true
	}
}

func (p *poller) waiting(ctx context.Context, hint int, msg string, err error) {
	if err != nil {
		slog.DebugContext(ctx, "artifact not usable yet", "attempt", p.attempts, "error", err)
	}
	p.o.update(p.epoch, func(s *domain.Snapshot) {
		s.Attempts = p.attempts
		s.StatusHint = hint
		s.Message = msg
	})
}

// expire handles a done polling context. Reset is silent, the deadline
// moves the job to timed_out.
func (p *poller) expire(ctx context.Context) {
	cause := context.Cause(ctx)
	if !errors.Is(cause, domain.ErrTimedOut) {
		return
	}
	p.o.finish(ctx, p.epoch, domain.StateTimedOut, p.attempts, cause)
}
