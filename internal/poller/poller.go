// Package poller drives the pipeline on a timer and on demand, holding the last good snapshot.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/coachpo/orderlens/internal/pipeline"
)

// DefaultInterval is the auto-refresh period.
const DefaultInterval = 30 * time.Second

// State is the poller lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
)

// Outcome labels a finished poll.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeError     Outcome = "error"
	OutcomeDiscarded Outcome = "discarded"
)

// Runner executes one pipeline pass and publishes accepted snapshots.
type Runner interface {
	Run(ctx context.Context, seq uint64) (*pipeline.Snapshot, error)
	Commit(snap *pipeline.Snapshot)
}

// Observer receives poll measurements.
type Observer interface {
	PollCompleted(ctx context.Context, outcome Outcome, elapsed time.Duration)
}

// Config controls polling.
type Config struct {
	Interval    time.Duration
	AutoRefresh bool
	// Timeout bounds a single poll. Zero leaves polls bounded only by Stop.
	Timeout time.Duration
}

// View is the externally visible poller state.
type View struct {
	Snapshot *pipeline.Snapshot `json:"snapshot"`
	Loading  bool               `json:"loading"`
	Error    string             `json:"error,omitempty"`
	ErrorAt  *time.Time         `json:"errorAt,omitempty"`
	Seq      uint64             `json:"seq"`
	State    State              `json:"state"`
}

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("poller stopped")

// Poller coalesces refetch triggers into at most one in-flight pass.
type Poller struct {
	runner   Runner
	cfg      Config
	logger   *zap.Logger
	observer Observer
	clock    func() time.Time

	lifeMu  sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      conc.WaitGroup
	started atomic.Bool
	stopped atomic.Bool

	fetching atomic.Bool
	seq      atomic.Uint64

	mu         sync.RWMutex
	snapshot   *pipeline.Snapshot
	lastErr    error
	lastErrAt  time.Time
	appliedSeq uint64

	subsMu  sync.Mutex
	subs    map[int]chan View
	nextSub int
}

// Option customises a Poller.
type Option func(*Poller)

// WithLogger sets the poller logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger.Named("poller")
		}
	}
}

// WithObserver registers a poll observer.
func WithObserver(obs Observer) Option {
	return func(p *Poller) { p.observer = obs }
}

// WithClock overrides the clock used for error timestamps and durations.
func WithClock(clock func() time.Time) Option {
	return func(p *Poller) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// New creates an idle poller.
func New(runner Runner, cfg Config, opts ...Option) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		runner: runner,
		cfg:    cfg,
		logger: zap.NewNop(),
		clock:  time.Now,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[int]chan View),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start triggers the initial poll and, with auto-refresh, the ticker loop. The loop also
// ends when ctx is cancelled; Stop is still required to release resources.
func (p *Poller) Start(ctx context.Context) error {
	if p.stopped.Load() {
		return ErrStopped
	}
	if !p.started.CompareAndSwap(false, true) {
		return errors.New("poller already started")
	}
	p.Refetch()
	p.wg.Go(func() {
		p.loop(ctx)
	})
	return nil
}

func (p *Poller) loop(ctx context.Context) {
	var tick <-chan time.Time
	if p.cfg.AutoRefresh {
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			p.cancel()
			return
		case <-p.ctx.Done():
			return
		case <-tick:
			if !p.Refetch() {
				p.logger.Debug("tick coalesced into in-flight poll")
			}
		}
	}
}

// Refetch starts a poll unless one is already in flight. It reports whether a poll started.
func (p *Poller) Refetch() bool {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.ctx.Err() != nil {
		return false
	}
	if !p.fetching.CompareAndSwap(false, true) {
		return false
	}
	seq := p.seq.Add(1)
	p.wg.Go(func() {
		outcome := p.poll(seq)
		p.fetching.Store(false)
		if outcome != OutcomeDiscarded {
			p.publish(p.View())
		}
	})
	return true
}

func (p *Poller) poll(seq uint64) Outcome {
	ctx := p.ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	started := p.clock()
	snap, err := p.runner.Run(ctx, seq)
	outcome := p.apply(seq, snap, err)
	if p.observer != nil {
		p.observer.PollCompleted(p.ctx, outcome, p.clock().Sub(started))
	}
	return outcome
}

// apply records a finished poll unless a newer one has already been applied.
func (p *Poller) apply(seq uint64, snap *pipeline.Snapshot, err error) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq <= p.appliedSeq {
		p.logger.Debug("discarding stale poll", zap.Uint64("seq", seq), zap.Uint64("applied", p.appliedSeq))
		return OutcomeDiscarded
	}
	if err == nil && snap == nil {
		err = errors.New("pipeline returned no snapshot")
	}
	if err != nil {
		if p.ctx.Err() != nil {
			return OutcomeDiscarded
		}
		p.appliedSeq = seq
		p.lastErr = err
		p.lastErrAt = p.clock()
		p.logger.Warn("poll failed; keeping last snapshot", zap.Uint64("seq", seq), zap.Error(err))
		return OutcomeError
	}
	p.runner.Commit(snap)
	p.appliedSeq = seq
	p.snapshot = snap
	p.lastErr = nil
	p.lastErrAt = time.Time{}
	return OutcomeSuccess
}

// View returns the current state. The snapshot is shared and must not be mutated.
func (p *Poller) View() View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v := View{
		Snapshot: p.snapshot,
		Loading:  p.fetching.Load(),
		Seq:      p.appliedSeq,
		State:    StateIdle,
	}
	if v.Loading {
		v.State = StateFetching
	}
	if p.lastErr != nil {
		v.Error = p.lastErr.Error()
		at := p.lastErrAt
		v.ErrorAt = &at
	}
	return v
}

// Subscribe returns a channel receiving the view after every applied poll. Slow readers
// only see the latest view. The channel is closed by the returned func or by Stop.
func (p *Poller) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)
	p.subsMu.Lock()
	if p.stopped.Load() {
		p.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.subsMu.Lock()
			defer p.subsMu.Unlock()
			if c, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(c)
			}
		})
	}
}

func (p *Poller) publish(v View) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Stop cancels the timer and any in-flight poll, waits for goroutines and closes subscribers.
func (p *Poller) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	p.lifeMu.Lock()
	p.cancel()
	p.lifeMu.Unlock()
	p.wg.Wait()
	p.subsMu.Lock()
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
	p.subsMu.Unlock()
}
