package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/tacticallink/internal/clock"
	"github.com/dmitrijs2005/tacticallink/internal/logging"
)

var ErrClosed = errors.New("scheduler closed")

// Gate reports whether fetches may run at all.
type Gate func() bool

// ErrorHandler receives soft failures of a channel's fetch.
type ErrorHandler func(ch Channel, err error)

type Scheduler struct {
	clock   clock.Clock
	gate    Gate
	log     logging.Logger
	metrics *Metrics
	onError ErrorHandler

	mu     sync.Mutex
	tasks  map[Channel]*task
	exited map[Channel]<-chan struct{}
	closed bool
	wg     sync.WaitGroup
}

type task struct {
	ch      Channel
	fn      FetchFunc
	period  time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	ticker  clock.Ticker
	trigger chan struct{}
	busy    atomic.Bool

	// prev is closed once the channel's previous task has returned.
	prev <-chan struct{}
	done chan struct{}
}

type SchedulerOption func(*Scheduler)

func WithClock(c clock.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

func WithGate(g Gate) SchedulerOption {
	return func(s *Scheduler) { s.gate = g }
}

func WithLogger(l logging.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l }
}

func WithMetrics(m *Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

func WithErrorHandler(h ErrorHandler) SchedulerOption {
	return func(s *Scheduler) { s.onError = h }
}

func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		clock: clock.Real(),
		gate:  func() bool { return true },
		log:   logging.Discard(),
		tasks:  make(map[Channel]*task),
		exited: make(map[Channel]<-chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics("tacticallink")
	}
	return s
}

func (s *Scheduler) Metrics() *Metrics {
	return s.metrics
}

// Start runs fn now and then every period on channel ch. Starting a channel
// that is already running replaces it; the first fetch of the new task waits
// until a fetch still in flight on the old one has returned.
func (s *Scheduler) Start(ch Channel, fn FetchFunc, period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("channel %s: period must be positive, got %s", ch, period)
	}
	if fn == nil {
		return fmt.Errorf("channel %s: nil fetch func", ch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if old, ok := s.tasks[ch]; ok {
		old.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		ch:      ch,
		fn:      fn,
		period:  period,
		ctx:     ctx,
		cancel:  cancel,
		ticker:  s.clock.NewTicker(period),
		trigger: make(chan struct{}, 1),
		prev:    s.exited[ch],
		done:    make(chan struct{}),
	}
	t.trigger <- struct{}{}
	s.tasks[ch] = t
	s.exited[ch] = t.done

	s.wg.Add(1)
	go s.run(t)

	s.log.Debug(ctx, "channel started", "channel", ch, "period", period)
	return nil
}

// Stop cancels channel ch. Stopping a channel that is not running is a no-op.
func (s *Scheduler) Stop(ch Channel) {
	s.mu.Lock()
	t, ok := s.tasks[ch]
	if ok {
		delete(s.tasks, ch)
		t.cancel()
	}
	s.mu.Unlock()

	if ok {
		s.log.Debug(context.Background(), "channel stopped", "channel", ch)
	}
}

// StopAll cancels every running channel before returning.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	stopped := make([]Channel, 0, len(s.tasks))
	for ch, t := range s.tasks {
		t.cancel()
		stopped = append(stopped, ch)
	}
	clear(s.tasks)
	s.mu.Unlock()

	if len(stopped) > 0 {
		s.log.Info(context.Background(), "all channels stopped", "count", len(stopped))
	}
}

// Trigger asks channel ch to poll now instead of waiting for the next tick.
// It reports false when the channel is not running or a fetch is already in
// flight, in which case nothing is queued.
func (s *Scheduler) Trigger(ch Channel) bool {
	s.mu.Lock()
	t, ok := s.tasks[ch]
	s.mu.Unlock()
	if !ok {
		return false
	}
	if t.busy.Load() {
		s.metrics.skip(ch, skipBusy)
		return false
	}
	select {
	case t.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) Running(ch Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[ch]
	return ok
}

// Channels returns the running channels in name order.
func (s *Scheduler) Channels() []Channel {
	s.mu.Lock()
	out := make([]Channel, 0, len(s.tasks))
	for ch := range s.tasks {
		out = append(out, ch)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close stops every channel and waits for their goroutines to exit. It must
// not be called from inside a fetch.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.StopAll()
	s.wg.Wait()
}

func (s *Scheduler) run(t *task) {
	defer s.wg.Done()
	defer close(t.done)
	defer t.ticker.Stop()

	if t.prev != nil {
		select {
		case <-t.prev:
		case <-t.ctx.Done():
			return
		}
	}

	var lastEnd time.Time
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-t.trigger:
		case tick := <-t.ticker.C():
			// A tick that came due while the previous fetch ran is dropped,
			// not queued behind it.
			if !tick.After(lastEnd) {
				s.metrics.skip(t.ch, skipDropTick)
				continue
			}
		}
		if t.ctx.Err() != nil {
			return
		}

		lastEnd = s.execute(t)
	}
}

// execute runs one fetch and returns the clock time at which it ended.
func (s *Scheduler) execute(t *task) time.Time {
	if !s.gate() {
		end := s.clock.Now()
		s.metrics.skip(t.ch, skipGated)
		return end
	}

	t.busy.Store(true)
	defer t.busy.Store(false)

	gauge := s.metrics.InFlight.WithLabelValues(string(t.ch))
	gauge.Inc()
	defer gauge.Dec()

	start := time.Now()
	err := t.fn(t.ctx)
	end := s.clock.Now()
	took := time.Since(start)

	switch {
	case t.ctx.Err() != nil:
		s.metrics.observe(t.ch, outcomeCanceled, took)
	case err != nil:
		s.metrics.observe(t.ch, outcomeError, took)
		s.log.Warn(t.ctx, "poll failed", "channel", t.ch, "error", err)
		if s.onError != nil {
			s.onError(t.ch, err)
		}
	default:
		s.metrics.observe(t.ch, outcomeOK, took)
	}
	return end
}
