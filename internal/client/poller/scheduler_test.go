package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tacticallink/internal/client/config"
	"github.com/dmitrijs2005/tacticallink/internal/clock"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
	period  = 3 * time.Second
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, opts ...SchedulerOption) (*Scheduler, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(t0)
	s := NewScheduler(append([]SchedulerOption{WithClock(clk)}, opts...)...)
	t.Cleanup(s.Close)
	return s, clk
}

func fetched(s *Scheduler, ch Channel, outcome string) int {
	return int(testutil.ToFloat64(s.Metrics().Fetches.WithLabelValues(string(ch), outcome)))
}

func waitFetched(t *testing.T, s *Scheduler, ch Channel, outcome string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return fetched(s, ch, outcome) >= n }, waitFor, tick,
		"channel %s never reached %d %s fetches", ch, n, outcome)
}

func TestScheduler_RunsImmediatelyThenEveryPeriod(t *testing.T) {
	s, clk := newTestScheduler(t)
	var calls atomic.Int32

	require.NoError(t, s.Start(Users, func(context.Context) error {
		calls.Add(1)
		return nil
	}, period))

	waitFetched(t, s, Users, outcomeOK, 1)
	assert.True(t, s.Running(Users))

	clk.Advance(period - time.Millisecond)
	assert.Never(t, func() bool { return calls.Load() > 1 }, 50*time.Millisecond, tick)

	clk.Advance(time.Millisecond)
	waitFetched(t, s, Users, outcomeOK, 2)

	clk.Advance(period)
	waitFetched(t, s, Users, outcomeOK, 3)
	assert.EqualValues(t, 3, calls.Load())
}

func TestScheduler_AtMostOneInFlight(t *testing.T) {
	s, clk := newTestScheduler(t)

	var inFlight, maxInFlight, calls atomic.Int32
	release := make(chan struct{})
	entered := make(chan struct{}, 10)

	require.NoError(t, s.Start(RoomMessages, func(context.Context) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		calls.Add(1)
		entered <- struct{}{}
		<-release
		return nil
	}, period))

	<-entered
	// A slow response spans several periods.
	clk.Advance(period)
	clk.Advance(period)
	clk.Advance(period)
	assert.False(t, s.Trigger(RoomMessages), "trigger while busy is skipped")

	close(release)
	waitFetched(t, s, RoomMessages, outcomeOK, 1)

	assert.Never(t, func() bool { return calls.Load() > 1 }, 50*time.Millisecond, tick,
		"ticks missed during a slow fetch must not pile up")
	assert.EqualValues(t, 1, maxInFlight.Load())

	clk.Advance(period)
	waitFetched(t, s, RoomMessages, outcomeOK, 2)
	assert.EqualValues(t, 1, maxInFlight.Load())
}

func TestScheduler_StopCancelsInFlightAndFuture(t *testing.T) {
	s, clk := newTestScheduler(t)
	var calls atomic.Int32
	entered := make(chan struct{})

	require.NoError(t, s.Start(DirectMessages, func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			close(entered)
		}
		<-ctx.Done()
		return ctx.Err()
	}, period))

	<-entered
	s.Stop(DirectMessages)
	assert.False(t, s.Running(DirectMessages))

	waitFetched(t, s, DirectMessages, outcomeCanceled, 1)
	require.Eventually(t, func() bool { return clk.Tickers() == 0 }, waitFor, tick, "ticker released")

	clk.Advance(10 * period)
	assert.Never(t, func() bool { return calls.Load() > 1 }, 50*time.Millisecond, tick)

	s.Stop(DirectMessages)
}

func TestScheduler_StopAllLeavesNoRequestsAfterAPeriod(t *testing.T) {
	s, clk := newTestScheduler(t)
	var requests atomic.Int32
	count := func(context.Context) error {
		requests.Add(1)
		return nil
	}

	for _, ch := range []Channel{Users, Rooms, ThreatStatus, DirectMessages} {
		require.NoError(t, s.Start(ch, count, period))
		waitFetched(t, s, ch, outcomeOK, 1)
	}

	s.StopAll()
	s.StopAll()
	before := requests.Load()

	clk.Advance(2 * period)
	assert.Never(t, func() bool { return requests.Load() != before }, 50*time.Millisecond, tick)
	assert.Empty(t, s.Channels())
}

func TestScheduler_GateBlocksFetches(t *testing.T) {
	var open atomic.Bool
	s, clk := newTestScheduler(t, WithGate(open.Load))
	var calls atomic.Int32

	require.NoError(t, s.Start(ThreatStatus, func(context.Context) error {
		calls.Add(1)
		return nil
	}, period))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.Metrics().Skipped.WithLabelValues(string(ThreatStatus), skipGated)) == 1
	}, waitFor, tick)
	assert.EqualValues(t, 0, calls.Load())

	open.Store(true)
	clk.Advance(period)
	waitFetched(t, s, ThreatStatus, outcomeOK, 1)
}

func TestScheduler_FailureIsSoft(t *testing.T) {
	var mu sync.Mutex
	var reported []error
	s, clk := newTestScheduler(t, WithErrorHandler(func(ch Channel, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, Rooms, ch)
		reported = append(reported, err)
	}))

	boom := errors.New("boom")
	require.NoError(t, s.Start(Rooms, func(context.Context) error { return boom }, period))
	waitFetched(t, s, Rooms, outcomeError, 1)

	clk.Advance(period)
	waitFetched(t, s, Rooms, outcomeError, 2)
	assert.True(t, s.Running(Rooms), "a failed fetch never stops the channel")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) == 2
	}, waitFor, tick)
	assert.ErrorIs(t, reported[0], boom)
}

func TestScheduler_StartReplacesRunningChannel(t *testing.T) {
	s, clk := newTestScheduler(t)
	var first, second atomic.Int32

	require.NoError(t, s.Start(DirectMessages, func(context.Context) error { first.Add(1); return nil }, period))
	waitFetched(t, s, DirectMessages, outcomeOK, 1)

	require.NoError(t, s.Start(DirectMessages, func(context.Context) error { second.Add(1); return nil }, period))
	waitFetched(t, s, DirectMessages, outcomeOK, 2)

	clk.Advance(period)
	waitFetched(t, s, DirectMessages, outcomeOK, 3)
	assert.EqualValues(t, 1, first.Load())
	assert.EqualValues(t, 2, second.Load())
	require.Eventually(t, func() bool { return clk.Tickers() == 1 }, waitFor, tick)
}

func TestScheduler_RestartWaitsForInFlightFetch(t *testing.T) {
	s, _ := newTestScheduler(t)
	var second atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})

	// The old fetch ignores cancellation, like a request already on the wire.
	require.NoError(t, s.Start(DirectMessages, func(context.Context) error {
		close(entered)
		<-release
		return nil
	}, period))
	<-entered

	require.NoError(t, s.Start(DirectMessages, func(context.Context) error { second.Add(1); return nil }, period))
	assert.Never(t, func() bool { return second.Load() > 0 }, 50*time.Millisecond, tick,
		"replacement must not overlap the old fetch")

	close(release)
	require.Eventually(t, func() bool { return second.Load() == 1 }, waitFor, tick)
	assert.True(t, s.Running(DirectMessages))
}

func TestScheduler_Trigger(t *testing.T) {
	s, _ := newTestScheduler(t)
	assert.False(t, s.Trigger(Inbox), "not running")

	require.NoError(t, s.Start(Inbox, func(context.Context) error { return nil }, period))
	waitFetched(t, s, Inbox, outcomeOK, 1)

	require.Eventually(t, func() bool { return s.Trigger(Inbox) }, waitFor, tick)
	waitFetched(t, s, Inbox, outcomeOK, 2)
}

func TestScheduler_StopFromInsideFetch(t *testing.T) {
	s, _ := newTestScheduler(t)

	require.NoError(t, s.Start(Users, func(ctx context.Context) error {
		s.StopAll()
		return ctx.Err()
	}, period))

	waitFetched(t, s, Users, outcomeCanceled, 1)
	assert.False(t, s.Running(Users))
}

func TestScheduler_InvalidStartAndClose(t *testing.T) {
	s, _ := newTestScheduler(t)

	require.Error(t, s.Start(Users, func(context.Context) error { return nil }, 0))
	require.Error(t, s.Start(Users, nil, period))

	s.Close()
	assert.ErrorIs(t, s.Start(Users, func(context.Context) error { return nil }, period), ErrClosed)
}

func TestPeriodsFromConfig(t *testing.T) {
	var cfg config.Config
	cfg.LoadDefaults()

	p := PeriodsFromConfig(cfg.Poll)
	for _, ch := range AllChannels {
		assert.Positive(t, p[ch], ch)
	}
	assert.Equal(t, 10*time.Second, p[AdminDashboard])
}
