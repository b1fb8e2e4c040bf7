package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/lexrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

const interval = 72 * time.Hour

// stubRun records triggers and optionally blocks until released.
type stubRun struct {
	mu       sync.Mutex
	triggers []string
	block    chan struct{}
	started  chan string
	err      error
	status   core.RunStatus
	panicMsg string
}

func newStubRun() *stubRun {
	return &stubRun{started: make(chan string, 16), status: core.RunStatusSuccess}
}

func (r *stubRun) run(ctx context.Context, trigger string) (*core.RunReport, error) {
	r.mu.Lock()
	r.triggers = append(r.triggers, trigger)
	block, err, status, panicMsg := r.block, r.err, r.status, r.panicMsg
	r.mu.Unlock()
	r.started <- trigger

	if panicMsg != "" {
		panic(panicMsg)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	report := core.NewRunReport(trigger, epoch)
	report.Status = status
	return report, err
}

func (r *stubRun) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.triggers)
}

func newScheduler(t *testing.T, r *stubRun, opts Options) (*Scheduler, *FakeClock) {
	t.Helper()
	clock := NewFakeClock(epoch)
	opts.Clock = clock
	if opts.Interval == 0 {
		opts.Interval = interval
	}
	s, err := New(r.run, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s, clock
}

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	require.Eventually(t, func() bool { return !s.Status().IsRunning }, time.Second, time.Millisecond)
}

func TestScheduler_RunOnStartup(t *testing.T) {
	r := newStubRun()
	s, _ := newScheduler(t, r, Options{Enabled: true, RunOnStartup: true})

	assert.Equal(t, core.RunStatusNever, s.Status().LastRunStatus)
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, core.TriggerStartup, <-r.started)
	waitIdle(t, s)

	st := s.Status()
	assert.Equal(t, core.PhaseIdle, st.Phase)
	assert.Equal(t, core.RunStatusSuccess, st.LastRunStatus)
	assert.Equal(t, epoch, st.LastRunAt)
	assert.Equal(t, epoch.Add(interval), st.NextRunAt)
	require.NotNil(t, st.LastReport)
	assert.Equal(t, core.TriggerStartup, st.LastReport.Trigger)
}

func TestScheduler_FiresAfterInterval(t *testing.T) {
	r := newStubRun()
	s, clock := newScheduler(t, r, Options{Enabled: true})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, epoch.Add(interval), s.Status().NextRunAt)
	assert.Zero(t, r.count(), "no run before the first interval")

	clock.Advance(interval - time.Minute)
	assert.Zero(t, r.count())

	clock.Advance(time.Minute)
	assert.Equal(t, core.TriggerScheduled, <-r.started)
	waitIdle(t, s)
	assert.Equal(t, clock.Now().Add(interval), s.Status().NextRunAt, "rescheduled from the end of the run")
	assert.Equal(t, 1, clock.Pending())
}

func TestScheduler_ManualRunReschedules(t *testing.T) {
	r := newStubRun()
	s, clock := newScheduler(t, r, Options{Enabled: true})
	require.NoError(t, s.Start(context.Background()))

	clock.Advance(10 * time.Hour)
	report, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.TriggerManual, report.Trigger)
	assert.Equal(t, epoch.Add(10*time.Hour+interval), s.Status().NextRunAt)
	assert.Equal(t, 1, clock.Pending())
}

// firedClock hands out timers that always report they already fired, and
// keeps every callback so a test can deliver it late.
type firedClock struct {
	mu        sync.Mutex
	now       time.Time
	callbacks []func()
}

type firedTimer struct{}

func (firedTimer) Stop() bool { return false }

func (c *firedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *firedClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, f)
	return firedTimer{}
}

func (c *firedClock) callback(i int) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callbacks[i]
}

func TestScheduler_LateTimerCallbackIsIgnored(t *testing.T) {
	r := newStubRun()
	clock := &firedClock{now: epoch}
	s, err := New(r.run, Options{Enabled: true, Interval: interval, Clock: clock})
	require.NoError(t, err)
	t.Cleanup(func() { s.Stop(context.Background()) })

	require.NoError(t, s.Start(context.Background()))
	clock.mu.Lock()
	clock.now = epoch.Add(time.Hour)
	clock.mu.Unlock()

	_, err = s.RunNow(context.Background())
	require.NoError(t, err)
	require.Equal(t, core.TriggerManual, <-r.started)
	next := s.Status().NextRunAt
	assert.Equal(t, epoch.Add(time.Hour+interval), next)

	// The first timer fired while the manual run was releasing the slot.
	clock.callback(0)()
	assert.Equal(t, 1, r.count(), "no off-cadence run")
	assert.False(t, s.Status().IsRunning)
	assert.Equal(t, next, s.Status().NextRunAt)

	clock.callback(1)()
	assert.Equal(t, core.TriggerScheduled, <-r.started)
	waitIdle(t, s)
	assert.Equal(t, 2, r.count())

	clock.mu.Lock()
	armed := len(clock.callbacks)
	clock.mu.Unlock()
	assert.Equal(t, 3, armed, "one timer chain")
}

func TestScheduler_SingleFlight(t *testing.T) {
	r := newStubRun()
	r.block = make(chan struct{})
	s, clock := newScheduler(t, r, Options{Enabled: true})
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.TriggerNow())
	<-r.started
	assert.True(t, s.Status().IsRunning)
	assert.Equal(t, core.PhaseRunning, s.Status().Phase)

	assert.ErrorIs(t, s.TriggerNow(), ErrAlreadyRunning)
	_, err := s.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	clock.Advance(interval)
	assert.Equal(t, 1, r.count(), "timer does not start a second run")

	close(r.block)
	waitIdle(t, s)
	assert.Equal(t, 1, r.count())
	assert.NoError(t, s.TriggerNow(), "slot is free again")
	<-r.started
	waitIdle(t, s)
}

func TestScheduler_FailureIsRecorded(t *testing.T) {
	r := newStubRun()
	r.err = errors.New("store unavailable")
	s, _ := newScheduler(t, r, Options{Enabled: true})
	require.NoError(t, s.Start(context.Background()))

	_, err := s.RunNow(context.Background())
	require.Error(t, err)
	st := s.Status()
	assert.Equal(t, core.RunStatusFailure, st.LastRunStatus)
	assert.Equal(t, "store unavailable", st.LastError)
	assert.False(t, st.IsRunning)
}

func TestScheduler_FailedReportIsFailure(t *testing.T) {
	r := newStubRun()
	r.status = core.RunStatusFailure
	s, _ := newScheduler(t, r, Options{Enabled: true})

	_, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailure, s.Status().LastRunStatus)
	assert.NotEmpty(t, s.Status().LastError)
}

func TestScheduler_PanicDoesNotEscape(t *testing.T) {
	r := newStubRun()
	r.panicMsg = "boom"
	s, _ := newScheduler(t, r, Options{Enabled: true})
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.TriggerNow())
	<-r.started
	waitIdle(t, s)
	assert.Equal(t, core.RunStatusFailure, s.Status().LastRunStatus)
	assert.Contains(t, s.Status().LastError, "boom")

	r.mu.Lock()
	r.panicMsg = ""
	r.mu.Unlock()
	_, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusSuccess, s.Status().LastRunStatus)
}

func TestScheduler_StopWaitsForRun(t *testing.T) {
	r := newStubRun()
	r.block = make(chan struct{})
	s, clock := newScheduler(t, r, Options{Enabled: true})
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.TriggerNow())
	<-r.started

	stopped := make(chan error)
	go func() { stopped <- s.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a run was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(r.block)
	require.NoError(t, <-stopped)

	st := s.Status()
	assert.False(t, st.IsRunning)
	assert.Equal(t, core.PhaseStopped, st.Phase)
	assert.True(t, st.NextRunAt.IsZero())
	assert.Zero(t, clock.Pending())
	assert.ErrorIs(t, s.TriggerNow(), ErrStopped)
	assert.NoError(t, s.Stop(context.Background()), "idempotent")
}

func TestScheduler_StopDeadlineCancelsRun(t *testing.T) {
	r := newStubRun()
	r.block = make(chan struct{})
	s, _ := newScheduler(t, r, Options{Enabled: true})
	require.NoError(t, s.TriggerNow())
	<-r.started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	st := s.Status()
	assert.False(t, st.IsRunning)
	assert.Equal(t, core.RunStatusFailure, st.LastRunStatus)
}

func TestScheduler_Disabled(t *testing.T) {
	r := newStubRun()
	s, clock := newScheduler(t, r, Options{Enabled: false, RunOnStartup: true})
	require.NoError(t, s.Start(context.Background()))

	assert.Zero(t, clock.Pending())
	assert.False(t, s.Status().Enabled)
	assert.True(t, s.Status().NextRunAt.IsZero())

	_, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{core.TriggerManual}, r.triggers)
	assert.Zero(t, clock.Pending(), "manual runs do not arm a disabled scheduler")
}

func TestScheduler_RunWith(t *testing.T) {
	r := newStubRun()
	s, _ := newScheduler(t, r, Options{Enabled: true})

	report, err := s.RunWith(context.Background(), core.TriggerUpload, func(ctx context.Context, trigger string) (*core.RunReport, error) {
		return core.NewRunReport(trigger, epoch), nil
	})
	require.NoError(t, err)
	assert.Equal(t, core.TriggerUpload, report.Trigger)
	assert.Zero(t, r.count())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Options{})
	assert.ErrorIs(t, err, ErrRunFuncRequired)

	_, err = New(newStubRun().run, Options{Enabled: true})
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = New(newStubRun().run, Options{Enabled: false})
	assert.NoError(t, err)
}

func TestFakeClock(t *testing.T) {
	clock := NewFakeClock(epoch)
	var fired []string
	clock.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	clock.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	stopped := clock.AfterFunc(time.Second, func() { fired = append(fired, "x") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	clock.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, epoch.Add(3*time.Second), clock.Now())
	assert.Zero(t, clock.Pending())
}
