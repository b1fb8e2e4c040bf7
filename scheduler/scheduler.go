// Package scheduler runs ingestion periodically and on demand, never more
// than one run at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/lexrag/core"
)

var (
	// ErrAlreadyRunning is returned when a run is requested while one is in flight.
	ErrAlreadyRunning = errors.New("ingestion already running")

	// ErrStopped is returned when a run is requested after Stop.
	ErrStopped = errors.New("scheduler stopped")

	// ErrRunFuncRequired is returned by New without a run function.
	ErrRunFuncRequired = errors.New("run function required")

	// ErrInvalidInterval is returned for a non-positive interval on an enabled scheduler.
	ErrInvalidInterval = errors.New("interval must be positive")
)

// RunFunc performs one ingestion run.
type RunFunc func(ctx context.Context, trigger string) (*core.RunReport, error)

// Options configures a Scheduler.
type Options struct {
	Interval     time.Duration
	RunOnStartup bool
	Enabled      bool
	Clock        Clock
	Logger       *slog.Logger
}

// Scheduler triggers RunFunc every Interval, measured from the end of the
// previous run, and on demand. It holds a single run slot shared by every
// trigger.
type Scheduler struct {
	run    RunFunc
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	started    bool
	stopped    bool
	running    bool
	done       chan struct{}
	timer      Timer
	timerGen   uint64
	lastRunAt  time.Time
	nextRunAt  time.Time
	lastStatus core.RunStatus
	lastErr    string
	lastReport *core.RunReport
}

// New creates a stopped scheduler. Call Start to arm the timer.
func New(run RunFunc, opts Options) (*Scheduler, error) {
	if run == nil {
		return nil, ErrRunFuncRequired
	}
	if opts.Enabled && opts.Interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		run:        run,
		opts:       opts,
		logger:     opts.Logger.With("component", "scheduler"),
		ctx:        ctx,
		cancel:     cancel,
		lastStatus: core.RunStatusNever,
	}, nil
}

// Start arms the schedule. With RunOnStartup a run begins immediately;
// otherwise the first run is one interval away. A disabled scheduler only
// serves manual triggers.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}
	s.started = true

	if !s.opts.Enabled {
		s.logger.Info("scheduled ingestion disabled")
		return nil
	}
	s.logger.Info("scheduler started", "interval", s.opts.Interval, "run_on_startup", s.opts.RunOnStartup)
	if s.opts.RunOnStartup {
		if _, err := s.launchLocked(core.TriggerStartup); err != nil {
			return err
		}
		return nil
	}
	s.scheduleLocked()
	return nil
}

// TriggerNow starts a run in the background and returns immediately.
func (s *Scheduler) TriggerNow() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.launchLocked(core.TriggerManual)
	return err
}

// RunNow runs the default RunFunc synchronously in the shared run slot.
func (s *Scheduler) RunNow(ctx context.Context) (*core.RunReport, error) {
	return s.RunWith(ctx, core.TriggerManual, s.run)
}

// RunWith runs fn synchronously in the shared run slot. The run is cancelled
// when ctx ends or the scheduler stops.
func (s *Scheduler) RunWith(ctx context.Context, trigger string, fn RunFunc) (*core.RunReport, error) {
	s.mu.Lock()
	done, err := s.acquireLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	report, err := s.execute(runCtx, trigger, fn)
	s.release(done, report, err)
	return report, err
}

// Stop disarms the timer and waits for an in-flight run. If ctx ends first
// the run is cancelled, and Stop still waits for it to return. Stop is
// idempotent.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.timerGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.nextRunAt = time.Time{}
	done := s.done
	s.mu.Unlock()

	var err error
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("stop deadline reached, cancelling run")
			err = ctx.Err()
			s.cancel()
			<-done
		}
	}
	s.cancel()
	s.logger.Info("scheduler stopped")
	return err
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() core.SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	phase := core.PhaseIdle
	switch {
	case s.running:
		phase = core.PhaseRunning
	case s.stopped:
		phase = core.PhaseStopped
	}
	return core.SchedulerState{
		Phase:         phase,
		IsRunning:     s.running,
		Enabled:       s.opts.Enabled,
		Interval:      s.opts.Interval,
		LastRunAt:     s.lastRunAt,
		NextRunAt:     s.nextRunAt,
		LastRunStatus: s.lastStatus,
		LastError:     s.lastErr,
		LastReport:    s.lastReport,
	}
}

// acquireLocked takes the run slot. Caller holds s.mu.
func (s *Scheduler) acquireLocked() (chan struct{}, error) {
	if s.stopped {
		return nil, ErrStopped
	}
	if s.running {
		return nil, ErrAlreadyRunning
	}
	s.running = true
	s.done = make(chan struct{})
	return s.done, nil
}

// launchLocked starts the default run in the background. Caller holds s.mu.
func (s *Scheduler) launchLocked(trigger string) (chan struct{}, error) {
	done, err := s.acquireLocked()
	if err != nil {
		return nil, err
	}
	go func() {
		report, err := s.execute(s.ctx, trigger, s.run)
		s.release(done, report, err)
	}()
	return done, nil
}

// execute calls fn, converting a panic into an error.
func (s *Scheduler) execute(ctx context.Context, trigger string, fn RunFunc) (report *core.RunReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("ingestion run panicked", "trigger", trigger, "panic", r)
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	s.logger.Info("ingestion run triggered", "trigger", trigger)
	return fn(ctx, trigger)
}

// release records the outcome, frees the slot and reschedules.
func (s *Scheduler) release(done chan struct{}, report *core.RunReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastRunAt = s.opts.Clock.Now()
	s.lastReport = report
	switch {
	case err != nil:
		s.lastStatus = core.RunStatusFailure
		s.lastErr = err.Error()
		s.logger.Error("ingestion run failed", "err", err)
	case report == nil || report.Status == core.RunStatusFailure:
		s.lastStatus = core.RunStatusFailure
		s.lastErr = "no unit was ingested successfully"
	default:
		s.lastStatus = core.RunStatusSuccess
		s.lastErr = ""
	}

	s.running = false
	s.done = nil
	close(done)

	if s.started && !s.stopped && s.opts.Enabled {
		s.scheduleLocked()
	}
}

// scheduleLocked arms the timer one interval from now. Caller holds s.mu.
// Each arming gets a new generation; a callback from an older timer that
// already fired is ignored.
func (s *Scheduler) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerGen++
	gen := s.timerGen
	s.nextRunAt = s.opts.Clock.Now().Add(s.opts.Interval)
	s.timer = s.opts.Clock.AfterFunc(s.opts.Interval, func() { s.onTimer(gen) })
	s.logger.Debug("next ingestion run scheduled", "at", s.nextRunAt)
}

func (s *Scheduler) onTimer(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.timerGen || s.stopped {
		s.logger.Debug("stale timer ignored", "generation", gen)
		return
	}
	s.timer = nil
	if _, err := s.launchLocked(core.TriggerScheduled); err != nil {
		// a manual run holds the slot and will reschedule when it ends
		s.logger.Debug("scheduled run skipped", "err", err)
	}
}
