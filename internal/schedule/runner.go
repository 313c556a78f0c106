package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"turnstile/internal/logging"
)

// Runner executes named maintenance tasks on fixed intervals or once per day
// at a wall-clock time. Each task runs in its own goroutine; failures are
// logged and the task stays scheduled.
type Runner struct {
	logger *slog.Logger
	tasks  []task

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

type task struct {
	name     string
	interval time.Duration
	daily    time.Duration
	isDaily  bool
	run      func(context.Context) error
}

// NewRunner creates an empty runner. Tasks are registered before Start.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{logger: logger.With(logging.String(logging.FieldComponent, "schedule"))}
}

// Every registers a task that runs on a fixed interval. Intervals of zero or
// less are ignored.
func (r *Runner) Every(name string, interval time.Duration, fn func(context.Context) error) {
	if interval <= 0 || fn == nil {
		return
	}
	r.tasks = append(r.tasks, task{name: name, interval: interval, run: fn})
}

// Daily registers a task that runs once per day at the given offset from
// midnight in local time.
func (r *Runner) Daily(name string, at time.Duration, fn func(context.Context) error) {
	if at < 0 || at >= 24*time.Hour || fn == nil {
		return
	}
	r.tasks = append(r.tasks, task{name: name, daily: at, isDaily: true, run: fn})
}

// Start launches all registered task loops. It returns immediately.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	for _, t := range r.tasks {
		r.wg.Add(1)
		go r.loop(runCtx, t)
	}
}

// Stop cancels all task loops and waits for in-flight runs to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	started := r.started
	r.cancel = nil
	r.started = false
	r.mu.Unlock()

	if !started {
		return
	}
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, t task) {
	defer r.wg.Done()

	if t.isDaily {
		r.dailyLoop(ctx, t)
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.execute(ctx, t)
		}
	}
}

func (r *Runner) dailyLoop(ctx context.Context, t task) {
	timer := time.NewTimer(nextDailyDelay(time.Now(), t.daily))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.execute(ctx, t)
			timer.Reset(nextDailyDelay(time.Now(), t.daily))
		}
	}
}

func (r *Runner) execute(ctx context.Context, t task) {
	if err := t.run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Warn("scheduled task failed",
			logging.String("task", t.name),
			logging.Error(err))
		return
	}
	r.logger.Debug("scheduled task completed", logging.String("task", t.name))
}

// nextDailyDelay computes the wait until the next occurrence of the
// wall-clock offset, always in the future.
func nextDailyDelay(now time.Time, at time.Duration) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	next := midnight.Add(at)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
