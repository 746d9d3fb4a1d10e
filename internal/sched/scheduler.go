package sched

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Task is a unit of work and its cadence.
type Task struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Status is the externally visible state of one task.
type Status struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	LastRun      time.Time     `json:"lastRun"`
	Failures     int           `json:"consecutiveFailures"`
	CurrentDelay time.Duration `json:"currentDelay"`
}

// record is the scheduler-owned bookkeeping for one task.
type record struct {
	task     Task
	mu       sync.Mutex
	lastRun  time.Time
	failures int
	delay    time.Duration
}

// Scheduler drives registered tasks until stopped.
type Scheduler struct {
	backoffFactor float64
	backoffMax    time.Duration

	mu      sync.Mutex
	tasks   map[string]*record
	order   []*record
	started bool
	stopped bool

	stop   chan struct{} // closed on Stop: loops exit at next safe point
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler with the given backoff parameters.
func New(backoffFactor float64, backoffMax time.Duration) *Scheduler {
	if backoffFactor < 1 {
		backoffFactor = 2
	}
	return &Scheduler{
		backoffFactor: backoffFactor,
		backoffMax:    backoffMax,
		tasks:         make(map[string]*record),
		stop:          make(chan struct{}),
	}
}

// Register adds a task. Names must be unique and registration must happen
// before Start.
func (s *Scheduler) Register(t Task) error {
	if t.Name == "" {
		return fmt.Errorf("sched: task name required")
	}
	if t.Interval <= 0 {
		return fmt.Errorf("sched: task %s: interval must be > 0", t.Name)
	}
	if t.Run == nil {
		return fmt.Errorf("sched: task %s: run function required", t.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("sched: cannot register %s after start", t.Name)
	}
	if _, exists := s.tasks[t.Name]; exists {
		return fmt.Errorf("sched: task %s already registered", t.Name)
	}
	rec := &record{task: t, delay: t.Interval}
	s.tasks[t.Name] = rec
	s.order = append(s.order, rec)
	return nil
}

// Start launches one goroutine per registered task.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("sched: already started")
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, rec := range s.order {
		s.wg.Add(1)
		go s.loop(runCtx, rec)
	}
	return nil
}

// Stop lets in-flight tasks finish within grace, then cancels them and
// waits for every loop to exit. Repeated calls are no-ops.
func (s *Scheduler) Stop(grace time.Duration) {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	close(s.stop)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		cancel()
		<-done
	}
	cancel()
}

// Status reports the current record of every task in registration order.
func (s *Scheduler) Status() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.order))
	for _, rec := range s.order {
		rec.mu.Lock()
		out = append(out, Status{
			Name:         rec.task.Name,
			Interval:     rec.task.Interval,
			LastRun:      rec.lastRun,
			Failures:     rec.failures,
			CurrentDelay: rec.delay,
		})
		rec.mu.Unlock()
	}
	return out
}

// loop is the serial duty cycle of one task. The timer is re-armed only
// after the run returns, so overlapping executions cannot happen.
func (s *Scheduler) loop(ctx context.Context, rec *record) {
	defer s.wg.Done()

	timer := time.NewTimer(rec.task.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-timer.C:
		}

		s.runOnce(ctx, rec)

		rec.mu.Lock()
		delay := rec.delay
		rec.mu.Unlock()
		timer.Reset(delay)
	}
}

// runOnce executes the task once with its timeout and updates the failure
// accounting.
func (s *Scheduler) runOnce(ctx context.Context, rec *record) {
	runCtx := ctx
	if rec.task.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, rec.task.Timeout)
		defer cancel()
	}

	err := rec.task.Run(runCtx)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.lastRun = time.Now()

	if err == nil {
		rec.failures = 0
		rec.delay = rec.task.Interval
		return
	}

	rec.failures++
	next := time.Duration(float64(rec.delay) * s.backoffFactor)
	if rec.failures == 1 {
		next = time.Duration(float64(rec.task.Interval) * s.backoffFactor)
	}
	if next > s.backoffMax {
		next = s.backoffMax
	}
	rec.delay = next
	log.Printf("sched: task %s failed (%d consecutive, next in %v): %v",
		rec.task.Name, rec.failures, rec.delay, err)
}
