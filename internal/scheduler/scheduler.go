// Package scheduler runs tasks on a fixed pool of workers fed by a bounded
// queue. Submission never blocks; a full queue is reported to the caller.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	maxDefaultWorkers = 4
	defaultQueueDepth = 64
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("scheduler: queue full")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("scheduler: closed")
)

// PanicError carries a panic recovered from a task.
type PanicError struct {
	Op    string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("%s: task panicked: %v", e.Op, e.Value) }

// Task is one unit of work.
type Task struct {
	// Op labels the task in logs and metrics.
	Op  string
	Run func() error
	// Done, if set, receives the result of Run on the worker, including a
	// recovered panic as *PanicError. It is called exactly once per accepted task.
	// A panic in Done is recovered and reported by Close.
	Done func(error)
}

// Config tunes a Scheduler. Zero values select defaults.
type Config struct {
	// Workers is the pool size. Default: runtime.NumCPU() capped at 4.
	Workers int
	// QueueDepth bounds pending tasks. Default 64.
	QueueDepth int
	// Registerer receives the scheduler's collectors. Nil uses a private registry.
	Registerer prometheus.Registerer
	Logger     *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = min(runtime.NumCPU(), maxDefaultWorkers)
		if c.Workers < 1 {
			c.Workers = 1
		}
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = defaultQueueDepth
	}
	return c
}

// Scheduler is a fixed worker pool.
type Scheduler struct {
	cfg   Config
	log   zerolog.Logger
	met   *metrics
	tasks chan Task
	g     errgroup.Group

	// mu orders Submit against Close so nothing is sent on a closed channel.
	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	drained   chan struct{}
	// waitErr holds the workers' combined result; read only after drained closes.
	waitErr error
}

// New starts the workers.
func New(cfg Config) (*Scheduler, error) {
	cfg = cfg.withDefaults()
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	met, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:     cfg,
		log:     log.With().Str("component", "scheduler").Logger(),
		met:     met,
		tasks:   make(chan Task, cfg.QueueDepth),
		drained: make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.g.Go(s.work)
	}
	s.log.Debug().Int("workers", cfg.Workers).Int("queue_depth", cfg.QueueDepth).Msg("scheduler started")
	return s, nil
}

// Workers returns the pool size.
func (s *Scheduler) Workers() int { return s.cfg.Workers }

// QueueDepth returns the queue capacity.
func (s *Scheduler) QueueDepth() int { return s.cfg.QueueDepth }

// Submit enqueues t without blocking.
func (s *Scheduler) Submit(t Task) error {
	if t.Run == nil {
		return errors.New("scheduler: task has no Run func")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.met.tasks.WithLabelValues(t.Op, outcomeRejected).Inc()
		return ErrClosed
	}
	s.met.queueDepth.Inc()
	select {
	case s.tasks <- t:
		return nil
	default:
		s.met.queueDepth.Dec()
		s.met.tasks.WithLabelValues(t.Op, outcomeRejected).Inc()
		return ErrQueueFull
	}
}

// work serves the queue until it is closed. It returns the panics recovered
// from Done callbacks; the worker keeps going after one.
func (s *Scheduler) work() error {
	var failed error
	for t := range s.tasks {
		s.met.queueDepth.Dec()
		err := s.run(t)
		switch {
		case err == nil:
			s.met.tasks.WithLabelValues(t.Op, outcomeOK).Inc()
		case isPanic(err):
			s.met.tasks.WithLabelValues(t.Op, outcomePanic).Inc()
		default:
			s.met.tasks.WithLabelValues(t.Op, outcomeError).Inc()
		}
		if t.Done != nil {
			failed = multierr.Append(failed, s.guard(t.Op, "completion callback panicked", func() error {
				t.Done(err)
				return nil
			}))
		}
	}
	return failed
}

func (s *Scheduler) run(t Task) error {
	return s.guard(t.Op, "task panicked", t.Run)
}

// guard calls fn, turning a panic into a *PanicError.
func (s *Scheduler) guard(op, msg string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := &PanicError{Op: op, Value: r, Stack: debug.Stack()}
			s.log.Error().Str("op", op).Interface("panic", r).Bytes("stack", pe.Stack).Msg(msg)
			err = pe
		}
	}()
	return fn()
}

func isPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// Close stops intake and waits until every queued task has run. Tasks are not
// cancelled; if ctx ends first Close returns its error and the workers keep
// draining in the background. Once drained, Close returns the panics recovered
// from Done callbacks, if any. Close may be called more than once.
func (s *Scheduler) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.tasks)
		s.mu.Unlock()
		go func() {
			s.waitErr = s.g.Wait()
			close(s.drained)
		}()
	})
	select {
	case <-s.drained:
		s.log.Debug().Msg("scheduler drained")
		return s.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
