// Package scheduler runs image generation on a fixed pool of workers.
//
// The pool is a single bounded FIFO queue drained by K persistent worker
// goroutines. At most K tasks execute at once; a task that finishes frees its
// worker, which immediately pulls the next queued task, so K calls stay in
// flight until the queue drains regardless of individual call duration.
//
// The scheduler owns its context. Tasks keep running after the HTTP request
// that enqueued them has returned or its client has gone away; only Stop
// cancels them. Queued tasks are held in memory and are lost if the process
// exits before they start.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"atelier/application/ports"
)

var (
	ErrQueueFull      = errors.New("image queue is full")
	ErrNotRunning     = errors.New("image scheduler is not running")
	ErrAlreadyRunning = errors.New("image scheduler is already running")
)

const (
	DefaultWorkers   = 5
	DefaultQueueSize = 256
)

// Config contains configuration for the scheduler
type Config struct {
	Workers   int
	QueueSize int
}

// Observer receives scheduler lifecycle callbacks. Implementations must be
// safe for concurrent use.
type Observer interface {
	TaskQueued(depth int)
	TaskStarted(inFlight int)
	TaskFinished(duration time.Duration, err error, inFlight int)
	TaskPanicked()
}

type nopObserver struct{}

func (nopObserver) TaskQueued(int)                         {}
func (nopObserver) TaskStarted(int)                        {}
func (nopObserver) TaskFinished(time.Duration, error, int) {}
func (nopObserver) TaskPanicked()                          {}

// Stats is a point-in-time view of the scheduler counters.
type Stats struct {
	Workers     int
	Queued      int
	InFlight    int
	MaxInFlight int
	Submitted   uint64
	Succeeded   uint64
	Failed      uint64
	Panics      uint64
}

// ImageScheduler is a bounded worker pool for image generation tasks.
type ImageScheduler struct {
	workers  int
	queue    chan ports.ImageTask
	logger   *zap.Logger
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc
	wg     *conc.WaitGroup

	mu      sync.RWMutex
	running bool
	stopped bool

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	submitted   atomic.Uint64
	succeeded   atomic.Uint64
	failed      atomic.Uint64
	panicked    atomic.Uint64
}

// NewImageScheduler creates a scheduler. Call Start before enqueueing.
func NewImageScheduler(cfg Config, logger *zap.Logger, observer Observer) *ImageScheduler {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}

	// Detached from any request: cancelled only by Stop.
	ctx, cancel := context.WithCancel(context.Background())

	return &ImageScheduler{
		workers:  cfg.Workers,
		queue:    make(chan ports.ImageTask, cfg.QueueSize),
		logger:   logger.Named("image_scheduler"),
		observer: observer,
		ctx:      ctx,
		cancel:   cancel,
		wg:       conc.NewWaitGroup(),
	}
}

// Start launches the worker goroutines.
func (s *ImageScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if s.stopped {
		return ErrNotRunning
	}

	for i := 0; i < s.workers; i++ {
		id := i
		s.wg.Go(func() { s.worker(id) })
	}
	s.running = true

	s.logger.Info("Image scheduler started",
		zap.Int("workers", s.workers),
		zap.Int("queue_size", cap(s.queue)),
	)
	return nil
}

// Enqueue appends a task to the FIFO queue without blocking.
func (s *ImageScheduler) Enqueue(task ports.ImageTask) error {
	if task.Execute == nil {
		return fmt.Errorf("task for painting %s has no Execute func", task.PaintingID)
	}

	// Held until the send completes so Stop cannot close the queue underneath us.
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running || s.stopped {
		return ErrNotRunning
	}

	select {
	case s.queue <- task:
		s.submitted.Add(1)
		s.observer.TaskQueued(len(s.queue))
		s.logger.Debug("Image task queued",
			zap.String("painting_id", task.PaintingID.String()),
			zap.Int("queue_depth", len(s.queue)),
		)
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue and lets workers drain it. If ctx expires first,
// in-flight tasks are cancelled and ctx.Err() is returned once the workers exit.
func (s *ImageScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	wasRunning := s.running
	close(s.queue)
	s.mu.Unlock()

	if !wasRunning {
		s.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("Image scheduler drained")
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		s.logger.Warn("Image scheduler stopped before queue drained", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// Running reports whether Start has been called and Stop has not.
func (s *ImageScheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running && !s.stopped
}

// Stats returns the current counters.
func (s *ImageScheduler) Stats() Stats {
	return Stats{
		Workers:     s.workers,
		Queued:      len(s.queue),
		InFlight:    int(s.inFlight.Load()),
		MaxInFlight: int(s.maxInFlight.Load()),
		Submitted:   s.submitted.Load(),
		Succeeded:   s.succeeded.Load(),
		Failed:      s.failed.Load(),
		Panics:      s.panicked.Load(),
	}
}

func (s *ImageScheduler) worker(id int) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case task, ok := <-s.queue:
			if !ok {
				return
			}
			s.run(id, task)
		}
	}
}

// run executes one task. A failing or panicking task is recorded against
// that task only; the worker keeps pulling from the queue.
func (s *ImageScheduler) run(workerID int, task ports.ImageTask) {
	n := s.inFlight.Add(1)
	s.recordMax(n)
	s.observer.TaskStarted(int(n))

	start := time.Now()
	var err error
	var catcher panics.Catcher
	catcher.Try(func() { err = task.Execute(s.ctx) })

	if recovered := catcher.Recovered(); recovered != nil {
		s.panicked.Add(1)
		s.observer.TaskPanicked()
		err = recovered.AsError()
		s.logger.Error("Image task panicked",
			zap.Int("worker", workerID),
			zap.String("painting_id", task.PaintingID.String()),
			zap.String("panic", fmt.Sprint(recovered.Value)),
			zap.String("stack", string(recovered.Stack)),
		)
	}

	n = s.inFlight.Add(-1)
	duration := time.Since(start)
	s.observer.TaskFinished(duration, err, int(n))

	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("Image task failed",
			zap.Int("worker", workerID),
			zap.String("painting_id", task.PaintingID.String()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}
	s.succeeded.Add(1)
	s.logger.Debug("Image task finished",
		zap.Int("worker", workerID),
		zap.String("painting_id", task.PaintingID.String()),
		zap.Duration("duration", duration),
	)
}

func (s *ImageScheduler) recordMax(n int64) {
	for {
		cur := s.maxInFlight.Load()
		if n <= cur || s.maxInFlight.CompareAndSwap(cur, n) {
			return
		}
	}
}
