package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Worker interface {
	Start()
	Stop()
}

// Aborter is implemented by workers whose in-flight work can be cancelled.
type Aborter interface {
	Abort()
}

type Scheduler struct {
	workers     []Worker
	logger      *slog.Logger
	stopTimeout time.Duration
	abortGrace  time.Duration
	stopped     bool
	mu          sync.RWMutex
}

func NewScheduler(logger *slog.Logger, stopTimeout time.Duration) *Scheduler {
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	return &Scheduler{
		workers:     make([]Worker, 0),
		logger:      logger.With("component", "scheduler"),
		stopTimeout: stopTimeout,
		abortGrace:  5 * time.Second,
	}
}

func (s *Scheduler) AddWorker(worker Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker)
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	s.logger.Info("starting scheduler", "workers", len(s.workers))
	for _, worker := range s.workers {
		worker.Start()
	}
}

// Stop asks every worker to stop and waits for in-flight work up to the stop
// timeout. Past the timeout, workers that implement Aborter are cancelled so
// they can hand their work back. It reports whether all workers finished in
// time.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return true
	}
	s.stopped = true
	workers := append([]Worker(nil), s.workers...)
	s.mu.Unlock()

	s.logger.Info("stopping scheduler")

	var wg sync.WaitGroup
	for _, worker := range workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			w.Stop()
		}(worker)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped gracefully")
		return true
	case <-time.After(s.stopTimeout):
	}

	s.logger.Warn("scheduler stop timeout, aborting in-flight work", "timeout", s.stopTimeout.String())
	for _, worker := range workers {
		if a, ok := worker.(Aborter); ok {
			a.Abort()
		}
	}

	select {
	case <-done:
		s.logger.Info("in-flight work aborted")
	case <-time.After(s.abortGrace):
		s.logger.Error("workers still running after abort", "grace", s.abortGrace.String())
	}
	return false
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.stopped
}

// loop is the start/stop plumbing shared by the workers. Stop blocks until the
// current iteration returns; abort cancels the context that iteration runs in.
type loop struct {
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc
}

func (l *loop) start(run func(ctx context.Context, stop <-chan struct{})) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return false
	}
	l.running = true
	l.stopChan = make(chan struct{})
	l.done = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		defer cancel()
		run(ctx, stop)
	}(l.stopChan, l.done)
	return true
}

func (l *loop) abort() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
}

func (l *loop) stop() bool {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return false
	}
	l.running = false
	close(l.stopChan)
	done := l.done
	l.mu.Unlock()

	<-done
	return true
}
