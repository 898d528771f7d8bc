package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"trendforge/internal/models"
	"trendforge/internal/service"
)

// GenerationWorker drains the generation queue. It keeps claiming while items
// complete and sleeps for the poll interval otherwise. Stale claims are
// requeued at start and again every recoverEvery idle polls.
type GenerationWorker struct {
	service      service.GenerationService
	interval     time.Duration
	recoverEvery int
	logger       *slog.Logger
	loop         loop
}

func NewGenerationWorker(service service.GenerationService, interval time.Duration, logger *slog.Logger) *GenerationWorker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &GenerationWorker{
		service:      service,
		interval:     interval,
		recoverEvery: 30,
		logger:       logger.With("component", "generation_worker"),
	}
}

func (w *GenerationWorker) Start() {
	if w.loop.start(w.run) {
		w.logger.Info("generation worker started", "poll_interval", w.interval.String())
	}
}

// Stop waits for the item being processed, if any, before returning.
func (w *GenerationWorker) Stop() {
	if w.loop.stop() {
		w.logger.Info("generation worker stopped")
	}
}

// Abort cancels the item in flight. The service releases it to the queue.
func (w *GenerationWorker) Abort() {
	w.loop.abort()
}

// run only sees ctx cancelled through Abort; Stop lets the current item finish.
func (w *GenerationWorker) run(ctx context.Context, stop <-chan struct{}) {
	w.recoverStale(ctx)

	timer := time.NewTimer(0)
	defer timer.Stop()

	idle := 0
	for {
		select {
		case <-stop:
			return
		case <-timer.C:
		}
		select {
		case <-stop:
			return
		default:
		}

		if ctx.Err() != nil {
			return
		}

		next := w.interval
		switch w.step(ctx) {
		case service.OutcomeCompleted:
			next = 0
			idle = 0
		case service.OutcomeIdle:
			idle++
			if w.recoverEvery > 0 && idle%w.recoverEvery == 0 {
				w.recoverStale(ctx)
			}
		default:
			idle = 0
		}
		timer.Reset(next)
	}
}

func (w *GenerationWorker) recoverStale(ctx context.Context) {
	if n, err := w.service.RecoverStale(ctx); err != nil {
		w.logger.Error("stale claim recovery failed", "error", err)
	} else if n > 0 {
		w.logger.Info("stale claims requeued", "count", n)
	}
}

// step processes one item and returns its outcome.
func (w *GenerationWorker) step(ctx context.Context) service.Outcome {
	outcome, err := w.service.ProcessNext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrPartialGeneration), errors.Is(err, models.ErrDataIntegrity):
		w.logger.Warn("generation incomplete", "outcome", outcome.String(), "error", err)
	case errors.Is(err, context.Canceled):
		w.logger.Info("generation aborted", "outcome", outcome.String())
	case errors.Is(err, models.ErrStaleTransition), errors.Is(err, models.ErrItemNotFound):
		w.logger.Info("claimed item changed during generation", "outcome", outcome.String(), "error", err)
	default:
		w.logger.Error("generation worker iteration failed", "outcome", outcome.String(), "error", err)
	}
	return outcome
}
