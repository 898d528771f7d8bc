package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"trendforge/internal/service"
)

// IngestWorker runs the aggregator on a fixed interval, starting immediately.
type IngestWorker struct {
	service  service.IngestService
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	loop     loop
}

func NewIngestWorker(service service.IngestService, interval time.Duration, logger *slog.Logger) *IngestWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &IngestWorker{
		service:  service,
		interval: interval,
		timeout:  5 * time.Minute,
		logger:   logger.With("component", "ingest_worker"),
	}
}

func (w *IngestWorker) Start() {
	if w.loop.start(w.run) {
		w.logger.Info("ingest worker started", "interval", w.interval.String())
	}
}

func (w *IngestWorker) Stop() {
	if w.loop.stop() {
		w.logger.Info("ingest worker stopped")
	}
}

// Abort cancels a run in progress.
func (w *IngestWorker) Abort() {
	w.loop.abort()
}

func (w *IngestWorker) run(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.ingest(ctx)

	for {
		select {
		case <-ticker.C:
			w.ingest(ctx)
		case <-stop:
			return
		}
	}
}

func (w *IngestWorker) ingest(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, w.timeout)
	defer cancel()

	report, err := w.service.Ingest(ctx, nil)
	switch {
	case errors.Is(err, service.ErrIngestRunning):
		w.logger.Info("ingestion skipped, another run holds the lock")
	case err != nil:
		w.logger.Error("ingestion failed", "error", err)
	default:
		w.logger.Debug("ingestion run done", "inserted", report.Inserted, "failed", report.Failed)
	}
}
