package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trendforge/internal/clients"
	"trendforge/internal/metrics"
	"trendforge/internal/models"
	"trendforge/internal/repository"

	"golang.org/x/sync/errgroup"
)

// ErrIngestRunning is returned when another run holds the ingestion lock.
var ErrIngestRunning = errors.New("ingestion already running")

type IngestService interface {
	// Ingest fetches every source concurrently and stores new items. A failing
	// source is recorded in the report and never stops the others.
	Ingest(ctx context.Context, sources []string) (*IngestReport, error)
	// RecentRuns lists recorded runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]models.IngestRun, error)
	// Running reports whether some process holds the ingestion lock.
	Running(ctx context.Context) (bool, error)
}

// IngestReport summarizes one run.
type IngestReport struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Inserted   int            `json:"inserted"`
	Duplicates int            `json:"duplicates"`
	Malformed  int            `json:"malformed"`
	Failed     int            `json:"failed"`
	Error      string         `json:"error,omitempty"`
	Sources    []SourceReport `json:"sources"`
}

// SourceReport is the outcome for one source.
type SourceReport struct {
	Source     string `json:"source"`
	Path       string `json:"path,omitempty"`
	Fetched    int    `json:"fetched"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Malformed  int    `json:"malformed"`
	Skipped    bool   `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
}

type IngestConfig struct {
	DefaultSources []string
	Concurrency    int
	FetchTimeout   time.Duration
	// Retry applies to route resolution and to each source fetch.
	Retry          RetryPolicy
	RoutesCacheTTL time.Duration
	// LockTTL debounces overlapping runs; zero disables the lock.
	LockTTL  time.Duration
	Location *time.Location
	// RunRetention bounds the recorded run history.
	RunRetention time.Duration
}

type ingestService struct {
	repo    repository.ItemRepository
	runs    repository.IngestRunRepository
	cache   repository.CacheRepository
	client  clients.FeedClient
	metrics metrics.Collector
	logger  *slog.Logger
	config  IngestConfig
	now     func() time.Time
}

// NewIngestService wires the aggregator. cache may be nil, in which case routes
// are resolved on every run and no lock is taken. runs may be nil to skip the
// run history.
func NewIngestService(
	repo repository.ItemRepository,
	runs repository.IngestRunRepository,
	cache repository.CacheRepository,
	client clients.FeedClient,
	collector metrics.Collector,
	logger *slog.Logger,
	config IngestConfig,
) IngestService {
	if config.Concurrency < 1 {
		config.Concurrency = 4
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 15 * time.Second
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.RunRetention <= 0 {
		config.RunRetention = 30 * 24 * time.Hour
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &ingestService{
		repo:    repo,
		runs:    runs,
		cache:   cache,
		client:  client,
		metrics: collector,
		logger:  logger.With("component", "ingest"),
		config:  config,
		now:     time.Now,
	}
}

func (s *ingestService) Ingest(ctx context.Context, sources []string) (*IngestReport, error) {
	if len(sources) == 0 {
		sources = s.config.DefaultSources
	}
	sources = uniqueSources(sources)

	report := &IngestReport{StartedAt: s.now()}

	release, err := s.lock(ctx)
	if err != nil {
		return report, err
	}
	defer release()

	routes, err := s.routes(ctx, sources)
	if err != nil {
		err = fmt.Errorf("resolve routes: %w", err)
		report.Error = err.Error()
		report.FinishedAt = s.now()
		s.logger.Error("ingestion aborted", "error", err)
		s.record(ctx, report)
		return report, err
	}

	report.Sources = make([]SourceReport, len(sources))

	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)
	for i, source := range sources {
		path, ok := routes[source]
		if !ok || path == "" {
			s.logger.Warn("source has no route, skipping", "source", source)
			report.Sources[i] = SourceReport{Source: source, Skipped: true}
			continue
		}

		g.Go(func() error {
			report.Sources[i] = s.ingestSource(ctx, source, path)
			return nil
		})
	}
	_ = g.Wait()

	for _, sr := range report.Sources {
		report.Inserted += sr.Inserted
		report.Duplicates += sr.Duplicates
		report.Malformed += sr.Malformed
		if sr.Error != "" {
			report.Failed++
		}
	}
	report.FinishedAt = s.now()

	s.logger.Info("ingestion finished",
		"sources", len(sources),
		"inserted", report.Inserted,
		"duplicates", report.Duplicates,
		"malformed", report.Malformed,
		"failed", report.Failed,
		"took", report.FinishedAt.Sub(report.StartedAt).String(),
	)
	s.record(ctx, report)
	return report, nil
}

func (s *ingestService) Running(ctx context.Context) (bool, error) {
	if s.cache == nil || s.config.LockTTL <= 0 {
		return false, nil
	}
	return s.cache.Exists(ctx, repository.KeyIngestLock)
}

func (s *ingestService) RecentRuns(ctx context.Context, limit int) ([]models.IngestRun, error) {
	if s.runs == nil {
		return []models.IngestRun{}, nil
	}
	return s.runs.GetLastN(ctx, limit)
}

// record stores the run summary and prunes old history. Failures are logged only.
func (s *ingestService) record(ctx context.Context, report *IngestReport) {
	if s.runs == nil {
		return
	}

	sources, err := json.Marshal(report.Sources)
	if err != nil {
		s.logger.Warn("encode run sources failed", "error", err)
		sources = []byte("[]")
	}

	ctx = context.WithoutCancel(ctx)
	run := &models.IngestRun{
		StartedAt:  report.StartedAt.UTC(),
		FinishedAt: report.FinishedAt.UTC(),
		Inserted:   report.Inserted,
		Duplicates: report.Duplicates,
		Malformed:  report.Malformed,
		Failed:     report.Failed,
		Error:      report.Error,
		Sources:    sources,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		s.logger.Warn("record ingest run failed", "error", err)
		return
	}
	if n, err := s.runs.DeleteOlderThan(ctx, s.now().UTC().Add(-s.config.RunRetention)); err != nil {
		s.logger.Warn("prune ingest runs failed", "error", err)
	} else if n > 0 {
		s.logger.Debug("pruned ingest runs", "count", n)
	}
}

func (s *ingestService) ingestSource(ctx context.Context, source, path string) SourceReport {
	sr := SourceReport{Source: source, Path: path}

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
	defer cancel()

	var records []map[string]any
	calls, err := withRetry(fetchCtx, s.config.Retry, nil, func(ctx context.Context) error {
		var err error
		records, err = s.client.Fetch(ctx, path)
		return err
	})
	if calls > 1 {
		s.logger.Debug("fetch retried", "source", source, "calls", calls)
	}
	if err != nil {
		s.logger.Error("fetch failed", "source", source, "path", path, "error", err)
		s.metrics.SourceFailed(source)
		sr.Error = err.Error()
		return sr
	}
	sr.Fetched = len(records)

	now := s.now().In(s.config.Location)
	seen := make(map[string]struct{}, len(records))
	batch := make([]models.Item, 0, len(records))
	for _, raw := range records {
		item, err := NormalizeRecord(source, raw, now)
		if err != nil {
			s.logger.Debug("dropping record", "source", source, "error", err)
			sr.Malformed++
			continue
		}
		if _, dup := seen[item.SourceItemID]; dup {
			sr.Duplicates++
			continue
		}
		seen[item.SourceItemID] = struct{}{}
		batch = append(batch, *item)
	}
	if sr.Malformed > 0 {
		s.logger.Warn("malformed records dropped", "source", source, "count", sr.Malformed)
		s.metrics.RecordsMalformed(source, sr.Malformed)
	}

	inserted, err := s.repo.InsertMany(ctx, batch)
	if err != nil {
		s.logger.Error("store failed", "source", source, "error", err)
		s.metrics.SourceFailed(source)
		sr.Error = err.Error()
		return sr
	}

	sr.Inserted = int(inserted)
	sr.Duplicates += len(batch) - sr.Inserted
	s.metrics.ItemsIngested(source, sr.Inserted)
	s.metrics.DuplicatesSkipped(source, sr.Duplicates)

	s.logger.Info("source ingested",
		"source", source,
		"fetched", sr.Fetched,
		"inserted", sr.Inserted,
		"duplicates", sr.Duplicates,
	)
	return sr
}

// routes returns the cached route table or resolves and caches a fresh one. A
// cached table that lacks a requested source is dropped and resolved again.
func (s *ingestService) routes(ctx context.Context, sources []string) (map[string]string, error) {
	if s.cache != nil && s.config.RoutesCacheTTL > 0 {
		var cached map[string]string
		found, err := s.cache.GetJSON(ctx, repository.KeyRouteTable, &cached)
		switch {
		case err != nil:
			s.logger.Warn("route cache read failed", "error", err)
		case found && len(cached) > 0 && coversSources(cached, sources):
			return cached, nil
		case found:
			s.logger.Info("cached route table misses requested sources, refreshing")
			if err := s.cache.Delete(ctx, repository.KeyRouteTable); err != nil {
				s.logger.Warn("route cache delete failed", "error", err)
			}
		}
	}

	var routes map[string]string
	_, err := withRetry(ctx, s.config.Retry, nil, func(ctx context.Context) error {
		var err error
		routes, err = s.client.ResolveRoutes(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.config.RoutesCacheTTL > 0 && len(routes) > 0 {
		if err := s.cache.SetJSON(ctx, repository.KeyRouteTable, routes, s.config.RoutesCacheTTL); err != nil {
			s.logger.Warn("route cache write failed", "error", err)
		}
	}
	return routes, nil
}

// lock takes the run lock. A cache failure is logged and the run proceeds.
func (s *ingestService) lock(ctx context.Context) (func(), error) {
	noop := func() {}
	if s.cache == nil || s.config.LockTTL <= 0 {
		return noop, nil
	}

	token, err := s.cache.AcquireLock(ctx, repository.KeyIngestLock, s.config.LockTTL)
	if err != nil {
		s.logger.Warn("ingest lock unavailable, running unlocked", "error", err)
		return noop, nil
	}
	if token == "" {
		return noop, ErrIngestRunning
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		if err := s.cache.ReleaseLock(releaseCtx, repository.KeyIngestLock, token); err != nil {
			s.logger.Warn("ingest lock release failed", "error", err)
		}
	}, nil
}

func coversSources(routes map[string]string, sources []string) bool {
	for _, source := range sources {
		if routes[source] == "" {
			return false
		}
	}
	return true
}

func uniqueSources(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, source := range sources {
		if source == "" {
			continue
		}
		if _, ok := seen[source]; ok {
			continue
		}
		seen[source] = struct{}{}
		out = append(out, source)
	}
	return out
}
