package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trendforge/internal/clients"
	"trendforge/internal/metrics"
	"trendforge/internal/models"
	"trendforge/internal/repository"

	"github.com/puzpuzpuz/xsync/v4"
)

// Outcome is the result of one worker iteration.
type Outcome int

const (
	// OutcomeIdle means nothing was claimed.
	OutcomeIdle Outcome = iota
	// OutcomeCompleted means every target was generated and the item is Completed.
	OutcomeCompleted
	// OutcomeReleased means some targets failed and the item went back to the queue.
	OutcomeReleased
	// OutcomeParked means some targets failed and the item ran out of attempts.
	// It stays in Generating for an operator.
	OutcomeParked
	// OutcomeFault means the claimed item had no usable form.
	OutcomeFault
	// OutcomeAbandoned means the item changed under the worker, e.g. it was
	// archived or deleted mid-run.
	OutcomeAbandoned
	// OutcomeInterrupted means ctx ended mid-run and the item went back to the
	// queue with the results saved so far.
	OutcomeInterrupted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeCompleted:
		return "completed"
	case OutcomeReleased:
		return "released"
	case OutcomeParked:
		return "parked"
	case OutcomeFault:
		return "fault"
	case OutcomeAbandoned:
		return "abandoned"
	case OutcomeInterrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type GenerationService interface {
	// ProcessNext claims the oldest queued item and generates content for every
	// target. It never marks an item Completed with a partial result set. When
	// ctx ends mid-run the item is released back to the queue.
	ProcessNext(ctx context.Context) (Outcome, error)
	// RecoverStale requeues items left in Generating by a worker that died.
	RecoverStale(ctx context.Context) (int64, error)
}

type GenerationConfig struct {
	CompletionTimeout   time.Duration
	Retry               RetryPolicy
	MaxAttempts         int
	ClaimLease          time.Duration
	IntegrityQuarantine time.Duration
}

type generationService struct {
	repo     repository.ItemRepository
	client   clients.CompletionClient
	renderer *PromptRenderer
	metrics  metrics.Collector
	logger   *slog.Logger
	config   GenerationConfig
	now      func() time.Time

	// quarantine holds ids of items with broken input until the given time.
	quarantine *xsync.Map[string, time.Time]
}

func NewGenerationService(
	repo repository.ItemRepository,
	client clients.CompletionClient,
	renderer *PromptRenderer,
	collector metrics.Collector,
	logger *slog.Logger,
	config GenerationConfig,
) GenerationService {
	if config.CompletionTimeout <= 0 {
		config.CompletionTimeout = 90 * time.Second
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.IntegrityQuarantine <= 0 {
		config.IntegrityQuarantine = 10 * time.Minute
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &generationService{
		repo:       repo,
		client:     client,
		renderer:   renderer,
		metrics:    collector,
		logger:     logger.With("component", "generation"),
		config:     config,
		now:        time.Now,
		quarantine: xsync.NewMap[string, time.Time](),
	}
}

func (s *generationService) ProcessNext(ctx context.Context) (Outcome, error) {
	item, err := s.repo.ClaimNext(ctx, s.quarantined())
	if errors.Is(err, models.ErrClaimRaceLost) {
		s.logger.Debug("claim race lost")
		return OutcomeIdle, nil
	}
	if err != nil {
		return OutcomeIdle, fmt.Errorf("claim next item: %w", err)
	}
	if item == nil {
		return OutcomeIdle, nil
	}

	s.metrics.ItemClaimed()
	log := s.logger.With("item", item.ID, "source", item.Source, "attempt", item.Attempts)
	log.Info("item claimed")

	// Writes after the claim must land even if ctx ends, or the item would be
	// left in Generating with no owner.
	store := context.WithoutCancel(ctx)

	form := item.Form()
	if form == nil || form.Validate() != nil {
		return s.integrityFault(store, log, item, form)
	}

	results := item.ResultMap()
	var failed []models.Target
	for _, target := range models.Targets {
		if results[target] != "" {
			log.Debug("target already generated", "target", target)
			continue
		}
		if err := ctx.Err(); err != nil {
			return s.interrupted(store, log, item, err)
		}

		content, err := s.generate(ctx, target, item, *form)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.interrupted(store, log, item, ctxErr)
			}
			log.Warn("target failed", "target", target, "error", err)
			s.metrics.TargetFailed(string(target))
			failed = append(failed, target)
			continue
		}

		results[target] = content
		if err := s.repo.SaveResults(store, item.ID, results); err != nil {
			if errors.Is(err, models.ErrStaleTransition) || errors.Is(err, models.ErrItemNotFound) {
				log.Warn("item changed during generation, abandoning", "error", err)
				return OutcomeAbandoned, err
			}
			return OutcomeAbandoned, fmt.Errorf("save %s result: %w", target, err)
		}
		log.Info("target generated", "target", target)
	}

	if len(failed) > 0 {
		return s.partialFailure(store, log, item, failed)
	}

	if err := s.repo.Complete(store, item.ID, results); err != nil {
		if errors.Is(err, models.ErrStaleTransition) || errors.Is(err, models.ErrItemNotFound) {
			log.Warn("item changed before completion, abandoning", "error", err)
			return OutcomeAbandoned, err
		}
		return OutcomeAbandoned, fmt.Errorf("complete item: %w", err)
	}

	s.metrics.ItemCompleted()
	log.Info("item completed")
	return OutcomeCompleted, nil
}

func (s *generationService) RecoverStale(ctx context.Context) (int64, error) {
	if s.config.ClaimLease <= 0 {
		return 0, nil
	}
	recovered, err := s.repo.RecoverStale(ctx, s.now().UTC().Add(-s.config.ClaimLease), s.config.MaxAttempts)
	if err != nil {
		return 0, err
	}
	if recovered > 0 {
		s.logger.Warn("requeued stale claims", "count", recovered, "lease", s.config.ClaimLease.String())
		for i := int64(0); i < recovered; i++ {
			s.metrics.ItemReleased("stale")
		}
	}
	return recovered, nil
}

func (s *generationService) generate(ctx context.Context, target models.Target, item *models.Item, form models.GenerationForm) (string, error) {
	system, prompt, err := s.renderer.Render(target, item, form)
	if err != nil {
		return "", err
	}

	var content string
	_, err = withRetry(ctx, s.config.Retry, nil, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.config.CompletionTimeout)
		defer cancel()

		started := s.now()
		out, err := s.client.Complete(callCtx, clients.CompletionRequest{System: system, Prompt: prompt})
		s.metrics.ObserveCompletion(string(target), s.now().Sub(started).Seconds())
		if err != nil {
			return err
		}
		content = out
		return nil
	})
	return content, err
}

func (s *generationService) integrityFault(ctx context.Context, log *slog.Logger, item *models.Item, form *models.GenerationForm) (Outcome, error) {
	faultErr := fmt.Errorf("%w: item %s has no usable generation form", models.ErrDataIntegrity, item.ID)
	if form != nil {
		faultErr = fmt.Errorf("%w: %w", models.ErrDataIntegrity, form.Validate())
	}
	log.Error("claimed item lacks curated input", "error", faultErr, "quarantine", s.config.IntegrityQuarantine.String())

	s.quarantine.Store(item.ID, s.now().Add(s.config.IntegrityQuarantine))
	if err := s.repo.Release(ctx, item.ID); err != nil {
		log.Error("release after integrity fault failed", "error", err)
	} else {
		s.metrics.ItemReleased("integrity")
	}
	return OutcomeFault, faultErr
}

func (s *generationService) partialFailure(ctx context.Context, log *slog.Logger, item *models.Item, failed []models.Target) (Outcome, error) {
	partialErr := fmt.Errorf("%w: %v", models.ErrPartialGeneration, failed)

	if item.Attempts >= s.config.MaxAttempts {
		log.Error("generation attempts exhausted, item parked in generating",
			"failed", failed, "max_attempts", s.config.MaxAttempts)
		return OutcomeParked, partialErr
	}

	if err := s.repo.Release(ctx, item.ID); err != nil {
		log.Error("release after partial failure failed", "error", err)
		return OutcomeParked, errors.Join(partialErr, err)
	}
	s.metrics.ItemReleased("partial")
	log.Warn("partial generation, item requeued", "failed", failed)
	return OutcomeReleased, partialErr
}

// interrupted hands a claimed item back to the queue without counting the run
// as a failure.
func (s *generationService) interrupted(ctx context.Context, log *slog.Logger, item *models.Item, cause error) (Outcome, error) {
	if err := s.repo.Release(ctx, item.ID); err != nil {
		log.Error("release after interruption failed", "error", err)
		return OutcomeAbandoned, errors.Join(cause, err)
	}
	s.metrics.ItemReleased("interrupted")
	log.Warn("generation interrupted, item requeued", "error", cause)
	return OutcomeInterrupted, cause
}

// quarantined returns ids still excluded from claims and forgets expired ones.
func (s *generationService) quarantined() []string {
	now := s.now()
	var ids []string
	s.quarantine.Range(func(id string, until time.Time) bool {
		if now.Before(until) {
			ids = append(ids, id)
		} else {
			s.quarantine.Delete(id)
		}
		return true
	})
	return ids
}
