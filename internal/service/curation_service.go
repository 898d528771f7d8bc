package service

import (
	"context"
	"fmt"
	"log/slog"

	"trendforge/internal/models"
	"trendforge/internal/repository"
)

// CreationInfo is an item together with its curated input and generated content.
type CreationInfo struct {
	models.Item
	GenerationForm *models.GenerationForm `json:"generation_form"`
	Results        []models.ResultEntry   `json:"results"`
}

// GenerateForm is what the editor sees when attaching curated input.
type GenerateForm struct {
	ID             string                 `json:"id"`
	Title          string                 `json:"title"`
	URL            string                 `json:"url"`
	GenerationForm *models.GenerationForm `json:"generation_form"`
}

// CurationService is the editor-facing side of the job store.
type CurationService interface {
	ListItems(ctx context.Context, filter models.ItemFilter, page, size int) (*models.ItemPage, error)
	GetCreationInfo(ctx context.Context, id string) (*CreationInfo, error)
	GetGenerateForm(ctx context.Context, id string) (*GenerateForm, error)
	// SubmitForm attaches curated input and queues a New item for generation.
	SubmitForm(ctx context.Context, id string, form models.GenerationForm) error
	// CancelGeneration moves a queued item back to New.
	CancelGeneration(ctx context.Context, id string) error
	FinishMany(ctx context.Context, ids []string) (int64, error)
	DeleteMany(ctx context.Context, ids []string) (int64, error)
	Purge(ctx context.Context, id string) error
	Stats(ctx context.Context) (map[string]int64, error)
}

type curationService struct {
	repo   repository.ItemRepository
	logger *slog.Logger
}

func NewCurationService(repo repository.ItemRepository, logger *slog.Logger) CurationService {
	return &curationService{
		repo:   repo,
		logger: logger.With("component", "curation"),
	}
}

func (s *curationService) ListItems(ctx context.Context, filter models.ItemFilter, page, size int) (*models.ItemPage, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidStatus, int(*filter.Status))
	}
	return s.repo.List(ctx, filter, page, size)
}

func (s *curationService) GetCreationInfo(ctx context.Context, id string) (*CreationInfo, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CreationInfo{
		Item:           *item,
		GenerationForm: item.Form(),
		Results:        item.ResultMap().Entries(),
	}, nil
}

func (s *curationService) GetGenerateForm(ctx context.Context, id string) (*GenerateForm, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &GenerateForm{
		ID:             item.ID,
		Title:          item.Title,
		URL:            item.URL,
		GenerationForm: item.Form(),
	}, nil
}

func (s *curationService) SubmitForm(ctx context.Context, id string, form models.GenerationForm) error {
	if err := s.repo.SubmitForm(ctx, id, form); err != nil {
		return err
	}
	s.logger.Info("item queued for generation", "item", id)
	return nil
}

func (s *curationService) CancelGeneration(ctx context.Context, id string) error {
	err := s.repo.Transition(ctx, id, models.StatusQueuedForGeneration, models.StatusNew)
	if err != nil {
		return err
	}
	s.logger.Info("generation cancelled", "item", id)
	return nil
}

func (s *curationService) FinishMany(ctx context.Context, ids []string) (int64, error) {
	n, err := s.repo.TransitionMany(ctx, ids, models.StatusFinished)
	if err != nil {
		return 0, err
	}
	s.logger.Info("items finished", "requested", len(ids), "updated", n)
	return n, nil
}

func (s *curationService) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	n, err := s.repo.SetDeleted(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.logger.Info("items deleted", "requested", len(ids), "updated", n)
	return n, nil
}

func (s *curationService) Purge(ctx context.Context, id string) error {
	if err := s.repo.Purge(ctx, id); err != nil {
		return err
	}
	s.logger.Warn("item purged", "item", id)
	return nil
}

func (s *curationService) Stats(ctx context.Context) (map[string]int64, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(counts))
	for status, n := range counts {
		out[status.String()] = n
	}
	return out, nil
}
