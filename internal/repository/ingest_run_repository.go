package repository

import (
	"context"
	"errors"
	"time"

	"trendforge/internal/models"

	"gorm.io/gorm"
)

// IngestRunRepository keeps the history of aggregator runs.
type IngestRunRepository interface {
	Create(ctx context.Context, run *models.IngestRun) error
	// GetLast returns nil when no run was recorded yet.
	GetLast(ctx context.Context) (*models.IngestRun, error)
	GetLastN(ctx context.Context, n int) ([]models.IngestRun, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type ingestRunRepository struct {
	db *gorm.DB
}

func NewIngestRunRepository(db *gorm.DB) IngestRunRepository {
	return &ingestRunRepository{db: db}
}

func (r *ingestRunRepository) Create(ctx context.Context, run *models.IngestRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *ingestRunRepository) GetLast(ctx context.Context) (*models.IngestRun, error) {
	var run models.IngestRun
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Order("id DESC").
		First(&run).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *ingestRunRepository) GetLastN(ctx context.Context, n int) ([]models.IngestRun, error) {
	if n < 1 || n > 100 {
		n = 20
	}

	runs := []models.IngestRun{}
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Order("id DESC").
		Limit(n).
		Find(&runs).
		Error
	return runs, err
}

func (r *ingestRunRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("started_at < ?", before).
		Delete(&models.IngestRun{})
	return result.RowsAffected, result.Error
}

func (r *ingestRunRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.IngestRun{}).
		Count(&count).
		Error
	return count, err
}
