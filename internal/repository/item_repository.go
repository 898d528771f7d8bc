package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trendforge/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 100

// ItemRepository is the job store. Every status change is a conditional update
// on the current status, so concurrent writers never overwrite each other.
type ItemRepository interface {
	// InsertMany stores items, skipping any whose (source, source_item_id)
	// already exists. It returns how many rows were actually inserted.
	InsertMany(ctx context.Context, items []models.Item) (int64, error)

	// ClaimNext moves the oldest queued, non-deleted item to Generating and
	// returns it. It returns (nil, nil) when nothing is queued and
	// ErrClaimRaceLost when another worker claimed the candidate first.
	ClaimNext(ctx context.Context, exclude []string) (*models.Item, error)

	List(ctx context.Context, filter models.ItemFilter, page, size int) (*models.ItemPage, error)
	ListForExport(ctx context.Context, statuses []models.Status, limit int) ([]models.Item, error)
	GetByID(ctx context.Context, id string) (*models.Item, error)
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)

	Transition(ctx context.Context, id string, from, to models.Status) error
	TransitionMany(ctx context.Context, ids []string, to models.Status) (int64, error)
	SubmitForm(ctx context.Context, id string, form models.GenerationForm) error
	SaveResults(ctx context.Context, id string, results models.Results) error
	Complete(ctx context.Context, id string, results models.Results) error
	Release(ctx context.Context, id string) error
	RecoverStale(ctx context.Context, olderThan time.Time, maxAttempts int) (int64, error)

	SetDeleted(ctx context.Context, ids []string) (int64, error)
	Purge(ctx context.Context, id string) error
}

type itemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) live(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Item{}).Where("del_flag = ?", false)
}

func (r *itemRepository) InsertMany(ctx context.Context, items []models.Item) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}, {Name: "source_item_id"}},
			DoNothing: true,
		}).
		CreateInBatches(&items, insertBatchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("insert items: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *itemRepository) ClaimNext(ctx context.Context, exclude []string) (*models.Item, error) {
	query := r.live(ctx).Where("status = ?", models.StatusQueuedForGeneration)
	if len(exclude) > 0 {
		query = query.Where("id NOT IN ?", exclude)
	}

	var ids []string
	err := query.
		Order("create_time ASC").
		Order("id ASC").
		Limit(1).
		Pluck("id", &ids).
		Error
	if err != nil {
		return nil, fmt.Errorf("select claim candidate: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	result := r.live(ctx).
		Where("id = ? AND status = ?", ids[0], models.StatusQueuedForGeneration).
		Updates(map[string]any{
			"status":     models.StatusGenerating,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("claim item %s: %w", ids[0], result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, models.ErrClaimRaceLost
	}

	return r.GetByID(ctx, ids[0])
}

func (r *itemRepository) List(ctx context.Context, filter models.ItemFilter, page, size int) (*models.ItemPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	query := r.live(ctx)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Source != "" {
		query = query.Where("source = ?", filter.Source)
	}
	query = query.Session(&gorm.Session{})

	out := &models.ItemPage{Page: page, Size: size, Items: []models.Item{}}
	if err := query.Count(&out.Total).Error; err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	if out.Total == 0 {
		return out, nil
	}

	err := query.
		Order("create_time DESC").
		Order("id ASC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&out.Items).
		Error
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return out, nil
}

func (r *itemRepository) ListForExport(ctx context.Context, statuses []models.Status, limit int) ([]models.Item, error) {
	if limit < 1 || limit > 10000 {
		limit = 1000
	}

	query := r.live(ctx)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var items []models.Item
	err := query.
		Order("create_time DESC").
		Limit(limit).
		Find(&items).
		Error
	return items, err
}

func (r *itemRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	err := r.live(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrItemNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	var rows []struct {
		Status models.Status
		Total  int64
	}
	err := r.live(ctx).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).
		Error
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}

	counts := make(map[models.Status]int64, len(models.AllStatuses()))
	for _, s := range models.AllStatuses() {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *itemRepository) Transition(ctx context.Context, id string, from, to models.Status) error {
	if err := models.ValidateTransition(from, to); err != nil {
		return err
	}
	return r.conditionalUpdate(ctx, id, from, map[string]any{
		"status": to,
	})
}

func (r *itemRepository) TransitionMany(ctx context.Context, ids []string, to models.Status) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	from := models.SourcesFor(to)
	if len(from) == 0 {
		return 0, fmt.Errorf("%w: nothing moves to %s", models.ErrIllegalTransition, to)
	}

	result := r.live(ctx).
		Where("id IN ? AND status IN ?", ids, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("transition items to %s: %w", to, result.Error)
	}
	return result.RowsAffected, nil
}

func (r *itemRepository) SubmitForm(ctx context.Context, id string, form models.GenerationForm) error {
	if err := form.Validate(); err != nil {
		return err
	}
	return r.conditionalUpdate(ctx, id, models.StatusNew, map[string]any{
		"status":          models.StatusQueuedForGeneration,
		"generation_form": datatypes.NewJSONType(form),
	})
}

func (r *itemRepository) SaveResults(ctx context.Context, id string, results models.Results) error {
	if err := results.Validate(); err != nil {
		return err
	}
	return r.conditionalUpdate(ctx, id, models.StatusGenerating, map[string]any{
		"results": datatypes.NewJSONType(results),
	})
}

func (r *itemRepository) Complete(ctx context.Context, id string, results models.Results) error {
	if err := results.Validate(); err != nil {
		return err
	}
	if missing := results.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", models.ErrPartialGeneration, missing)
	}
	return r.conditionalUpdate(ctx, id, models.StatusGenerating, map[string]any{
		"status":  models.StatusCompleted,
		"results": datatypes.NewJSONType(results),
	})
}

func (r *itemRepository) Release(ctx context.Context, id string) error {
	return r.Transition(ctx, id, models.StatusGenerating, models.StatusQueuedForGeneration)
}

func (r *itemRepository) RecoverStale(ctx context.Context, olderThan time.Time, maxAttempts int) (int64, error) {
	query := r.live(ctx).
		Where("status = ? AND updated_at < ?", models.StatusGenerating, olderThan)
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}

	result := query.Updates(map[string]any{
		"status":     models.StatusQueuedForGeneration,
		"updated_at": time.Now().UTC(),
	})
	if result.Error != nil {
		return 0, fmt.Errorf("recover stale claims: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *itemRepository) SetDeleted(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.live(ctx).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"del_flag":   true,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("delete items: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *itemRepository) Purge(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Item{})
	if result.Error != nil {
		return fmt.Errorf("purge item %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrItemNotFound, id)
	}
	return nil
}

// conditionalUpdate applies values only while the item is still in the expected
// state. Zero affected rows means either the item is gone or it moved on.
func (r *itemRepository) conditionalUpdate(ctx context.Context, id string, from models.Status, values map[string]any) error {
	values["updated_at"] = time.Now().UTC()

	result := r.live(ctx).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if result.Error != nil {
		return fmt.Errorf("update item %s: %w", id, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: item %s is %s, expected %s", models.ErrStaleTransition, id, current.Status, from)
}
