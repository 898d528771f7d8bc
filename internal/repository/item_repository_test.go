package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"trendforge/internal/models"
	"trendforge/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var baseTime = time.Date(2024, 4, 5, 12, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) (ItemRepository, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	return NewItemRepository(db), db
}

func TestInsertMany_SkipsExistingKeys(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	first := []models.Item{
		testutil.NewItem("hupu", "1", baseTime),
		testutil.NewItem("hupu", "2", baseTime),
	}
	inserted, err := repo.InsertMany(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted)

	second := []models.Item{
		testutil.NewItem("hupu", "2", baseTime),
		testutil.NewItem("hupu", "3", baseTime),
		testutil.NewItem("baidu", "2", baseTime),
	}
	inserted, err = repo.InsertMany(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted)

	again, err := repo.InsertMany(ctx, second)
	require.NoError(t, err)
	assert.Zero(t, again)

	page, err := repo.List(ctx, models.ItemFilter{}, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
}

func TestInsertMany_DeletedItemIsNotReingested(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	item := testutil.NewItem("hupu", "1", baseTime)
	_, err := repo.InsertMany(ctx, []models.Item{item})
	require.NoError(t, err)

	deleted, err := repo.SetDeleted(ctx, []string{item.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	inserted, err := repo.InsertMany(ctx, []models.Item{testutil.NewItem("hupu", "1", baseTime)})
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func TestClaimNext_OldestFirst(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()

	newer := testutil.SeedQueued(t, db, testutil.NewItem("hupu", "new", baseTime.Add(time.Minute)))
	older := testutil.SeedQueued(t, db, testutil.NewItem("hupu", "old", baseTime))

	claimed, err := repo.ClaimNext(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, older.ID, claimed.ID)
	assert.Equal(t, models.StatusGenerating, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)
	require.NotNil(t, claimed.Form())
	assert.Equal(t, testutil.ValidForm(), *claimed.Form())

	claimed, err = repo.ClaimNext(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, newer.ID, claimed.ID)

	claimed, err = repo.ClaimNext(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestClaimNext_SkipsExcludedAndDeleted(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()

	excluded := testutil.SeedQueued(t, db, testutil.NewItem("hupu", "a", baseTime))
	deleted := testutil.SeedQueued(t, db, testutil.NewItem("hupu", "b", baseTime.Add(time.Second)))
	wanted := testutil.SeedQueued(t, db, testutil.NewItem("hupu", "c", baseTime.Add(2*time.Second)))

	_, err := repo.SetDeleted(ctx, []string{deleted.ID})
	require.NoError(t, err)

	claimed, err := repo.ClaimNext(ctx, []string{excluded.ID})
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, wanted.ID, claimed.ID)
}

func TestClaimNext_ConcurrentClaimsAreExclusive(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()

	const items = 10
	for i := 0; i < items; i++ {
		testutil.SeedQueued(t, db, testutil.NewItem("hupu", fmt.Sprint(i), baseTime.Add(time.Duration(i)*time.Second)))
	}

	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := repo.ClaimNext(ctx, nil)
				if err != nil {
					assert.ErrorIs(t, err, models.ErrClaimRaceLost)
					continue
				}
				if item == nil {
					return
				}
				mu.Lock()
				claimed[item.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, claimed, items)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "item %s claimed more than once", id)
	}
}

func TestTransition_Errors(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()

	item := testutil.NewItem("hupu", "1", baseTime)
	require.NoError(t, db.Create(&item).Error)

	err := repo.Transition(ctx, item.ID, models.StatusNew, models.StatusCompleted)
	assert.ErrorIs(t, err, models.ErrIllegalTransition)

	err = repo.Transition(ctx, item.ID, models.StatusQueuedForGeneration, models.StatusNew)
	assert.ErrorIs(t, err, models.ErrStaleTransition)

	err = repo.Transition(ctx, "missing", models.StatusNew, models.StatusFinished)
	assert.ErrorIs(t, err, models.ErrItemNotFound)

	require.NoError(t, repo.Transition(ctx, item.ID, models.StatusNew, models.StatusFinished))
	got, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, got.Status)
}

func TestSubmitForm(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()

	item := testutil.NewItem("hupu", "1", baseTime)
	require.NoError(t, db.Create(&item).Error)

	err := repo.SubmitForm(ctx, item.ID, models.GenerationForm{Markup: "<p>x</p>"})
	assert.ErrorIs(t, err, models.ErrInvalidForm)

	require.NoError(t, repo.SubmitForm(ctx, item.ID, testutil.ValidForm()))

	got, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueuedForGeneration, got.Status)
	assert.Equal(t, testutil.ValidForm(), *got.Form())

	err = repo.SubmitForm(ctx, item.ID, testutil.ValidForm())
	assert.ErrorIs(t, err, models.ErrStaleTransition)
}

func TestResults_OnlyWhileGenerating(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()

	queued := testutil.SeedQueued(t, db, testutil.NewItem("hupu", "1", baseTime))
	partial := models.Results{models.TargetKuaishou: "k"}

	err := repo.SaveResults(ctx, queued.ID, partial)
	assert.ErrorIs(t, err, models.ErrStaleTransition)

	claimed, err := repo.ClaimNext(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repo.SaveResults(ctx, claimed.ID, partial))

	err = repo.SaveResults(ctx, claimed.ID, models.Results{"tiktok": "x"})
	assert.ErrorIs(t, err, models.ErrUnknownTarget)

	err = repo.Complete(ctx, claimed.ID, partial)
	assert.ErrorIs(t, err, models.ErrPartialGeneration)

	got, err := repo.GetByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGenerating, got.Status)
	assert.Equal(t, "k", got.ResultMap()[models.TargetKuaishou])

	full := models.Results{
		models.TargetKuaishou: "k",
		models.TargetRed:      "r",
		models.TargetBilibili: "b",
		models.TargetDouyin:   "d",
	}
	require.NoError(t, repo.Complete(ctx, claimed.ID, full))

	got, err = repo.GetByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, full, got.ResultMap())

	err = repo.SaveResults(ctx, claimed.ID, full)
	assert.ErrorIs(t, err, models.ErrStaleTransition)
}

func TestRelease(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()

	testutil.SeedQueued(t, db, testutil.NewItem("hupu", "1", baseTime))
	claimed, err := repo.ClaimNext(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, repo.Release(ctx, claimed.ID))
	assert.ErrorIs(t, repo.Release(ctx, claimed.ID), models.ErrStaleTransition)

	again, err := repo.ClaimNext(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, claimed.ID, again.ID)
	assert.Equal(t, 2, again.Attempts)
}

func TestTransitionMany_Finish(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()

	fresh := testutil.NewItem("hupu", "1", baseTime)
	require.NoError(t, db.Create(&fresh).Error)
	queued := testutil.SeedQueued(t, db, testutil.NewItem("hupu", "2", baseTime))
	done := testutil.NewItem("hupu", "3", baseTime)
	done.Status = models.StatusFinished
	require.NoError(t, db.Create(&done).Error)

	moved, err := repo.TransitionMany(ctx, []string{fresh.ID, queued.ID, done.ID, "missing"}, models.StatusFinished)
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[models.StatusFinished])
	assert.Zero(t, counts[models.StatusNew])

	_, err = repo.TransitionMany(ctx, []string{fresh.ID}, models.StatusNew)
	require.NoError(t, err)
	got, err := repo.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, got.Status)
}

func TestList_FilterPaginationAndDeleted(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	var items []models.Item
	for i := 0; i < 5; i++ {
		items = append(items, testutil.NewItem("hupu", fmt.Sprint(i), baseTime.Add(time.Duration(i)*time.Minute)))
	}
	items = append(items, testutil.NewItem("baidu", "x", baseTime))
	_, err := repo.InsertMany(ctx, items)
	require.NoError(t, err)

	_, err = repo.SetDeleted(ctx, []string{items[4].ID})
	require.NoError(t, err)

	status := models.StatusNew
	page, err := repo.List(ctx, models.ItemFilter{Status: &status, Source: "hupu"}, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	require.Len(t, page.Items, 3)
	assert.Equal(t, items[3].ID, page.Items[0].ID)
	assert.Equal(t, items[1].ID, page.Items[2].ID)

	page, err = repo.List(ctx, models.ItemFilter{Status: &status, Source: "hupu"}, 2, 3)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, items[0].ID, page.Items[0].ID)

	_, err = repo.GetByID(ctx, items[4].ID)
	assert.ErrorIs(t, err, models.ErrItemNotFound)

	queued := models.StatusQueuedForGeneration
	page, err = repo.List(ctx, models.ItemFilter{Status: &queued}, 1, 20)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Items)
}

func TestPurge(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()

	item := testutil.NewItem("hupu", "1", baseTime)
	require.NoError(t, db.Create(&item).Error)
	_, err := repo.SetDeleted(ctx, []string{item.ID})
	require.NoError(t, err)

	require.NoError(t, repo.Purge(ctx, item.ID))
	assert.ErrorIs(t, repo.Purge(ctx, item.ID), models.ErrItemNotFound)

	inserted, err := repo.InsertMany(ctx, []models.Item{testutil.NewItem("hupu", "1", baseTime)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)
}

func TestRecoverStale(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()

	testutil.SeedQueued(t, db, testutil.NewItem("hupu", "stale", baseTime))
	testutil.SeedQueued(t, db, testutil.NewItem("hupu", "exhausted", baseTime.Add(time.Second)))
	testutil.SeedQueued(t, db, testutil.NewItem("hupu", "fresh", baseTime.Add(2*time.Second)))

	stale, err := repo.ClaimNext(ctx, nil)
	require.NoError(t, err)
	exhausted, err := repo.ClaimNext(ctx, nil)
	require.NoError(t, err)
	fresh, err := repo.ClaimNext(ctx, nil)
	require.NoError(t, err)

	longAgo := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, db.Model(&models.Item{}).Where("id IN ?", []string{stale.ID, exhausted.ID}).
		UpdateColumn("updated_at", longAgo).Error)
	require.NoError(t, db.Model(&models.Item{}).Where("id = ?", exhausted.ID).
		UpdateColumn("attempts", 5).Error)

	recovered, err := repo.RecoverStale(ctx, time.Now().UTC().Add(-time.Hour), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)

	for id, want := range map[string]models.Status{
		stale.ID:     models.StatusQueuedForGeneration,
		exhausted.ID: models.StatusGenerating,
		fresh.ID:     models.StatusGenerating,
	} {
		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}
}
