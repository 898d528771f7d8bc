package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trendforge/internal/clients/mocks"
	"trendforge/internal/logging"
	"trendforge/internal/metrics"
	"trendforge/internal/models"
	"trendforge/internal/repository"
	"trendforge/internal/service"
	"trendforge/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type apiFixture struct {
	router *gin.Engine
	db     *gorm.DB
	feed   *mocks.MockFeedClient
	cache  repository.CacheRepository
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := repository.NewCacheRepository(rdb)

	feed := mocks.NewMockFeedClient(gomock.NewController(t))
	repo := repository.NewItemRepository(db)
	logger := logging.Nop()

	reg := prometheus.NewRegistry()
	collector := metrics.NewPrometheus(reg, "test")

	curation := service.NewCurationService(repo, logger)
	ingest := service.NewIngestService(repo, repository.NewIngestRunRepository(db), cache, feed, collector, logger, service.IngestConfig{
		LockTTL:  time.Minute,
		Location: time.UTC,
	})
	export := service.NewExportService(repo, t.TempDir(), logger)

	router := gin.New()
	RegisterRoutes(router.Group("/api/v1"), Handlers{
		Items:  NewItemHandler(curation),
		Ingest: NewIngestHandler(ingest),
		Export: NewExportHandler(export),
		System: NewSystemHandler(curation, ingest, sqlDB, rdb, reg, map[string]bool{"ingest": true}),
	}, true)

	return &apiFixture{router: router, db: db, feed: feed, cache: cache}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var resp Response
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func (f *apiFixture) seed(t *testing.T, status models.Status, id string, created time.Time) models.Item {
	t.Helper()
	item := testutil.NewItem("hupu", id, created)
	item.Status = status
	require.NoError(t, f.db.Create(&item).Error)
	return item
}

func TestListItems(t *testing.T) {
	f := newAPI(t)
	now := time.Now()
	older := f.seed(t, models.StatusNew, "1", now.Add(-time.Hour))
	newer := f.seed(t, models.StatusNew, "2", now)
	f.seed(t, models.StatusCompleted, "3", now)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/items?size=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, resp.Code)

	data := resp.Data.(map[string]any)
	assert.EqualValues(t, 2, data["total"])
	items := data["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, newer.ID, items[0].(map[string]any)["id"])

	_, resp = f.do(t, http.MethodGet, "/api/v1/items?size=1&page=2", nil)
	items = resp.Data.(map[string]any)["items"].([]any)
	assert.Equal(t, older.ID, items[0].(map[string]any)["id"])

	_, resp = f.do(t, http.MethodGet, "/api/v1/items?status=all", nil)
	assert.EqualValues(t, 3, resp.Data.(map[string]any)["total"])

	rec, _ = f.do(t, http.MethodGet, "/api/v1/items?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCurationFlow(t *testing.T) {
	f := newAPI(t)
	item := f.seed(t, models.StatusNew, "42", time.Now())

	rec, resp := f.do(t, http.MethodGet, "/api/v1/creations/"+item.ID+"/generate_form", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, item.Title, resp.Data.(map[string]any)["title"])

	rec, _ = f.do(t, http.MethodPut, "/api/v1/creations/generate_form", map[string]any{
		"id":   item.ID,
		"form": map[string]string{"markup": "<p>x</p>"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPut, "/api/v1/creations/generate_form", map[string]any{
		"id":   item.ID,
		"form": testutil.ValidForm(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPut, "/api/v1/creations/generate_form", map[string]any{
		"id":   item.ID,
		"form": testutil.ValidForm(),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = f.do(t, http.MethodPut, "/api/v1/creations/cancel_generate", map[string]any{"id": item.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp = f.do(t, http.MethodPut, "/api/v1/creations/batch_finish", map[string]any{"ids": []string{item.ID}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, resp.Data.(map[string]any)["updated"])

	rec, _ = f.do(t, http.MethodPut, "/api/v1/creations/batch_finish", map[string]any{"ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = f.do(t, http.MethodPut, "/api/v1/creations/batch_delete", map[string]any{"ids": []string{item.ID}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, resp.Data.(map[string]any)["updated"])

	rec, _ = f.do(t, http.MethodGet, "/api/v1/creations/"+item.ID+"/info", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/items/"+item.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodDelete, "/api/v1/items/"+item.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreationInfo(t *testing.T) {
	f := newAPI(t)
	item := testutil.NewItem("hupu", "9", time.Now())
	item.Status = models.StatusCompleted
	item.GenerationForm = datatypes.NewJSONType(testutil.ValidForm())
	item.Results = datatypes.NewJSONType(models.Results{
		models.TargetRed:      "r",
		models.TargetKuaishou: "k",
	})
	require.NoError(t, f.db.Create(&item).Error)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/creations/"+item.ID+"/info", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := resp.Data.(map[string]any)
	assert.Equal(t, item.ID, data["id"])
	results := data["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "kuaishou", results[0].(map[string]any)["to"])
	assert.Equal(t, "red", results[1].(map[string]any)["to"])
	assert.Equal(t, "keep it short", data["generation_form"].(map[string]any)["brief"])
}

func TestIngestTrigger(t *testing.T) {
	f := newAPI(t)

	f.feed.EXPECT().ResolveRoutes(gomock.Any()).Return(map[string]string{"hupu": "/hupu"}, nil)
	f.feed.EXPECT().Fetch(gomock.Any(), "/hupu").
		Return([]map[string]any{{"id": json.Number("42"), "title": "t"}}, nil)

	rec, resp := f.do(t, http.MethodPost, "/api/v1/ingest", map[string]any{"sources": []string{"hupu"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, resp.Data.(map[string]any)["inserted"])

	token, err := f.cache.AcquireLock(context.Background(), repository.KeyIngestLock, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/ingest", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, resp = f.do(t, http.MethodGet, "/api/v1/ingest/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data.([]any), 1)
}

func TestExport(t *testing.T) {
	f := newAPI(t)

	rec, _ := f.do(t, http.MethodGet, "/api/v1/export?format=csv", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	item := testutil.NewItem("hupu", "1", time.Now())
	item.Status = models.StatusFinished
	require.NoError(t, f.db.Create(&item).Error)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/export?format=csv&status=finished", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Body.String(), item.ID)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/export?status=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSystemEndpoints(t *testing.T) {
	f := newAPI(t)
	f.seed(t, models.StatusNew, "1", time.Now())

	rec, resp := f.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	services := resp.Data.(map[string]any)["services"].(map[string]any)
	assert.Equal(t, "connected", services["redis"])

	rec, resp = f.do(t, http.MethodGet, "/api/v1/system/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.EqualValues(t, 1, data["items"].(map[string]any)["new"])
	assert.Contains(t, data, "redis")
	assert.Equal(t, false, data["ingest_running"])

	token, err := f.cache.AcquireLock(context.Background(), repository.KeyIngestLock, time.Minute)
	require.NoError(t, err)
	_, resp = f.do(t, http.MethodGet, "/api/v1/system/stats", nil)
	assert.Equal(t, true, resp.Data.(map[string]any)["ingest_running"])
	require.NoError(t, f.cache.ReleaseLock(context.Background(), repository.KeyIngestLock, token))

	rec, _ = f.do(t, http.MethodGet, "/api/v1/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_generation_claims_total")
}
