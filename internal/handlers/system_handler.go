package handlers

import (
	"context"
	"net/http"
	"time"

	"trendforge/internal/service"
	redispkg "trendforge/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type SystemHandler struct {
	curation service.CurationService
	ingest   service.IngestService
	db       Pinger
	redis    *redis.Client
	gatherer prometheus.Gatherer
	workers  map[string]bool
}

// NewSystemHandler builds the health and stats endpoints. rdb may be nil when
// the cache is disabled.
func NewSystemHandler(
	curation service.CurationService,
	ingest service.IngestService,
	db Pinger,
	rdb *redis.Client,
	gatherer prometheus.Gatherer,
	workers map[string]bool,
) *SystemHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &SystemHandler{
		curation: curation,
		ingest:   ingest,
		db:       db,
		redis:    rdb,
		gatherer: gatherer,
		workers:  workers,
	}
}

func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	services := gin.H{"database": "connected", "redis": "disabled"}
	healthy := true

	if err := h.db.PingContext(ctx); err != nil {
		services["database"] = "unavailable: " + err.Error()
		healthy = false
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			// The cache is optional, so a failure degrades but does not fail health.
			services["redis"] = "unavailable: " + err.Error()
		} else {
			services["redis"] = "connected"
		}
	}

	data := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  services,
	}
	if !healthy {
		data["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, Response{Code: http.StatusServiceUnavailable, Message: "unhealthy", Data: data})
		return
	}
	ok(c, data)
}

func (h *SystemHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := h.curation.Stats(ctx)
	if err != nil {
		failErr(c, err)
		return
	}

	data := gin.H{
		"items":   counts,
		"workers": h.workers,
	}
	if running, err := h.ingest.Running(ctx); err == nil {
		data["ingest_running"] = running
	} else {
		data["ingest_running"] = gin.H{"error": err.Error()}
	}
	if h.redis != nil {
		if stats, err := redispkg.GetStats(ctx, h.redis); err == nil {
			data["redis"] = stats
		} else {
			data["redis"] = gin.H{"error": err.Error()}
		}
	}
	ok(c, data)
}

func (h *SystemHandler) Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}
