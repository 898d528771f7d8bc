package handlers

import "github.com/gin-gonic/gin"

type Handlers struct {
	Items  *ItemHandler
	Ingest *IngestHandler
	Export *ExportHandler
	System *SystemHandler
}

// RegisterRoutes mounts the curation API. The manual ingest trigger is only
// exposed in debug mode.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, debug bool) {
	api.GET("/health", h.System.Health)
	api.GET("/system/stats", h.System.Stats)
	api.GET("/metrics", h.System.Metrics())

	api.GET("/items", h.Items.ListItems)
	api.DELETE("/items/:id", h.Items.Purge)

	creations := api.Group("/creations")
	creations.GET("/:id/info", h.Items.GetCreationInfo)
	creations.GET("/:id/generate_form", h.Items.GetGenerateForm)
	creations.PUT("/generate_form", h.Items.SubmitForm)
	creations.PUT("/cancel_generate", h.Items.CancelGeneration)
	creations.PUT("/batch_finish", h.Items.BatchFinish)
	creations.PUT("/batch_delete", h.Items.BatchDelete)

	api.GET("/export", h.Export.Export)
	api.GET("/ingest/runs", h.Ingest.Runs)

	if debug {
		api.POST("/ingest", h.Ingest.Trigger)
	}
}
