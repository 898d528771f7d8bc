// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"
	"time"

	"trendforge/internal/models"
	"trendforge/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NewDB opens a migrated in-memory sqlite database that lives for the test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		DBName: ":memory:",
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// NewItem builds a New, non-deleted item ready for insertion.
func NewItem(source, sourceItemID string, created time.Time) models.Item {
	return models.Item{
		ID:           uuid.NewString(),
		Source:       source,
		SourceItemID: sourceItemID,
		Title:        source + " #" + sourceItemID,
		URL:          "https://example.com/" + source + "/" + sourceItemID,
		CreateTime:   created.UTC(),
		Status:       models.StatusNew,
	}
}

// ValidForm is a curated form that passes validation.
func ValidForm() models.GenerationForm {
	return models.GenerationForm{
		Markup: "<h1>Headline</h1><p>Body copy</p>",
		Brief:  "keep it short",
	}
}

// SeedQueued inserts an item and moves it to QueuedForGeneration with a form.
func SeedQueued(t testing.TB, db *gorm.DB, item models.Item) models.Item {
	t.Helper()

	item.Status = models.StatusQueuedForGeneration
	item.GenerationForm = datatypes.NewJSONType(ValidForm())
	require.NoError(t, db.Create(&item).Error)
	return item
}
