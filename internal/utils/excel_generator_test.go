package utils

import (
	"path/filepath"
	"testing"
	"time"

	"trendforge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/datatypes"
)

func exportItem(source, id string) models.Item {
	return models.Item{
		ID:           id,
		Source:       source,
		SourceItemID: id,
		Title:        "title " + id,
		Status:       models.StatusCompleted,
		CreateTime:   time.Date(2024, 4, 6, 3, 34, 38, 0, time.UTC),
		Results:      datatypes.NewJSONType(models.Results{models.TargetRed: "red copy"}),
	}
}

func TestExportRow_FollowsHeaders(t *testing.T) {
	headers := ExportHeaders()
	row := ExportRow(exportItem("hupu", "1"))

	require.Len(t, row, len(headers))
	assert.Equal(t, "2024-04-06 03:34:38", row[6])
	assert.Equal(t, "red", headers[8])
	assert.Equal(t, "red copy", row[8])
	assert.Empty(t, row[7])
}

func TestCreateExcelFile_SummarisesSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	items := []models.Item{exportItem("hupu", "1"), exportItem("hupu", "2"), exportItem("baidu", "3")}
	require.NoError(t, CreateExcelFile(path, items))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.NotContains(t, f.GetSheetList(), "Sheet1")
	rows, err := f.GetRows("Items")
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(summary), 3)
}
