package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trendforge/internal/models"
	"trendforge/internal/repository"
	"trendforge/internal/utils"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrNothingToExport   = errors.New("no items to export")
)

const exportLimit = 5000

// ExportService writes generated content to files for offline review.
type ExportService interface {
	// Export writes items in the given statuses (Completed and Finished by
	// default) and returns the file path.
	Export(ctx context.Context, format string, statuses []models.Status) (string, error)
}

type exportService struct {
	repo      repository.ItemRepository
	outputDir string
	logger    *slog.Logger
}

func NewExportService(repo repository.ItemRepository, outputDir string, logger *slog.Logger) ExportService {
	return &exportService{
		repo:      repo,
		outputDir: outputDir,
		logger:    logger.With("component", "export"),
	}
}

func (s *exportService) Export(ctx context.Context, format string, statuses []models.Status) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "excel" {
		format = "xlsx"
	}
	if format != "csv" && format != "xlsx" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if len(statuses) == 0 {
		statuses = []models.Status{models.StatusCompleted, models.StatusFinished}
	}

	items, err := s.repo.ListForExport(ctx, statuses, exportLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load items: %w", err)
	}
	if len(items) == 0 {
		return "", ErrNothingToExport
	}

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	filename := fmt.Sprintf("items_export_%s.%s", time.Now().UTC().Format("20060102_150405"), format)
	path := filepath.Join(s.outputDir, filename)

	switch format {
	case "csv":
		err = utils.CreateCSVFile(path, items)
	default:
		err = utils.CreateExcelFile(path, items)
	}
	if err != nil {
		return "", fmt.Errorf("failed to write %s export: %w", format, err)
	}

	s.logger.Info("export written", "file", filename, "items", len(items))
	return path, nil
}
