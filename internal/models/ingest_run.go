package models

import (
	"time"

	"gorm.io/datatypes"
)

// IngestRun is the persisted summary of one aggregator run.
type IngestRun struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	StartedAt  time.Time      `gorm:"not null;index" json:"started_at"`
	FinishedAt time.Time      `gorm:"not null" json:"finished_at"`
	Inserted   int            `gorm:"not null;default:0" json:"inserted"`
	Duplicates int            `gorm:"not null;default:0" json:"duplicates"`
	Malformed  int            `gorm:"not null;default:0" json:"malformed"`
	Failed     int            `gorm:"not null;default:0" json:"failed"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
	Sources    datatypes.JSON `json:"sources"`
}

func (IngestRun) TableName() string {
	return "ingest_runs"
}
