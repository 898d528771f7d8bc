package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Item is one trending record tracked through curation and generation.
type Item struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Source       string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_items_source_item,priority:1;index" json:"source"`
	SourceItemID string    `gorm:"type:varchar(191);not null;uniqueIndex:idx_items_source_item,priority:2" json:"source_item_id"`
	Title        string    `gorm:"type:text" json:"title"`
	Cover        string    `gorm:"type:text" json:"cover"`
	Description  string    `gorm:"type:text" json:"desc"`
	Author       string    `gorm:"type:varchar(255)" json:"author"`
	URL          string    `gorm:"type:text" json:"url"`
	MobileURL    string    `gorm:"type:text" json:"mobileUrl"`
	Hot          *int64    `json:"hot"`
	Timestamp    *string   `gorm:"type:varchar(64)" json:"timestamp"`
	CreateTime   time.Time `gorm:"not null;index" json:"create_time"`
	Status       Status    `gorm:"not null;default:0;index" json:"status"`
	DelFlag      bool      `gorm:"not null;default:false;index" json:"del_flag"`
	Attempts     int       `gorm:"not null;default:0" json:"attempts"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	GenerationForm datatypes.JSONType[GenerationForm] `gorm:"not null" json:"-"`
	Results        datatypes.JSONType[Results]        `gorm:"not null" json:"-"`
}

func (Item) TableName() string {
	return "items"
}

// Form returns the curated input or nil when none was attached.
func (i *Item) Form() *GenerationForm {
	form := i.GenerationForm.Data()
	if form.Empty() {
		return nil
	}
	return &form
}

// ResultMap returns a mutable copy of the stored results.
func (i *Item) ResultMap() Results {
	return i.Results.Data().Clone()
}

// GenerationForm is the curated input for a generation run.
type GenerationForm struct {
	Markup string `json:"markup"`
	Brief  string `json:"brief"`
}

// Empty reports whether no curated input was attached.
func (f GenerationForm) Empty() bool {
	return strings.TrimSpace(f.Markup) == "" && strings.TrimSpace(f.Brief) == ""
}

// Validate requires both the markup and the brief.
func (f GenerationForm) Validate() error {
	if strings.TrimSpace(f.Markup) == "" {
		return fmt.Errorf("%w: markup is required", ErrInvalidForm)
	}
	if strings.TrimSpace(f.Brief) == "" {
		return fmt.Errorf("%w: brief is required", ErrInvalidForm)
	}
	return nil
}

// ItemFilter narrows curation reads. Deleted items are always excluded.
type ItemFilter struct {
	Status *Status
	Source string
}

// ItemPage is one page of a filtered read.
type ItemPage struct {
	Items []Item `json:"items"`
	Total int64  `json:"total"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
}
