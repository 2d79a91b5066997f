package models

import (
	"time"

	"gorm.io/datatypes"
)

// CatalogSnapshot stores the last good normalized model list of a provider.
type CatalogSnapshot struct {
	Provider string `gorm:"type:varchar(64);not null;primaryKey"` // Provider identifier.

	Models     datatypes.JSON `gorm:"type:jsonb;not null"` // Normalized models.
	ModelCount int            `gorm:"not null;default:0"`  // Number of models in the list.

	FetchedAt time.Time `gorm:"not null;index"`          // When the list was fetched upstream.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Update timestamp.
}

// TableName overrides the default table name.
func (CatalogSnapshot) TableName() string {
	return "catalog_snapshots"
}
