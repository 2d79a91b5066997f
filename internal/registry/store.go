package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/router-for-me/promptdock/internal/catalog"
	"github.com/router-for-me/promptdock/internal/models"
	"github.com/router-for-me/promptdock/internal/providers"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps catalog snapshots in the catalog_snapshots table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore returns nil when db is nil.
func NewGormStore(db *gorm.DB) *GormStore {
	if db == nil {
		return nil
	}
	return &GormStore{db: db}
}

// Save upserts the provider's row.
func (s *GormStore) Save(ctx context.Context, id providers.ID, entry Entry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store catalog snapshot: nil db")
	}
	payload, err := json.Marshal(entry.Models)
	if err != nil {
		return fmt.Errorf("store catalog snapshot: encode: %w", err)
	}
	fetchedAt := entry.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	row := models.CatalogSnapshot{
		Provider:   string(id),
		Models:     datatypes.JSON(payload),
		ModelCount: len(entry.Models),
		FetchedAt:  fetchedAt.UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"models", "model_count", "fetched_at", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("store catalog snapshot: upsert: %w", err)
	}
	return nil
}

// Load reads every stored snapshot. Rows for unknown providers or with bad JSON are skipped.
func (s *GormStore) Load(ctx context.Context) (map[providers.ID]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("load catalog snapshots: nil db")
	}
	var rows []models.CatalogSnapshot
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load catalog snapshots: %w", err)
	}
	out := make(map[providers.ID]Entry, len(rows))
	for _, row := range rows {
		id := providers.ID(row.Provider)
		if !providers.Valid(id) {
			continue
		}
		var list []catalog.NormalizedModel
		if err := json.Unmarshal(row.Models, &list); err != nil {
			continue
		}
		out[id] = Entry{Models: list, FetchedAt: row.FetchedAt.UTC()}
	}
	return out, nil
}
