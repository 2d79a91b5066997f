// Package store persists encrypted provider keys.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/router-for-me/promptdock/internal/db"
	"github.com/router-for-me/promptdock/internal/models"
	"github.com/router-for-me/promptdock/internal/providers"
	"github.com/router-for-me/promptdock/internal/vault"
	"gorm.io/gorm"
)

var (
	// ErrKeyNotFound is returned when no key matches the owner and selector.
	ErrKeyNotFound = errors.New("key store: key not found")
	// ErrInvalidProvider is returned for unsupported provider names.
	ErrInvalidProvider = errors.New("key store: invalid provider")
	// ErrInvalidRole is returned for unknown roles.
	ErrInvalidRole = errors.New("key store: invalid role")
	// ErrMissingKey is returned when a new record has no plaintext key.
	ErrMissingKey = errors.New("key store: api key is required")
	// ErrDuplicate is returned when the owner already has a key for the provider.
	ErrDuplicate = errors.New("key store: key already exists for provider")
)

// SaveInput describes a create-or-update of one owner's provider key.
// An empty APIKey on update keeps the stored ciphertext.
type SaveInput struct {
	OwnerID       uint64
	Provider      string
	APIKey        string
	ModelDefaults *models.RoleModels
}

// GormKeyStore stores provider keys encrypted with the vault.
type GormKeyStore struct {
	db    *gorm.DB
	vault *vault.Vault

	mu sync.Mutex
}

// NewGormKeyStore constructs a GormKeyStore.
func NewGormKeyStore(conn *gorm.DB, v *vault.Vault) *GormKeyStore {
	return &GormKeyStore{db: conn, vault: v}
}

func (s *GormKeyStore) ready() error {
	if s == nil || s.db == nil || s.vault == nil {
		return fmt.Errorf("key store: not initialized")
	}
	return nil
}

// Save upserts the (owner, provider) record, encrypting the key when one is supplied.
func (s *GormKeyStore) Save(ctx context.Context, in SaveInput) (*models.ProviderAPIKey, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	provider := providers.Normalize(in.Provider)
	if provider == "" {
		return nil, ErrInvalidProvider
	}
	apiKey := strings.TrimSpace(in.APIKey)

	var sealed, iv, tag, hint string
	if apiKey != "" {
		blob, errEncrypt := s.vault.Encrypt(apiKey)
		if errEncrypt != nil {
			return nil, fmt.Errorf("key store: encrypt: %w", errEncrypt)
		}
		parts, errSplit := vault.Split(blob)
		if errSplit != nil {
			return nil, fmt.Errorf("key store: split: %w", errSplit)
		}
		sealed, iv, tag, hint = blob, parts.IV, parts.AuthTag, vault.Hint(apiKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out models.ProviderAPIKey
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ProviderAPIKey
		errFind := tx.Where("owner_id = ? AND provider = ?", in.OwnerID, string(provider)).First(&existing).Error
		switch {
		case errors.Is(errFind, gorm.ErrRecordNotFound):
			if sealed == "" {
				return ErrMissingKey
			}
			now := time.Now().UTC()
			out = models.ProviderAPIKey{
				OwnerID:    in.OwnerID,
				Provider:   string(provider),
				Ciphertext: sealed,
				IV:         iv,
				AuthTag:    tag,
				KeyHint:    hint,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if in.ModelDefaults != nil {
				out.ModelDefaults = *in.ModelDefaults
			}
			if errCreate := tx.Create(&out).Error; errCreate != nil {
				if db.IsUniqueViolation(errCreate) {
					return ErrDuplicate
				}
				return fmt.Errorf("key store: create: %w", errCreate)
			}
			return nil
		case errFind != nil:
			return fmt.Errorf("key store: find: %w", errFind)
		}

		updates := map[string]any{"updated_at": time.Now().UTC()}
		if sealed != "" {
			updates["ciphertext"] = sealed
			updates["iv"] = iv
			updates["auth_tag"] = tag
			updates["key_hint"] = hint
		}
		if in.ModelDefaults != nil {
			updates["default_model_gen"] = in.ModelDefaults.Gen
			updates["default_model_improve"] = in.ModelDefaults.Improve
			updates["default_model_vision"] = in.ModelDefaults.Vision
		}
		if errUpdate := tx.Model(&existing).Updates(updates).Error; errUpdate != nil {
			return fmt.Errorf("key store: update: %w", errUpdate)
		}
		if errReload := tx.First(&out, existing.ID).Error; errReload != nil {
			return fmt.Errorf("key store: reload: %w", errReload)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &out, nil
}

// List returns the owner's keys ordered by provider.
func (s *GormKeyStore) List(ctx context.Context, ownerID uint64) ([]models.ProviderAPIKey, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var rows []models.ProviderAPIKey
	if errFind := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("provider ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("key store: list: %w", errFind)
	}
	return rows, nil
}

// Get loads one of the owner's keys by id.
func (s *GormKeyStore) Get(ctx context.Context, ownerID, id uint64) (*models.ProviderAPIKey, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var row models.ProviderAPIKey
	errFind := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if errFind != nil {
		return nil, fmt.Errorf("key store: get: %w", errFind)
	}
	return &row, nil
}

// Delete removes one of the owner's keys.
func (s *GormKeyStore) Delete(ctx context.Context, ownerID, id uint64) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&models.ProviderAPIKey{})
	if res.Error != nil {
		return fmt.Errorf("key store: delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// SetActive turns role on or off for a key. Turning a role on clears it on the owner's other keys,
// so at most one key per owner serves each role.
func (s *GormKeyStore) SetActive(ctx context.Context, ownerID, id uint64, role models.Role, active bool) (*models.ProviderAPIKey, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, ok := models.ParseRole(string(role)); !ok || role == "" {
		return nil, ErrInvalidRole
	}
	column := models.RoleFlags{}.Column(role)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out models.ProviderAPIKey
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Where("id = ? AND owner_id = ?", id, ownerID).First(&out).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrKeyNotFound
			}
			return fmt.Errorf("key store: find: %w", errFind)
		}
		now := time.Now().UTC()
		if active {
			if errClear := tx.Model(&models.ProviderAPIKey{}).
				Where("owner_id = ? AND id <> ?", ownerID, id).
				Updates(map[string]any{column: false, "updated_at": now}).Error; errClear != nil {
				return fmt.Errorf("key store: clear %s: %w", column, errClear)
			}
		}
		if errSet := tx.Model(&models.ProviderAPIKey{}).
			Where("id = ?", id).
			Updates(map[string]any{column: active, "updated_at": now}).Error; errSet != nil {
			return fmt.Errorf("key store: set %s: %w", column, errSet)
		}
		return tx.First(&out, id).Error
	})
	if errTx != nil {
		return nil, errTx
	}
	return &out, nil
}

// ActiveKey returns the owner's key for provider that is active for role.
func (s *GormKeyStore) ActiveKey(ctx context.Context, ownerID uint64, provider string, role models.Role) (*models.ProviderAPIKey, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, ok := models.ParseRole(string(role)); !ok {
		return nil, ErrInvalidRole
	}
	if role == "" {
		role = models.RoleGen
	}
	var row models.ProviderAPIKey
	errFind := s.db.WithContext(ctx).
		Where("owner_id = ? AND provider = ?", ownerID, provider).
		Where(models.RoleFlags{}.Column(role)+" = ?", true).
		First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if errFind != nil {
		return nil, fmt.Errorf("key store: active key: %w", errFind)
	}
	return &row, nil
}
