package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/router-for-me/promptdock/internal/db"
	"github.com/router-for-me/promptdock/internal/models"
	"github.com/router-for-me/promptdock/internal/vault"
)

func newTestStore(t *testing.T) (*GormKeyStore, *vault.Vault) {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "keys.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	v, err := vault.New("test-secret")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	return NewGormKeyStore(conn, v), v
}

func TestSaveEncryptsAndUpdates(t *testing.T) {
	s, v := newTestStore(t)
	ctx := context.Background()

	created, err := s.Save(ctx, SaveInput{OwnerID: 1, Provider: "Claude", APIKey: "sk-ant-123456"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if created.Provider != "anthropic" || created.KeyHint != "…3456" {
		t.Fatalf("unexpected record %+v", created)
	}
	if created.Ciphertext == "sk-ant-123456" || created.IV == "" || created.AuthTag == "" {
		t.Fatalf("key must be stored encrypted")
	}
	plain, err := v.Decrypt(created.Ciphertext)
	if err != nil || plain != "sk-ant-123456" {
		t.Fatalf("decrypt stored key: %q %v", plain, err)
	}

	updated, err := s.Save(ctx, SaveInput{OwnerID: 1, Provider: "anthropic", ModelDefaults: &models.RoleModels{Gen: "claude-3-5-sonnet"}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != created.ID || updated.Ciphertext != created.Ciphertext {
		t.Fatalf("update without key must keep ciphertext")
	}
	if updated.ModelDefaults.Gen != "claude-3-5-sonnet" {
		t.Fatalf("unexpected defaults %+v", updated.ModelDefaults)
	}

	rotated, err := s.Save(ctx, SaveInput{OwnerID: 1, Provider: "anthropic", APIKey: "sk-ant-999999"})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.Ciphertext == created.Ciphertext || rotated.KeyHint != "…9999" {
		t.Fatalf("rotation did not replace ciphertext")
	}
}

func TestSaveValidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Save(ctx, SaveInput{OwnerID: 1, Provider: "acme", APIKey: "k"}); !errors.Is(err, ErrInvalidProvider) {
		t.Fatalf("expected ErrInvalidProvider, got %v", err)
	}
	if _, err := s.Save(ctx, SaveInput{OwnerID: 1, Provider: "openai"}); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
}

func TestListGetDeleteScopedByOwner(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	mine, _ := s.Save(ctx, SaveInput{OwnerID: 1, Provider: "openai", APIKey: "sk-1"})
	_, _ = s.Save(ctx, SaveInput{OwnerID: 1, Provider: "gemini", APIKey: "g-1"})
	theirs, _ := s.Save(ctx, SaveInput{OwnerID: 2, Provider: "openai", APIKey: "sk-2"})

	rows, err := s.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 || rows[0].Provider != "gemini" || rows[1].Provider != "openai" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if _, err := s.Get(ctx, 1, theirs.ID); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound for foreign key, got %v", err)
	}
	if err := s.Delete(ctx, 1, theirs.ID); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound deleting foreign key, got %v", err)
	}
	if err := s.Delete(ctx, 1, mine.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, 1, mine.ID); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected deleted key to be gone, got %v", err)
	}
}

func TestSetActiveKeepsOneKeyPerRole(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	openai, _ := s.Save(ctx, SaveInput{OwnerID: 1, Provider: "openai", APIKey: "sk-1"})
	gemini, _ := s.Save(ctx, SaveInput{OwnerID: 1, Provider: "gemini", APIKey: "g-1"})
	other, _ := s.Save(ctx, SaveInput{OwnerID: 2, Provider: "openai", APIKey: "sk-2"})

	if _, err := s.SetActive(ctx, 2, other.ID, models.RoleGen, true); err != nil {
		t.Fatalf("activate other owner: %v", err)
	}
	if _, err := s.SetActive(ctx, 1, openai.ID, models.RoleGen, true); err != nil {
		t.Fatalf("activate openai: %v", err)
	}
	if _, err := s.SetActive(ctx, 1, openai.ID, models.RoleVision, true); err != nil {
		t.Fatalf("activate openai vision: %v", err)
	}
	if _, err := s.SetActive(ctx, 1, gemini.ID, models.RoleGen, true); err != nil {
		t.Fatalf("activate gemini: %v", err)
	}

	if _, err := s.ActiveKey(ctx, 1, "openai", models.RoleGen); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("openai gen should have been cleared, got %v", err)
	}
	if _, err := s.ActiveKey(ctx, 1, "openai", models.RoleVision); err != nil {
		t.Fatalf("openai vision should stay active: %v", err)
	}
	if row, err := s.ActiveKey(ctx, 1, "gemini", models.RoleGen); err != nil || row.ID != gemini.ID {
		t.Fatalf("expected gemini gen active, got %v %v", row, err)
	}
	if _, err := s.ActiveKey(ctx, 2, "openai", models.RoleGen); err != nil {
		t.Fatalf("other owner must be unaffected: %v", err)
	}

	if _, err := s.SetActive(ctx, 1, gemini.ID, models.RoleGen, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := s.ActiveKey(ctx, 1, "gemini", models.RoleGen); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected no active gen key, got %v", err)
	}
	if _, err := s.SetActive(ctx, 1, gemini.ID, "admin", true); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := s.SetActive(ctx, 1, other.ID, models.RoleGen, true); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound for foreign key, got %v", err)
	}
}
