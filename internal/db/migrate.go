package db

import (
	"fmt"

	"github.com/router-for-me/promptdock/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the tables used by the application.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.ProviderAPIKey{},
		&models.Prompt{},
		&models.CatalogSnapshot{},
		&models.ProxyCall{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return nil
}
