package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the database described by dsn.
// DSNs starting with "file:" or ending in ".db" open SQLite; everything else is PostgreSQL.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	var dialector gorm.Dialector
	if isSQLiteDSN(trimmed) {
		dialector = sqlite.Open(trimmed)
	} else {
		dialector = postgres.Open(trimmed)
	}
	conn, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	return conn, nil
}

func isSQLiteDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "file:") || strings.HasPrefix(lower, "sqlite:") {
		return true
	}
	base := lower
	if idx := strings.Index(base, "?"); idx >= 0 {
		base = base[:idx]
	}
	return strings.HasSuffix(base, ".db") || strings.HasSuffix(base, ".sqlite")
}
