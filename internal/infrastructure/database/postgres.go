package database

import (
	"fmt"
	"strings"

	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/you/websession/internal/infrastructure/repositories"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open creates a new database connection.
// DSNs starting with "postgres" select PostgreSQL; "sqlite:" or a file path selects SQLite.
func Open(dsn string, debug bool) (*gorm.DB, error) {
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}
	if debug {
		config.Logger = logger.Default.LogMode(logger.Info)
	}

	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	switch {
	case dsn == "":
		return nil, fmt.Errorf("database DSN is empty")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return postgres.Open(dsn), nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite:")), nil
	default:
		return sqlite.Open(dsn), nil
	}
}

// AutoMigrate performs database migration for all required tables
// This includes the session entry table and Casbin policy tables
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&repositories.DBEntry{}); err != nil {
		return fmt.Errorf("failed to migrate session entries table: %w", err)
	}

	// The adapter creates the casbin_rule table on construction
	if _, err := gormadapter.NewAdapterByDB(db); err != nil {
		return fmt.Errorf("failed to initialize Casbin GORM adapter: %w", err)
	}
	return nil
}
