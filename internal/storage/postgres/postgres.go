// Package postgres runs the GORM leaderboard backend on PostgreSQL.
package postgres

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/tivoli-arcade/gokart/internal/database"
	"github.com/tivoli-arcade/gokart/internal/logging"
	gormstorage "github.com/tivoli-arcade/gokart/internal/storage/gorm"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	DB         *gorm.DB // injected connection; nil dials using the db.* settings
	LogManager *logging.SlogManager
}

// Backend wraps the GORM backend with Postgres connection management.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// New creates a new Postgres storage backend. The connection is opened by Init.
func New(deps Dependencies) *Backend {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{deps: deps}
}

// Init connects to Postgres when no DB was injected, then migrates and
// starts the embedded backend.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.GetPostgresDB()
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.deps.DB = db
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:         b.deps.DB,
		LogManager: b.deps.LogManager,
	})
	if err := b.Backend.Init(); err != nil {
		return err
	}
	b.deps.LogManager.WriteLog("postgres:Init", "Leaderboard database ready", "INFO")
	return nil
}

// Close closes the embedded backend when Init succeeded.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}
