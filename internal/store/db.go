// Package store manages the webexsync database layer.
// It opens GORM over SQLite and implements the graph, network and
// time-series collaborators the sync loop writes into.
package store

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vesaa/webexsync/internal/logging"
	"github.com/vesaa/webexsync/internal/models"
)

// ErrNotFound is returned when a node, endpoint or status record is absent.
var ErrNotFound = errors.New("record not found")

// Store is the SQLite-backed graph store.
type Store struct {
	db *gorm.DB
}

// Open opens the database at path and runs AutoMigrate.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	// SQLite allows a single writer; serialize through one connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.Node{},
		&models.Relation{},
		&models.Attribute{},
		&models.Endpoint{},
		&models.Sample{},
		&models.OrganStatus{},
	); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	logging.Info().Str("path", path).Msg("[db] opened sqlite")
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
