// ============================================================================
// FILE: internal/store/store.go
// PURPOSE: Durable store of all core entities; transactional updates
// ============================================================================

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
)

// Store is the single source of truth for the core. Every component reads
// and writes through it; in-memory structures (the publish heap, the
// registry cache) are rebuildable projections.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres through lib/pq and wraps the connection with
// gorm, then ensures the schema.
func Open(dsn string) (*Store, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	s := &Store{db: db}
	if err := s.AutoMigrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing gorm handle. Used by tests.
func NewWithDB(db *gorm.DB) *Store { return &Store{db: db} }

// AutoMigrate creates or updates the schema for every core entity.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(
		&models.Pipeline{},
		&models.Account{},
		&models.AccountGroup{},
		&models.GroupMember{},
		&models.PublishConfig{},
		&models.RingSlot{},
		&models.Strategy{},
		&models.StrategyAssignment{},
		&models.AutoPublishTask{},
		&models.PublishTask{},
		&models.Monitor{},
		&models.MonitorResult{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping reports store availability.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// errRecordMissing forces wrapErr onto the NotFound path for guarded
// updates whose RowsAffected came back zero.
var errRecordMissing = gorm.ErrRecordNotFound

// wrapErr maps driver-level failures onto the application error taxonomy.
func wrapErr(err error, code, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.NotFound(code, message)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 23505 unique_violation, 23503 foreign_key_violation
		if pqErr.Code == "23505" || pqErr.Code == "23503" {
			return &common.AppError{Kind: common.KindConflict, Code: code, Message: message, Err: err}
		}
	}
	return common.Transient(code, message, err)
}
