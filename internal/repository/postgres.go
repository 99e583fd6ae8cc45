package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresStore persists results with gorm
type PostgresStore struct {
	logger *zap.Logger
	db     *gorm.DB
}

// OpenPostgres connects to dsn and migrates the result tables
func OpenPostgres(log *zap.Logger, dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store, err := NewPostgresStore(log, db)
	if err != nil {
		return nil, err
	}
	log.Info("Connected to result database")
	return store, nil
}

// NewPostgresStore wraps an open gorm handle and runs migrations
func NewPostgresStore(log *zap.Logger, db *gorm.DB) (*PostgresStore, error) {
	if err := db.AutoMigrate(&SimulationRecord{}, &TradeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate result tables: %w", err)
	}
	return &PostgresStore{logger: log, db: db}, nil
}

// Save writes a result and replaces any trades stored under the same ID
func (s *PostgresStore) Save(ctx context.Context, result *types.SimulationResult) error {
	if result == nil || result.ID == "" {
		return errors.New("result must have an id")
	}
	rec := FromResult(result)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Trades").Save(rec).Error; err != nil {
			return err
		}
		if err := tx.Where("simulation_id = ?", rec.ID).Delete(&TradeRecord{}).Error; err != nil {
			return err
		}
		if len(rec.Trades) == 0 {
			return nil
		}
		return tx.CreateInBatches(rec.Trades, 500).Error
	})
	if err != nil {
		return fmt.Errorf("save simulation %s: %w", result.ID, err)
	}

	s.logger.Debug("Saved simulation result",
		zap.String("id", rec.ID),
		zap.Int("trades", len(rec.Trades)),
	)
	return nil
}

// Get loads a result with its trades in execution order
func (s *PostgresStore) Get(ctx context.Context, id string) (*types.SimulationResult, error) {
	var rec SimulationRecord
	err := s.db.WithContext(ctx).
		Preload("Trades", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSimulationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load simulation %s: %w", id, err)
	}
	return rec.ToResult(), nil
}

// List returns result summaries, newest first
func (s *PostgresStore) List(ctx context.Context, limit int) ([]*types.SimulationResult, error) {
	var records []SimulationRecord
	q := s.db.WithContext(ctx).Order("completed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list simulations: %w", err)
	}

	out := make([]*types.SimulationResult, len(records))
	for i := range records {
		out[i] = records[i].ToResult()
	}
	return out, nil
}

// Close releases the underlying connection pool
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
