package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"ragworkbench/internal/model"
)

const (
	defaultTurnLimit = 100
	maxTurnLimit     = 500
)

type TurnRepository struct {
	db *gorm.DB
}

func NewTurnRepository(db *gorm.DB) *TurnRepository {
	return &TurnRepository{db: db}
}

func (r *TurnRepository) Migrate() error {
	if err := r.db.AutoMigrate(&model.TurnRecord{}); err != nil {
		return fmt.Errorf("auto migrate turn table failed: %w", err)
	}
	return nil
}

func (r *TurnRepository) Create(ctx context.Context, record *model.TurnRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("create turn failed: %w", err)
	}
	return nil
}

// ListBySessionID returns the newest limit turns of a session, oldest first.
func (r *TurnRepository) ListBySessionID(ctx context.Context, userID, sessionID string, limit int) ([]model.TurnRecord, error) {
	if limit <= 0 || limit > maxTurnLimit {
		limit = defaultTurnLimit
	}

	var records []model.TurnRecord
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Order("turn_id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list turns failed: %w", err)
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}
