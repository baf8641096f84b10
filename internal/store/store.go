// Package store is the turn record store the scheduler reads and
// conditionally mutates.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/hourglass/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a turn id has no row.
var ErrNotFound = errors.New("store: turn not found")

// Completion holds the facts written when a turn is completed.
type Completion struct {
	At         time.Time
	By         string // "ai", "human", or a host identifier
	AutoFilled bool
	Text       string
}

// TurnStore is the persistence contract for the scheduler.
//
// CompleteIfPending is the only way to set completed_at. It must apply the
// write only when completed_at is still NULL and report whether it did.
// SetExpiresAt only writes while expires_at is NULL. SetNotifiedChannels is
// a plain write of a grow-only set, so concurrent workers may repeat it.
type TurnStore interface {
	ListOpen(ctx context.Context, limit int) ([]models.Turn, error)
	SetExpiresAt(ctx context.Context, turnID string, at time.Time) error
	SetNotifiedChannels(ctx context.Context, turnID string, channels models.ChannelSet) error
	CompleteIfPending(ctx context.Context, turnID string, c Completion) (bool, error)
}

// GormStore implements TurnStore on a gorm connection.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	return &GormStore{db: db}, nil
}

// ListOpen returns up to limit incomplete turns, oldest first, inner joined
// with their branch. Turns whose branch row is missing are not returned.
func (s *GormStore) ListOpen(ctx context.Context, limit int) ([]models.Turn, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("store: limit must be positive, got %d", limit)
	}
	var turns []models.Turn
	err := s.db.WithContext(ctx).
		InnerJoins("Branch").
		Where("branch_turns.completed_at IS NULL").
		Order("branch_turns.created_at ASC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("store: list open turns: %w", err)
	}
	return turns, nil
}

// Get loads one turn with its branch.
func (s *GormStore) Get(ctx context.Context, turnID string) (*models.Turn, error) {
	var turn models.Turn
	err := s.db.WithContext(ctx).Preload("Branch").Where("id = ?", turnID).Take(&turn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get turn %s: %w", turnID, err)
	}
	return &turn, nil
}

// SetExpiresAt records the expiration for a turn that has none yet. A turn
// whose expires_at is already set is left untouched.
func (s *GormStore) SetExpiresAt(ctx context.Context, turnID string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.Turn{}).
		Where("id = ? AND expires_at IS NULL", turnID).
		Update("expires_at", at.UTC())
	if result.Error != nil {
		return fmt.Errorf("store: set expires_at %s: %w", turnID, result.Error)
	}
	return nil
}

// SetNotifiedChannels persists the channel set for a turn. Callers pass a
// set derived with ChannelSet.Union so the stored set only grows.
func (s *GormStore) SetNotifiedChannels(ctx context.Context, turnID string, channels models.ChannelSet) error {
	result := s.db.WithContext(ctx).Model(&models.Turn{}).
		Where("id = ?", turnID).
		Update("notified_channels", channels)
	if result.Error != nil {
		return fmt.Errorf("store: set notified_channels %s: %w", turnID, result.Error)
	}
	return nil
}

// CompleteIfPending marks the turn completed only if completed_at is NULL.
// It returns false when another writer completed the turn first.
func (s *GormStore) CompleteIfPending(ctx context.Context, turnID string, c Completion) (bool, error) {
	if c.By == "" {
		return false, fmt.Errorf("store: completion requires completed_by")
	}
	at := c.At
	if at.IsZero() {
		at = time.Now()
	}
	result := s.db.WithContext(ctx).Model(&models.Turn{}).
		Where("id = ? AND completed_at IS NULL", turnID).
		Updates(map[string]interface{}{
			"completed_at":   at.UTC(),
			"completed_by":   c.By,
			"auto_filled":    c.AutoFilled,
			"auto_fill_text": c.Text,
		})
	if result.Error != nil {
		return false, fmt.Errorf("store: complete %s: %w", turnID, result.Error)
	}
	return result.RowsAffected == 1, nil
}
