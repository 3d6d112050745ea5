package slotlock

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TableFox/app/models"
)

// GormStore keeps locks in the slot_locks table. Mutual exclusion comes from
// the unique index on (venue_id, service_id, slot_date, slot_time).
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Insert(ctx context.Context, lock *models.SlotLock, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A lapsed lease on the same key must not block the new claim.
		if err := tx.Where("venue_id = ? AND service_id = ? AND slot_date = ? AND slot_time = ? AND expires_at <= ?",
			lock.VenueID, lock.ServiceID, lock.SlotDate, lock.SlotTime, now).
			Delete(&models.SlotLock{}).Error; err != nil {
			return err
		}
		if err := tx.Create(lock).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrSlotTaken
			}
			return err
		}
		return nil
	})
}

func (s *GormStore) Get(ctx context.Context, token string, now time.Time) (*models.SlotLock, error) {
	var lock models.SlotLock
	err := s.db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, now).
		First(&lock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLockNotFound
	}
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

func (s *GormStore) ActiveForKey(ctx context.Context, key Key, now time.Time) (*models.SlotLock, error) {
	var lock models.SlotLock
	err := s.db.WithContext(ctx).
		Where("venue_id = ? AND service_id = ? AND slot_date = ? AND slot_time = ? AND expires_at > ?",
			key.VenueID, key.ServiceID, key.Date, key.Time, now).
		First(&lock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLockNotFound
	}
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

func (s *GormStore) Extend(ctx context.Context, token string, expiresAt, now time.Time) (*models.SlotLock, error) {
	result := s.db.WithContext(ctx).Model(&models.SlotLock{}).
		Where("token = ? AND expires_at > ?", token, now).
		Updates(map[string]interface{}{
			"expires_at":       expiresAt,
			"last_extended_at": now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrLockNotFound
	}
	return s.Get(ctx, token, now)
}

func (s *GormStore) Delete(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Where("token = ?", token).Delete(&models.SlotLock{}).Error
}

func (s *GormStore) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&models.SlotLock{})
	return result.RowsAffected, result.Error
}

func (s *GormStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.SlotLock{})
	return result.RowsAffected, result.Error
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// MySQL error 1062 when TranslateError is off.
	return strings.Contains(err.Error(), "Duplicate entry")
}
