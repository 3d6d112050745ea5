// Package slotlock implements short-lived leases on booking slots. A lease
// blocks other checkout attempts for the same (venue, service, date, time)
// key; it never reserves a table.
package slotlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/TableFox/app/models"
)

var (
	// ErrSlotTaken is returned by Store.Insert when an active lease already
	// covers the key.
	ErrSlotTaken = errors.New("slot lock already held")
	// ErrLockNotFound means the token is unknown, released or expired.
	ErrLockNotFound = errors.New("slot lock not found")
)

// Key identifies a bookable slot.
type Key struct {
	VenueID   uint
	ServiceID uint
	Date      string
	Time      string
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d:%s:%s", k.VenueID, k.ServiceID, k.Date, k.Time)
}

// KeyOf returns the slot key a lock covers.
func KeyOf(l *models.SlotLock) Key {
	return Key{VenueID: l.VenueID, ServiceID: l.ServiceID, Date: l.SlotDate, Time: l.SlotTime}
}

// Store persists slot locks. Implementations must make Insert an atomic
// insert-if-absent and must treat a lock whose ExpiresAt is not after now as
// absent on every read, whether or not it has been reaped yet.
type Store interface {
	Insert(ctx context.Context, lock *models.SlotLock, now time.Time) error
	Get(ctx context.Context, token string, now time.Time) (*models.SlotLock, error)
	ActiveForKey(ctx context.Context, key Key, now time.Time) (*models.SlotLock, error)
	Extend(ctx context.Context, token string, expiresAt, now time.Time) (*models.SlotLock, error)
	Delete(ctx context.Context, token string) error
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
