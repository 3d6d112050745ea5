package slotlock

import (
	"context"
	"sync"
	"time"

	"github.com/ManuelReschke/TableFox/app/models"
)

// MemoryStore is an in-process Store with the same expiry semantics as
// GormStore. It only serves a single process.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]models.SlotLock
	// Err, when set, fails Insert, Get, Delete and DeleteBySession.
	Err error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: map[string]models.SlotLock{}}
}

func (s *MemoryStore) Insert(ctx context.Context, lock *models.SlotLock, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for token, l := range s.locks {
		if KeyOf(&l) != KeyOf(lock) {
			continue
		}
		if l.ActiveAt(now) {
			return ErrSlotTaken
		}
		delete(s.locks, token)
	}
	s.locks[lock.Token] = *lock
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, token string, now time.Time) (*models.SlotLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	l, ok := s.locks[token]
	if !ok || !l.ActiveAt(now) {
		return nil, ErrLockNotFound
	}
	return &l, nil
}

func (s *MemoryStore) ActiveForKey(ctx context.Context, key Key, now time.Time) (*models.SlotLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.locks {
		if KeyOf(&l) == key && l.ActiveAt(now) {
			return &l, nil
		}
	}
	return nil, ErrLockNotFound
}

func (s *MemoryStore) Extend(ctx context.Context, token string, expiresAt, now time.Time) (*models.SlotLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[token]
	if !ok || !l.ActiveAt(now) {
		return nil, ErrLockNotFound
	}
	l.ExpiresAt = expiresAt
	l.LastExtendedAt = now
	s.locks[token] = l
	return &l, nil
}

func (s *MemoryStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.locks, token)
	return nil
}

func (s *MemoryStore) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	var n int64
	for token, l := range s.locks {
		if sessionID != "" && l.SessionID == sessionID {
			delete(s.locks, token)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for token, l := range s.locks {
		if !l.ActiveAt(now) {
			delete(s.locks, token)
			n++
		}
	}
	return n, nil
}

// Count returns the number of stored locks, expired ones included.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
