package memory

import (
	"context"
	"time"

	"cenems-telemetry/internal/domain"
	"cenems-telemetry/internal/storage"
)

// rawEventView implements storage.RawEventStore over a Store. With
// locking set it guards each call; inside a transaction the transaction
// already holds the lock.
type rawEventView struct {
	s       *Store
	locking bool
}

var _ storage.RawEventStore = rawEventView{}

func (v rawEventView) Insert(_ context.Context, e *domain.RawEvent) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}
	if v.locking {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	return v.s.insertRawEvent(e)
}

func (v rawEventView) GetByEventID(_ context.Context, eventID string) (*domain.RawEvent, error) {
	if v.locking {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	e, exists := v.s.rawEvents[eventID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyRawEvent(e), nil
}

func (s *Store) insertRawEvent(e *domain.RawEvent) error {
	if _, exists := s.rawEvents[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}
	c := copyRawEvent(e)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.rawEvents[e.EventID] = c
	return nil
}
