package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aisaas/backend/internal/app/domain/creation"
	"github.com/aisaas/backend/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	creations []creation.Creation
	now       func() time.Time
}

var _ storage.CreationStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) CreateCreation(_ context.Context, c creation.Creation) (creation.Creation, error) {
	if err := c.Validate(); err != nil {
		return creation.Creation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = s.nextID
	s.nextID++
	now := s.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.creations = append(s.creations, c)
	return c, nil
}

func (s *Store) ListUserCreations(_ context.Context, userID string) ([]creation.Creation, error) {
	return s.filter(func(c creation.Creation) bool { return c.UserID == userID }), nil
}

func (s *Store) ListPublishedCreations(_ context.Context) ([]creation.Creation, error) {
	return s.filter(func(c creation.Creation) bool { return c.Publish }), nil
}

// Len returns the number of stored creations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creations)
}

func (s *Store) filter(keep func(creation.Creation) bool) []creation.Creation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]creation.Creation, 0)
	for _, c := range s.creations {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
