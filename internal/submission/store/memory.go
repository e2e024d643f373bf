package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"staygate/internal/submission/models"
	"staygate/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store for unit tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	guests map[uuid.UUID]*models.Guest
	clock  Clock
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock sets the clock function for testability.
func WithMemoryClock(clock Clock) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemory constructs an empty in-memory store.
func NewMemory(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		guests: make(map[uuid.UUID]*models.Guest),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guest, ok := s.guests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *guest
	return &copied, nil
}

func (s *MemoryStore) Create(_ context.Context, guest *models.Guest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.guests[guest.ID]; exists {
		return sentinel.ErrConflict
	}
	if guest.Status == "" {
		guest.Status = models.StatusPending
	}
	if guest.CreatedAt.IsZero() {
		guest.CreatedAt = s.clock()
	}
	copied := *guest
	s.guests[guest.ID] = &copied
	return nil
}

func (s *MemoryStore) UpdateSubmission(_ context.Context, guest *models.Guest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.guests[guest.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	stored.Status = guest.Status
	stored.SubmittedAt = guest.SubmittedAt
	stored.GovSubmissionID = guest.GovSubmissionID
	return nil
}

func (s *MemoryStore) ListRetryable(_ context.Context, lookback time.Duration, limit int) ([]*models.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.clock().Add(-lookback)
	eligible := make([]*models.Guest, 0)
	for _, guest := range s.guests {
		if guest.Status.Submittable() && !guest.CreatedAt.Before(cutoff) {
			copied := *guest
			eligible = append(eligible, &copied)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}
