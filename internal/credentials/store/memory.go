package store

import (
	"context"
	"sync"
	"time"

	"staygate/internal/credentials/models"
	"staygate/pkg/platform/sentinel"
)

// MemoryStore is an in-memory credential store for tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]*models.Credential
	clock Clock
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

// NewMemory constructs an empty in-memory credential store.
func NewMemory(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		creds: make(map[string]*models.Credential),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, hostID string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[hostID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *cred
	return &cp, nil
}

func (s *MemoryStore) Upsert(_ context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	cp := *cred
	if prior, ok := s.creds[cred.HostID]; ok {
		cp.CreatedAt = prior.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.creds[cred.HostID] = &cp
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, hostID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.creds[hostID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.creds, hostID)
	return nil
}
