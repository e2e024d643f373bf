// Package store persists guest submission records. The guest CRUD surface
// lives elsewhere; this store covers only what the submission pipeline
// reads and writes.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"staygate/internal/submission/models"
)

// Store is the submission pipeline's view of guest persistence.
type Store interface {
	// Get returns one guest record. sentinel.ErrNotFound when absent.
	Get(ctx context.Context, id uuid.UUID) (*models.Guest, error)
	// Create inserts a new guest record in pending state.
	Create(ctx context.Context, guest *models.Guest) error
	// UpdateSubmission persists the delivery fields (status, submitted-at,
	// gateway submission id) after a state transition.
	UpdateSubmission(ctx context.Context, guest *models.Guest) error
	// ListRetryable returns up to limit records eligible for retry:
	// status pending or error, created within the lookback window,
	// oldest first.
	ListRetryable(ctx context.Context, lookback time.Duration, limit int) ([]*models.Guest, error)
}

// Clock abstracts time.Now for testability.
type Clock func() time.Time
