package store

import (
	"context"
	"time"

	"staygate/internal/credentials/models"
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Store persists host credentials. A host has at most one credential record;
// Upsert supersedes any prior record for the same host.
type Store interface {
	Get(ctx context.Context, hostID string) (*models.Credential, error)
	Upsert(ctx context.Context, cred *models.Credential) error
	Delete(ctx context.Context, hostID string) error
}
