package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"staygate/internal/credentials/models"
	"staygate/pkg/platform/sentinel"
)

// PostgresStore persists host credentials in PostgreSQL.
//
// Expected schema (managed by the deployment's migration tooling):
//
//	CREATE TABLE host_credentials (
//	    host_id              TEXT PRIMARY KEY,
//	    ico                  TEXT NOT NULL,
//	    api_subject          TEXT NOT NULL,
//	    keystore_path        TEXT NOT NULL,
//	    password_ciphertext  BYTEA,
//	    password_iv          BYTEA,
//	    password_tag         BYTEA,
//	    verified             BOOLEAN NOT NULL DEFAULT FALSE,
//	    verified_at          TIMESTAMPTZ,
//	    created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresStore struct {
	db    *sql.DB
	clock Clock
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock Clock) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:    db,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PostgresStore) Get(ctx context.Context, hostID string) (*models.Credential, error) {
	query := `
		SELECT host_id, ico, api_subject, keystore_path,
		       password_ciphertext, password_iv, password_tag,
		       verified, verified_at, created_at, updated_at
		FROM host_credentials WHERE host_id = $1
	`
	var cred models.Credential
	var verifiedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, hostID).Scan(
		&cred.HostID, &cred.ICO, &cred.APISubject, &cred.KeystorePath,
		&cred.PasswordCiphertext, &cred.PasswordIV, &cred.PasswordTag,
		&cred.Verified, &verifiedAt, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get host credential: %w", err)
	}
	if verifiedAt.Valid {
		cred.VerifiedAt = &verifiedAt.Time
	}
	return &cred, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, cred *models.Credential) error {
	now := s.clock()
	query := `
		INSERT INTO host_credentials (
			host_id, ico, api_subject, keystore_path,
			password_ciphertext, password_iv, password_tag,
			verified, verified_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (host_id) DO UPDATE SET
			ico = EXCLUDED.ico,
			api_subject = EXCLUDED.api_subject,
			keystore_path = EXCLUDED.keystore_path,
			password_ciphertext = EXCLUDED.password_ciphertext,
			password_iv = EXCLUDED.password_iv,
			password_tag = EXCLUDED.password_tag,
			verified = EXCLUDED.verified,
			verified_at = EXCLUDED.verified_at,
			updated_at = EXCLUDED.updated_at
	`
	createdAt := cred.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := s.db.ExecContext(ctx, query,
		cred.HostID, cred.ICO, cred.APISubject, cred.KeystorePath,
		cred.PasswordCiphertext, cred.PasswordIV, cred.PasswordTag,
		cred.Verified, cred.VerifiedAt, createdAt, now,
	)
	if err != nil {
		return fmt.Errorf("upsert host credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, hostID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM host_credentials WHERE host_id = $1`, hostID)
	if err != nil {
		return fmt.Errorf("delete host credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete host credential: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
