package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"staygate/internal/submission/models"
	"staygate/pkg/platform/sentinel"
)

// PostgresStore persists guest submissions in PostgreSQL.
//
// Expected schema (managed by the deployment's migration tooling):
//
//	CREATE TABLE guest_submissions (
//	    id                 UUID PRIMARY KEY,
//	    host_id            TEXT NOT NULL,
//	    first_name         TEXT NOT NULL,
//	    surname            TEXT NOT NULL,
//	    date_of_birth      TEXT NOT NULL,
//	    nationality        TEXT NOT NULL,
//	    document_number    TEXT NOT NULL,
//	    arrival_date       TEXT NOT NULL,
//	    departure_date     TEXT NOT NULL,
//	    submission_status  TEXT NOT NULL DEFAULT 'pending',
//	    submitted_at       TIMESTAMPTZ,
//	    gov_submission_id  TEXT,
//	    created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
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

// NewPostgres constructs a PostgreSQL-backed submission store.
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

const guestColumns = `
	id, host_id, first_name, surname, date_of_birth, nationality,
	document_number, arrival_date, departure_date, submission_status,
	submitted_at, gov_submission_id, created_at
`

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Guest, error) {
	query := `SELECT ` + guestColumns + ` FROM guest_submissions WHERE id = $1`
	guest, err := scanGuest(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get guest submission: %w", err)
	}
	return guest, nil
}

func (s *PostgresStore) Create(ctx context.Context, guest *models.Guest) error {
	if guest.Status == "" {
		guest.Status = models.StatusPending
	}
	if guest.CreatedAt.IsZero() {
		guest.CreatedAt = s.clock()
	}
	query := `
		INSERT INTO guest_submissions (` + guestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		guest.ID, guest.HostID, guest.FirstName, guest.Surname,
		guest.DateOfBirth, guest.Nationality, guest.DocumentNumber,
		guest.ArrivalDate, guest.DepartureDate, guest.Status,
		guest.SubmittedAt, guest.GovSubmissionID, guest.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create guest submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateSubmission(ctx context.Context, guest *models.Guest) error {
	query := `
		UPDATE guest_submissions
		SET submission_status = $2, submitted_at = $3, gov_submission_id = $4
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		guest.ID, guest.Status, guest.SubmittedAt, guest.GovSubmissionID)
	if err != nil {
		return fmt.Errorf("update guest submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update guest submission: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListRetryable(ctx context.Context, lookback time.Duration, limit int) ([]*models.Guest, error) {
	cutoff := s.clock().Add(-lookback)
	query := `
		SELECT ` + guestColumns + `
		FROM guest_submissions
		WHERE submission_status = ANY($1) AND created_at >= $2
		ORDER BY created_at ASC
		LIMIT $3
	`
	statuses := pq.Array([]string{string(models.StatusPending), string(models.StatusError)})
	rows, err := s.db.QueryContext(ctx, query, statuses, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list retryable submissions: %w", err)
	}
	defer rows.Close()

	var guests []*models.Guest
	for rows.Next() {
		guest, err := scanGuest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan retryable submission: %w", err)
		}
		guests = append(guests, guest)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list retryable submissions: %w", err)
	}
	return guests, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGuest(row rowScanner) (*models.Guest, error) {
	var guest models.Guest
	var submittedAt sql.NullTime
	var govID sql.NullString
	err := row.Scan(
		&guest.ID, &guest.HostID, &guest.FirstName, &guest.Surname,
		&guest.DateOfBirth, &guest.Nationality, &guest.DocumentNumber,
		&guest.ArrivalDate, &guest.DepartureDate, &guest.Status,
		&submittedAt, &govID, &guest.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if submittedAt.Valid {
		guest.SubmittedAt = &submittedAt.Time
	}
	if govID.Valid {
		guest.GovSubmissionID = &govID.String
	}
	return &guest, nil
}
