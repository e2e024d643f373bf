package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"staygate/internal/audit"
	"staygate/internal/platform/metrics"
	"staygate/internal/submission"
	"staygate/internal/submission/models"
	dErrors "staygate/pkg/domain-errors"
	"staygate/pkg/platform/sentinel"
)

// Store persists guest submission state.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Guest, error)
	UpdateSubmission(ctx context.Context, guest *models.Guest) error
}

// CredentialsSource resolves the signing credentials for a host.
type CredentialsSource interface {
	ForHost(ctx context.Context, hostID string) (submission.Credentials, error)
}

// Transport delivers a guest form to the government gateway.
type Transport interface {
	Submit(ctx context.Context, guest models.Guest, creds submission.Credentials) (*submission.GatewayResponse, error)
}

// AuditPublisher fans out compliance events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service drives guest submissions through the state machine: it loads the
// record, resolves host credentials, calls the gateway and records the
// outcome before surfacing any failure to the caller.
type Service struct {
	store     Store
	creds     CredentialsSource
	transport Transport
	publisher AuditPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New constructs a submission service.
func New(store Store, creds CredentialsSource, transport Transport, opts ...Option) *Service {
	s := &Service{
		store:     store,
		creds:     creds,
		transport: transport,
		logger:    slog.Default(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit sends one guest record to the gateway. Any attempt failure is first
// recorded as an error transition, then returned to the caller; the record
// stays eligible for retry.
func (s *Service) Submit(ctx context.Context, guestID uuid.UUID) (*models.Guest, error) {
	guest, err := s.store.Get(ctx, guestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "guest not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load guest")
	}
	if !guest.Status.Submittable() {
		return nil, dErrors.New(dErrors.CodeConflict, "guest submission is not pending")
	}

	creds, err := s.creds.ForHost(ctx, guest.HostID)
	if err != nil {
		return nil, s.recordFailure(ctx, guest, err)
	}

	resp, err := s.transport.Submit(ctx, *guest, creds)
	if err != nil {
		return nil, s.recordFailure(ctx, guest, err)
	}

	// The gateway does not always echo a submission id; issue a local
	// receipt so the sent invariant holds either way.
	govID := resp.SubmissionID
	if govID == "" {
		govID = uuid.NewString()
	}
	if err := guest.MarkSent(s.clock(), govID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "guest submission is not pending")
	}
	if err := s.store.UpdateSubmission(ctx, guest); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record submission")
	}

	s.incSubmissions("success")
	s.emit(ctx, audit.Event{
		HostID:  guest.HostID,
		GuestID: guest.ID.String(),
		Action:  audit.ActionSubmissionSent,
		Detail:  govID,
	})
	s.logger.InfoContext(ctx, "guest submission sent",
		"guest_id", guest.ID, "host_id", guest.HostID, "gov_submission_id", govID)
	return guest, nil
}

// Confirm applies the external confirmation hook: sent to confirmed, only
// when the gateway submission id matches.
func (s *Service) Confirm(ctx context.Context, guestID uuid.UUID, govSubmissionID string) (*models.Guest, error) {
	guest, err := s.store.Get(ctx, guestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "guest not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load guest")
	}

	if err := guest.Confirm(govSubmissionID); err != nil {
		return nil, dErrors.New(dErrors.CodeConflict, "submission cannot be confirmed")
	}
	if err := s.store.UpdateSubmission(ctx, guest); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record confirmation")
	}

	s.emit(ctx, audit.Event{
		HostID:  guest.HostID,
		GuestID: guest.ID.String(),
		Action:  audit.ActionSubmissionConfirmed,
		Detail:  govSubmissionID,
	})
	s.logger.InfoContext(ctx, "guest submission confirmed",
		"guest_id", guest.ID, "gov_submission_id", govSubmissionID)
	return guest, nil
}

// recordFailure applies the error transition and persists it, then returns
// the original cause so callers and the scheduler see the real failure.
func (s *Service) recordFailure(ctx context.Context, guest *models.Guest, cause error) error {
	if err := guest.MarkError(s.clock()); err != nil {
		return cause
	}
	if err := s.store.UpdateSubmission(ctx, guest); err != nil {
		s.logger.ErrorContext(ctx, "failed to record submission failure",
			"guest_id", guest.ID, "error", err)
	}
	s.incSubmissions("failure")
	s.emit(ctx, audit.Event{
		HostID:  guest.HostID,
		GuestID: guest.ID.String(),
		Action:  audit.ActionSubmissionFailed,
		Detail:  cause.Error(),
	})
	s.logger.WarnContext(ctx, "guest submission failed",
		"guest_id", guest.ID, "host_id", guest.HostID, "error", cause)
	return cause
}

func (s *Service) incSubmissions(outcome string) {
	if s.metrics != nil {
		s.metrics.IncSubmissions(outcome)
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.publisher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock()
	}
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
