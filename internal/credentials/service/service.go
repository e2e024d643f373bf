package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"staygate/internal/audit"
	"staygate/internal/credentials/models"
	"staygate/internal/platform/metrics"
	"staygate/internal/submission"
	submodels "staygate/internal/submission/models"
	dErrors "staygate/pkg/domain-errors"
	"staygate/pkg/platform/sentinel"
)

// Store persists credential records.
type Store interface {
	Get(ctx context.Context, hostID string) (*models.Credential, error)
	Upsert(ctx context.Context, cred *models.Credential) error
	Delete(ctx context.Context, hostID string) error
}

// Normalizer converts uploaded bundles into gateway keystore artifacts.
type Normalizer interface {
	Normalize(ctx context.Context, hostID, subjectID string, bundle []byte, userPassword string) (string, error)
	Remove(hostID, subjectID string) error
}

// Cipher protects the bundle password at rest.
type Cipher interface {
	Encrypt(plaintext []byte) (ciphertext, iv, authTag []byte, err error)
}

// ProbeSubmitter sends a submission to the gateway. Verification reuses the
// real submission path with a synthetic guest.
type ProbeSubmitter interface {
	Submit(ctx context.Context, guest submodels.Guest, creds submission.Credentials) (*submission.GatewayResponse, error)
}

// AuditPublisher fans out compliance events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service manages host gateway credentials: upload, verification, removal.
type Service struct {
	store      Store
	normalizer Normalizer
	cipher     Cipher
	probe      ProbeSubmitter
	publisher  AuditPublisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	clock      func() time.Time
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

// New constructs a credential service.
func New(store Store, normalizer Normalizer, cipher Cipher, probe ProbeSubmitter, opts ...Option) *Service {
	s := &Service{
		store:      store,
		normalizer: normalizer,
		cipher:     cipher,
		probe:      probe,
		logger:     slog.Default(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload normalizes an uploaded PKCS#12 bundle for a host and records the
// credential. A re-upload supersedes the prior record and resets verification.
func (s *Service) Upload(ctx context.Context, hostID, ico string, bundle []byte, password string) (*models.Credential, error) {
	hostID = strings.TrimSpace(hostID)
	ico = strings.TrimSpace(ico)
	switch {
	case hostID == "":
		return nil, dErrors.New(dErrors.CodeValidation, "host id is required")
	case ico == "":
		return nil, dErrors.New(dErrors.CodeValidation, "ico is required")
	case len(bundle) == 0:
		return nil, dErrors.New(dErrors.CodeValidation, "credential bundle is required")
	case password == "":
		return nil, dErrors.New(dErrors.CodeValidation, "bundle password is required")
	}

	subject := models.DeriveAPISubject(ico)
	path, err := s.normalizer.Normalize(ctx, hostID, subject, bundle, password)
	if err != nil {
		return nil, err
	}

	ciphertext, iv, tag, err := s.cipher.Encrypt([]byte(password))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to protect bundle password")
	}

	cred := &models.Credential{
		HostID:             hostID,
		ICO:                ico,
		APISubject:         subject,
		KeystorePath:       path,
		PasswordCiphertext: ciphertext,
		PasswordIV:         iv,
		PasswordTag:        tag,
		Verified:           false,
	}
	if err := s.store.Upsert(ctx, cred); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist credential")
	}

	s.emit(ctx, audit.Event{
		HostID:  hostID,
		Subject: subject,
		Action:  audit.ActionCredentialUploaded,
	})
	s.logger.InfoContext(ctx, "credential uploaded",
		"host_id", hostID, "subject", subject, "keystore_path", path)
	return cred, nil
}

// Verify proves the host's credential against the live gateway by submitting
// a synthetic guest. A data validation rejection still proves the gateway
// accepted the signature, so it counts as success.
func (s *Service) Verify(ctx context.Context, hostID string) (*models.Credential, error) {
	cred, err := s.get(ctx, hostID)
	if err != nil {
		return nil, err
	}

	_, err = s.probe.Submit(ctx, probeGuest(hostID), submission.Credentials{
		Subject:      cred.APISubject,
		KeystorePath: cred.KeystorePath,
	})
	switch {
	case err == nil, dErrors.HasCode(err, dErrors.CodeDataValidation):
		now := s.clock()
		cred.Verified = true
		cred.VerifiedAt = &now
	case dErrors.HasCode(err, dErrors.CodeAuth):
		cred.Verified = false
		cred.VerifiedAt = nil
		if storeErr := s.store.Upsert(ctx, cred); storeErr != nil {
			s.logger.ErrorContext(ctx, "failed to record verification failure",
				"host_id", hostID, "error", storeErr)
		}
		return nil, err
	default:
		return nil, err
	}

	if err := s.store.Upsert(ctx, cred); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist verification")
	}
	s.emit(ctx, audit.Event{
		HostID:  hostID,
		Subject: cred.APISubject,
		Action:  audit.ActionCredentialVerified,
	})
	s.logger.InfoContext(ctx, "credential verified", "host_id", hostID, "subject", cred.APISubject)
	return cred, nil
}

// Delete removes the credential record and its keystore artifacts.
func (s *Service) Delete(ctx context.Context, hostID string) error {
	cred, err := s.get(ctx, hostID)
	if err != nil {
		return err
	}

	if err := s.normalizer.Remove(hostID, cred.APISubject); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove keystore artifacts")
	}
	if err := s.store.Delete(ctx, hostID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete credential")
	}

	s.emit(ctx, audit.Event{
		HostID:  hostID,
		Subject: cred.APISubject,
		Action:  audit.ActionCredentialDeleted,
	})
	s.logger.InfoContext(ctx, "credential deleted", "host_id", hostID, "subject", cred.APISubject)
	return nil
}

// ForHost resolves the signing credentials the submission pipeline needs.
// A host without registered credentials is a configuration problem, not a
// guest data problem.
func (s *Service) ForHost(ctx context.Context, hostID string) (submission.Credentials, error) {
	cred, err := s.store.Get(ctx, hostID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return submission.Credentials{}, dErrors.New(dErrors.CodeConfiguration,
				"no credentials registered for host")
		}
		return submission.Credentials{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	return submission.Credentials{
		Subject:      cred.APISubject,
		KeystorePath: cred.KeystorePath,
	}, nil
}

func (s *Service) get(ctx context.Context, hostID string) (*models.Credential, error) {
	cred, err := s.store.Get(ctx, hostID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	return cred, nil
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

// probeGuest builds the synthetic stay record used for verification probes.
// The gateway rejects it on content, which is exactly the point.
func probeGuest(hostID string) submodels.Guest {
	today := time.Now().Format("2006-01-02")
	return submodels.Guest{
		ID:             uuid.New(),
		HostID:         hostID,
		FirstName:      "Verification",
		Surname:        "Probe",
		DateOfBirth:    "1970-01-01",
		Nationality:    "SK",
		DocumentNumber: "PROBE000",
		ArrivalDate:    today,
		DepartureDate:  today,
		Status:         submodels.StatusPending,
	}
}
