package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staygate/internal/credentials/store"
	"staygate/internal/submission"
	submodels "staygate/internal/submission/models"
	dErrors "staygate/pkg/domain-errors"
)

type fakeNormalizer struct {
	normalized []string
	removed    []string
	err        error
}

func (f *fakeNormalizer) Normalize(_ context.Context, hostID, subjectID string, _ []byte, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := "/keystores/" + hostID + "/" + subjectID + ".keystore"
	f.normalized = append(f.normalized, path)
	return path, nil
}

func (f *fakeNormalizer) Remove(hostID, subjectID string) error {
	f.removed = append(f.removed, hostID+"/"+subjectID)
	return f.err
}

type fakeCipher struct{}

func (fakeCipher) Encrypt(plaintext []byte) ([]byte, []byte, []byte, error) {
	return append([]byte("enc:"), plaintext...), []byte("iv"), []byte("tag"), nil
}

type fakeProbe struct {
	err   error
	calls []submission.Credentials
}

func (f *fakeProbe) Submit(_ context.Context, _ submodels.Guest, creds submission.Credentials) (*submission.GatewayResponse, error) {
	f.calls = append(f.calls, creds)
	if f.err != nil {
		return nil, f.err
	}
	return &submission.GatewayResponse{Body: "ok"}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newService(t *testing.T, probe *fakeProbe) (*Service, *store.MemoryStore, *fakeNormalizer) {
	t.Helper()
	st := store.NewMemory()
	norm := &fakeNormalizer{}
	svc := New(st, norm, fakeCipher{}, probe, WithLogger(discard()))
	return svc, st, norm
}

func TestUpload(t *testing.T) {
	svc, st, norm := newService(t, &fakeProbe{})
	ctx := context.Background()

	cred, err := svc.Upload(ctx, "host-1", "12345678", []byte("bundle"), "secret")
	require.NoError(t, err)

	assert.Equal(t, "12345678_ApiIntegracia", cred.APISubject)
	assert.Equal(t, "/keystores/host-1/12345678_ApiIntegracia.keystore", cred.KeystorePath)
	assert.False(t, cred.Verified)
	assert.Equal(t, []byte("enc:secret"), cred.PasswordCiphertext)
	require.Len(t, norm.normalized, 1)

	stored, err := st.Get(ctx, "host-1")
	require.NoError(t, err)
	assert.Equal(t, cred.APISubject, stored.APISubject)
}

func TestUpload_Validation(t *testing.T) {
	svc, _, _ := newService(t, &fakeProbe{})
	ctx := context.Background()

	cases := []struct {
		name     string
		hostID   string
		ico      string
		bundle   []byte
		password string
	}{
		{"empty host", "", "12345678", []byte("b"), "p"},
		{"empty ico", "host-1", "  ", []byte("b"), "p"},
		{"empty bundle", "host-1", "12345678", nil, "p"},
		{"empty password", "host-1", "12345678", []byte("b"), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, tc.hostID, tc.ico, tc.bundle, tc.password)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestUpload_NormalizerFailure(t *testing.T) {
	svc, st, norm := newService(t, &fakeProbe{})
	norm.err = dErrors.New(dErrors.CodeConversion, "conversion failed")

	_, err := svc.Upload(context.Background(), "host-1", "12345678", []byte("bundle"), "secret")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConversion))

	_, err = st.Get(context.Background(), "host-1")
	assert.Error(t, err, "nothing persisted on normalization failure")
}

func TestUpload_SupersedesVerified(t *testing.T) {
	probe := &fakeProbe{}
	svc, st, _ := newService(t, probe)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "host-1", "12345678", []byte("bundle"), "secret")
	require.NoError(t, err)
	_, err = svc.Verify(ctx, "host-1")
	require.NoError(t, err)

	_, err = svc.Upload(ctx, "host-1", "12345678", []byte("bundle2"), "secret2")
	require.NoError(t, err)

	stored, err := st.Get(ctx, "host-1")
	require.NoError(t, err)
	assert.False(t, stored.Verified, "re-upload resets verification")
}

func TestVerify_Success(t *testing.T) {
	probe := &fakeProbe{}
	svc, st, _ := newService(t, probe)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "host-1", "12345678", []byte("bundle"), "secret")
	require.NoError(t, err)

	cred, err := svc.Verify(ctx, "host-1")
	require.NoError(t, err)
	assert.True(t, cred.Verified)
	require.NotNil(t, cred.VerifiedAt)

	require.Len(t, probe.calls, 1)
	assert.Equal(t, "12345678_ApiIntegracia", probe.calls[0].Subject)

	stored, err := st.Get(ctx, "host-1")
	require.NoError(t, err)
	assert.True(t, stored.Verified)
}

func TestVerify_DataValidationCountsAsSuccess(t *testing.T) {
	probe := &fakeProbe{err: dErrors.New(dErrors.CodeDataValidation, "invalid form")}
	svc, _, _ := newService(t, probe)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "host-1", "12345678", []byte("bundle"), "secret")
	require.NoError(t, err)

	cred, err := svc.Verify(ctx, "host-1")
	require.NoError(t, err)
	assert.True(t, cred.Verified)
}

func TestVerify_AuthFailure(t *testing.T) {
	probe := &fakeProbe{err: dErrors.New(dErrors.CodeAuth, "unauthorized")}
	svc, st, _ := newService(t, probe)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "host-1", "12345678", []byte("bundle"), "secret")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, "host-1")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuth))

	stored, err := st.Get(ctx, "host-1")
	require.NoError(t, err)
	assert.False(t, stored.Verified)
	assert.Nil(t, stored.VerifiedAt)
}

func TestVerify_TransportFailureLeavesStateAlone(t *testing.T) {
	probe := &fakeProbe{}
	svc, st, _ := newService(t, probe)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "host-1", "12345678", []byte("bundle"), "secret")
	require.NoError(t, err)
	_, err = svc.Verify(ctx, "host-1")
	require.NoError(t, err)

	probe.err = dErrors.New(dErrors.CodeTransport, "gateway down")
	_, err = svc.Verify(ctx, "host-1")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTransport))

	stored, err := st.Get(ctx, "host-1")
	require.NoError(t, err)
	assert.True(t, stored.Verified, "transport failure does not revoke verification")
}

func TestVerify_NotFound(t *testing.T) {
	svc, _, _ := newService(t, &fakeProbe{})

	_, err := svc.Verify(context.Background(), "missing")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestDelete(t *testing.T) {
	svc, st, norm := newService(t, &fakeProbe{})
	ctx := context.Background()

	_, err := svc.Upload(ctx, "host-1", "12345678", []byte("bundle"), "secret")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "host-1"))
	assert.Equal(t, []string{"host-1/12345678_ApiIntegracia"}, norm.removed)

	_, err = st.Get(ctx, "host-1")
	assert.Error(t, err)

	err = svc.Delete(ctx, "host-1")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestForHost(t *testing.T) {
	svc, _, _ := newService(t, &fakeProbe{})
	ctx := context.Background()

	_, err := svc.ForHost(ctx, "host-1")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))

	_, err = svc.Upload(ctx, "host-1", "12345678", []byte("bundle"), "secret")
	require.NoError(t, err)

	creds, err := svc.ForHost(ctx, "host-1")
	require.NoError(t, err)
	assert.Equal(t, "12345678_ApiIntegracia", creds.Subject)
	assert.NotEmpty(t, creds.KeystorePath)
}

func TestVerify_ClockInjected(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	probe := &fakeProbe{}
	st := store.NewMemory()
	svc := New(st, &fakeNormalizer{}, fakeCipher{}, probe,
		WithLogger(discard()),
		WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := svc.Upload(ctx, "host-1", "12345678", []byte("bundle"), "secret")
	require.NoError(t, err)

	cred, err := svc.Verify(ctx, "host-1")
	require.NoError(t, err)
	require.NotNil(t, cred.VerifiedAt)
	assert.Equal(t, now, *cred.VerifiedAt)
}
