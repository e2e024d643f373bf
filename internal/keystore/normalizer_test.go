package keystore

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	jks "github.com/pavlo-v-chernykh/keystore-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"

	dErrors "staygate/pkg/domain-errors"
)

const (
	testSubject  = "12345678_ApiIntegracia"
	testHostID   = "host-1"
	testPassword = "upload-pass"
)

// makeBundle builds a host-style uploaded PKCS#12: one RSA key with a
// self-signed certificate, protected by the user password.
func makeBundle(t *testing.T, password string) []byte {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "host upload"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(certDER)
	require.NoError(t, err)

	bundle, err := pkcs12.Modern.Encode(key, cert, nil, password)
	require.NoError(t, err)
	return bundle
}

func newTestNormalizer(t *testing.T, opts ...Option) (*Normalizer, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "keystores")
	n := New(root, "ks-salt", "pk-salt", NewNativeConverter(), opts...)
	return n, root
}

func TestNormalizePublishesOpenableArtifact(t *testing.T) {
	n, root := newTestNormalizer(t)
	bundle := makeBundle(t, testPassword)

	canonical, err := n.Normalize(context.Background(), testHostID, testSubject, bundle, testPassword)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, testHostID, testSubject+".keystore"), canonical)

	info, err := os.Stat(canonical)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// The artifact must open with the derived passwords, not the upload
	// password.
	passwords := DerivePasswords("ks-salt", "pk-salt", testSubject)
	f, err := os.Open(canonical)
	require.NoError(t, err)
	defer f.Close()

	store := jks.New()
	require.NoError(t, store.Load(f, []byte(passwords.StorePass)))
	entry, err := store.GetPrivateKeyEntry(testSubject, []byte(passwords.KeyPass))
	require.NoError(t, err)
	assert.NotEmpty(t, entry.PrivateKey)
	assert.NotEmpty(t, entry.CertificateChain)

	// Subject alias resolves to the canonical artifact.
	aliasPath := filepath.Join(root, testSubject+".keystore")
	target, err := os.Readlink(aliasPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(testHostID, testSubject+".keystore"), target)

	resolved, err := os.Stat(aliasPath)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), resolved.Size())
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n, root := newTestNormalizer(t)
	bundle := makeBundle(t, testPassword)
	ctx := context.Background()

	first, err := n.Normalize(ctx, testHostID, testSubject, bundle, testPassword)
	require.NoError(t, err)
	second, err := n.Normalize(ctx, testHostID, testSubject, bundle, testPassword)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Exactly one artifact in the host directory, zero temp leftovers.
	entries, err := os.ReadDir(filepath.Join(root, testHostID))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, testSubject+".keystore", entries[0].Name())
}

// failingConverter writes a partial destination file, then fails. Models a
// conversion tool dying halfway through.
type failingConverter struct{}

func (failingConverter) Convert(_ context.Context, in ConvertInput) error {
	if err := os.WriteFile(in.DestPath, []byte("partial"), 0o600); err != nil {
		return err
	}
	return errors.New("tool crashed")
}

func TestNormalizeFailureLeavesNoArtifacts(t *testing.T) {
	root := filepath.Join(t.TempDir(), "keystores")
	n := New(root, "ks-salt", "pk-salt", failingConverter{})

	_, err := n.Normalize(context.Background(), testHostID, testSubject, []byte("bundle"), testPassword)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConversion))
	assert.Contains(t, err.Error(), testSubject, "conversion error carries subject context")

	// No partial artifact, no alias, no temp files.
	entries, err := os.ReadDir(filepath.Join(root, testHostID))
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, err = os.Lstat(filepath.Join(root, testSubject+".keystore"))
	assert.True(t, os.IsNotExist(err))
}

// dirConverter produces a directory at the destination path, which defeats
// the publish rename onto an existing artifact file.
type dirConverter struct{}

func (dirConverter) Convert(_ context.Context, in ConvertInput) error {
	return os.Mkdir(in.DestPath, 0o700)
}

func TestNormalizeFailedPublishKeepsPriorArtifact(t *testing.T) {
	n, root := newTestNormalizer(t)
	bundle := makeBundle(t, testPassword)
	ctx := context.Background()

	canonical, err := n.Normalize(ctx, testHostID, testSubject, bundle, testPassword)
	require.NoError(t, err)

	_, err = New(root, "ks-salt", "pk-salt", dirConverter{}).
		Normalize(ctx, testHostID, testSubject, bundle, testPassword)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish keystore")

	// The previously published artifact and its alias survive the failed
	// attempt and still open with the derived passwords.
	passwords := DerivePasswords("ks-salt", "pk-salt", testSubject)
	f, err := os.Open(canonical)
	require.NoError(t, err)
	defer f.Close()
	store := jks.New()
	require.NoError(t, store.Load(f, []byte(passwords.StorePass)))
	_, err = store.GetPrivateKeyEntry(testSubject, []byte(passwords.KeyPass))
	require.NoError(t, err)

	resolved, err := os.Stat(filepath.Join(root, testSubject+".keystore"))
	require.NoError(t, err)
	assert.False(t, resolved.IsDir())
}

func TestNormalizeReplacesArtifactAfterEarlierFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "keystores")
	bundle := makeBundle(t, testPassword)
	ctx := context.Background()

	_, err := New(root, "ks-salt", "pk-salt", failingConverter{}).
		Normalize(ctx, testHostID, testSubject, bundle, testPassword)
	require.Error(t, err)

	canonical, err := New(root, "ks-salt", "pk-salt", NewNativeConverter()).
		Normalize(ctx, testHostID, testSubject, bundle, testPassword)
	require.NoError(t, err)
	_, err = os.Stat(canonical)
	require.NoError(t, err)
}

func TestNormalizeMissingSaltsTouchesNothing(t *testing.T) {
	root := filepath.Join(t.TempDir(), "keystores")
	n := New(root, "", "", NewNativeConverter())

	_, err := n.Normalize(context.Background(), testHostID, testSubject, []byte("bundle"), testPassword)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))

	// Zero filesystem writes: not even the root directory exists.
	_, statErr := os.Stat(root)
	assert.True(t, os.IsNotExist(statErr))
}

func TestNormalizeValidatesInputs(t *testing.T) {
	n, _ := newTestNormalizer(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		hostID   string
		subject  string
		bundle   []byte
		password string
	}{
		{"missing host", "", testSubject, []byte("b"), "p"},
		{"missing subject", testHostID, "", []byte("b"), "p"},
		{"missing bundle", testHostID, testSubject, nil, "p"},
		{"missing password", testHostID, testSubject, []byte("b"), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.Normalize(ctx, tc.hostID, tc.subject, tc.bundle, tc.password)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestNormalizeRejectsWrongBundlePassword(t *testing.T) {
	n, _ := newTestNormalizer(t)
	bundle := makeBundle(t, testPassword)

	_, err := n.Normalize(context.Background(), testHostID, testSubject, bundle, "wrong-password")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConversion))
}

func TestDerivedPasswordsAreNotTheUploadPassword(t *testing.T) {
	passwords := DerivePasswords("ks-salt", "pk-salt", testSubject)
	assert.False(t, strings.Contains(passwords.StorePass, testPassword))
	assert.False(t, strings.Contains(passwords.KeyPass, testPassword))
}
