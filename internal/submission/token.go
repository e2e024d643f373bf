package submission

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	jks "github.com/pavlo-v-chernykh/keystore-go/v4"

	"staygate/internal/keystore"
	"staygate/internal/platform/config"
	dErrors "staygate/pkg/domain-errors"
)

const (
	// notBeforeSkew tolerates clock drift between this service and the
	// gateway.
	notBeforeSkew = 60 * time.Second
	// tokenLifetime bounds how long a signed assertion stays usable.
	tokenLifetime = 240 * time.Second

	artifactExt = ".keystore"
)

// Credentials identifies the signing material for one host.
type Credentials struct {
	// Subject is the gateway-facing identity, also the keystore alias.
	Subject string
	// KeystorePath optionally points directly at the signing artifact,
	// overriding the normalized keystore lookup.
	KeystorePath string
}

// TokenSource derives short-lived signed assertions from normalized key
// material. Normalized keystores are protected with per-subject passwords
// re-derived from the shared salts; the fixed bridge store password covers
// artifacts that predate salt derivation.
type TokenSource struct {
	keystoreRoot    string
	keystoreSalt    string
	privateKeySalt  string
	bridgePassword  string
	defaultKeyPath  string
	overrideSubject string
	now             func() time.Time
}

// TokenOption configures a TokenSource.
type TokenOption func(*TokenSource)

// WithClock sets the clock function for testability.
func WithClock(now func() time.Time) TokenOption {
	return func(t *TokenSource) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTokenSource builds a TokenSource. keystoreSalt and privateKeySalt are
// the same salts the normalizer derives artifact passwords from.
// defaultKeyPath and overrideSubject are the environment-configured
// back-compat fallbacks and may be empty.
func NewTokenSource(keystoreRoot, keystoreSalt, privateKeySalt, bridgePassword, defaultKeyPath, overrideSubject string, opts ...TokenOption) *TokenSource {
	t := &TokenSource{
		keystoreRoot:    keystoreRoot,
		keystoreSalt:    keystoreSalt,
		privateKeySalt:  privateKeySalt,
		bridgePassword:  bridgePassword,
		defaultKeyPath:  defaultKeyPath,
		overrideSubject: overrideSubject,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ResolveSigningKeyPath returns the signing artifact location for the
// credentials, in documented priority order:
//
//  1. the explicit path carried by the credentials,
//  2. the subject alias on the normalized keystore volume (only when the
//     artifact actually exists),
//  3. the environment-configured default signing key.
func (t *TokenSource) ResolveSigningKeyPath(creds Credentials) (string, error) {
	aliasPath := ""
	if creds.Subject != "" && t.keystoreRoot != "" {
		candidate := filepath.Join(t.keystoreRoot, creds.Subject+artifactExt)
		if _, err := os.Stat(candidate); err == nil {
			aliasPath = candidate
		}
	}

	path := config.FirstDefined(creds.KeystorePath, aliasPath, t.defaultKeyPath)
	if path == "" {
		return "", dErrors.New(dErrors.CodeConfiguration, "no signing key material configured for subject")
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeConfiguration, "signing key path is not readable")
	}
	if info.IsDir() {
		return "", dErrors.Newf(dErrors.CodeConfiguration, "signing key path %s is a directory", path)
	}
	return path, nil
}

// SignedToken issues a fresh RS256 assertion for the credentials. Subject
// and issuer are the subject id; not-before is skewed into the past for
// clock drift; every call carries a new random token id.
func (t *TokenSource) SignedToken(creds Credentials) (string, error) {
	subject := config.FirstDefined(creds.Subject, t.overrideSubject)
	if subject == "" {
		return "", dErrors.New(dErrors.CodeConfiguration, "signing subject is not configured")
	}
	creds.Subject = subject

	path, err := t.ResolveSigningKeyPath(creds)
	if err != nil {
		return "", err
	}

	key, err := t.loadPrivateKey(path, subject)
	if err != nil {
		return "", err
	}

	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    subject,
		NotBefore: jwt.NewNumericDate(now.Add(-notBeforeSkew)),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign assertion")
	}
	return signed, nil
}

// loadPrivateKey reads RSA key material from either a PEM file or a
// normalized keystore artifact.
func (t *TokenSource) loadPrivateKey(path, subject string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "read signing key material")
	}

	if block, _ := pem.Decode(data); block != nil {
		return parsePEMKey(block)
	}
	return t.openKeystoreKey(data, subject)
}

func parsePEMKey(block *pem.Block) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "parse PEM signing key")
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, dErrors.New(dErrors.CodeConfiguration, "signing key is not RSA")
	}
	return key, nil
}

// keystorePasswords lists the store/key password pairs to try against an
// artifact, derived pair first, then the fixed bridge password for legacy
// artifacts.
func (t *TokenSource) keystorePasswords(subject string) []keystore.DerivedPasswords {
	var pairs []keystore.DerivedPasswords
	if t.keystoreSalt != "" && t.privateKeySalt != "" {
		pairs = append(pairs, keystore.DerivePasswords(t.keystoreSalt, t.privateKeySalt, subject))
	}
	if t.bridgePassword != "" {
		pairs = append(pairs, keystore.DerivedPasswords{StorePass: t.bridgePassword, KeyPass: t.bridgePassword})
	}
	return pairs
}

func (t *TokenSource) openKeystoreKey(data []byte, subject string) (*rsa.PrivateKey, error) {
	pairs := t.keystorePasswords(subject)
	if len(pairs) == 0 {
		return nil, dErrors.Newf(dErrors.CodeConfiguration,
			"no keystore password configured for subject %s", subject)
	}

	var (
		store   jks.KeyStore
		keyPass string
		lastErr error
	)
	for _, pair := range pairs {
		candidate := jks.New()
		if err := candidate.Load(bytes.NewReader(data), []byte(pair.StorePass)); err != nil {
			lastErr = err
			continue
		}
		store, keyPass, lastErr = candidate, pair.KeyPass, nil
		break
	}
	if lastErr != nil {
		return nil, dErrors.Wrap(lastErr, dErrors.CodeConfiguration,
			fmt.Sprintf("open keystore for subject %s", subject))
	}

	// Prefer the subject alias; fall back to the first key entry for
	// artifacts produced before subject-aliasing.
	alias := subject
	if !store.IsPrivateKeyEntry(alias) {
		alias = ""
		for _, candidate := range store.Aliases() {
			if store.IsPrivateKeyEntry(candidate) {
				alias = candidate
				break
			}
		}
	}
	if alias == "" {
		return nil, dErrors.Newf(dErrors.CodeConfiguration, "keystore for subject %s has no private key entry", subject)
	}

	entry, err := store.GetPrivateKeyEntry(alias, []byte(keyPass))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "extract private key entry")
	}

	parsed, err := x509.ParsePKCS8PrivateKey(entry.PrivateKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "parse keystore private key")
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, dErrors.New(dErrors.CodeConfiguration, "keystore private key is not RSA")
	}
	return key, nil
}
