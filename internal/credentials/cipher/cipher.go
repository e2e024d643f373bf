// Package cipher provides authenticated at-rest encryption for sensitive
// credential material using AES-256-GCM. Ciphertext, IV and authentication
// tag are kept as separate values to match the persisted column layout.
package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"

	dErrors "staygate/pkg/domain-errors"
)

const (
	keySize = 32
	ivSize  = 12
	tagSize = 16
)

// Cipher encrypts and decrypts credential material with a process-wide
// master key. When no key is configured it operates in pass-through mode:
// data is stored unencrypted. That mode exists only for local development
// and is announced loudly at construction so it never enables itself
// silently in a production-like configuration.
type Cipher struct {
	aead        gocipher.AEAD
	passThrough bool
}

// New builds a Cipher from a hex-encoded 32-byte master key. An empty key
// selects pass-through mode with a warning on the provided logger.
func New(masterKeyHex string, logger *slog.Logger) (*Cipher, error) {
	if masterKeyHex == "" {
		logger.Warn("credentials master key not configured; storing credential material UNENCRYPTED (development only)")
		return &Cipher{passThrough: true}, nil
	}

	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "credentials master key is not valid hex")
	}
	if len(key) != keySize {
		return nil, dErrors.Newf(dErrors.CodeConfiguration, "credentials master key must be %d bytes, got %d", keySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "initialize AES cipher")
	}
	aead, err := gocipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "initialize GCM mode")
	}

	return &Cipher{aead: aead}, nil
}

// PassThrough reports whether the cipher stores data unencrypted.
func (c *Cipher) PassThrough() bool { return c.passThrough }

// Encrypt seals plaintext with a random per-call IV. In pass-through mode
// the plaintext is returned unchanged with empty iv and tag.
func (c *Cipher) Encrypt(plaintext []byte) (ciphertext, iv, authTag []byte, err error) {
	if c.passThrough {
		return plaintext, nil, nil, nil
	}

	iv = make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate IV")
	}

	sealed := c.aead.Seal(nil, iv, plaintext, nil)
	ciphertext = sealed[:len(sealed)-tagSize]
	authTag = sealed[len(sealed)-tagSize:]
	return ciphertext, iv, authTag, nil
}

// Decrypt opens a ciphertext produced by Encrypt. A tag that does not
// verify (tampered data or wrong key) fails closed with an integrity error;
// no partial plaintext is ever returned.
func (c *Cipher) Decrypt(ciphertext, iv, authTag []byte) ([]byte, error) {
	if c.passThrough {
		return ciphertext, nil
	}

	if len(iv) != ivSize {
		return nil, dErrors.Newf(dErrors.CodeIntegrity, "IV must be %d bytes, got %d", ivSize, len(iv))
	}
	if len(authTag) != tagSize {
		return nil, dErrors.Newf(dErrors.CodeIntegrity, "auth tag must be %d bytes, got %d", tagSize, len(authTag))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(authTag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, authTag...)

	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrity, "authentication tag verification failed")
	}
	return plaintext, nil
}
