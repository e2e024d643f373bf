package keystore

import (
	"crypto/sha256"
	"encoding/hex"
)

// DerivedPasswords holds the deterministic passwords protecting a normalized
// keystore. Both are pure functions of a configured salt and the subject id,
// so the signing side can re-derive them without any per-host secret store.
type DerivedPasswords struct {
	// StorePass protects the keystore container.
	StorePass string
	// KeyPass protects the private key entry inside it.
	KeyPass string
}

// DerivePasswords computes the store and key passwords for a subject.
// Changing either salt changes the corresponding password and no other.
func DerivePasswords(ksSalt, pkSalt, subject string) DerivedPasswords {
	return DerivedPasswords{
		StorePass: saltedDigest(ksSalt, subject),
		KeyPass:   saltedDigest(pkSalt, subject),
	}
}

func saltedDigest(salt, subject string) string {
	sum := sha256.Sum256([]byte(salt + ":" + subject))
	return hex.EncodeToString(sum[:])
}
