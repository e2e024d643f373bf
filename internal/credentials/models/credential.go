package models

import (
	"strings"
	"time"
)

// Credential records the normalized gateway keystore registered for a host.
// The uploaded bundle password is kept only in encrypted form; the key
// material itself lives on disk at KeystorePath.
type Credential struct {
	HostID       string
	ICO          string
	APISubject   string
	KeystorePath string

	PasswordCiphertext []byte
	PasswordIV         []byte
	PasswordTag        []byte

	Verified   bool
	VerifiedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DeriveAPISubject maps a host's company registration number (ICO) to the
// integration subject the gateway expects.
func DeriveAPISubject(ico string) string {
	return strings.TrimSpace(ico) + "_ApiIntegracia"
}
