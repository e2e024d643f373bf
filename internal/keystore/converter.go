package keystore

import "context"

// ConvertInput carries one keystore conversion job. The normalizer owns the
// surrounding lifecycle (work directory, atomic publish, cleanup); a
// Converter only turns the uploaded bundle into a gateway keystore at
// DestPath.
type ConvertInput struct {
	// Bundle is the raw host-uploaded PKCS#12 container.
	Bundle []byte
	// UserPassword opens the uploaded bundle. It is consumed here and
	// never persisted; the produced keystore uses derived passwords only.
	UserPassword string
	// Alias is the entry alias in the produced keystore (the subject id).
	Alias string
	// StorePass protects the produced keystore container.
	StorePass string
	// KeyPass protects the private key entry.
	KeyPass string
	// WorkDir is a private scratch directory for intermediate artifacts.
	// The normalizer removes it after the call, on success and failure.
	WorkDir string
	// DestPath is where the finished keystore must be written. It lives
	// inside WorkDir; the normalizer renames it into place.
	DestPath string
}

// Converter turns a host-uploaded key bundle into the keystore format the
// gateway bridge expects. Two variants exist: the native in-process
// implementation and one shelling out to keytool. Both honor the same
// password and alias semantics so the published artifact layout is
// identical regardless of variant.
type Converter interface {
	Convert(ctx context.Context, in ConvertInput) error
}
