// Package keystore normalizes host-uploaded key bundles into the trust
// artifact the government gateway bridge consumes. A host uploads a
// password-protected PKCS#12; normalization re-protects it with passwords
// derived from configured salts and the subject id, and publishes the
// result atomically on the shared keystore volume.
package keystore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"staygate/internal/platform/metrics"
	dErrors "staygate/pkg/domain-errors"
)

// artifactExt is the canonical artifact suffix. The signing side resolves
// both the per-host path and the flat subject alias with it.
const artifactExt = ".keystore"

// Normalizer converts uploaded bundles and manages the published artifact
// lifecycle. Callers must guarantee at most one in-flight normalization per
// (host, subject) pair; the volume offers no cross-process lock.
type Normalizer struct {
	root           string
	ksSalt         string
	pkSalt         string
	converter      Converter
	convertTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// Option configures the Normalizer.
type Option func(*Normalizer)

// WithLogger sets a logger for operational reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		n.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Normalizer) {
		n.metrics = m
	}
}

// WithConvertTimeout bounds a single conversion call.
func WithConvertTimeout(d time.Duration) Option {
	return func(n *Normalizer) {
		if d > 0 {
			n.convertTimeout = d
		}
	}
}

// New constructs a Normalizer rooted at the shared keystore directory.
func New(root, ksSalt, pkSalt string, converter Converter, opts ...Option) *Normalizer {
	n := &Normalizer{
		root:           root,
		ksSalt:         ksSalt,
		pkSalt:         pkSalt,
		converter:      converter,
		convertTimeout: 30 * time.Second,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// CanonicalPath returns the per-host artifact path for a subject.
func (n *Normalizer) CanonicalPath(hostID, subjectID string) string {
	return filepath.Join(n.root, hostID, subjectID+artifactExt)
}

// AliasPath returns the flat subject-addressed alias path. The alias exists
// for backward-compatible lookup by subject alone.
func (n *Normalizer) AliasPath(subjectID string) string {
	return filepath.Join(n.root, subjectID+artifactExt)
}

// Normalize converts the uploaded bundle and publishes the artifact at the
// canonical per-host path, refreshing the subject alias. Re-running for the
// same (host, subject) replaces the prior artifact and leaves no temporary
// files behind, on success and on failure.
func (n *Normalizer) Normalize(ctx context.Context, hostID, subjectID string, bundle []byte, userPassword string) (string, error) {
	switch {
	case hostID == "":
		return "", dErrors.New(dErrors.CodeValidation, "host id is required")
	case subjectID == "":
		return "", dErrors.New(dErrors.CodeValidation, "subject id is required")
	case len(bundle) == 0:
		return "", dErrors.New(dErrors.CodeValidation, "key bundle is required")
	case userPassword == "":
		return "", dErrors.New(dErrors.CodeValidation, "bundle password is required")
	}
	if n.ksSalt == "" || n.pkSalt == "" {
		// Checked before any filesystem work so a misconfigured instance
		// cannot scatter partial artifacts.
		return "", dErrors.New(dErrors.CodeConfiguration, "keystore password salts are not configured")
	}

	passwords := DerivePasswords(n.ksSalt, n.pkSalt, subjectID)

	hostDir := filepath.Join(n.root, hostID)
	if err := os.MkdirAll(hostDir, 0o700); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "create host keystore directory")
	}

	workDir, err := os.MkdirTemp(hostDir, ".normalize-")
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "create work directory")
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			n.logger.Warn("failed to remove normalization work directory",
				"host_id", hostID, "dir", workDir, "error", err)
		}
	}()

	convertCtx, cancel := context.WithTimeout(ctx, n.convertTimeout)
	defer cancel()

	destTemp := filepath.Join(workDir, subjectID+artifactExt)
	input := ConvertInput{
		Bundle:       bundle,
		UserPassword: userPassword,
		Alias:        subjectID,
		StorePass:    passwords.StorePass,
		KeyPass:      passwords.KeyPass,
		WorkDir:      workDir,
		DestPath:     destTemp,
	}
	if err := n.converter.Convert(convertCtx, input); err != nil {
		n.incOutcome("conversion_failed")
		return "", dErrors.Wrap(err, dErrors.CodeConversion,
			fmt.Sprintf("keystore conversion failed for subject %s", subjectID))
	}

	if err := os.Chmod(destTemp, 0o600); err != nil {
		n.incOutcome("publish_failed")
		return "", dErrors.Wrap(err, dErrors.CodeConversion,
			fmt.Sprintf("restrict keystore permissions for subject %s", subjectID))
	}

	canonical := n.CanonicalPath(hostID, subjectID)
	if err := os.Rename(destTemp, canonical); err != nil {
		// A failed rename leaves any previously published artifact
		// untouched, so there is nothing to roll back.
		n.incOutcome("publish_failed")
		return "", dErrors.Wrap(err, dErrors.CodeConversion,
			fmt.Sprintf("publish keystore for subject %s", subjectID))
	}

	if err := n.refreshAlias(hostID, subjectID); err != nil {
		n.incOutcome("publish_failed")
		n.removeArtifacts(hostID, subjectID)
		return "", dErrors.Wrap(err, dErrors.CodeConversion,
			fmt.Sprintf("refresh keystore alias for subject %s", subjectID))
	}

	n.incOutcome("success")
	n.logger.Info("keystore normalized",
		"host_id", hostID, "subject", subjectID, "path", canonical)
	return canonical, nil
}

// Remove deletes the canonical artifact and alias for a (host, subject)
// pair. Used when a host's credentials are deleted or superseded.
func (n *Normalizer) Remove(hostID, subjectID string) error {
	var firstErr error
	for _, path := range []string{n.CanonicalPath(hostID, subjectID), n.AliasPath(subjectID)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return dErrors.Wrap(firstErr, dErrors.CodeInternal, "remove keystore artifacts")
	}
	return nil
}

// refreshAlias points the flat subject alias at the canonical artifact.
// The symlink is created under a temporary name and renamed over any prior
// alias, so readers never observe a missing or dangling alias.
func (n *Normalizer) refreshAlias(hostID, subjectID string) error {
	aliasPath := n.AliasPath(subjectID)
	// Relative target keeps the volume relocatable across mounts.
	target := filepath.Join(hostID, subjectID+artifactExt)

	tmp := aliasPath + ".tmp"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, aliasPath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// removeArtifacts is the rollback for a failed alias refresh after the
// canonical rename already landed: no artifact may remain visible at the
// canonical path or behind the alias without a matching alias state.
func (n *Normalizer) removeArtifacts(hostID, subjectID string) {
	for _, path := range []string{n.CanonicalPath(hostID, subjectID), n.AliasPath(subjectID)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			n.logger.Warn("failed to remove partial keystore artifact", "path", path, "error", err)
		}
	}
}

func (n *Normalizer) incOutcome(outcome string) {
	if n.metrics != nil {
		n.metrics.IncNormalizations(outcome)
	}
}
