package keystore

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jks "github.com/pavlo-v-chernykh/keystore-go/v4"
	"software.sslmate.com/src/go-pkcs12"
)

// NativeConverter performs the conversion in-process: decode the uploaded
// PKCS#12 with the user password, repackage the key material under the
// derived store password, and emit the gateway JKS keystore. Unlike the
// keytool variant it can set the store and key passwords in one pass.
type NativeConverter struct{}

func NewNativeConverter() *NativeConverter {
	return &NativeConverter{}
}

func (c *NativeConverter) Convert(ctx context.Context, in ConvertInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	privateKey, cert, caCerts, err := pkcs12.DecodeChain(in.Bundle, in.UserPassword)
	if err != nil {
		return fmt.Errorf("decode uploaded bundle: %w", err)
	}

	// Intermediate unencrypted form of the key material.
	keyDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("re-encode private key: %w", err)
	}

	// Repackage under the derived store password. The repackaged bundle is
	// an intermediate artifact in the work directory; the normalizer
	// removes it with the rest of WorkDir.
	repacked, err := pkcs12.Modern.Encode(privateKey, cert, caCerts, in.StorePass)
	if err != nil {
		return fmt.Errorf("repackage bundle: %w", err)
	}
	repackPath := filepath.Join(in.WorkDir, "repack.p12")
	if err := os.WriteFile(repackPath, repacked, 0o600); err != nil {
		return fmt.Errorf("write repackaged bundle: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	chain := make([]jks.Certificate, 0, 1+len(caCerts))
	chain = append(chain, jks.Certificate{Type: "X509", Content: cert.Raw})
	for _, ca := range caCerts {
		chain = append(chain, jks.Certificate{Type: "X509", Content: ca.Raw})
	}

	store := jks.New()
	entry := jks.PrivateKeyEntry{
		CreationTime:     time.Now(),
		PrivateKey:       keyDER,
		CertificateChain: chain,
	}
	if err := store.SetPrivateKeyEntry(in.Alias, entry, []byte(in.KeyPass)); err != nil {
		return fmt.Errorf("set key entry %q: %w", in.Alias, err)
	}

	out, err := os.OpenFile(in.DestPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create keystore file: %w", err)
	}
	if err := store.Store(out, []byte(in.StorePass)); err != nil {
		out.Close()
		return fmt.Errorf("write keystore: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close keystore file: %w", err)
	}
	return nil
}
