package keystore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// KeytoolConverter shells out to the JDK keytool. Kept for deployments
// where the gateway bridge dictates the exact keytool build; the native
// converter is preferred otherwise.
//
// keytool cannot set the store and per-key passwords in a single
// importkeystore call, so the key password is applied in a second pass.
type KeytoolConverter struct {
	// Path to the keytool binary.
	Path string
}

func NewKeytoolConverter(path string) *KeytoolConverter {
	return &KeytoolConverter{Path: path}
}

func (c *KeytoolConverter) Convert(ctx context.Context, in ConvertInput) error {
	uploadPath := filepath.Join(in.WorkDir, "upload.p12")
	if err := os.WriteFile(uploadPath, in.Bundle, 0o600); err != nil {
		return fmt.Errorf("write uploaded bundle: %w", err)
	}

	srcAlias, err := c.firstAlias(ctx, uploadPath, in.UserPassword)
	if err != nil {
		return err
	}

	// Pass one: repackage into the gateway keystore under the derived
	// store password, renaming the entry to the subject alias. The key
	// entry still carries the source password after this step.
	if err := c.run(ctx,
		"-importkeystore",
		"-srckeystore", uploadPath,
		"-srcstoretype", "PKCS12",
		"-srcstorepass", in.UserPassword,
		"-srcalias", srcAlias,
		"-destkeystore", in.DestPath,
		"-deststoretype", "JKS",
		"-deststorepass", in.StorePass,
		"-destalias", in.Alias,
		"-destkeypass", in.StorePass,
		"-noprompt",
	); err != nil {
		return fmt.Errorf("import keystore: %w", err)
	}

	// Pass two: set the per-key password.
	if err := c.run(ctx,
		"-keypasswd",
		"-keystore", in.DestPath,
		"-storepass", in.StorePass,
		"-alias", in.Alias,
		"-keypass", in.StorePass,
		"-new", in.KeyPass,
	); err != nil {
		return fmt.Errorf("set key password: %w", err)
	}

	return nil
}

// firstAlias lists the uploaded bundle and returns its first entry alias.
// Host-exported PKCS#12 files carry a single key entry under a
// tool-dependent alias, so the name has to be discovered, not assumed.
func (c *KeytoolConverter) firstAlias(ctx context.Context, path, password string) (string, error) {
	out, err := c.output(ctx,
		"-list",
		"-keystore", path,
		"-storetype", "PKCS12",
		"-storepass", password,
	)
	if err != nil {
		return "", fmt.Errorf("list uploaded bundle: %w", err)
	}
	for _, line := range strings.Split(out, "\n") {
		// Entry lines have the form "<alias>, <date>, PrivateKeyEntry,".
		if strings.Contains(line, "PrivateKeyEntry") {
			if alias, _, ok := strings.Cut(line, ","); ok {
				return strings.TrimSpace(alias), nil
			}
		}
	}
	return "", fmt.Errorf("uploaded bundle has no private key entry")
}

func (c *KeytoolConverter) run(ctx context.Context, args ...string) error {
	_, err := c.output(ctx, args...)
	return err
}

func (c *KeytoolConverter) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("keytool %s: %w: %s", args[0], err, detail)
	}
	return stdout.String(), nil
}
