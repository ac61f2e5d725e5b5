// Package secrets resolves credentials from config values, ${VAR}
// references or mounted secret files (Docker/Kubernetes secrets).
//
// Secret values are never logged.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/spaceportal/spaceportal/internal/errors"
	"github.com/spaceportal/spaceportal/internal/logger"
)

// maxSecretFileSize limits secret file reads; secrets are tokens, not files.
const maxSecretFileSize = 64 * 1024

// Resolver reads secret files through an afero filesystem.
type Resolver struct {
	fs  afero.Fs
	log logger.Logger
}

// NewResolver returns a resolver on fs, the OS filesystem when nil.
func NewResolver(fs afero.Fs, log logger.Logger) *Resolver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Resolver{fs: fs, log: log}
}

// Resolve determines the secret from its sources. filePath wins over value;
// value may contain ${VAR} or ${VAR:-default} references. Both empty yields
// an empty secret.
func (r *Resolver) Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return r.ReadFile(filePath)
	}
	return ExpandString(value)
}

// ExpandString expands ${VAR} and ${VAR:-default} references. A reference
// to an unset variable without a default is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", secretError(fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", ")), "")
	}
	return expanded, nil
}

// ReadFile reads a secret file, trimming trailing newlines. Files readable
// by group or others are accepted with a warning.
func (r *Resolver) ReadFile(path string) (string, error) {
	cleanPath := filepath.Clean(path)

	info, err := r.fs.Stat(cleanPath)
	if err != nil {
		return "", secretError(fmt.Errorf("secret file unavailable: %w", err), cleanPath)
	}
	if !info.Mode().IsRegular() {
		return "", secretError(fmt.Errorf("secret path is not a regular file"), cleanPath)
	}
	if info.Size() > maxSecretFileSize {
		return "", secretError(fmt.Errorf("secret file too large (max %d bytes)", maxSecretFileSize), cleanPath)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		r.log.Warn("secret file is readable by group or others",
			logger.String("path", cleanPath),
			logger.String("perm", fmt.Sprintf("%04o", perm)))
	}

	data, err := afero.ReadFile(r.fs, cleanPath)
	if err != nil {
		return "", secretError(err, cleanPath)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", secretError(fmt.Errorf("secret file is empty"), cleanPath)
	}
	return secret, nil
}

func secretError(err error, path string) error {
	b := errors.New(err).
		Component("secrets").
		Category(errors.CategoryConfiguration)
	if path != "" {
		b = b.Context("path", path)
	}
	return b.Build()
}
