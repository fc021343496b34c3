package bootstrap

import (
	"log/slog"
	"strings"

	"github.com/target/cyano-batch/internal/cryptoutil"
)

// CreateEncryptor creates an AES-GCM encryptor from APP_ENCRYPTION_KEY.
// Returns a noop encryptor if the key is empty or invalid (with warning log).
//
//nolint:ireturn // Returning interface is intentional for encryptor abstraction
func CreateEncryptor(key string, logger *slog.Logger) cryptoutil.Encryptor {
	if strings.TrimSpace(key) == "" {
		if logger != nil {
			logger.Warn("encryption key is empty, using noop encryptor")
		}
		return cryptoutil.NoopEncryptor{}
	}

	enc, err := cryptoutil.NewFromKey(key)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to create encryptor, using noop encryptor", "error", err)
		}
		return cryptoutil.NoopEncryptor{}
	}
	return enc
}

// revealSecret decrypts an at-rest encrypted config value. Plaintext values pass through.
func revealSecret(enc cryptoutil.Encryptor, name, value string, logger *slog.Logger) string {
	plain, ok := cryptoutil.Reveal(enc, value)
	if !ok && value != "" && logger != nil {
		logger.Debug("config value is not encrypted, using as-is", "name", name)
	}
	return plain
}
