package config

import "time"

// AuthConfig controls verification of bearer tokens on the batch API.
type AuthConfig struct {
	// SecretKey is the HS256 signing key shared with the account service that issues tokens.
	SecretKey string `env:"SECRET_KEY"`

	// Leeway tolerates small clock drift between issuer and verifier.
	Leeway time.Duration `env:"AUTH_LEEWAY" envDefault:"30s"`

	// Disabled skips token verification and trusts the username in the request body.
	// Only honoured in dev mode.
	Disabled bool `env:"AUTH_DISABLED" envDefault:"false"`
}

// Enabled reports whether bearer tokens must be verified.
func (a *AuthConfig) Enabled(isDev bool) bool {
	if a.Disabled && isDev {
		return false
	}
	return true
}
