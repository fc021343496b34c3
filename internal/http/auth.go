package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingToken   = errors.New("missing bearer token")
	errMalformedToken = errors.New("malformed authorization header")
	errMissingSubject = errors.New("token missing sub")
)

// TokenVerifier validates HS256 access tokens issued by the account service.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier builds a verifier for tokens signed with secret.
func NewTokenVerifier(secret string, leeway time.Duration) (*TokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret must be set")
	}
	if leeway < 0 {
		leeway = 0
	}
	return &TokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
			jwt.WithLeeway(leeway),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// Verify parses the token and returns its subject, which is the username.
func (v *TokenVerifier) Verify(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := v.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", errMissingSubject
	}
	return sub, nil
}

// RequireBearer returns a middleware that requires a valid bearer token and
// stores its subject in the request context. A nil verifier lets requests
// through unauthenticated; handlers then fall back to the body username.
func RequireBearer(v *TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err == nil {
				var username string
				username, err = v.Verify(raw)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(SetUsernameInContext(r.Context(), username)))
					return
				}
			}
			logger.WarnContext(r.Context(), "rejected request",
				slog.String("path", r.URL.Path),
				slog.String("reason", err.Error()))
			WriteError(w, http.StatusUnauthorized, "authentication required")
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errMalformedToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", errMalformedToken)
	}
	return token, nil
}
