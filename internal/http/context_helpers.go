package httpx

import (
	"context"
	"strings"
)

type usernameKey struct{}

type requestInfoKey struct{}

// requestInfo is installed by Logging so the access log can report values
// that inner handlers learn later, such as the token subject.
type requestInfo struct {
	id       string
	username string
}

func withRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

// RequestIDFromContext returns the id Logging assigned to the request.
func RequestIDFromContext(ctx context.Context) string {
	if info := requestInfoFrom(ctx); info != nil {
		return info.id
	}
	return ""
}

// SetUsernameInContext returns a child context that carries the authenticated username.
// If username is blank, the original ctx is returned unchanged.
func SetUsernameInContext(ctx context.Context, username string) context.Context {
	username = strings.TrimSpace(username)
	if username == "" {
		return ctx
	}
	if info := requestInfoFrom(ctx); info != nil {
		info.username = username
	}
	return context.WithValue(ctx, usernameKey{}, username)
}

// UsernameFromContext returns the authenticated username and whether one is present.
func UsernameFromContext(ctx context.Context) (string, bool) {
	if u, ok := ctx.Value(usernameKey{}).(string); ok && u != "" {
		return u, true
	}
	return "", false
}
