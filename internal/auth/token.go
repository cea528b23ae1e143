package auth

import (
	"context"
	"net/http"
	"strings"
)

type tokenKeyType struct{}

var tokenKey tokenKeyType

// WithToken attaches the raw bearer token to the request context so outbound
// authorization callouts can forward it.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromContext returns the raw bearer token, or "".
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// ExtractToken pulls the bearer token from the Authorization header or the
// token query parameter (some build agents cannot set headers on artifact
// links).
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return h[7:]
		}
		return h
	}
	return r.URL.Query().Get("token")
}
