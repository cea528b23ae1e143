// Package middleware provides HTTP middleware for request logging, panic
// recovery, and bearer-token authentication.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/artifactstore/internal/auth"
	serrors "git.home.luguber.info/inful/artifactstore/internal/errors"
	"git.home.luguber.info/inful/artifactstore/internal/logfields"
	"git.home.luguber.info/inful/artifactstore/internal/metrics"
)

// Chain returns a middleware wrapper applying request IDs, logging, and
// panic recovery around a handler.
func Chain(logger *slog.Logger, adapter *serrors.HTTPErrorAdapter, rec metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return requestIDMiddleware(loggingMiddleware(logger, rec, panicRecoveryMiddleware(logger, adapter, next)))
	}
}

// RequireAuth validates the bearer token and attaches the verified profile
// and raw token to the request context. Returns 401 when the token is
// missing or invalid.
func RequireAuth(verifier *auth.Verifier, adapter *serrors.HTTPErrorAdapter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ExtractToken(r)
			if token == "" {
				adapter.WriteErrorResponse(w, r, serrors.New(serrors.CategoryAuth, serrors.SeverityInfo, "missing bearer token"))
				return
			}
			profile, err := verifier.Verify(token)
			if err != nil {
				adapter.WriteErrorResponse(w, r, err)
				return
			}
			ctx := auth.WithProfile(r.Context(), profile)
			ctx = auth.WithToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs method, path, status, duration, user agent, and
// remote addr, and feeds the request counter.
func loggingMiddleware(logger *slog.Logger, rec metrics.Recorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start)
		rec.IncRequest(r.URL.Path, r.Method, wrapped.statusCode)
		logger.Info("HTTP request",
			logfields.Method(r.Method),
			logfields.Path(r.URL.Path),
			logfields.Status(wrapped.statusCode),
			logfields.RequestID(wrapped.Header().Get("X-Request-Id")),
			slog.Duration("duration", duration),
			logfields.UserAgent(r.UserAgent()),
			logfields.RemoteAddr(r.RemoteAddr))
	})
}

// panicRecoveryMiddleware recovers from panics and writes a structured error
// response via the HTTPErrorAdapter.
func panicRecoveryMiddleware(logger *slog.Logger, adapter *serrors.HTTPErrorAdapter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("HTTP handler panic",
					"error", err,
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr)

				panicErr := serrors.New(serrors.CategoryInternal, serrors.SeverityError, "internal server error").
					WithContext("path", r.URL.Path).
					WithContext("method", r.Method)

				adapter.WriteErrorResponse(w, r, panicErr)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter captures status codes for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
