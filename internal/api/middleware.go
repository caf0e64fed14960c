// Package api provides the HTTP handlers and middleware for the
// liftlogd sync API.
//
// =============================================================================
// OPERATION LOGGING CONVENTIONS
// =============================================================================
// All operation logs MUST use snake_case field names.
//
// Canonical Fields:
//
//	action      - Operation type: sync, rebuild, merge
//	event_id    - Event identifier (UUID string)
//	device_id   - Device identifier (UUID string)
//	user_id     - User identifier (UUID string)
//	component   - Originating package: api, syncservice, projection, merge
//	duration_ms - Operation timing in milliseconds
//	error       - Error message (for ERROR level logs)
//
// Usage Examples:
//
//	slog.Info("sync batch persisted",
//	    "action", "sync",
//	    "device_id", deviceID,
//	    "accepted_count", n,
//	    "component", "api",
//	    "duration_ms", elapsed.Milliseconds(),
//	)
//
// =============================================================================
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/liftlog/liftlog/internal/identity"
)

// GetRequestID extracts the request ID from context. Returns empty
// string if no request ID is present.
func GetRequestID(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}

func logLevelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// AuthMiddleware resolves the identity provider's external
// collaborator role: it stamps an authenticated identity onto the
// request context when the bearer token matches apiKey, and a
// device-scoped anonymous identity (the X-Anonymous-User-ID header)
// otherwise.
// Credential hashing and token issuance are out of scope; this is
// intentionally a single shared-secret comparison.
func AuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token != "" && constantTimeEqual(token, apiKey) {
				userID := r.Header.Get("X-User-ID")
				ctx := identity.WithIdentity(r.Context(), identity.Identity{UserID: userID, Authenticated: true})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			anonUserID := r.Header.Get("X-Anonymous-User-ID")
			if anonUserID == "" {
				slog.Warn("auth failure",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				WriteProblem(w, r, http.StatusUnauthorized, "missing bearer token or anonymous device identity")
				return
			}
			ctx := identity.WithIdentity(r.Context(), identity.Identity{UserID: anonUserID, Authenticated: false})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggingMiddleware logs HTTP requests with structured fields. Emits
// at INFO for 2xx/3xx, WARN for 4xx, ERROR for 5xx.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		level := logLevelForStatus(wrapped.statusCode)
		slog.Log(r.Context(), level, "request completed",
			"request_id", GetRequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RecoveryMiddleware catches panics and returns 500 Problem Details.
// Panic details are logged but never exposed to the client.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				slog.Error("panic recovered",
					"error", recovered,
					"stack", string(debug.Stack()),
					"path", r.URL.Path,
					"method", r.Method,
				)
				WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
