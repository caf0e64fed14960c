package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/liftlog/liftlog/internal/identity"
)

const testKey = "secret-key"

func TestAuthMiddleware_ValidBearerTokenResolvesAuthenticatedIdentity(t *testing.T) {
	var got identity.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity.FromContext(r.Context())
		if !ok {
			t.Fatal("expected an identity on the request context")
		}
		got = id
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("X-User-ID", "user-123")
	rec := httptest.NewRecorder()

	AuthMiddleware(testKey)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !got.Authenticated || got.UserID != "user-123" {
		t.Fatalf("expected authenticated identity for user-123, got %+v", got)
	}
}

func TestAuthMiddleware_AnonymousHeaderResolvesUnauthenticatedIdentity(t *testing.T) {
	var got identity.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := identity.FromContext(r.Context())
		got = id
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	req.Header.Set("X-Anonymous-User-ID", "anon-456")
	rec := httptest.NewRecorder()

	AuthMiddleware(testKey)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.Authenticated || got.UserID != "anon-456" {
		t.Fatalf("expected anonymous identity for anon-456, got %+v", got)
	}
}

func TestAuthMiddleware_NoCredentialsReturns401(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	rec := httptest.NewRecorder()

	AuthMiddleware(testKey)(next).ServeHTTP(rec, req)

	if called {
		t.Fatal("expected the downstream handler not to run")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_WrongBearerTokenFallsBackToAnonymous(t *testing.T) {
	var got identity.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := identity.FromContext(r.Context())
		got = id
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	req.Header.Set("X-Anonymous-User-ID", "anon-789")
	rec := httptest.NewRecorder()

	AuthMiddleware(testKey)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.Authenticated || got.UserID != "anon-789" {
		t.Fatalf("expected anonymous fallback for anon-789, got %+v", got)
	}
}

func TestAuthMiddleware_WrongBearerTokenNoAnonymousHeaderReturns401(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rec := httptest.NewRecorder()

	AuthMiddleware(testKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("expected the downstream handler not to run")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLoggingMiddleware_CapturesStatusCode(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()

	LoggingMiddleware(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}
}

func TestRecoveryMiddleware_CatchesPanicAndReturns500(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()

	RecoveryMiddleware(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRecoveryMiddleware_PassesThroughWithoutPanic(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()

	RecoveryMiddleware(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
