package httpserver

import (
	"crypto/rand"
	"crypto/rsa"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"git.home.luguber.info/inful/artifactstore/internal/auth"
	"git.home.luguber.info/inful/artifactstore/internal/config"
	"git.home.luguber.info/inful/artifactstore/internal/gateway"
	"git.home.luguber.info/inful/artifactstore/internal/storage"
	"git.home.luguber.info/inful/artifactstore/internal/version"
)

type testServer struct {
	srv *Server
	key *rsa.PrivateKey
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	limits := map[storage.Segment]storage.SegmentLimits{
		storage.SegmentBuilds:   {MaxBytes: 1024, DefaultTTL: time.Hour},
		storage.SegmentCaches:   {MaxBytes: 1024, DefaultTTL: time.Hour},
		storage.SegmentCommands: {MaxBytes: 1024, DefaultTTL: time.Hour},
	}
	gw := gateway.New(gateway.Options{
		Backend: storage.NewMemory(limits),
		Limits:  limits,
	})
	cfg := &config.Config{}
	srv := New(cfg, Options{
		Gateway:   gw,
		Verifier:  auth.NewVerifierWithKey(&key.PublicKey, time.Hour),
		Version:   version.Version,
		StartTime: time.Now(),
	})
	return &testServer{srv: srv, key: key}
}

func (ts *testServer) token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["iat"]; !ok {
		claims["iat"] = time.Now().Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(ts.key)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestAPIRoutesEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	handler := ts.srv.apiHandler()
	token := ts.token(t, jwt.MapClaims{"username": "123", "scope": []any{"build"}})

	// Store an artifact.
	req := httptest.NewRequest(http.MethodPut, "/v1/builds/123/logs/step.log", strings.NewReader("output"))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("put: %d body %s", rec.Code, rec.Body)
	}

	// Fetch it back.
	req = httptest.NewRequest(http.MethodGet, "/v1/builds/123/logs/step.log", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d body %s", rec.Code, rec.Body)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "output" {
		t.Fatalf("body: %q", body)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("request id missing")
	}

	// Delete and confirm.
	req = httptest.NewRequest(http.MethodDelete, "/v1/builds/123/logs/step.log", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
}

func TestAPIRejectsUnauthenticated(t *testing.T) {
	ts := newTestServer(t)
	handler := ts.srv.apiHandler()

	req := httptest.NewRequest(http.MethodGet, "/v1/builds/123/a.txt", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAPITokenViaQueryParameter(t *testing.T) {
	ts := newTestServer(t)
	handler := ts.srv.apiHandler()
	token := ts.token(t, jwt.MapClaims{"username": "123", "scope": []any{"build"}})

	req := httptest.NewRequest(http.MethodPut, "/v1/builds/123/a.txt?token="+token, strings.NewReader("x"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("query token put: %d body %s", rec.Code, rec.Body)
	}
}

func TestCacheRoutesScopedEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	handler := ts.srv.apiHandler()
	jobToken := ts.token(t, jwt.MapClaims{
		"username": "b1", "scope": []any{"build"}, "jobId": float64(7),
	})

	req := httptest.NewRequest(http.MethodPut, "/v1/caches/jobs/7/deps.tgz", strings.NewReader("cache"))
	req.Header.Set("Authorization", "Bearer "+jobToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("cache put: %d body %s", rec.Code, rec.Body)
	}

	otherToken := ts.token(t, jwt.MapClaims{
		"username": "b2", "scope": []any{"build"}, "jobId": float64(8),
	})
	req = httptest.NewRequest(http.MethodGet, "/v1/caches/jobs/7/deps.tgz", nil)
	req.Header.Set("Authorization", "Bearer "+otherToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign job read: %d", rec.Code)
	}
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t)
	handler := ts.srv.adminHandler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d", rec.Code)
	}
}
