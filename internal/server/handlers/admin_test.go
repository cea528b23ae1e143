package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"git.home.luguber.info/inful/artifactstore/internal/auditstore"
	"git.home.luguber.info/inful/artifactstore/internal/server/responses"
)

func TestHandleStatus(t *testing.T) {
	h := NewAdminHandlers(testGateway(t), nil, "v1.2.3", time.Now().Add(-time.Hour))

	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp responses.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Backend != "memory" || resp.Version != "v1.2.3" {
		t.Fatalf("payload: %+v", resp)
	}
	if resp.Uptime < 3599 {
		t.Fatalf("uptime: %f", resp.Uptime)
	}
}

func TestHandleStats(t *testing.T) {
	h := NewAdminHandlers(testGateway(t), nil, "dev", time.Now())

	rec := httptest.NewRecorder()
	h.HandleStats(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp responses.StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, seg := range []string{"builds", "caches", "commands"} {
		if _, ok := resp.Segments[seg]; !ok {
			t.Errorf("missing segment %s: %v", seg, resp.Segments)
		}
	}
}

func TestHandleAudit(t *testing.T) {
	store, err := auditstore.NewStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Append(context.Background(), auditstore.Record{
		Operation: auditstore.OpWrite, Segment: "builds", Key: "builds/1-a", Caller: "123", SizeBytes: 4, Success: true,
	}); err != nil {
		t.Fatal(err)
	}

	h := NewAdminHandlers(testGateway(t), store, "dev", time.Now())

	rec := httptest.NewRecorder()
	h.HandleAudit(rec, httptest.NewRequest(http.MethodGet, "/v1/audit", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp responses.AuditResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Key != "builds/1-a" {
		t.Fatalf("entries: %+v", resp.Entries)
	}
}

func TestHandleAuditWithoutStore(t *testing.T) {
	h := NewAdminHandlers(testGateway(t), nil, "dev", time.Now())

	rec := httptest.NewRecorder()
	h.HandleAudit(rec, httptest.NewRequest(http.MethodGet, "/v1/audit", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp responses.AuditResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 0 {
		t.Fatalf("expected empty listing, got %+v", resp.Entries)
	}
}

func TestHandleAuditBadLimit(t *testing.T) {
	h := NewAdminHandlers(testGateway(t), nil, "dev", time.Now())

	rec := httptest.NewRecorder()
	h.HandleAudit(rec, httptest.NewRequest(http.MethodGet, "/v1/audit?limit=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
