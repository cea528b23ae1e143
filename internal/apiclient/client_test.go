package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIsAuthorizedToInvalidate(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v4/isAdmin" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("true"))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	allowed, err := c.IsAuthorizedToInvalidate(context.Background(), "tok", "pipelines", "42")
	if err != nil {
		t.Fatal(err)
	}
	if !allowed {
		t.Fatal("expected authorization")
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("authorization header: %q", gotAuth)
	}
	if gotQuery != "pipelineId=42" {
		t.Errorf("query: %q", gotQuery)
	}
}

func TestIsAuthorizedToInvalidateDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("false"))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	allowed, err := c.IsAuthorizedToInvalidate(context.Background(), "tok", "jobs", "7")
	if err != nil || allowed {
		t.Fatalf("expected denial without error, got allowed=%v err=%v", allowed, err)
	}
}

func TestIsAuthorizedToInvalidateNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	allowed, err := c.IsAuthorizedToInvalidate(context.Background(), "tok", "events", "1")
	if err != nil || allowed {
		t.Fatalf("non-200 must deny without error, got allowed=%v err=%v", allowed, err)
	}
}

func TestIsAuthorizedToInvalidateUnconfigured(t *testing.T) {
	var c *Client
	allowed, err := c.IsAuthorizedToInvalidate(context.Background(), "tok", "jobs", "7")
	if err != nil || allowed {
		t.Fatalf("nil client must deny, got allowed=%v err=%v", allowed, err)
	}

	empty := New("", time.Second)
	allowed, err = empty.IsAuthorizedToInvalidate(context.Background(), "tok", "jobs", "7")
	if err != nil || allowed {
		t.Fatalf("unconfigured client must deny, got allowed=%v err=%v", allowed, err)
	}
}

func TestCanPublishCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v4/commands" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"namespace":"tools","name":"deploy","pipelineId":42}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)

	// Owner may republish.
	allowed, err := c.CanPublishCommand(context.Background(), "tok", "tools", "deploy", "42")
	if err != nil || !allowed {
		t.Fatalf("owner republish: allowed=%v err=%v", allowed, err)
	}

	// Foreign pipeline may not.
	allowed, err = c.CanPublishCommand(context.Background(), "tok", "tools", "deploy", "99")
	if err != nil || allowed {
		t.Fatalf("foreign republish: allowed=%v err=%v", allowed, err)
	}

	// First publish of an unclaimed name is open.
	allowed, err = c.CanPublishCommand(context.Background(), "tok", "tools", "new-cmd", "99")
	if err != nil || !allowed {
		t.Fatalf("first publish: allowed=%v err=%v", allowed, err)
	}
}

func TestCanPublishCommandLookupFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	if _, err := c.CanPublishCommand(context.Background(), "tok", "tools", "deploy", "42"); err == nil {
		t.Fatal("expected error when the command listing fails")
	}
}
