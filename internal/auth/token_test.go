package auth

import (
	"net/http/httptest"
	"testing"
)

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/builds/1/a", nil)
	r.Header.Set("Authorization", "Bearer abc.def.ghi")
	if got := ExtractToken(r); got != "abc.def.ghi" {
		t.Fatalf("bearer header: %q", got)
	}

	r = httptest.NewRequest("GET", "/v1/builds/1/a", nil)
	r.Header.Set("Authorization", "raw-token")
	if got := ExtractToken(r); got != "raw-token" {
		t.Fatalf("raw header: %q", got)
	}

	r = httptest.NewRequest("GET", "/v1/builds/1/a?token=querytoken", nil)
	if got := ExtractToken(r); got != "querytoken" {
		t.Fatalf("query token: %q", got)
	}

	r = httptest.NewRequest("GET", "/v1/builds/1/a", nil)
	if got := ExtractToken(r); got != "" {
		t.Fatalf("no token: %q", got)
	}
}
