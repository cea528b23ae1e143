// Package handlers provides the HTTP route handlers adapting requests onto
// the storage gateway.
package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"git.home.luguber.info/inful/artifactstore/internal/auth"
	serrors "git.home.luguber.info/inful/artifactstore/internal/errors"
	"git.home.luguber.info/inful/artifactstore/internal/gateway"
	"git.home.luguber.info/inful/artifactstore/internal/logfields"
)

// writeJSON serializes the provided value to JSON and writes it with the given
// status code. Encoding goes through an intermediate buffer so serialization
// failures never produce partial responses.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(v); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("failed writing JSON response body", logfields.Error(err))
		return err
	}
	return nil
}

// writeJSONPretty pretty prints when pretty=true via query parameter,
// falling back to compact form when indentation fails.
func writeJSONPretty(w http.ResponseWriter, r *http.Request, status int, v any) error {
	if r != nil {
		if p := r.URL.Query().Get("pretty"); p == "1" || p == "true" {
			b, err := json.MarshalIndent(v, "", "  ")
			if err == nil {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(status)
				if _, werr := w.Write(append(b, '\n')); werr != nil {
					slog.Error("failed writing pretty JSON", logfields.Error(werr))
					return werr
				}
				return nil
			}
			slog.Warn("pretty JSON marshal failed, falling back to standard encode", logfields.Error(err))
		}
	}
	return writeJSON(w, status, v)
}

// requireScope checks that the verified profile carries at least one of the
// accepted auth scopes.
func requireScope(p *auth.Profile, scopes ...string) error {
	if p == nil {
		return serrors.New(serrors.CategoryAuth, serrors.SeverityInfo, "missing credentials")
	}
	for _, s := range scopes {
		if p.HasScope(s) {
			return nil
		}
	}
	return serrors.New(serrors.CategoryForbidden, serrors.SeverityInfo, "insufficient auth scope").
		WithContext("required", scopes)
}

// requestType validates the optional type query parameter controlling
// content negotiation.
func requestType(r *http.Request) (gateway.RequestType, error) {
	switch t := gateway.RequestType(r.URL.Query().Get("type")); t {
	case gateway.TypeDefault, gateway.TypeDownload, gateway.TypePreview:
		return t, nil
	default:
		return "", serrors.New(serrors.CategoryValidation, serrors.SeverityInfo, "unrecognized request type").
			WithContext("type", string(t))
	}
}

// serveObject streams a gateway read result to the client, replaying the
// stored x-* headers and the negotiated content type and disposition.
func serveObject(w http.ResponseWriter, res *gateway.ReadResult) {
	defer res.Body.Close()

	for name, value := range res.Headers {
		if name == "content-type" {
			continue
		}
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", res.ContentType)
	if res.Disposition != "" {
		w.Header().Set("Content-Disposition", res.Disposition)
	}
	if res.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, res.Body); err != nil {
		// Headers are already committed; nothing to do but log.
		slog.Warn("failed streaming object body", logfields.Error(err))
	}
}
