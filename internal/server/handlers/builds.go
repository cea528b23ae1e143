package handlers

import (
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/artifactstore/internal/auth"
	serrors "git.home.luguber.info/inful/artifactstore/internal/errors"
	"git.home.luguber.info/inful/artifactstore/internal/gateway"
	"git.home.luguber.info/inful/artifactstore/internal/storage"
)

// BuildHandlers serves the build artifact routes.
type BuildHandlers struct {
	gw           *gateway.Gateway
	errorAdapter *serrors.HTTPErrorAdapter
}

// NewBuildHandlers creates the build artifact handlers.
func NewBuildHandlers(gw *gateway.Gateway) *BuildHandlers {
	return &BuildHandlers{
		gw:           gw,
		errorAdapter: serrors.NewHTTPErrorAdapter(slog.Default()),
	}
}

func buildRequest(r *http.Request) (gateway.Request, error) {
	id := r.PathValue("id")
	artifact := r.PathValue("artifact")
	if id == "" || artifact == "" {
		return gateway.Request{}, serrors.New(serrors.CategoryValidation, serrors.SeverityInfo, "missing build id or artifact path")
	}
	return gateway.Request{
		Segment: storage.SegmentBuilds,
		Scope:   storage.ScopeNone,
		ScopeID: id,
		Path:    artifact,
	}, nil
}

// HandleGet serves GET /v1/builds/{id}/{artifact...}.
func (h *BuildHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := requireScope(p, "build", "user", "pipeline"); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	req, err := buildRequest(r)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	reqType, err := requestType(r)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	res, err := h.gw.Read(r.Context(), req, p, reqType)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	serveObject(w, res)
}

// HandlePut serves PUT /v1/builds/{id}/{artifact...}. The write is accepted
// once the payload is durably stored.
func (h *BuildHandlers) HandlePut(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := requireScope(p, "build"); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	req, err := buildRequest(r)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := h.gw.Write(r.Context(), req, p, r.Body, r.ContentLength, r.Header); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleDelete serves DELETE /v1/builds/{id}/{artifact...}.
func (h *BuildHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := requireScope(p, "build"); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	req, err := buildRequest(r)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := h.gw.Delete(r.Context(), req, p); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
