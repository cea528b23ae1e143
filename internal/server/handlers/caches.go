package handlers

import (
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/artifactstore/internal/apiclient"
	"git.home.luguber.info/inful/artifactstore/internal/auth"
	serrors "git.home.luguber.info/inful/artifactstore/internal/errors"
	"git.home.luguber.info/inful/artifactstore/internal/gateway"
	"git.home.luguber.info/inful/artifactstore/internal/logfields"
	"git.home.luguber.info/inful/artifactstore/internal/storage"
)

// CacheHandlers serves the scoped cache routes, including bulk invalidation.
type CacheHandlers struct {
	gw           *gateway.Gateway
	api          *apiclient.Client
	errorAdapter *serrors.HTTPErrorAdapter
}

// NewCacheHandlers creates the cache handlers. The API client authorizes
// bulk invalidation; it may be unconfigured, which denies every bulk delete.
func NewCacheHandlers(gw *gateway.Gateway, api *apiclient.Client) *CacheHandlers {
	return &CacheHandlers{
		gw:           gw,
		api:          api,
		errorAdapter: serrors.NewHTTPErrorAdapter(slog.Default()),
	}
}

func cacheRequest(r *http.Request, needPath bool) (gateway.Request, error) {
	scope := storage.ScopeType(r.PathValue("scope"))
	id := r.PathValue("id")
	name := r.PathValue("name")
	if !storage.ValidScope(scope) || scope == storage.ScopeNone {
		return gateway.Request{}, serrors.New(serrors.CategoryValidation, serrors.SeverityInfo, "unrecognized cache scope").
			WithContext("scope", string(scope))
	}
	if id == "" || (needPath && name == "") {
		return gateway.Request{}, serrors.New(serrors.CategoryValidation, serrors.SeverityInfo, "missing cache id or object name")
	}
	return gateway.Request{
		Segment: storage.SegmentCaches,
		Scope:   scope,
		ScopeID: id,
		Path:    name,
	}, nil
}

// HandleGet serves GET /v1/caches/{scope}/{id}/{name...}.
func (h *CacheHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := requireScope(p, "build"); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	req, err := cacheRequest(r, true)
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

// HandlePut serves PUT /v1/caches/{scope}/{id}/{name...}.
func (h *CacheHandlers) HandlePut(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := requireScope(p, "build"); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	req, err := cacheRequest(r, true)
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

// HandleDelete serves DELETE /v1/caches/{scope}/{id}/{name...}.
func (h *CacheHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := requireScope(p, "build"); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	req, err := cacheRequest(r, true)
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

// HandleInvalidate serves DELETE /v1/caches/{scope}/{id}: bulk removal of
// every object under the scope. Requires the sdapi auth scope and a
// confirming answer from the external authorization API.
func (h *CacheHandlers) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := requireScope(p, "sdapi"); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	req, err := cacheRequest(r, false)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	token := auth.TokenFromContext(r.Context())
	allowed, err := h.api.IsAuthorizedToInvalidate(r.Context(), token, string(req.Scope), req.ScopeID)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if !allowed {
		h.errorAdapter.WriteErrorResponse(w, r, serrors.New(serrors.CategoryForbidden, serrors.SeverityInfo,
			"not authorized to invalidate cache scope").
			WithContext("scope", string(req.Scope)).
			WithContext("scope_id", req.ScopeID))
		return
	}

	if err := h.gw.InvalidateScope(r.Context(), req.Segment, req.Scope, req.ScopeID, p); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	slog.Info("Cache scope invalidated",
		logfields.Scope(string(req.Scope)),
		logfields.ScopeID(req.ScopeID),
		logfields.Caller(p.Username))
	w.WriteHeader(http.StatusNoContent)
}
