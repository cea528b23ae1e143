package handlers

import (
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/artifactstore/internal/apiclient"
	"git.home.luguber.info/inful/artifactstore/internal/auth"
	serrors "git.home.luguber.info/inful/artifactstore/internal/errors"
	"git.home.luguber.info/inful/artifactstore/internal/gateway"
	"git.home.luguber.info/inful/artifactstore/internal/storage"
)

// CommandHandlers serves the versioned command binary routes.
type CommandHandlers struct {
	gw           *gateway.Gateway
	api          *apiclient.Client
	errorAdapter *serrors.HTTPErrorAdapter
}

// NewCommandHandlers creates the command handlers. The API client establishes
// publish ownership for writes and deletes.
func NewCommandHandlers(gw *gateway.Gateway, api *apiclient.Client) *CommandHandlers {
	return &CommandHandlers{
		gw:           gw,
		api:          api,
		errorAdapter: serrors.NewHTTPErrorAdapter(slog.Default()),
	}
}

type commandTarget struct {
	namespace string
	name      string
	version   string
}

func commandRequest(r *http.Request) (gateway.Request, commandTarget, error) {
	t := commandTarget{
		namespace: r.PathValue("namespace"),
		name:      r.PathValue("name"),
		version:   r.PathValue("version"),
	}
	if t.namespace == "" || t.name == "" || t.version == "" {
		return gateway.Request{}, t, serrors.New(serrors.CategoryValidation, serrors.SeverityInfo,
			"missing command namespace, name, or version")
	}
	return gateway.Request{
		Segment: storage.SegmentCommands,
		Scope:   storage.ScopeNone,
		Path:    t.namespace + "-" + t.name + "-" + t.version,
	}, t, nil
}

// authorizePublish consults the external API: the first publisher of a
// namespace/name claims it, and only the owning pipeline may change it after.
func (h *CommandHandlers) authorizePublish(r *http.Request, t commandTarget, p *auth.Profile) error {
	token := auth.TokenFromContext(r.Context())
	allowed, err := h.api.CanPublishCommand(r.Context(), token, t.namespace, t.name, p.PipelineID)
	if err != nil {
		return err
	}
	if !allowed {
		return serrors.New(serrors.CategoryForbidden, serrors.SeverityInfo, "command owned by another pipeline").
			WithContext("namespace", t.namespace).
			WithContext("name", t.name)
	}
	return nil
}

// HandleGet serves GET /v1/commands/{namespace}/{name}/{version}.
func (h *CommandHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := requireScope(p, "build", "user"); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	req, _, err := commandRequest(r)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	res, err := h.gw.Read(r.Context(), req, p, gateway.TypeDownload)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	serveObject(w, res)
}

// HandlePut serves PUT /v1/commands/{namespace}/{name}/{version}.
func (h *CommandHandlers) HandlePut(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := requireScope(p, "build"); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	req, target, err := commandRequest(r)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := h.authorizePublish(r, target, p); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := h.gw.Write(r.Context(), req, p, r.Body, r.ContentLength, r.Header); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleDelete serves DELETE /v1/commands/{namespace}/{name}/{version}.
func (h *CommandHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := requireScope(p, "build"); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	req, target, err := commandRequest(r)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := h.authorizePublish(r, target, p); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := h.gw.Delete(r.Context(), req, p); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
