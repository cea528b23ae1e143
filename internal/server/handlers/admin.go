package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"git.home.luguber.info/inful/artifactstore/internal/auditstore"
	serrors "git.home.luguber.info/inful/artifactstore/internal/errors"
	"git.home.luguber.info/inful/artifactstore/internal/gateway"
	"git.home.luguber.info/inful/artifactstore/internal/server/responses"
	"git.home.luguber.info/inful/artifactstore/internal/storage"
)

const defaultAuditLimit = 50

// AdminHandlers serves the status, stats, and audit endpoints on the admin
// listener.
type AdminHandlers struct {
	gw           *gateway.Gateway
	audit        *auditstore.Store
	version      string
	startTime    time.Time
	errorAdapter *serrors.HTTPErrorAdapter
}

// NewAdminHandlers creates the admin handlers. The audit store may be nil
// when auditing is not configured.
func NewAdminHandlers(gw *gateway.Gateway, audit *auditstore.Store, version string, startTime time.Time) *AdminHandlers {
	return &AdminHandlers{
		gw:           gw,
		audit:        audit,
		version:      version,
		startTime:    startTime,
		errorAdapter: serrors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandleStatus serves GET /v1/status.
func (h *AdminHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := &responses.StatusResponse{
		Status:    "ok",
		Backend:   h.gw.BackendName(),
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Seconds(),
		StartTime: h.startTime,
		Timestamp: time.Now().UTC(),
	}
	if err := writeJSONPretty(w, r, http.StatusOK, status); err != nil {
		internalErr := serrors.Wrap(err, serrors.CategoryInternal, serrors.SeverityError, "failed to write status response")
		h.errorAdapter.WriteErrorResponse(w, r, internalErr)
	}
}

// HandleStats serves GET /v1/stats with per-segment cache counters.
func (h *AdminHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	segments := map[string]storage.Stats{}
	for _, seg := range []storage.Segment{storage.SegmentBuilds, storage.SegmentCaches, storage.SegmentCommands} {
		segments[string(seg)] = h.gw.Stats(seg)
	}
	stats := &responses.StatsResponse{
		Status:    "ok",
		Backend:   h.gw.BackendName(),
		Segments:  segments,
		Timestamp: time.Now().UTC(),
	}
	if err := writeJSONPretty(w, r, http.StatusOK, stats); err != nil {
		internalErr := serrors.Wrap(err, serrors.CategoryInternal, serrors.SeverityError, "failed to write stats response")
		h.errorAdapter.WriteErrorResponse(w, r, internalErr)
	}
}

// HandleAudit serves GET /v1/audit, listing recent mutating operations.
// Accepts segment and limit query parameters.
func (h *AdminHandlers) HandleAudit(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.errorAdapter.WriteErrorResponse(w, r, serrors.New(serrors.CategoryValidation, serrors.SeverityInfo,
				"limit must be a positive integer").WithContext("limit", raw))
			return
		}
		limit = n
	}

	entries := []responses.AuditEntry{}
	if h.audit != nil {
		records, err := h.audit.Recent(r.Context(), r.URL.Query().Get("segment"), limit)
		if err != nil {
			h.errorAdapter.WriteErrorResponse(w, r, serrors.Wrap(err, serrors.CategoryBackend, serrors.SeverityError,
				"failed to query audit records"))
			return
		}
		for _, rec := range records {
			entries = append(entries, responses.AuditEntry{
				Operation: string(rec.Operation),
				Segment:   rec.Segment,
				Key:       rec.Key,
				Caller:    rec.Caller,
				SizeBytes: rec.SizeBytes,
				Success:   rec.Success,
				Timestamp: rec.Timestamp,
			})
		}
	}

	resp := &responses.AuditResponse{Status: "ok", Entries: entries}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		internalErr := serrors.Wrap(err, serrors.CategoryInternal, serrors.SeverityError, "failed to write audit response")
		h.errorAdapter.WriteErrorResponse(w, r, internalErr)
	}
}
