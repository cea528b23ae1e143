package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HTTPErrorAdapter handles error presentation and status code determination
// for the HTTP route layer.
type HTTPErrorAdapter struct {
	logger *slog.Logger
}

// NewHTTPErrorAdapter creates a new HTTP error adapter with an optional slog
// logger. If logger is nil, the default package logger is used.
func NewHTTPErrorAdapter(logger *slog.Logger) *HTTPErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPErrorAdapter{logger: logger}
}

// HTTPErrorResponse represents a standard JSON error payload.
type HTTPErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}

// StatusCodeFor determines the HTTP status code for a given error based on
// its classification. Unknown errors map to 500.
func (a *HTTPErrorAdapter) StatusCodeFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch CategoryOf(err) {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryAuth:
		return http.StatusUnauthorized
	case CategoryForbidden:
		return http.StatusForbidden
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryPayload:
		return http.StatusRequestEntityTooLarge
	case CategoryCapacity, CategoryBackend:
		return http.StatusServiceUnavailable
	case CategoryInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes a JSON error response and logs with the level
// matching the error's severity.
func (a *HTTPErrorAdapter) WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	status := a.StatusCodeFor(err)
	payload := a.FormatErrorResponse(err)

	b, jerr := json.Marshal(payload)
	if jerr != nil {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)

	if se, ok := AsStoreError(err); ok {
		a.logger.Log(r.Context(), slogLevelFromSeverity(se.Severity), se.Error())
		return
	}
	a.logger.Error(err.Error())
}

// FormatErrorResponse converts known errors into a canonical error payload.
func (a *HTTPErrorAdapter) FormatErrorResponse(err error) HTTPErrorResponse {
	if err == nil {
		return HTTPErrorResponse{}
	}
	if se, ok := AsStoreError(err); ok {
		resp := HTTPErrorResponse{Error: se.Message, Code: string(se.Category)}
		if len(se.Context) > 0 {
			resp.Details = map[string]any(se.Context)
		}
		resp.Retryable = se.Retryable
		return resp
	}
	return HTTPErrorResponse{Error: err.Error(), Code: string(CategoryInternal)}
}

func slogLevelFromSeverity(sev ErrorSeverity) slog.Level {
	switch sev {
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityInfo:
		return slog.LevelInfo
	default:
		return slog.LevelError
	}
}
