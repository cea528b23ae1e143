// Package logfields defines canonical log field name constants shared across
// packages so attribute names never drift.
package logfields

import "log/slog"

const (
	KeySegment    = "segment"
	KeyKey        = "key"
	KeyScope      = "scope"
	KeyScopeID    = "scope_id"
	KeyCaller     = "caller"
	KeyBackend    = "backend"
	KeyOperation  = "operation"
	KeySizeBytes  = "size_bytes"
	KeyStatus     = "status"
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyDurationMS = "duration_ms"
	KeyRequestID  = "request_id"
	KeyRemoteAddr = "remote_addr"
	KeyUserAgent  = "user_agent"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Segment(s string) slog.Attr       { return slog.String(KeySegment, s) }
func Key(k string) slog.Attr           { return slog.String(KeyKey, k) }
func Scope(s string) slog.Attr         { return slog.String(KeyScope, s) }
func ScopeID(id string) slog.Attr      { return slog.String(KeyScopeID, id) }
func Caller(c string) slog.Attr        { return slog.String(KeyCaller, c) }
func Backend(b string) slog.Attr       { return slog.String(KeyBackend, b) }
func Operation(op string) slog.Attr    { return slog.String(KeyOperation, op) }
func SizeBytes(n int64) slog.Attr      { return slog.Int64(KeySizeBytes, n) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func RequestID(id string) slog.Attr    { return slog.String(KeyRequestID, id) }
func RemoteAddr(a string) slog.Attr    { return slog.String(KeyRemoteAddr, a) }
func UserAgent(ua string) slog.Attr    { return slog.String(KeyUserAgent, ua) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
