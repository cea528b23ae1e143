// Package metrics defines observability hooks for the storage gateway.
package metrics

import "time"

// Recorder defines observability hooks for request and backend metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObserveBackendOp(backend, op string, d time.Duration, success bool)
	IncRequest(route, method string, status int)
	IncCacheHit(segment string)
	IncCacheMiss(segment string)
	AddBytesWritten(segment string, n int64)
	AddBytesRead(segment string, n int64)
	IncChecksumSkip(segment string)
	IncLifecycleRefresh(success bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBackendOp(string, string, time.Duration, bool) {}
func (NoopRecorder) IncRequest(string, string, int)                      {}
func (NoopRecorder) IncCacheHit(string)                                  {}
func (NoopRecorder) IncCacheMiss(string)                                 {}
func (NoopRecorder) AddBytesWritten(string, int64)                       {}
func (NoopRecorder) AddBytesRead(string, int64)                          {}
func (NoopRecorder) IncChecksumSkip(string)                              {}
func (NoopRecorder) IncLifecycleRefresh(bool)                            {}
