// Package storage provides the backend contract and key derivation for the
// artifact store. Two interchangeable backends implement it: a bounded
// in-memory segment cache and an S3-compatible object store.
package storage

import (
	"context"
	"io"

	serrors "git.home.luguber.info/inful/artifactstore/internal/errors"
)

// Segment is a logical namespace partitioning keys by resource kind.
type Segment string

const (
	SegmentBuilds   Segment = "builds"
	SegmentCaches   Segment = "caches"
	SegmentCommands Segment = "commands"
)

// Object is the payload envelope stored by a backend. Headers is restricted
// to x-* prefixed headers and content-type, copied verbatim from the write
// request (see FilterHeaders).
type Object struct {
	Data    []byte
	Headers map[string]string
	Size    int64
}

// ContentType returns the object's content-type header, if any.
func (o *Object) ContentType() string {
	if o == nil || o.Headers == nil {
		return ""
	}
	return o.Headers["content-type"]
}

// Stats reports cache counters for a segment.
type Stats struct {
	EntryCount int   `json:"entry_count"`
	ByteUsage  int64 `json:"byte_usage"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
}

// Backend is the uniform storage contract. Keys are full canonical keys
// produced by DeriveKey (segment prefix included); the segment argument is
// used for per-segment accounting and configuration.
//
// All implementations must be safe for concurrent use. Operations surface
// backend failures synchronously; there is no retry at this layer.
type Backend interface {
	// Get retrieves a stored object. Returns a notfound-classified error
	// if the key is absent or expired.
	Get(ctx context.Context, segment Segment, key string) (*Object, error)

	// GetStream retrieves an object as a stream. The stream is handed back
	// only after the backend's response status is known; error statuses
	// never leak partial bodies. The caller must close the stream.
	GetStream(ctx context.Context, segment Segment, key string) (io.ReadCloser, int64, map[string]string, error)

	// Put stores an object with the given TTL (zero means the segment
	// default). Fails with a capacity-classified error when the segment's
	// byte budget would be exceeded.
	Put(ctx context.Context, segment Segment, key string, obj *Object, ttlSeconds int) error

	// PutStream stores a payload of known size without buffering it whole
	// in memory (multipart upload on object-store backends).
	PutStream(ctx context.Context, segment Segment, key string, body io.Reader, size int64, headers map[string]string) error

	// Delete removes a single object. Deleting an absent key succeeds.
	Delete(ctx context.Context, segment Segment, key string) error

	// DeleteByPrefix removes every object under the given key prefix.
	// An empty listing is a no-op success.
	DeleteByPrefix(ctx context.Context, segment Segment, prefix string) error

	// RefreshLastModified resets the backend-side lifecycle clock of an
	// object without altering its content. No-op on backends without
	// lifecycle rules.
	RefreshLastModified(ctx context.Context, segment Segment, key string) error

	// CompareChecksum reports whether data matches the content hash stored
	// with the remote object. Backends without stored hashes report false.
	CompareChecksum(ctx context.Context, segment Segment, key string, data []byte) (bool, error)

	// Stats returns cache counters for a segment.
	Stats(segment Segment) Stats

	// Name identifies the backend for logging and metrics.
	Name() string

	// Close releases any resources held by the backend.
	Close() error
}

// NewNotFound builds the canonical missing-object error.
func NewNotFound(segment Segment, key string) error {
	return serrors.New(serrors.CategoryNotFound, serrors.SeverityInfo, "object not found").
		WithContext("segment", string(segment)).
		WithContext("key", key)
}

// NewCapacityExceeded builds the canonical cache-budget error. Callers must
// surface this as a service-unavailable condition, never silent data loss.
func NewCapacityExceeded(segment Segment, key string, size, budget int64) error {
	return serrors.New(serrors.CategoryCapacity, serrors.SeverityWarning, "segment byte budget exceeded").
		WithContext("segment", string(segment)).
		WithContext("key", key).
		WithContext("size_bytes", size).
		WithContext("budget_bytes", budget)
}

func wrapBackend(err error, op string, key string) error {
	return serrors.Wrap(err, serrors.CategoryBackend, serrors.SeverityError, "backend "+op+" failed").
		WithContext("key", key)
}
