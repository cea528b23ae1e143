// Package gateway is the unifying storage facade: it applies scope
// authorization, derives canonical keys, dispatches to the configured
// backend, and handles content negotiation, write deduplication, and
// lifecycle refresh.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/artifactstore/internal/auditstore"
	"git.home.luguber.info/inful/artifactstore/internal/auth"
	serrors "git.home.luguber.info/inful/artifactstore/internal/errors"
	"git.home.luguber.info/inful/artifactstore/internal/events"
	"git.home.luguber.info/inful/artifactstore/internal/logfields"
	"git.home.luguber.info/inful/artifactstore/internal/metrics"
	"git.home.luguber.info/inful/artifactstore/internal/storage"
)

// streamThresholdBytes is the payload size above which writes and reads are
// streamed rather than buffered (object-store backend only).
const streamThresholdBytes = 8 * 1024 * 1024

// refreshTimeout bounds the detached lifecycle-refresh call after a read.
const refreshTimeout = 30 * time.Second

// Request describes one storage operation target. For flat namespaces
// (builds, commands) Scope is ScopeNone and ScopeID carries the owner
// identifier used for authorization.
type Request struct {
	Segment storage.Segment
	Scope   storage.ScopeType
	ScopeID string
	Path    string
}

// ReadResult is the normalized read response: a stream plus derived headers.
// The caller must close Body.
type ReadResult struct {
	Body        io.ReadCloser
	Size        int64
	Headers     map[string]string
	ContentType string
	Disposition string
}

// Options wires the gateway's collaborators. Audit and Events may be nil.
type Options struct {
	Backend  storage.Backend
	Limits   map[storage.Segment]storage.SegmentLimits
	Audit    *auditstore.Store
	Events   *events.Publisher
	Recorder metrics.Recorder
}

// Gateway selects between backends per deployment configuration and
// orchestrates the read/write/delete/invalidate operations exposed to the
// route layer.
type Gateway struct {
	backend storage.Backend
	limits  map[storage.Segment]storage.SegmentLimits
	audit   *auditstore.Store
	events  *events.Publisher
	rec     metrics.Recorder
}

// New constructs a gateway over the configured backend.
func New(opts Options) *Gateway {
	rec := opts.Recorder
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Gateway{
		backend: opts.Backend,
		limits:  opts.Limits,
		audit:   opts.Audit,
		events:  opts.Events,
		rec:     rec,
	}
}

// BackendName identifies the active backend for logging and status output.
func (g *Gateway) BackendName() string { return g.backend.Name() }

// Stats returns the active backend's counters for a segment.
func (g *Gateway) Stats(segment storage.Segment) storage.Stats {
	return g.backend.Stats(segment)
}

func forbidden(caller string) error {
	return serrors.New(serrors.CategoryForbidden, serrors.SeverityInfo,
		fmt.Sprintf("credential only valid for %s", caller))
}

// authorize enforces the scope-ownership rule: the caller's claim for the
// request's scope must match the target scope ID. Job-scoped reads may also
// match the designated parent job, supporting cache inheritance across
// PR-rebuild parent/child relationships.
func (g *Gateway) authorize(req Request, p *auth.Profile, read bool) error {
	if p == nil {
		return serrors.New(serrors.CategoryAuth, serrors.SeverityInfo, "missing credentials")
	}
	switch req.Scope {
	case storage.ScopeNone:
		// Builds are owned by the build whose token carries its ID as
		// username; reads are open to any authenticated build scope.
		// Command ownership is checked against the external API at the
		// route layer.
		if req.Segment == storage.SegmentBuilds && !read && p.Username != req.ScopeID {
			return forbidden(p.Username)
		}
		return nil
	case storage.ScopeEvents:
		if p.EventID == req.ScopeID {
			return nil
		}
		return forbidden(p.EventID)
	case storage.ScopeJobs:
		if p.JobID == req.ScopeID {
			return nil
		}
		if read && p.PrParentJobID != "" && p.PrParentJobID == req.ScopeID {
			return nil
		}
		return forbidden(p.JobID)
	case storage.ScopePipelines:
		if p.PipelineID == req.ScopeID {
			return nil
		}
		return forbidden(p.PipelineID)
	default:
		return serrors.New(serrors.CategoryValidation, serrors.SeverityInfo, "unrecognized scope type").
			WithContext("scope", string(req.Scope))
	}
}

// key derives the canonical storage key for a request. Flat namespaces embed
// the owner in a composite path component.
func (g *Gateway) key(req Request) (string, error) {
	objectPath := req.Path
	if req.Scope == storage.ScopeNone && req.Segment == storage.SegmentBuilds {
		objectPath = req.ScopeID + "-" + req.Path
	}
	return storage.DeriveKey(req.Segment, req.Scope, req.ScopeID, objectPath)
}

func (g *Gateway) segmentLimits(segment storage.Segment) storage.SegmentLimits {
	return g.limits[segment]
}

func (g *Gateway) observe(op string, start time.Time, err error) {
	g.rec.ObserveBackendOp(g.backend.Name(), op, time.Since(start), err == nil)
}

// Write stores a payload of known size under the request's derived key.
// Oversized payloads are rejected before any backend call. On the
// object-store backend, unchanged content (by stored checksum) skips the
// write, and payloads above the buffer threshold are streamed part by part.
func (g *Gateway) Write(ctx context.Context, req Request, p *auth.Profile, body io.Reader, size int64, reqHeaders http.Header) error {
	if err := g.authorize(req, p, false); err != nil {
		return err
	}
	limits := g.segmentLimits(req.Segment)
	if size > limits.MaxBytes {
		return serrors.New(serrors.CategoryPayload, serrors.SeverityInfo, "payload exceeds segment limit").
			WithContext("size_bytes", size).
			WithContext("limit_bytes", limits.MaxBytes)
	}
	key, err := g.key(req)
	if err != nil {
		return err
	}
	headers := storage.FilterHeaders(reqHeaders)
	ttl := int(limits.DefaultTTL / time.Second)

	// The declared size is advisory (-1 on chunked transfers); metrics and
	// audit use the byte count actually consumed.
	written, err := g.write(ctx, req.Segment, key, body, size, limits.MaxBytes, headers, ttl)
	g.recordMutation(ctx, auditstore.OpWrite, req.Segment, key, p, written, err)
	if err != nil {
		return err
	}
	g.rec.AddBytesWritten(string(req.Segment), written)
	g.publish(events.ObjectWritten, req.Segment, key, p, written)
	return nil
}

func (g *Gateway) write(ctx context.Context, segment storage.Segment, key string, body io.Reader, size, maxBytes int64, headers map[string]string, ttl int) (int64, error) {
	if size > streamThresholdBytes && g.backend.Name() != "memory" {
		start := time.Now()
		err := g.backend.PutStream(ctx, segment, key, body, size, headers)
		g.observe("put_stream", start, err)
		return size, err
	}

	// Declared size may be absent (chunked transfer); the limit is enforced
	// on the actual bytes read either way.
	data, err := io.ReadAll(io.LimitReader(body, maxBytes+1))
	if err != nil {
		return 0, serrors.Wrap(err, serrors.CategoryBackend, serrors.SeverityError, "read request payload")
	}
	actual := int64(len(data))
	if actual > maxBytes {
		return 0, serrors.New(serrors.CategoryPayload, serrors.SeverityInfo, "payload exceeds segment limit").
			WithContext("limit_bytes", maxBytes)
	}

	equal, cmpErr := g.backend.CompareChecksum(ctx, segment, key, data)
	if cmpErr != nil {
		// Dedup is an optimization; comparison failures fall through to
		// a plain write.
		slog.Warn("Checksum comparison failed",
			logfields.Segment(string(segment)),
			logfields.Key(key),
			logfields.Error(cmpErr))
	} else if equal {
		slog.Debug("Content unchanged, skipping write",
			logfields.Segment(string(segment)),
			logfields.Key(key))
		g.rec.IncChecksumSkip(string(segment))
		return actual, nil
	}

	obj := &storage.Object{Data: data, Headers: headers, Size: actual}
	start := time.Now()
	err = g.backend.Put(ctx, segment, key, obj, ttl)
	g.observe("put", start, err)
	return actual, err
}

// Read retrieves an object and derives its response headers. On the
// object-store backend the body is a stream and the lifecycle clock is
// refreshed after a successful read, detached from the response: a refresh
// failure is logged, never surfaced.
func (g *Gateway) Read(ctx context.Context, req Request, p *auth.Profile, reqType RequestType) (*ReadResult, error) {
	if err := g.authorize(req, p, true); err != nil {
		return nil, err
	}
	key, err := g.key(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	body, size, headers, err := g.backend.GetStream(ctx, req.Segment, key)
	g.observe("get", start, err)
	if err != nil {
		if serrors.IsNotFound(err) {
			g.rec.IncCacheMiss(string(req.Segment))
		}
		return nil, err
	}
	g.rec.IncCacheHit(string(req.Segment))
	g.rec.AddBytesRead(string(req.Segment), size)

	contentType, disposition := negotiate(req.Path, reqType, headers["content-type"])

	g.refreshLifecycle(req.Segment, key)

	return &ReadResult{
		Body:        body,
		Size:        size,
		Headers:     headers,
		ContentType: contentType,
		Disposition: disposition,
	}, nil
}

// refreshLifecycle re-touches the object's backend lifecycle clock on a
// detached goroutine so a slow or failing refresh never blocks the response.
func (g *Gateway) refreshLifecycle(segment storage.Segment, key string) {
	if g.backend.Name() == "memory" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		err := g.backend.RefreshLastModified(ctx, segment, key)
		g.rec.IncLifecycleRefresh(err == nil)
		if err != nil && !serrors.IsNotFound(err) {
			slog.Warn("Failed to refresh object lifecycle",
				logfields.Segment(string(segment)),
				logfields.Key(key),
				logfields.Error(err))
		}
	}()
}

// Delete removes a single object. Deleting an absent object succeeds.
func (g *Gateway) Delete(ctx context.Context, req Request, p *auth.Profile) error {
	if err := g.authorize(req, p, false); err != nil {
		return err
	}
	key, err := g.key(req)
	if err != nil {
		return err
	}
	start := time.Now()
	err = g.backend.Delete(ctx, req.Segment, key)
	g.observe("delete", start, err)
	g.recordMutation(ctx, auditstore.OpDelete, req.Segment, key, p, 0, err)
	if err != nil {
		return err
	}
	g.publish(events.ObjectDeleted, req.Segment, key, p, 0)
	return nil
}

// InvalidateScope removes every object under a cache scope. The caller's
// admin authorization must already be established (route layer consults the
// external authorization API); this method performs the synchronous bulk
// delete.
func (g *Gateway) InvalidateScope(ctx context.Context, segment storage.Segment, scope storage.ScopeType, scopeID string, p *auth.Profile) error {
	prefix, err := storage.DerivePrefix(segment, scope, scopeID)
	if err != nil {
		return err
	}
	start := time.Now()
	err = g.backend.DeleteByPrefix(ctx, segment, prefix)
	g.observe("delete_prefix", start, err)
	g.recordMutation(ctx, auditstore.OpInvalidate, segment, prefix, p, 0, err)
	if err != nil {
		return err
	}
	g.publish(events.ScopeInvalidated, segment, prefix, p, 0)
	return nil
}

func (g *Gateway) recordMutation(ctx context.Context, op auditstore.Operation, segment storage.Segment, key string, p *auth.Profile, size int64, opErr error) {
	if g.audit == nil {
		return
	}
	caller := ""
	if p != nil {
		caller = p.Username
	}
	err := g.audit.Append(ctx, auditstore.Record{
		Operation: op,
		Segment:   string(segment),
		Key:       key,
		Caller:    caller,
		SizeBytes: size,
		Success:   opErr == nil,
	})
	if err != nil {
		slog.Warn("Failed to append audit record", logfields.Error(err))
	}
}

func (g *Gateway) publish(evType events.EventType, segment storage.Segment, key string, p *auth.Profile, size int64) {
	if g.events == nil {
		return
	}
	caller := ""
	if p != nil {
		caller = p.Username
	}
	g.events.Publish(events.Event{
		Type:      evType,
		Segment:   string(segment),
		Key:       key,
		Caller:    caller,
		SizeBytes: size,
	})
}
