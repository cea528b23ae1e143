package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

// SegmentLimits configures a segment's byte budget and default entry TTL.
type SegmentLimits struct {
	MaxBytes   int64
	DefaultTTL time.Duration
}

// Memory is the buffered segment cache backend: a process-local cache keyed
// by segment and canonical key, with per-entry TTL and byte-size accounting
// against a per-segment ceiling. Writes that would exceed the ceiling fail
// instead of evicting; entries lazily expire on read.
//
// When a value's content-type is text/plain the raw byte buffer is stored
// directly, skipping the header envelope; Get reconstructs an equivalent
// Object so callers cannot observe the optimization.
type Memory struct {
	segments map[Segment]*memSegment
	clock    func() time.Time
}

type memSegment struct {
	mu      sync.Mutex
	limits  SegmentLimits
	entries map[string]*memEntry
	used    int64
	hits    int64
	misses  int64
}

type memEntry struct {
	obj       *Object
	raw       []byte // set instead of obj for text/plain payloads
	size      int64
	expiresAt time.Time
}

// NewMemory creates a memory backend with the given per-segment limits.
// Segments not present in limits get zero budget and reject all writes.
func NewMemory(limits map[Segment]SegmentLimits) *Memory {
	m := &Memory{
		segments: make(map[Segment]*memSegment, len(limits)),
		clock:    time.Now,
	}
	for seg, l := range limits {
		m.segments[seg] = &memSegment{
			limits:  l,
			entries: make(map[string]*memEntry),
		}
	}
	return m
}

// Name implements Backend.
func (m *Memory) Name() string { return "memory" }

func (m *Memory) segmentFor(segment Segment) *memSegment {
	return m.segments[segment]
}

// Get implements Backend. Expired entries are removed on access.
func (m *Memory) Get(ctx context.Context, segment Segment, key string) (*Object, error) {
	s := m.segmentFor(segment)
	if s == nil {
		return nil, NewNotFound(segment, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if ok && !e.expiresAt.IsZero() && m.clock().After(e.expiresAt) {
		s.used -= e.size
		delete(s.entries, key)
		ok = false
	}
	if !ok {
		s.misses++
		return nil, NewNotFound(segment, key)
	}
	s.hits++
	if e.raw != nil {
		// Reconstruct the envelope the text/plain optimization elided.
		return &Object{
			Data:    e.raw,
			Headers: map[string]string{"content-type": "text/plain"},
			Size:    int64(len(e.raw)),
		}, nil
	}
	// Return a fresh object with copied headers so caller mutation cannot
	// reach the cached entry.
	headers := make(map[string]string, len(e.obj.Headers))
	for k, v := range e.obj.Headers {
		headers[k] = v
	}
	return &Object{Data: e.obj.Data, Headers: headers, Size: e.obj.Size}, nil
}

// GetStream implements Backend by adapting the buffered value.
func (m *Memory) GetStream(ctx context.Context, segment Segment, key string) (io.ReadCloser, int64, map[string]string, error) {
	obj, err := m.Get(ctx, segment, key)
	if err != nil {
		return nil, 0, nil, err
	}
	return io.NopCloser(bytes.NewReader(obj.Data)), obj.Size, obj.Headers, nil
}

// Put implements Backend. Capacity is checked and reserved together with the
// entry commit under the segment lock, so the budget cannot be overrun by
// concurrent writers. Writes always replace; there is no in-place mutation.
func (m *Memory) Put(ctx context.Context, segment Segment, key string, obj *Object, ttlSeconds int) error {
	s := m.segmentFor(segment)
	if s == nil {
		return NewCapacityExceeded(segment, key, obj.Size, 0)
	}
	size := int64(len(obj.Data))

	s.mu.Lock()
	defer s.mu.Unlock()

	var replaced int64
	if old, ok := s.entries[key]; ok {
		replaced = old.size
	}
	if s.used-replaced+size > s.limits.MaxBytes {
		return NewCapacityExceeded(segment, key, size, s.limits.MaxBytes)
	}

	ttl := s.limits.DefaultTTL
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.clock().Add(ttl)
	}

	e := &memEntry{size: size, expiresAt: expiresAt}
	if obj.ContentType() == "text/plain" {
		e.raw = obj.Data
	} else {
		e.obj = &Object{Data: obj.Data, Headers: obj.Headers, Size: size}
	}
	s.used = s.used - replaced + size
	s.entries[key] = e
	return nil
}

// PutStream implements Backend. The memory backend holds whole values by
// construction, so the stream is buffered; the size limit is enforced before
// reading.
func (m *Memory) PutStream(ctx context.Context, segment Segment, key string, body io.Reader, size int64, headers map[string]string) error {
	if s := m.segmentFor(segment); s != nil && size > s.limits.MaxBytes {
		return NewCapacityExceeded(segment, key, size, s.limits.MaxBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return wrapBackend(err, "read", key)
	}
	return m.Put(ctx, segment, key, &Object{Data: data, Headers: headers, Size: int64(len(data))}, 0)
}

// Delete implements Backend. Dropping a non-existent key is not an error.
func (m *Memory) Delete(ctx context.Context, segment Segment, key string) error {
	s := m.segmentFor(segment)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		s.used -= e.size
		delete(s.entries, key)
	}
	return nil
}

// DeleteByPrefix implements Backend.
func (m *Memory) DeleteByPrefix(ctx context.Context, segment Segment, prefix string) error {
	s := m.segmentFor(segment)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			s.used -= e.size
			delete(s.entries, k)
		}
	}
	return nil
}

// RefreshLastModified is a no-op: the memory backend has no lifecycle rules.
func (m *Memory) RefreshLastModified(ctx context.Context, segment Segment, key string) error {
	return nil
}

// CompareChecksum always reports a difference: the memory backend stores no
// content hashes, so callers never skip a write.
func (m *Memory) CompareChecksum(ctx context.Context, segment Segment, key string, data []byte) (bool, error) {
	return false, nil
}

// Stats implements Backend.
func (m *Memory) Stats(segment Segment) Stats {
	s := m.segmentFor(segment)
	if s == nil {
		return Stats{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		EntryCount: len(s.entries),
		ByteUsage:  s.used,
		Hits:       s.hits,
		Misses:     s.misses,
	}
}

// Sweep removes expired entries from every segment and returns the number
// removed. Expiry is otherwise lazy; the sweeper calls this periodically for
// memory hygiene.
func (m *Memory) Sweep() int {
	now := m.clock()
	removed := 0
	for _, s := range m.segments {
		s.mu.Lock()
		for k, e := range s.entries {
			if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
				s.used -= e.size
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Close implements Backend.
func (m *Memory) Close() error { return nil }
