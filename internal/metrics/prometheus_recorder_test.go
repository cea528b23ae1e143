package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorderCounters(t *testing.T) {
	reg := prom.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.IncCacheHit("builds")
	rec.IncCacheHit("builds")
	rec.IncCacheMiss("caches")
	rec.AddBytesWritten("builds", 100)
	rec.AddBytesRead("builds", 40)
	rec.IncChecksumSkip("builds")
	rec.IncLifecycleRefresh(true)
	rec.IncRequest("/v1/builds/1/a", "GET", 200)
	rec.ObserveBackendOp("memory", "put", 5*time.Millisecond, true)

	if got := testutil.ToFloat64(rec.cacheHits.WithLabelValues("builds")); got != 2 {
		t.Errorf("cache hits: %f", got)
	}
	if got := testutil.ToFloat64(rec.cacheMisses.WithLabelValues("caches")); got != 1 {
		t.Errorf("cache misses: %f", got)
	}
	if got := testutil.ToFloat64(rec.bytesWritten.WithLabelValues("builds")); got != 100 {
		t.Errorf("bytes written: %f", got)
	}
	if got := testutil.ToFloat64(rec.lifecycleRefresh.WithLabelValues("success")); got != 1 {
		t.Errorf("lifecycle refresh: %f", got)
	}
}

func TestNoopRecorder(t *testing.T) {
	var rec Recorder = NoopRecorder{}
	rec.IncCacheHit("builds")
	rec.IncRequest("/v1/status", "GET", 200)
	rec.ObserveBackendOp("memory", "get", time.Millisecond, false)
}
