package metrics

import (
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	backendOps       *prom.HistogramVec
	requests         *prom.CounterVec
	cacheHits        *prom.CounterVec
	cacheMisses      *prom.CounterVec
	bytesWritten     *prom.CounterVec
	bytesRead        *prom.CounterVec
	checksumSkips    *prom.CounterVec
	lifecycleRefresh *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.backendOps = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "artifactstore",
			Name:      "backend_op_duration_seconds",
			Help:      "Duration of storage backend operations",
			Buckets:   prom.DefBuckets,
		}, []string{"backend", "op", "result"})
		pr.requests = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "artifactstore",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method, and status",
		}, []string{"route", "method", "status"})
		pr.cacheHits = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "artifactstore",
			Name:      "cache_hits_total",
			Help:      "Cache hits by segment",
		}, []string{"segment"})
		pr.cacheMisses = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "artifactstore",
			Name:      "cache_misses_total",
			Help:      "Cache misses by segment",
		}, []string{"segment"})
		pr.bytesWritten = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "artifactstore",
			Name:      "bytes_written_total",
			Help:      "Payload bytes written by segment",
		}, []string{"segment"})
		pr.bytesRead = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "artifactstore",
			Name:      "bytes_read_total",
			Help:      "Payload bytes read by segment",
		}, []string{"segment"})
		pr.checksumSkips = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "artifactstore",
			Name:      "checksum_skips_total",
			Help:      "Writes skipped because content was unchanged",
		}, []string{"segment"})
		pr.lifecycleRefresh = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "artifactstore",
			Name:      "lifecycle_refresh_total",
			Help:      "Lifecycle refresh attempts by result",
		}, []string{"result"})
		reg.MustRegister(pr.backendOps, pr.requests, pr.cacheHits, pr.cacheMisses,
			pr.bytesWritten, pr.bytesRead, pr.checksumSkips, pr.lifecycleRefresh)
	})
	return pr
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func (pr *PrometheusRecorder) ObserveBackendOp(backend, op string, d time.Duration, success bool) {
	pr.backendOps.WithLabelValues(backend, op, resultLabel(success)).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncRequest(route, method string, status int) {
	pr.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

func (pr *PrometheusRecorder) IncCacheHit(segment string) {
	pr.cacheHits.WithLabelValues(segment).Inc()
}

func (pr *PrometheusRecorder) IncCacheMiss(segment string) {
	pr.cacheMisses.WithLabelValues(segment).Inc()
}

func (pr *PrometheusRecorder) AddBytesWritten(segment string, n int64) {
	pr.bytesWritten.WithLabelValues(segment).Add(float64(n))
}

func (pr *PrometheusRecorder) AddBytesRead(segment string, n int64) {
	pr.bytesRead.WithLabelValues(segment).Add(float64(n))
}

func (pr *PrometheusRecorder) IncChecksumSkip(segment string) {
	pr.checksumSkips.WithLabelValues(segment).Inc()
}

func (pr *PrometheusRecorder) IncLifecycleRefresh(success bool) {
	pr.lifecycleRefresh.WithLabelValues(resultLabel(success)).Inc()
}
