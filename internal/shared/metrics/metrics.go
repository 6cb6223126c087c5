package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	annotationStartedTotal   atomic.Uint64
	annotationCompletedTotal atomic.Uint64
	annotationFailedTotal    atomic.Uint64

	engineConstructionsTotal        atomic.Uint64
	engineConstructionFailuresTotal atomic.Uint64

	jobsReceivedTotal atomic.Uint64
	jobsDeletedTotal  atomic.Uint64
	jobsInvalidTotal  atomic.Uint64
	jobsRetriedTotal  atomic.Uint64

	annotationParse = newHistogram([]float64{10, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000})
	engineLockWait  = newHistogram([]float64{1, 10, 50, 100, 500, 1000, 5000, 30000})
)

// IncAnnotationStarted increments the started counter.
func IncAnnotationStarted() { annotationStartedTotal.Add(1) }

// IncAnnotationCompleted increments the completed counter.
func IncAnnotationCompleted() { annotationCompletedTotal.Add(1) }

// IncAnnotationFailed increments the failed counter.
func IncAnnotationFailed() { annotationFailedTotal.Add(1) }

// IncEngineConstructions counts successful engine constructions.
func IncEngineConstructions() { engineConstructionsTotal.Add(1) }

// IncEngineConstructionFailures counts failed engine constructions.
func IncEngineConstructionFailures() { engineConstructionFailuresTotal.Add(1) }

// IncJobsReceived counts queue messages picked up by the worker.
func IncJobsReceived() { jobsReceivedTotal.Add(1) }

// IncJobsDeleted counts queue messages removed after handling.
func IncJobsDeleted() { jobsDeletedTotal.Add(1) }

// IncJobsInvalid counts queue messages that could not be parsed.
func IncJobsInvalid() { jobsInvalidTotal.Add(1) }

// IncJobsRetried counts messages left on the queue for redelivery.
func IncJobsRetried() { jobsRetriedTotal.Add(1) }

// ObserveAnnotationParseMs records engine time for one document in milliseconds.
func ObserveAnnotationParseMs(value float64) {
	annotationParse.Observe(clamp(value))
}

// ObserveEngineLockWaitMs records how long a caller waited for the engine.
func ObserveEngineLockWaitMs(value float64) {
	engineLockWait.Observe(clamp(value))
}

func clamp(value float64) float64 {
	if value < 0 {
		return 0
	}
	return value
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "annotation_started_total", "Total annotation runs started", annotationStartedTotal.Load())
	writeCounter(&buf, "annotation_completed_total", "Total annotation runs completed", annotationCompletedTotal.Load())
	writeCounter(&buf, "annotation_failed_total", "Total annotation runs failed", annotationFailedTotal.Load())
	writeCounter(&buf, "engine_constructions_total", "Total engine constructions", engineConstructionsTotal.Load())
	writeCounter(&buf, "engine_construction_failures_total", "Total failed engine constructions", engineConstructionFailuresTotal.Load())
	writeCounter(&buf, "annotation_jobs_received_total", "Queue messages received by the worker", jobsReceivedTotal.Load())
	writeCounter(&buf, "annotation_jobs_deleted_total", "Queue messages deleted by the worker", jobsDeletedTotal.Load())
	writeCounter(&buf, "annotation_jobs_invalid_total", "Queue messages rejected as invalid", jobsInvalidTotal.Load())
	writeCounter(&buf, "annotation_jobs_retried_total", "Queue messages left for redelivery", jobsRetriedTotal.Load())
	writeHistogram(&buf, "annotation_parse_ms", "Engine processing time in milliseconds", annotationParse.Snapshot())
	writeHistogram(&buf, "engine_lock_wait_ms", "Engine lock wait in milliseconds", engineLockWait.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe counts the value in the first bucket that holds it. Snapshots are
// made cumulative when rendered.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
