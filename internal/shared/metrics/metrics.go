package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	submissionStartedTotal   atomic.Uint64
	submissionCompletedTotal atomic.Uint64
	submissionOverlapTotal   atomic.Uint64
	artifactsStoredTotal     atomic.Uint64

	failures = newLabeledCounter()

	submissionDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
	filesPerSubmission = newHistogram([]float64{1, 2, 5, 10, 25, 50, 100})
)

// IncSubmissionStarted counts a submission sent to the analysis service.
func IncSubmissionStarted() {
	submissionStartedTotal.Add(1)
}

// IncSubmissionCompleted counts a submission that produced a result.
func IncSubmissionCompleted() {
	submissionCompletedTotal.Add(1)
}

// IncSubmissionFailed counts a failed submission by error kind.
func IncSubmissionFailed(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	failures.Inc(kind)
}

// IncSubmissionOverlap counts a submission refused because another was in flight.
func IncSubmissionOverlap() {
	submissionOverlapTotal.Add(1)
}

// AddArtifactsStored counts stored chart and export artifacts.
func AddArtifactsStored(n int) {
	if n > 0 {
		artifactsStoredTotal.Add(uint64(n))
	}
}

// ObserveSubmissionDurationMs records a submission round trip in milliseconds.
func ObserveSubmissionDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	submissionDuration.Observe(value)
}

// ObserveFilesPerSubmission records how many files one submission carried.
func ObserveFilesPerSubmission(n int) {
	filesPerSubmission.Observe(float64(n))
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
	writeCounter(&buf, "pca_submission_started_total", "Submissions sent to the analysis service", submissionStartedTotal.Load())
	writeCounter(&buf, "pca_submission_completed_total", "Submissions that produced a result", submissionCompletedTotal.Load())
	writeLabeledCounter(&buf, "pca_submission_failed_total", "Failed submissions by error kind", "kind", failures.Snapshot())
	writeCounter(&buf, "pca_submission_overlap_total", "Submissions refused while another was in flight", submissionOverlapTotal.Load())
	writeCounter(&buf, "pca_artifacts_stored_total", "Chart and export artifacts stored", artifactsStoredTotal.Load())
	writeHistogram(&buf, "pca_submission_duration_ms", "Submission round trip in milliseconds", submissionDuration.Snapshot())
	writeHistogram(&buf, "pca_submission_files", "Files per submission", filesPerSubmission.Snapshot())
	return buf.String()
}

type labeledCounter struct {
	mu     sync.Mutex
	counts map[string]uint64
}

func newLabeledCounter() *labeledCounter {
	return &labeledCounter{counts: make(map[string]uint64)}
}

func (l *labeledCounter) Inc(label string) {
	l.mu.Lock()
	l.counts[label]++
	l.mu.Unlock()
}

func (l *labeledCounter) Snapshot() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]uint64, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
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

// Observe adds value to the first bucket that holds it; cumulative counts are
// produced at render time.
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

func writeLabeledCounter(buf *bytes.Buffer, name, help, label string, values map[string]uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
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
