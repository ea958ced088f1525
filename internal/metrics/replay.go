package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "clarityreplay"

// Clarity transport and record/replay Prometheus metrics.
var (
	ClarityRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "clarity_requests_total",
			Help:      "Total number of requests sent to the Clarity server",
		},
		[]string{"kind", "method", "status"},
	)

	ClarityRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "clarity_request_duration_seconds",
			Help:      "Clarity request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind", "method"},
	)

	RecordingsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "recordings_written_total",
			Help:      "Recordings written to the store",
		},
		[]string{"type"}, // entity / list / search / update
	)

	RecordingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "recording_errors_total",
			Help:      "Recordings that could not be written",
		},
		[]string{"type"},
	)

	SearchConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "search_hash_conflicts_total",
			Help:      "Searches overwritten because different terms share a hash",
		},
	)

	PlaybackRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "playback_requests_total",
			Help:      "Playback reads by operation and outcome",
		},
		[]string{"op", "result"}, // "hit" / "miss" / "error"
	)

	PlaybackCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "playback_cache_total",
			Help:      "Playback entity cache hits and misses",
		},
		[]string{"result"},
	)

	BlockedWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "playback_blocked_writes_total",
			Help:      "Write calls refused during playback",
		},
		[]string{"op"},
	)
)

var registerOnce sync.Once

// RegisterReplayMetrics registers the record/replay metrics with the
// default registry. Safe to call more than once.
func RegisterReplayMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ClarityRequestsTotal,
			ClarityRequestDuration,
			RecordingsWrittenTotal,
			RecordingErrorsTotal,
			SearchConflictsTotal,
			PlaybackRequestsTotal,
			PlaybackCacheTotal,
			BlockedWritesTotal,
		)
	})
}
