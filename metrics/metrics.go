// Package metrics exposes Prometheus collectors for sessions and caches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "longport"

// Metrics groups the SDK collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	pending         *prometheus.GaugeVec
	pushFrames      *prometheus.CounterVec
	decodeErrors    *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	toolCalls       *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg creates unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests sent on a session, by outcome.",
		}, []string{"channel", "cmd", "outcome"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Round trip time of session requests.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"channel"}),
		pending: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Requests awaiting a reply.",
		}, []string{"channel"}),
		pushFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_frames_total",
			Help:      "Push frames received.",
		}, []string{"channel", "cmd"}),
		decodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Frames discarded because they could not be decoded.",
		}, []string{"channel"}),
		reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect attempts, by result.",
		}, []string{"channel", "result"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Reference-data cache lookups, by result.",
		}, []string{"cache", "result"}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "MCP tool invocations, by outcome.",
		}, []string{"tool", "outcome"}),
	}
}

func (m *Metrics) ObserveRequest(channel, cmd, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(channel, cmd, outcome).Inc()
	m.requestDuration.WithLabelValues(channel).Observe(d.Seconds())
}

func (m *Metrics) SetPending(channel string, n int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(channel).Set(float64(n))
}

func (m *Metrics) PushFrame(channel, cmd string) {
	if m == nil {
		return
	}
	m.pushFrames.WithLabelValues(channel, cmd).Inc()
}

func (m *Metrics) DecodeError(channel string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(channel).Inc()
}

func (m *Metrics) Reconnect(channel string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.reconnects.WithLabelValues(channel, result).Inc()
}

// CacheLookup records a hit or a miss for the named cache.
func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// ToolCall records one MCP tool invocation.
func (m *Metrics) ToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}
