package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("quote", "11", "ok", time.Millisecond)
		m.SetPending("quote", 3)
		m.PushFrame("quote", "101")
		m.DecodeError("quote")
		m.Reconnect("quote", true)
		m.CacheLookup("participants", false)
		m.ToolCall("quote", "ok")
	})
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("quote", "14", "ok", 20*time.Millisecond)
	m.ObserveRequest("quote", "14", "timeout", time.Second)
	m.SetPending("trade", 2)
	m.CacheLookup("participants", true)
	m.CacheLookup("participants", true)
	m.ToolCall("depth", "error")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("quote", "14", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pending.WithLabelValues("trade")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("participants", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("depth", "error")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
