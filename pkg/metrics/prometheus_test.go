package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordTick("BTCUSDT", true)
	r.RecordTick("BTCUSDT", true)
	r.RecordTick("BTCUSDT", false)
	r.RecordEvent("breakout")
	r.RecordRelayForwarded("kafka", 7)
	r.RecordLastPrice("BTCUSDT", 42000)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ticks.WithLabelValues("BTCUSDT", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ticks.WithLabelValues("BTCUSDT", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.events.WithLabelValues("breakout")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.relayForwarded.WithLabelValues("kafka")))
	assert.Equal(t, 42000.0, testutil.ToFloat64(r.lastPrice.WithLabelValues("BTCUSDT")))

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		assert.Contains(t, mf.GetName(), "regimedesk_")
	}
}

func TestRecordersAreIsolatedPerRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegisterer(prometheus.NewRegistry())
		NewWithRegisterer(prometheus.NewRegistry())
	})
}
