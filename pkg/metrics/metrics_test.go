package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestRecorder(t *testing.T) (*Recorder, *clock, *observer.ObservedLogs, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	core, logs := observer.New(zap.InfoLevel)
	r := NewRecorder(reg, zap.New(core))
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r.now = c.now
	r.runStart = c.t
	return r, c, logs, reg
}

func TestRecorder_Capture(t *testing.T) {
	r, _, _, _ := newTestRecorder(t)

	r.Capture("groups")
	r.Capture("groups")
	r.Capture("tags")

	assert.Equal(t, int64(2), r.Count("groups"))
	assert.Equal(t, int64(1), r.Count("tags"))
	assert.Equal(t, int64(0), r.Count("users"))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.records.WithLabelValues("groups")))
}

func TestRecorder_RecordCount(t *testing.T) {
	r, _, logs, _ := newTestRecorder(t)

	r.RecordCount("ticket_audits", 17)

	assert.Equal(t, 17.0, testutil.ToFloat64(r.childTotal.WithLabelValues("ticket_audits")))
	entries := logs.FilterMessage("METRIC").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "record_count", fields["metric"])
	assert.Equal(t, int64(17), fields["value"])
	assert.Equal(t, "ticket_audits", fields["endpoint"])
}

func TestRecorder_LogAggregateRates(t *testing.T) {
	r, c, logs, reg := newTestRecorder(t)

	r.Start("macros")
	for i := 0; i < 10; i++ {
		r.Capture("macros")
	}
	c.t = c.t.Add(5 * time.Second)
	r.LogAggregateRates("macros")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.throughput.WithLabelValues("macros")))
	entries := logs.FilterMessage("aggregate rate").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(10), entries[0].ContextMap()["records"])

	n, err := testutil.GatherAndCount(reg, "ticketsync_stream_sync_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r.Capture("tags")
	r.LogRunRates()
	run := logs.FilterMessage("run totals").All()
	require.Len(t, run, 1)
	assert.Equal(t, int64(11), run[0].ContextMap()["total_records"])
}

func TestNewRecorder_NilRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		NewRecorder(nil, nil)
		NewRecorder(nil, nil)
	})
}
