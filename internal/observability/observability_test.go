package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)
	var buf bytes.Buffer
	tr := NewJSONTracer(&buf)

	require.NoError(t, Instrument(context.Background(), rec, tr, "execute", func(context.Context) error { return nil }))
	boom := errors.New("boom")
	require.ErrorIs(t, Instrument(context.Background(), rec, tr, "execute", func(context.Context) error { return boom }), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.operations.WithLabelValues("execute", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.operations.WithLabelValues("execute", "error")))

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "success", entries[0].Status)
	assert.Equal(t, "boom", entries[1].Error)
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
}

func TestPrometheusRecorderGaugeAndDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)
	rec.SetSceneNodes(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(rec.nodes))

	rec.Observe(context.Background(), "", true, 0)
	_, err = NewPrometheusRecorder(reg)
	require.Error(t, err)
}

func TestInstrumentDefaultsToNoop(t *testing.T) {
	called := false
	require.NoError(t, Instrument(context.Background(), nil, nil, "x", func(context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)
}
