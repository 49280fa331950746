package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
)

func TestNew_DisabledStillCollectsMetrics(t *testing.T) {
	p, err := New(Config{ServiceName: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NoError(t, p.Flush(context.Background()))

	c, err := p.Meter("test").Int64Counter("motion.ticks")
	require.NoError(t, err)
	c.Add(context.Background(), 2)
	c.Add(context.Background(), 3)

	counters, err := p.Counters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), counters["motion.ticks"])
}

func TestNew_EnabledWithWriter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "test",
		BatchTimeout: time.Second,
		LogWriter:    &buf,
	})
	require.NoError(t, err)

	assert.True(t, p.Enabled())
	assert.NotNil(t, p.LoggerProvider())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutSinkFails(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "test"})
	assert.Error(t, err)
}

func TestCounters_SkipsNonSums(t *testing.T) {
	p, err := New(Config{ServiceName: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	h, err := p.Meter("test").Float64Histogram("motion.distance", metric.WithUnit("m"))
	require.NoError(t, err)
	h.Record(context.Background(), 1.5)

	counters, err := p.Counters(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, counters, "motion.distance")
}
