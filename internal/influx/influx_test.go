package influx

import (
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actorsteer/actorsteer/internal/config"
	"github.com/actorsteer/actorsteer/internal/dispatcher"
	"github.com/actorsteer/actorsteer/internal/logging"
	"github.com/actorsteer/actorsteer/pkg/core"
)

func unreachableConfig(t *testing.T) config.InfluxConfig {
	t.Helper()
	// A server that answers every request with 500 fails the ping at once.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	return config.InfluxConfig{
		Enabled:  true,
		Protocol: "http",
		Host:     u.Hostname(),
		Port:     u.Port(),
		Token:    "token",
		Org:      "actorsteer",
		Bucket:   "actor_telemetry",
	}
}

func readBackup(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)

	var lines []string
	for _, l := range strings.Split(string(raw), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{}, "", time.Now())
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
}

func TestConnect_FallsBackToBackup(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "influx_backup.lp.gz")
	epoch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(zerolog.Nop(), unreachableConfig(t), backup, epoch)

	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)
	require.NotNil(t, m.BackupWriter)

	m.ObserveTick(core.TickSample{
		Actor:    "actor",
		SimTime:  2 * time.Second,
		Pose:     core.Pose{Position: mgl64.Vec3{1.5, -2, 0.98}, Yaw: 0.25},
		Mode:     core.ModeTranslate,
		Distance: 0.01,
	})
	assert.Equal(t, uint64(1), m.Written())
	require.NoError(t, m.Close())

	lines := readBackup(t, backup)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], PoseMeasurement+",actor=actor,mode=translate "))
	assert.Contains(t, lines[0], "x=1.5")
	assert.Contains(t, lines[0], "yaw=0.25")
	assert.True(t, strings.HasSuffix(lines[0], " 1767225602000000000"))
}

func TestConnect_NoBackupPath(t *testing.T) {
	m := NewManager(zerolog.Nop(), unreachableConfig(t), "", time.Now())
	assert.Error(t, m.Connect(context.Background()))
}

func TestConnect_SetupFailureReleasesClient(t *testing.T) {
	// Healthy ping, but every org lookup and create fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	cfg := unreachableConfig(t)
	cfg.Host = u.Hostname()
	cfg.Port = u.Port()

	m := NewManager(zerolog.Nop(), cfg, "", time.Now())
	require.Error(t, m.Connect(context.Background()))
	assert.Nil(t, m.Client)
	assert.Nil(t, m.Writer)
	assert.False(t, m.IsValid)
	require.NoError(t, m.Close())
}

func TestWritePoint_NotConnected(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{}, "", time.Now())
	err := m.WritePoint(influxdb2_write.NewPointWithMeasurement("x").AddField("v", 1))
	assert.Error(t, err)

	// ObserveTick swallows the error.
	assert.NotPanics(t, func() { m.ObserveTick(core.TickSample{}) })
	assert.Zero(t, m.Written())
}

func TestPosePoint_SkipsNonFinite(t *testing.T) {
	s := core.TickSample{
		Actor: "actor",
		Pose:  core.Pose{Position: mgl64.Vec3{1, 2, 0.98}, Yaw: math.NaN()},
		Mode:  core.ModeRotate,
		Command: core.VelocityCommand{
			Linear:      mgl64.Vec3{math.Inf(1), 0, 0},
			AngularRate: 0.5,
		},
	}
	line := influxdb2_write.PointToLineProtocol(PosePoint(s, time.Unix(0, 0)), time.Nanosecond)

	assert.NotContains(t, line, "yaw=")
	assert.NotContains(t, line, "linearX=")
	assert.Contains(t, line, "angularRate=0.5")
	assert.Contains(t, line, "mode=rotate")
}

func TestParseMetric(t *testing.T) {
	p, err := ParseMetric([]string{
		"controller",
		"tag::actor::walker",
		"field::float::fps::59.5",
		"field::int::ticks::100",
		"field::bool::degraded::true",
		"field::string::note::hi",
	})
	require.NoError(t, err)

	line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
	assert.True(t, strings.HasPrefix(line, "controller,actor=walker "))
	assert.Contains(t, line, "fps=59.5")
	assert.Contains(t, line, "ticks=100i")
	assert.Contains(t, line, "degraded=true")
	assert.Contains(t, line, `note="hi"`)
}

func TestParseMetric_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"empty", nil},
		{"no fields", []string{"m", "tag::a::b"}},
		{"bad int", []string{"m", "field::int::n::x"}},
		{"bad float", []string{"m", "field::float::n::x"}},
		{"bad bool", []string{"m", "field::bool::n::x"}},
		{"unknown type", []string{"m", "field::blob::n::x"}},
		{"malformed", []string{"m", "garbage"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMetric(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestRegisterHandlers(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "metric.lp.gz")
	m := NewManager(zerolog.Nop(), unreachableConfig(t), backup, time.Now())
	require.NoError(t, m.Connect(context.Background()))

	d, err := dispatcher.New(logging.NewDispatcherLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	defer d.Close()
	m.RegisterHandlers(d)

	_, err = d.Dispatch(dispatcher.Event{Topic: MetricTopic, Args: []string{"custom", "field::int::n::3"}})
	require.NoError(t, err)
	_, err = d.Dispatch(dispatcher.Event{Topic: MetricTopic, Args: []string{"custom"}})
	assert.Error(t, err)

	require.NoError(t, m.Close())
	lines := readBackup(t, backup)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "custom n=3i"))
}
