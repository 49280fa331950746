// Package influx streams actor telemetry to InfluxDB. When the server is
// unreachable points are written as gzip-compressed line protocol to a
// backup file instead.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/actorsteer/actorsteer/internal/config"
	"github.com/actorsteer/actorsteer/internal/dispatcher"
	"github.com/actorsteer/actorsteer/pkg/core"
)

const (
	// PoseMeasurement holds one point per tick.
	PoseMeasurement = "actor_pose"
	// MetricTopic is the host call that writes an arbitrary point.
	MetricTopic = "metric"

	retentionSeconds = 60 * 60 * 24 * 90
	pingTimeout      = 5 * time.Second
)

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx disabled")

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger
	BackupPath   string

	cfg        config.InfluxConfig
	epoch      time.Time
	backupFile *os.File
	mu         sync.Mutex
	written    atomic.Uint64
	failed     atomic.Bool
}

// NewManager creates a new InfluxDB manager. Tick points are stamped
// relative to epoch.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig, backupPath string, epoch time.Time) *Manager {
	return &Manager{
		Logger:     log.With().Str("component", "influx").Logger(),
		BackupPath: backupPath,
		cfg:        cfg,
		epoch:      epoch,
	}
}

// Connect establishes a connection to InfluxDB, falling back to the backup
// file when the server does not answer a ping.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	running, err := m.Client.Ping(pingCtx)
	cancel()

	if err != nil || !running {
		m.IsValid = false
		m.Logger.Info().Str("backupPath", m.BackupPath).
			Msg("Failed to initialize InfluxDB client, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		m.Client.Close()
		m.Client = nil
		return err
	}
	m.createWriter()
	m.IsValid = true
	m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	if m.BackupPath == "" {
		return fmt.Errorf("influx unreachable and no backup path set")
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.Client.OrganizationsAPI()

	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.Logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", m.cfg.Org).Msg("Error creating organization")
			return err
		}
	}

	if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retentionSeconds,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
			return err
		}
	}
	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)

	errorsCh := m.Writer.Errors()
	go func() {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}()
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.IsValid:
		m.Writer.WritePoint(point)
	case m.BackupWriter != nil:
		lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
		if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
			return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
		}
	default:
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	m.written.Add(1)
	return nil
}

// Written returns the number of points accepted.
func (m *Manager) Written() uint64 {
	return m.written.Load()
}

// ObserveTick writes one pose point. Only the first failure is logged.
func (m *Manager) ObserveTick(s core.TickSample) {
	if err := m.WritePoint(PosePoint(s, m.epoch)); err != nil && m.failed.CompareAndSwap(false, true) {
		m.Logger.Error().Err(err).Msg("Error writing pose point")
	}
}

// PosePoint converts a tick sample into a point timestamped at epoch plus
// simulation time. Non-finite values are left out since line protocol has
// no representation for them.
func PosePoint(s core.TickSample, epoch time.Time) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(PoseMeasurement).
		AddTag("actor", s.Actor).
		AddTag("mode", s.Mode.String()).
		AddField("clamped", s.Clamped).
		SetTime(epoch.Add(s.SimTime))

	fields := []struct {
		name  string
		value float64
	}{
		{"x", s.Pose.Position.X()},
		{"y", s.Pose.Position.Y()},
		{"z", s.Pose.Position.Z()},
		{"yaw", s.Pose.Yaw},
		{"distance", s.Distance},
		{"scriptTime", s.ScriptTime},
		{"linearX", s.Command.Linear.X()},
		{"linearY", s.Command.Linear.Y()},
		{"angularRate", s.Command.AngularRate},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			continue
		}
		p.AddField(f.name, f.value)
	}
	return p
}

// ParseMetric builds a point from host call arguments:
//
//	measurement, tag::name::value..., field::type::name::value...
//
// with type one of string, int, float or bool.
func ParseMetric(args []string) (*influxdb2_write.Point, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, fmt.Errorf("metric needs a measurement name")
	}

	point := influxdb2_write.NewPointWithMeasurement(args[0])
	fields := 0
	for _, arg := range args[1:] {
		parts := strings.Split(arg, "::")
		switch {
		case parts[0] == "tag" && len(parts) >= 3:
			point.AddTag(parts[1], parts[2])
		case parts[0] == "field" && len(parts) >= 4:
			v, err := parseFieldValue(parts[1], parts[3])
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", parts[2], err)
			}
			point.AddField(parts[2], v)
			fields++
		default:
			return nil, fmt.Errorf("malformed metric argument %q", arg)
		}
	}
	if fields == 0 {
		return nil, fmt.Errorf("metric %s has no fields", args[0])
	}
	return point, nil
}

func parseFieldValue(kind, raw string) (any, error) {
	switch kind {
	case "string":
		return raw, nil
	case "int":
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("error converting '%s' to int: %w", raw, err)
		}
		return v, nil
	case "float":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("error converting '%s' to float: %w", raw, err)
		}
		return v, nil
	case "bool":
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("error converting '%s' to bool: %w", raw, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown field type %q", kind)
	}
}

// RegisterHandlers exposes the metric host call.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(MetricTopic, func(e dispatcher.Event) (any, error) {
		point, err := ParseMetric(e.Args)
		if err != nil {
			return nil, err
		}
		if err := m.WritePoint(point); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// Close flushes pending points and releases the client or backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	m.IsValid = false
	return errors.Join(errs...)
}
