package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/actorsteer/actorsteer/internal/config"
	"github.com/actorsteer/actorsteer/internal/dispatcher"
	"github.com/actorsteer/actorsteer/internal/influx"
	"github.com/actorsteer/actorsteer/internal/logging"
	"github.com/actorsteer/actorsteer/internal/model"
	"github.com/actorsteer/actorsteer/internal/monitor"
	"github.com/actorsteer/actorsteer/internal/motion"
	intOtel "github.com/actorsteer/actorsteer/internal/otel"
	"github.com/actorsteer/actorsteer/internal/plugin"
	"github.com/actorsteer/actorsteer/internal/recorder"
	"github.com/actorsteer/actorsteer/internal/simhost"
	"github.com/actorsteer/actorsteer/internal/transport/websocket"
	"github.com/actorsteer/actorsteer/pkg/core"
	"github.com/actorsteer/actorsteer/pkg/host"
	"github.com/actorsteer/actorsteer/pkg/hostapi"
)

const (
	appName        = "actorsim"
	configFileHint = config.FileName
	shutdownGrace  = 5 * time.Second
)

type runOptions struct {
	duration time.Duration
	stdin    bool
}

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation until interrupted",
		Long: `Run loads the configuration, starts the world and drives the actor
until SIGINT/SIGTERM or until --duration elapses. With --stdin every input
line is a host call ("cmd_vel|0.5,0,0|0,0,0.1", "reset", ":VERSION:") and its
response is printed on stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if opts.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.duration)
				defer cancel()
			}

			var in io.Reader
			if opts.stdin {
				in = cmd.InOrStdin()
			}
			return runSimulation(ctx, configDir, in, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "stop after this much wall-clock time (0 runs until interrupted)")
	cmd.Flags().BoolVar(&opts.stdin, "stdin", false, "read host calls from stdin")

	return cmd
}

func loadConfig(dir string) error {
	if dir == "" {
		config.SetDefaults()
		return nil
	}
	return config.Load(dir)
}

// simulation owns every component of one run. Components are closed in
// reverse start order.
type simulation struct {
	logger   *slog.Logger
	slogMgr  *logging.SlogManager
	provider *intOtel.Provider
	files    []*os.File

	world      *simhost.World
	actor      *simhost.Actor
	plugin     *plugin.ActorPlugin
	dispatcher *dispatcher.Dispatcher
	api        *hostapi.API

	recorder   *recorder.Recorder
	influx     *influx.Manager
	subscriber *websocket.Subscriber
	monitor    *monitor.Service
}

func runSimulation(ctx context.Context, dir string, in io.Reader, out io.Writer) error {
	if err := loadConfig(dir); err != nil {
		return err
	}

	sim, err := newSimulation(ctx, time.Now())
	if err != nil {
		return err
	}
	defer sim.close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sim.world.Run(ctx, config.GetSimConfig().Realtime)
	}()

	if in != nil {
		go sim.serve(ctx, in, out)
	}

	<-ctx.Done()
	wg.Wait()

	st := sim.plugin.Status()
	sim.logger.Info("Simulation stopped",
		"ticks", st.Ticks,
		"simTime", st.SimTime,
		"x", st.Pose.Position.X(),
		"y", st.Pose.Position.Y(),
		"scriptTime", st.ScriptTime,
	)
	return nil
}

func newSimulation(ctx context.Context, start time.Time) (*simulation, error) {
	s := &simulation{}
	ok := false
	defer func() {
		if !ok {
			s.close()
		}
	}()

	logsDir := config.GetString("logsDir")
	logFile, err := logging.OpenLogFile(logsDir, appName, start)
	if err != nil {
		return nil, err
	}
	s.files = append(s.files, logFile)

	otelCfg := config.GetOTelConfig()
	var otelWriter io.Writer
	if otelCfg.Enabled {
		f, err := logging.OpenLogFile(logsDir, appName+".otel", start)
		if err != nil {
			return nil, err
		}
		s.files = append(s.files, f)
		otelWriter = f
	}
	s.provider, err = intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    otelWriter,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}

	sim := config.GetSimConfig()
	actorCfg := config.GetActorConfig()
	s.world = simhost.NewWorld(sim.TickRate)
	bounds := config.GetBounds()
	s.actor = simhost.NewActor(actorCfg.Name, core.Pose{
		Position: mgl64.Vec3{0, 0, bounds.GroundHeight},
	}.Upright(), actorCfg.WalkingAnimation)

	logOpts := logging.Options{
		File:     logFile,
		Level:    config.GetString("logLevel"),
		Provider: s.provider.LoggerProvider(),
		Context:  logging.SimContext(actorCfg.Name, s.world.SimTime),
	}
	if config.GetBool("graylog.enabled") {
		logOpts.GraylogAddress = config.GetString("graylog.address")
	}
	s.slogMgr = logging.NewSlogManager()
	setupErr := s.slogMgr.Setup(logOpts)
	s.logger = s.slogMgr.Logger()
	if setupErr != nil {
		s.logger.Warn("Logging degraded", "error", setupErr)
	}
	zl := zerolog.New(logFile).With().Timestamp().Str("app", appName).Logger()

	s.dispatcher, err = dispatcher.New(logging.NewDispatcherLogger(s.logger))
	if err != nil {
		return nil, err
	}

	motionBounds := motion.Bounds{
		MinX:         bounds.MinX,
		MaxX:         bounds.MaxX,
		MinY:         bounds.MinY,
		MaxY:         bounds.MaxY,
		GroundHeight: bounds.GroundHeight,
	}

	recCfg := config.GetRecorderConfig()
	backend, err := recorder.NewBackend(recCfg, zl)
	if err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	s.recorder = recorder.New(backend, recorder.Config{
		FlushInterval: recCfg.FlushInterval,
		QueueSize:     recCfg.QueueSize,
	}, s.logger)
	run, err := model.NewRun(actorCfg.Name, start, actorCfg.AnimationFactor, bounds)
	if err != nil {
		return nil, err
	}
	if err := s.recorder.Start(ctx, run); err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	observers := []plugin.Observer{s.recorder}

	influxCfg := config.GetInfluxConfig()
	if influxCfg.Enabled {
		backup := filepath.Join(logsDir, fmt.Sprintf("influx_backup.%s.lp.gz", start.Format("20060102_150405")))
		s.influx = influx.NewManager(zl, influxCfg, backup, start)
		if err := s.influx.Connect(ctx); err != nil {
			s.logger.Error("InfluxDB unavailable, telemetry disabled", "error", err)
			s.influx = nil
		} else {
			observers = append(observers, s.influx)
			s.influx.RegisterHandlers(s.dispatcher)
		}
	}

	s.plugin = plugin.New(s.logger, plugin.Options{
		AnimationFactor:  actorCfg.AnimationFactor,
		WalkingAnimation: actorCfg.WalkingAnimation,
		Bounds:           motionBounds,
		Observers:        observers,
	})
	transportCfg := config.GetTransportConfig()
	s.plugin.RegisterHandlers(s.dispatcher, transportCfg.Topic)

	var transport host.Transport = host.TransportFunc(func() bool { return true })
	if transportCfg.Enabled {
		s.subscriber = websocket.New(websocket.Config{
			URL:    transportCfg.URL,
			Topics: []string{transportCfg.Topic, plugin.ResetTopic},
		}, s.dispatcher, s.logger)
		if err := s.subscriber.Dial(ctx); err != nil {
			s.logger.Error("Command bridge unreachable", "url", transportCfg.URL, "error", err)
		}
		transport = s.subscriber
	}

	// A failed load leaves the plugin inactive; the world keeps running.
	_ = s.plugin.Load(s.actor, transport, plugin.Params{})
	s.world.ConnectWorldUpdateBegin(s.plugin.OnUpdate)
	s.world.ConnectReset(s.plugin.RequestReset)

	s.api = hostapi.New(version, s.dispatcher)

	deps := monitor.Dependencies{
		Plugin:    s.plugin,
		Metrics:   s.provider,
		Recorder:  s.recorder,
		Logger:    s.logger,
		OutputDir: logsDir,
	}
	if s.influx != nil {
		deps.Publish = s.publishStatus
	}
	s.monitor = monitor.NewService(deps)
	if err := s.monitor.Start(ctx); err != nil {
		s.logger.Error("Status monitor disabled", "error", err)
	}

	ok = true
	return s, nil
}

// publishStatus forwards the monitor snapshot as a metric point.
func (s *simulation) publishStatus(snap monitor.Snapshot) {
	args := []string{
		"controller_status",
		"tag::actor::" + snap.Actor.Actor,
		fmt.Sprintf("field::int::ticks::%d", snap.Actor.Ticks),
		fmt.Sprintf("field::int::commands::%d", snap.Actor.Commands),
		fmt.Sprintf("field::int::rejected::%d", snap.Actor.Rejected),
		fmt.Sprintf("field::bool::degraded::%t", snap.Actor.Degraded),
	}
	if snap.Recorder != nil {
		args = append(args, fmt.Sprintf("field::int::recorderDropped::%d", snap.Recorder.Dropped))
	}
	point, err := influx.ParseMetric(args)
	if err != nil {
		s.logger.Debug("Status point rejected", "error", err)
		return
	}
	if err := s.influx.WritePoint(point); err != nil {
		s.logger.Debug("Status point not written", "error", err)
	}
}

// serve answers host calls line by line until in is exhausted or ctx ends.
func (s *simulation) serve(ctx context.Context, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		fmt.Fprintln(out, s.api.CallLine(line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		s.logger.Error("Error reading host calls", "error", err)
	}
}

func (s *simulation) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if s.monitor != nil {
		s.monitor.Stop()
	}
	if s.subscriber != nil {
		_ = s.subscriber.Close()
	}
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}
	if s.recorder != nil {
		if err := s.recorder.Close(ctx); err != nil && s.logger != nil {
			s.logger.Error("Error closing recorder", "error", err)
		}
	}
	if s.influx != nil {
		if err := s.influx.Close(); err != nil && s.logger != nil {
			s.logger.Error("Error closing InfluxDB", "error", err)
		}
	}
	if s.slogMgr != nil {
		_ = s.slogMgr.Flush(ctx)
	}
	if s.provider != nil {
		_ = s.provider.Shutdown(ctx)
	}
	if s.slogMgr != nil {
		_ = s.slogMgr.Close()
	}
	for i := len(s.files) - 1; i >= 0; i-- {
		_ = s.files[i].Close()
	}
}
