// Package config loads actorsteer.cfg.json through viper and exposes typed
// views of each section.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "actorsteer.cfg.json"

// ActorConfig describes the controlled actor.
type ActorConfig struct {
	Name             string  `json:"name" mapstructure:"name"`
	WalkingAnimation string  `json:"walkingAnimation" mapstructure:"walkingAnimation"`
	AnimationFactor  float64 `json:"animationFactor" mapstructure:"animationFactor"`
}

// BoundsConfig is the operating area.
type BoundsConfig struct {
	MinX         float64 `json:"minX" mapstructure:"minX"`
	MaxX         float64 `json:"maxX" mapstructure:"maxX"`
	MinY         float64 `json:"minY" mapstructure:"minY"`
	MaxY         float64 `json:"maxY" mapstructure:"maxY"`
	GroundHeight float64 `json:"groundHeight" mapstructure:"groundHeight"`
}

// TransportConfig is the command subscription.
type TransportConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Topic   string `json:"topic" mapstructure:"topic"`
}

// SimConfig drives the headless simulation host.
type SimConfig struct {
	TickRate time.Duration `json:"tickRate" mapstructure:"tickRate"`
	Realtime bool          `json:"realtime" mapstructure:"realtime"`
}

// SQLiteConfig holds SQLite recorder settings.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// RecorderConfig selects where tick samples are persisted.
type RecorderConfig struct {
	Type          string        `json:"type" mapstructure:"type"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
	QueueSize     int           `json:"queueSize" mapstructure:"queueSize"`
	SQLite        SQLiteConfig  `json:"sqlite" mapstructure:"sqlite"`
	DB            DBConfig      `json:"db" mapstructure:"db"`
}

// InfluxConfig holds telemetry settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// SetDefaults registers every default value. Load calls it; commands that
// run without a config file call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./actorlogs")

	viper.SetDefault("animation_factor", 4.5)
	viper.SetDefault("actor.name", "actor")
	viper.SetDefault("actor.walkingAnimation", "walking")

	viper.SetDefault("bounds.minX", -10.0)
	viper.SetDefault("bounds.maxX", 20.0)
	viper.SetDefault("bounds.minY", -20.0)
	viper.SetDefault("bounds.maxY", 20.0)
	viper.SetDefault("bounds.groundHeight", 0.98)

	viper.SetDefault("transport.enabled", false)
	viper.SetDefault("transport.url", "ws://localhost:9090/ws")
	viper.SetDefault("transport.topic", "cmd_vel")

	viper.SetDefault("sim.tickRate", "1ms")
	viper.SetDefault("sim.realtime", true)

	viper.SetDefault("recorder.type", "memory")
	viper.SetDefault("recorder.flushInterval", "1s")
	viper.SetDefault("recorder.queueSize", 10000)
	viper.SetDefault("recorder.sqlite.path", "")
	viper.SetDefault("recorder.sqlite.dumpPath", "./actor_samples.db")
	viper.SetDefault("recorder.sqlite.dumpInterval", "3m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "actorsteer")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "actorsteer")
	viper.SetDefault("influx.bucket", "actor_telemetry")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "actorsteer")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat64 returns a float config value.
func GetFloat64(key string) float64 {
	return viper.GetFloat64(key)
}

func GetActorConfig() ActorConfig {
	return ActorConfig{
		Name:             viper.GetString("actor.name"),
		WalkingAnimation: viper.GetString("actor.walkingAnimation"),
		AnimationFactor:  viper.GetFloat64("animation_factor"),
	}
}

func GetBounds() BoundsConfig {
	return BoundsConfig{
		MinX:         viper.GetFloat64("bounds.minX"),
		MaxX:         viper.GetFloat64("bounds.maxX"),
		MinY:         viper.GetFloat64("bounds.minY"),
		MaxY:         viper.GetFloat64("bounds.maxY"),
		GroundHeight: viper.GetFloat64("bounds.groundHeight"),
	}
}

func GetTransportConfig() TransportConfig {
	return TransportConfig{
		Enabled: viper.GetBool("transport.enabled"),
		URL:     viper.GetString("transport.url"),
		Topic:   viper.GetString("transport.topic"),
	}
}

func GetSimConfig() SimConfig {
	return SimConfig{
		TickRate: viper.GetDuration("sim.tickRate"),
		Realtime: viper.GetBool("sim.realtime"),
	}
}

// GetRecorderConfig returns the recorder section, with the postgres
// connection taken from the top-level db section.
func GetRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Type:          viper.GetString("recorder.type"),
		FlushInterval: viper.GetDuration("recorder.flushInterval"),
		QueueSize:     viper.GetInt("recorder.queueSize"),
		SQLite: SQLiteConfig{
			Path:         viper.GetString("recorder.sqlite.path"),
			DumpPath:     viper.GetString("recorder.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("recorder.sqlite.dumpInterval"),
		},
		DB: DBConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
	}
}

func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
