// Package config defines the typed configuration surface for accessd and
// readerd, unmarshalled from github.com/spf13/viper, with flags and env
// vars bound onto the same viper keys.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ErrorHandling mirrors the ErrorHandling.* keys consumed by package status.
type ErrorHandling struct {
	IncludeInnerExceptions             bool   `mapstructure:"include_inner_exceptions"`
	OverrideInternalServerErrors       bool   `mapstructure:"override_internal_server_errors"`
	InternalServerErrorMessageOverride string `mapstructure:"internal_server_error_message_override"`
}

// EventCaching mirrors the EventCaching.* keys consumed by package eventcache.
type EventCaching struct {
	CachedEventCount int `mapstructure:"cached_event_count"`
}

// FlushStrategy mirrors the FlushStrategy.* keys consumed by package flushctl.
type FlushStrategy struct {
	LoopInterval int `mapstructure:"loop_interval_ms"`
	SizeLimit    int `mapstructure:"size_limit"`
}

// Server configures the wire package's HTTP surface.
type Server struct {
	Port           string `mapstructure:"port"`
	JWTSecret      string `mapstructure:"jwt_secret"`
	ShutdownDelay  int    `mapstructure:"shutdown_delay_seconds"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

// Storage configures the persister backends accessd can wire up.
type Storage struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`
	BoltPath    string `mapstructure:"bolt_path"`
	Neo4jURI    string `mapstructure:"neo4j_uri"`
	Neo4jUser   string `mapstructure:"neo4j_user"`
	Neo4jPass   string `mapstructure:"neo4j_password"`
	RedisAddr   string `mapstructure:"redis_addr"`
}

// Telemetry configures package telemetry's otel/prometheus wiring.
type Telemetry struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	Enabled      bool    `mapstructure:"enabled"`
}

// Config is the fully unmarshalled configuration for either binary; readerd
// ignores the fields it has no use for (Storage.Neo4jURI, Storage.RedisAddr
// and DependencyFree are writer-only, for instance) rather than carrying a
// second, narrower type.
type Config struct {
	ErrorHandling ErrorHandling `mapstructure:"error_handling"`
	EventCaching  EventCaching  `mapstructure:"event_caching"`
	FlushStrategy FlushStrategy `mapstructure:"flush_strategy"`
	Server        Server        `mapstructure:"server"`
	Storage       Storage       `mapstructure:"storage"`
	Telemetry     Telemetry     `mapstructure:"telemetry"`

	DependencyFree bool `mapstructure:"dependency_free"`
}

// Defaults applies baseline minimums before unmarshalling so a bare config
// file (or none at all) still produces a valid Config.
func Defaults(v *viper.Viper) {
	v.SetDefault("event_caching.cached_event_count", 1000)
	v.SetDefault("flush_strategy.loop_interval_ms", 1000)
	v.SetDefault("flush_strategy.size_limit", 100)
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_delay_seconds", 10)
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("storage.bolt_path", "accessctl.db")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("dependency_free", false)
}

// Load unmarshals v into a Config and validates that EventCaching.CachedEventCount,
// FlushStrategy.LoopInterval, and FlushStrategy.SizeLimit are all positive.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.EventCaching.CachedEventCount < 1 {
		return Config{}, fmt.Errorf("config: event_caching.cached_event_count must be >= 1")
	}
	if cfg.FlushStrategy.LoopInterval < 1 {
		return Config{}, fmt.Errorf("config: flush_strategy.loop_interval_ms must be >= 1")
	}
	if cfg.FlushStrategy.SizeLimit < 1 {
		return Config{}, fmt.Errorf("config: flush_strategy.size_limit must be >= 1")
	}
	return cfg, nil
}

// FlushInterval returns FlushStrategy.LoopInterval as a time.Duration.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushStrategy.LoopInterval) * time.Millisecond
}

// ShutdownDelay returns Server.ShutdownDelay as a time.Duration.
func (c Config) ShutdownDelay() time.Duration {
	return time.Duration(c.Server.ShutdownDelay) * time.Second
}
