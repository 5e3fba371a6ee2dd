// Package config holds the daemon's runtime configuration, loaded in
// layers: DefaultConfig, then an optional JSON or YAML file, then
// environment variable overrides.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageConfig controls where persisted state (instances.json,
// solutions.json, groups/) lives.
type StorageConfig struct {
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// SocketConfig controls the per-instance IPC socket layout.
type SocketConfig struct {
	RunDir              string        `json:"run_dir" yaml:"run_dir"`
	ConnectTimeout      time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	RequestTimeout      time.Duration `json:"request_timeout" yaml:"request_timeout"`
	ShutdownGracePeriod time.Duration `json:"shutdown_grace_period" yaml:"shutdown_grace_period"`
}

// SupervisorConfig controls worker spawn/heartbeat/restart behavior.
type SupervisorConfig struct {
	WorkerBinary           string        `json:"worker_binary" yaml:"worker_binary"`
	StartupTimeout         time.Duration `json:"startup_timeout" yaml:"startup_timeout"`
	HeartbeatInterval      time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	HeartbeatMissThreshold int           `json:"heartbeat_miss_threshold" yaml:"heartbeat_miss_threshold"`
	MaxRestarts            int           `json:"max_restarts" yaml:"max_restarts"`
	RestartDelay           time.Duration `json:"restart_delay" yaml:"restart_delay"`
}

// ModelResolveConfig controls model-file search roots, in addition to
// the fixed FHS/SDK fallbacks the resolver always tries.
type ModelResolveConfig struct {
	DataRoot string `json:"data_root" yaml:"data_root"`
	SDKRoot  string `json:"sdk_root" yaml:"sdk_root"`
}

// WatcherConfig controls the config-file watcher's polling fallback.
type WatcherConfig struct {
	PollInterval    time.Duration `json:"poll_interval" yaml:"poll_interval"`
	StabilityWindow time.Duration `json:"stability_window" yaml:"stability_window"`
}

// RetryConfig controls the rolling-window crash-retry limiter (an
// instance-manager-level policy layered above the supervisor's own
// per-spawn restart bound).
type RetryConfig struct {
	WindowSize int           `json:"window_size" yaml:"window_size"`
	Window     time.Duration `json:"window" yaml:"window"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Exporter    string  `json:"exporter" yaml:"exporter"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	ServiceName string  `json:"service_name" yaml:"service_name"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace"`
	Addr      string `json:"addr" yaml:"addr"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// EventBusConfig controls the optional Redis lifecycle-event fan-out.
type EventBusConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	Channel string `json:"channel" yaml:"channel"`
}

// EventLogConfig controls the optional Postgres audit trail.
type EventLogConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

// ExecutionMode selects between the in-process and subprocess-isolated
// Instance Manager backends.
type ExecutionMode string

const (
	ExecutionModeInProcess  ExecutionMode = "inprocess"
	ExecutionModeSubprocess ExecutionMode = "subprocess"
)

// Config is the central configuration struct embedding all component
// configs in a flat layout.
type Config struct {
	ExecutionMode ExecutionMode      `json:"execution_mode" yaml:"execution_mode"`
	Storage       StorageConfig      `json:"storage" yaml:"storage"`
	Socket        SocketConfig       `json:"socket" yaml:"socket"`
	Supervisor    SupervisorConfig   `json:"supervisor" yaml:"supervisor"`
	ModelResolve  ModelResolveConfig `json:"model_resolve" yaml:"model_resolve"`
	Watcher       WatcherConfig      `json:"watcher" yaml:"watcher"`
	Retry         RetryConfig        `json:"retry" yaml:"retry"`
	Tracing       TracingConfig      `json:"tracing" yaml:"tracing"`
	Metrics       MetricsConfig      `json:"metrics" yaml:"metrics"`
	Logging       LoggingConfig      `json:"logging" yaml:"logging"`
	EventBus      EventBusConfig     `json:"event_bus" yaml:"event_bus"`
	EventLog      EventLogConfig     `json:"event_log" yaml:"event_log"`
}

// DefaultConfig returns a Config with the defaults named in §6.
func DefaultConfig() *Config {
	return &Config{
		ExecutionMode: ExecutionModeInProcess,
		Storage: StorageConfig{
			DataDir: "/opt/edge_ai_api/data",
		},
		Socket: SocketConfig{
			RunDir:              "/opt/edge_ai_api/run",
			ConnectTimeout:      2 * time.Second,
			RequestTimeout:      5 * time.Second,
			ShutdownGracePeriod: 500 * time.Millisecond,
		},
		Supervisor: SupervisorConfig{
			WorkerBinary:           "edge_ai_worker",
			StartupTimeout:         10 * time.Second,
			HeartbeatInterval:      2 * time.Second,
			HeartbeatMissThreshold: 3,
			MaxRestarts:            5,
			RestartDelay:           time.Second,
		},
		Watcher: WatcherConfig{
			PollInterval:    500 * time.Millisecond,
			StabilityWindow: 100 * time.Millisecond,
		},
		Retry: RetryConfig{
			WindowSize: 5,
			Window:     5 * time.Minute,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    "otlp-http",
			Endpoint:    "localhost:4318",
			ServiceName: "edge-ai-control-plane",
			SampleRate:  1.0,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "edge_ai",
			Addr:      ":9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		EventBus: EventBusConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			Channel: "edge-ai:instance-events",
		},
		EventLog: EventLogConfig{
			Enabled: false,
		},
	}
}

// LoadFromFile loads configuration from a JSON file, overlaying it onto
// DefaultConfig.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromYAMLFile loads configuration from a YAML file, overlaying it
// onto DefaultConfig. Offered as an alternate format for operators who
// prefer YAML for the daemon's own config (distinct from the worker's
// inline JSON config string).
func LoadFromYAMLFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies the environment variable overrides from §6.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("EDGE_AI_EXECUTION_MODE"); v != "" {
		switch v {
		case "subprocess", "isolated", "worker":
			cfg.ExecutionMode = ExecutionModeSubprocess
		default:
			cfg.ExecutionMode = ExecutionModeInProcess
		}
	}
	if v := os.Getenv("EDGE_AI_SOCKET_DIR"); v != "" {
		cfg.Socket.RunDir = v
	}
	if v := os.Getenv("CVEDIX_DATA_ROOT"); v != "" {
		cfg.ModelResolve.DataRoot = v
	}
	if v := os.Getenv("CVEDIX_SDK_ROOT"); v != "" {
		cfg.ModelResolve.SDKRoot = v
	}
	if v := os.Getenv("EDGE_AI_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("EDGE_AI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EDGE_AI_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("EDGE_AI_WORKER_BINARY"); v != "" {
		cfg.Supervisor.WorkerBinary = v
	}
	if v := os.Getenv("EDGE_AI_SUPERVISOR_MAX_RESTARTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Supervisor.MaxRestarts = n
		}
	}
	if v := os.Getenv("EDGE_AI_SUPERVISOR_STARTUP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Supervisor.StartupTimeout = d
		}
	}
	if v := os.Getenv("EDGE_AI_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("EDGE_AI_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("EDGE_AI_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("EDGE_AI_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	if v := os.Getenv("EDGE_AI_EVENTBUS_ENABLED"); v != "" {
		cfg.EventBus.Enabled = parseBool(v)
	}
	if v := os.Getenv("EDGE_AI_EVENTBUS_ADDR"); v != "" {
		cfg.EventBus.Addr = v
	}
	if v := os.Getenv("EDGE_AI_EVENTLOG_ENABLED"); v != "" {
		cfg.EventLog.Enabled = parseBool(v)
	}
	if v := os.Getenv("EDGE_AI_EVENTLOG_DSN"); v != "" {
		cfg.EventLog.DSN = v
		cfg.EventLog.Enabled = true
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
