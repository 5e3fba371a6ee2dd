package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_ExecutionModeInProcess(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ExecutionMode != ExecutionModeInProcess {
		t.Fatalf("ExecutionMode = %q, want inprocess", cfg.ExecutionMode)
	}
}

func TestLoadFromFile_OverlaysOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"execution_mode":"subprocess","supervisor":{"max_restarts":9}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.ExecutionMode != ExecutionModeSubprocess {
		t.Errorf("ExecutionMode = %q, want subprocess", cfg.ExecutionMode)
	}
	if cfg.Supervisor.MaxRestarts != 9 {
		t.Errorf("MaxRestarts = %d, want 9", cfg.Supervisor.MaxRestarts)
	}
	// Fields the file didn't mention keep their default value.
	if cfg.Socket.RunDir != "/opt/edge_ai_api/run" {
		t.Errorf("RunDir = %q, want default preserved", cfg.Socket.RunDir)
	}
}

func TestLoadFromYAMLFile_OverlaysOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "execution_mode: subprocess\nstorage:\n  data_dir: /var/edge-ai\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromYAMLFile(path)
	if err != nil {
		t.Fatalf("LoadFromYAMLFile: %v", err)
	}
	if cfg.ExecutionMode != ExecutionModeSubprocess {
		t.Errorf("ExecutionMode = %q, want subprocess", cfg.ExecutionMode)
	}
	if cfg.Storage.DataDir != "/var/edge-ai" {
		t.Errorf("DataDir = %q, want /var/edge-ai", cfg.Storage.DataDir)
	}
}

func TestLoadFromEnv_ExecutionModeVariants(t *testing.T) {
	for _, v := range []string{"subprocess", "isolated", "worker"} {
		t.Setenv("EDGE_AI_EXECUTION_MODE", v)
		cfg := DefaultConfig()
		LoadFromEnv(cfg)
		if cfg.ExecutionMode != ExecutionModeSubprocess {
			t.Errorf("env %q => ExecutionMode = %q, want subprocess", v, cfg.ExecutionMode)
		}
	}

	t.Setenv("EDGE_AI_EXECUTION_MODE", "anything-else")
	cfg := DefaultConfig()
	LoadFromEnv(cfg)
	if cfg.ExecutionMode != ExecutionModeInProcess {
		t.Errorf("unknown mode => ExecutionMode = %q, want inprocess", cfg.ExecutionMode)
	}
}

func TestLoadFromEnv_OverridesSocketDirAndDurations(t *testing.T) {
	t.Setenv("EDGE_AI_SOCKET_DIR", "/tmp/sockets")
	t.Setenv("EDGE_AI_SUPERVISOR_STARTUP_TIMEOUT", "45s")
	t.Setenv("EDGE_AI_SUPERVISOR_MAX_RESTARTS", "7")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Socket.RunDir != "/tmp/sockets" {
		t.Errorf("RunDir = %q, want /tmp/sockets", cfg.Socket.RunDir)
	}
	if cfg.Supervisor.StartupTimeout != 45*time.Second {
		t.Errorf("StartupTimeout = %v, want 45s", cfg.Supervisor.StartupTimeout)
	}
	if cfg.Supervisor.MaxRestarts != 7 {
		t.Errorf("MaxRestarts = %d, want 7", cfg.Supervisor.MaxRestarts)
	}
}

func TestLoadFromEnv_BoolParsing(t *testing.T) {
	t.Setenv("EDGE_AI_METRICS_ENABLED", "false")
	t.Setenv("EDGE_AI_TRACING_ENABLED", "1")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false")
	}
	if !cfg.Tracing.Enabled {
		t.Error("Tracing.Enabled = false, want true")
	}
}

func TestLoadFromEnv_EventLogDSNImpliesEnabled(t *testing.T) {
	t.Setenv("EDGE_AI_EVENTLOG_DSN", "postgres://localhost/edge")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if !cfg.EventLog.Enabled {
		t.Error("expected EventLog.Enabled to be forced true when DSN is set")
	}
	if cfg.EventLog.DSN != "postgres://localhost/edge" {
		t.Errorf("DSN = %q, want postgres://localhost/edge", cfg.EventLog.DSN)
	}
}
