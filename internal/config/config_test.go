package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "connwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9091" {
		t.Fatalf("default listen addr = %q", cfg.ListenAddr)
	}
	if cfg.LBPorts.WS != 8080 || cfg.LBPorts.TCP != 8081 || cfg.LBPorts.HTTP != 8082 {
		t.Fatalf("default lb ports = %+v", cfg.LBPorts)
	}
	if cfg.Tracker.MaxHistory != 200 {
		t.Fatalf("default max history = %d", cfg.Tracker.MaxHistory)
	}
	if cfg.AlertCooldown != 300*time.Second {
		t.Fatalf("default alert cooldown not derived: %v", cfg.AlertCooldown)
	}
}

func TestLoad_ParsesAndClamps(t *testing.T) {
	path := writeFile(t, `
listen_addr: ":8000"
load_balancers:
  peer-1-lb: 172.17.95.211
probe:
  http_interval_ms: 250
  ws_interval_ms: -5
tracker:
  down_threshold: 0
  up_threshold: 3
alert_cooldown_seconds: 60
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8000" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.Probe.HTTPInterval() != 250*time.Millisecond {
		t.Fatalf("http interval = %v", cfg.Probe.HTTPInterval())
	}
	if cfg.Probe.WSInterval() != 500*time.Millisecond {
		t.Fatalf("negative ws interval not clamped: %v", cfg.Probe.WSInterval())
	}
	if cfg.Tracker.DownThreshold != 1 {
		t.Fatalf("zero down threshold not clamped: %d", cfg.Tracker.DownThreshold)
	}
	if cfg.Tracker.UpThreshold != 3 {
		t.Fatalf("up threshold = %d", cfg.Tracker.UpThreshold)
	}
	if cfg.AlertCooldown != time.Minute {
		t.Fatalf("alert cooldown = %v", cfg.AlertCooldown)
	}
}

func TestLoad_EmptyListenAddrIsConfigError(t *testing.T) {
	path := writeFile(t, `listen_addr: ""`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("want error for empty listen_addr")
	}
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("want *ConfigError, got %T: %v", err, err)
	}
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	path := writeFile(t, "listen_addr: [this is not a string")
	if _, err := Load(path); err == nil {
		t.Fatalf("want parse error")
	}
}

func TestLoadPeer_Defaults(t *testing.T) {
	cfg, err := LoadPeer(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadPeer: %v", err)
	}
	if cfg.WSPort != 8080 || cfg.TCPPort != 8081 || cfg.HTTPPort != 8082 {
		t.Fatalf("default peer ports = %+v", cfg)
	}
	if cfg.Probe.WSInterval() != 100*time.Millisecond {
		t.Fatalf("peer ws interval = %v", cfg.Probe.WSInterval())
	}
}
