package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTmpConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "runner.yaml")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write tmp config: %v", err)
	}
	return p
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
tick_interval_ms: 250
alarm_interval_ms: 1000
stations:
  - index: 1
    initial_phase: "prime"
    channels:
      - pump: "P1"
        index: 0
        min_rate_ul_min: 1
pinch_valve_pid:
  kp: 0.001
  ki: 0.0001
  kd: 0
  setpoint: 5
persist:
  backend: "redis"
  redis_addr: "localhost:6379"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TickIntervalMs != 250 {
		t.Errorf("TickIntervalMs = %d, want 250", cfg.TickIntervalMs)
	}
	if len(cfg.Stations) != 1 || cfg.Stations[0].Channels[0].PumpName != "P1" {
		t.Fatalf("unexpected stations: %+v", cfg.Stations)
	}
	if cfg.PinchValvePID.Kp != 0.001 {
		t.Errorf("PinchValvePID.Kp = %v, want 0.001", cfg.PinchValvePID.Kp)
	}
	if cfg.Persist.Backend != "redis" || cfg.Persist.RedisAddr != "localhost:6379" {
		t.Errorf("unexpected persist config: %+v", cfg.Persist)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
stations:
  - index: 1
    initial_phase: "prime"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TickIntervalMs != 1000 {
		t.Errorf("TickIntervalMs = %d, want default 1000", cfg.TickIntervalMs)
	}
	if cfg.Persist.Backend != "mock" {
		t.Errorf("Persist.Backend = %q, want default mock", cfg.Persist.Backend)
	}
	if len(cfg.Alarms.PressureFields) == 0 {
		t.Error("expected default alarm config to be applied")
	}
}

func TestLoadRejectsDuplicateStationIndex(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
stations:
  - index: 1
    initial_phase: "prime"
  - index: 1
    initial_phase: "hold"
`))
	if err == nil {
		t.Fatal("expected error for duplicate station index")
	}
}

func TestLoadRejectsChannelWithoutPump(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
stations:
  - index: 1
    initial_phase: "prime"
    channels:
      - index: 0
`))
	if err == nil {
		t.Fatal("expected error for channel missing pump name")
	}
}
