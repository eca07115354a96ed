// Package config loads the protocol/station topology a runner instance
// executes: phase plans, channel counts, alarm thresholds, and
// control-loop tunings, from a single YAML document. Grounded on
// firestige-Otus's internal/otus/config (viper + mapstructure tags,
// defaults applied after Unmarshal).
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"fluidctl/internal/alarm"
)

// ChannelConfig names one syringe/peristaltic channel's pump binding and
// plan steps.
type ChannelConfig struct {
	PumpName     string  `mapstructure:"pump"`
	Index        int     `mapstructure:"index"`
	MinRateUlMin float64 `mapstructure:"min_rate_ul_min"`
	PlanCSV      string  `mapstructure:"plan_csv"` // optional: path consumed by internal/csvimport
}

// StationConfig names one station's index, starting phase, and channels.
type StationConfig struct {
	Index        int             `mapstructure:"index"`
	InitialPhase string          `mapstructure:"initial_phase"`
	Channels     []ChannelConfig `mapstructure:"channels"`
}

// PIDConfig carries the tunings for a single PID-driven loop (e.g. the
// pinch-valve lock-in or pH dosing controller).
type PIDConfig struct {
	Kp             float64 `mapstructure:"kp"`
	Ki             float64 `mapstructure:"ki"`
	Kd             float64 `mapstructure:"kd"`
	Setpoint       float64 `mapstructure:"setpoint"`
	PeriodSeconds  float64 `mapstructure:"period_seconds"`
	OutputMin      float64 `mapstructure:"output_min"`
	OutputMax      float64 `mapstructure:"output_max"`
	ControllableBand float64 `mapstructure:"controllable_band"`
}

// PersistConfig selects and configures the reference Host's Recordable
// archive backend.
type PersistConfig struct {
	Backend        string `mapstructure:"backend"` // "", "mock", "redis"
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisMarkerTTL string `mapstructure:"redis_marker_ttl"` // parsed with time.ParseDuration by the caller
}

// Config is the full runner topology: stations, alarm thresholds, and
// control-loop tunings.
type Config struct {
	TickIntervalMs  int             `mapstructure:"tick_interval_ms"`
	AlarmIntervalMs int             `mapstructure:"alarm_interval_ms"`
	Stations        []StationConfig `mapstructure:"stations"`
	Alarms          alarm.Config    `mapstructure:"alarms"`
	PinchValvePID   PIDConfig       `mapstructure:"pinch_valve_pid"`
	PhPID           PIDConfig       `mapstructure:"ph_pid"`
	Persist         PersistConfig   `mapstructure:"persist"`
	MetricsAddr     string          `mapstructure:"metrics_addr"`
}

// applyDefaults fills in the runner-level defaults that spec.md's
// alarm.DefaultConfig doesn't already cover.
func applyDefaults(cfg *Config) {
	if cfg.TickIntervalMs <= 0 {
		cfg.TickIntervalMs = 1000
	}
	if cfg.AlarmIntervalMs <= 0 {
		cfg.AlarmIntervalMs = 1000
	}
	if len(cfg.Alarms.PressureFields) == 0 {
		cfg.Alarms = alarm.DefaultConfig()
	}
	if cfg.Persist.Backend == "" {
		cfg.Persist.Backend = "mock"
	}
}

// Load reads a YAML config file at path and returns the decoded,
// defaulted Config.
func Load(path string) (*Config, error) {
	v := viper.New()

	dir := filepath.Dir(path)
	filename := filepath.Base(path)
	ext := filepath.Ext(filename)
	nameWithoutExt := strings.TrimSuffix(filename, ext)

	v.SetConfigName(nameWithoutExt)
	v.SetConfigType(strings.TrimPrefix(ext, "."))
	v.AddConfigPath(dir)

	v.SetEnvPrefix("FLUIDCTL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func validate(cfg *Config) error {
	seen := make(map[int]bool, len(cfg.Stations))
	for _, st := range cfg.Stations {
		if seen[st.Index] {
			return fmt.Errorf("config: duplicate station index %d", st.Index)
		}
		seen[st.Index] = true
		for _, ch := range st.Channels {
			if ch.PumpName == "" {
				return fmt.Errorf("config: station %d channel %d: pump name required", st.Index, ch.Index)
			}
		}
	}
	return nil
}
