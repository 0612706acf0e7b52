package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Raudi1/opendbc/platform"
)

// Config describes one vehicle connection.
type Config struct {
	Interfaces InterfaceConfig `json:"interfaces" yaml:"interfaces"`
	MapPath    string          `json:"map_path" yaml:"map_path"`

	VIN              string   `json:"vin" yaml:"vin"`
	ExactFingerprint []string `json:"exact_fingerprint,omitempty" yaml:"exact_fingerprint,omitempty"` // platform names from an exact matcher, if any

	CycleMS  int    `json:"cycle_ms" yaml:"cycle_ms"`
	LogLevel string `json:"log_level" yaml:"log_level"`
	LogFile  string `json:"log_file" yaml:"log_file"`

	MetricsAddr string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"` // empty disables the HTTP endpoint

	Recorder RecorderConfig `json:"recorder" yaml:"recorder"`

	// EchoCarryover retransmits the held lane keeping command on the
	// powertrain bus and the held EPAS status on the camera bus each cycle.
	EchoCarryover bool `json:"echo_carryover" yaml:"echo_carryover"`

	// LongitudinalControl requests the long-control safety flag for the
	// downstream controller.
	LongitudinalControl bool `json:"longitudinal_control" yaml:"longitudinal_control"`
}

// InterfaceConfig maps each logical bus to a SocketCAN interface.
type InterfaceConfig struct {
	Powertrain string `json:"pt" yaml:"pt"`
	ADAS       string `json:"adas" yaml:"adas"`
	Camera     string `json:"cam" yaml:"cam"`
}

type RecorderConfig struct {
	Path     string `json:"path,omitempty" yaml:"path,omitempty"` // empty disables recording
	SampleMS int    `json:"sample_ms" yaml:"sample_ms"`           // 0 means 100, -1 records every cycle
}

const (
	defaultCycleMS  = 10
	defaultSampleMS = 100
	everyCycle      = -1
)

// LoadConfig reads a JSON (or, by extension, YAML) config, fills defaults and
// validates it.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	if cfg.CycleMS == 0 {
		cfg.CycleMS = defaultCycleMS
	}
	if cfg.Recorder.SampleMS == 0 {
		cfg.Recorder.SampleMS = defaultSampleMS
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFile == "" {
		cfg.LogFile = "state_loop.log"
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Interfaces.Powertrain == "" || c.Interfaces.ADAS == "" || c.Interfaces.Camera == "" {
		return fmt.Errorf("interfaces: pt, adas and cam are all required")
	}
	if c.MapPath == "" {
		return fmt.Errorf("map_path is required")
	}
	if c.CycleMS <= 0 {
		return fmt.Errorf("invalid cycle_ms: %d", c.CycleMS)
	}
	if c.Recorder.SampleMS < everyCycle {
		return fmt.Errorf("invalid recorder.sample_ms: %d", c.Recorder.SampleMS)
	}
	if c.VIN == "" && len(c.ExactFingerprint) == 0 {
		return fmt.Errorf("one of vin or exact_fingerprint is required")
	}
	return nil
}

func (c Config) SafetyFlags() platform.SafetyFlags {
	var f platform.SafetyFlags
	if c.LongitudinalControl {
		f |= platform.SafetyLongControl
	}
	return f
}

func (c Config) Cycle() time.Duration {
	return time.Duration(c.CycleMS) * time.Millisecond
}

func (c Config) SampleInterval() time.Duration {
	if c.Recorder.SampleMS == everyCycle {
		return 0
	}
	return time.Duration(c.Recorder.SampleMS) * time.Millisecond
}
