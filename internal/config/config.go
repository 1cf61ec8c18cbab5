// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level  string `yaml:"level"`  // trace|debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

// ProbeConfig drives a single smoke-probe run. APIKey and MaxWait are
// resolved from the environment (RUNPOD_API_KEY, TEST_TIMEOUT) so CI can
// override them without touching the config file.
type ProbeConfig struct {
	BaseURL           string  `yaml:"base_url"` // everything up to /run and /status
	InputPath         string  `yaml:"input_path"`
	OutputPath        string  `yaml:"output_path"`
	Prompt            string  `yaml:"prompt"`
	NumInferenceSteps int     `yaml:"num_inference_steps"`
	TrueCFGScale      float64 `yaml:"true_cfg_scale"`
	MaxWaitSeconds    int     `yaml:"max_wait_seconds"`

	MaxWait time.Duration `yaml:"-"`
	APIKey  string        `yaml:"-"`
}

// StubConfig drives the local stub inference server.
type StubConfig struct {
	Port              int    `yaml:"port"`
	APIKey            string `yaml:"api_key"` // empty: accept any bearer token
	QueueDelaySeconds int    `yaml:"queue_delay_seconds"`
	RunDelaySeconds   int    `yaml:"run_delay_seconds"`
	FinalStatus       string `yaml:"final_status"` // COMPLETED|FAILED|CANCELLED

	QueueDelay time.Duration `yaml:"-"`
	RunDelay   time.Duration `yaml:"-"`
}

type Config struct {
	Probe ProbeConfig `yaml:"probe"`
	Stub  StubConfig  `yaml:"stub"`
	Log   LogConfig   `yaml:"log"`

	Runtime RuntimeConfig `yaml:"-"`
}

const defaultPrompt = "Transform current image into a photorealistic one. " +
	"Upgrade this exterior design image. Maintain architectural massing while " +
	"refining materials, landscaping, and lighting to feel photorealistic. " +
	"Style focus: premium-photography."

// Default returns the built-in configuration, matching the probe's
// historical hardcoded behavior.
func Default(dev bool) *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnv(cfg)
	cfg.Runtime.Dev = dev
	return cfg
}

// LoadConfig reads the YAML file at path. A missing file is not an
// error: the probe must be runnable with defaults alone.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// fall through to defaults
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Probe.BaseURL == "" {
		cfg.Probe.BaseURL = "https://api.runpod.ai/v2/3trbbiy2f7q151"
	}
	if cfg.Probe.InputPath == "" {
		cfg.Probe.InputPath = "./test_input.jpg"
	}
	if cfg.Probe.OutputPath == "" {
		cfg.Probe.OutputPath = "./result.png"
	}
	if cfg.Probe.Prompt == "" {
		cfg.Probe.Prompt = defaultPrompt
	}
	if cfg.Probe.NumInferenceSteps <= 0 {
		cfg.Probe.NumInferenceSteps = 8
	}
	if cfg.Probe.TrueCFGScale <= 0 {
		cfg.Probe.TrueCFGScale = 4.0
	}
	if cfg.Probe.MaxWaitSeconds <= 0 {
		cfg.Probe.MaxWaitSeconds = 600
	}
	cfg.Probe.MaxWait = time.Duration(cfg.Probe.MaxWaitSeconds) * time.Second

	if cfg.Stub.Port <= 0 {
		cfg.Stub.Port = 8090
	}
	if cfg.Stub.FinalStatus == "" {
		cfg.Stub.FinalStatus = "COMPLETED"
	}
	cfg.Stub.QueueDelay = time.Duration(cfg.Stub.QueueDelaySeconds) * time.Second
	cfg.Stub.RunDelay = time.Duration(cfg.Stub.RunDelaySeconds) * time.Second

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

func applyEnv(cfg *Config) {
	cfg.Probe.APIKey = os.Getenv("RUNPOD_API_KEY")
	if v := os.Getenv("TEST_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Probe.MaxWaitSeconds = secs
			cfg.Probe.MaxWait = time.Duration(secs) * time.Second
		}
	}
}
