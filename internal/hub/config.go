// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/elanbridge/pkg/elan"
)

type Config struct {
	Listen  string       `yaml:"listen"`
	Bridge  BridgeConfig `yaml:"bridge"`
	LogFile string       `yaml:"log_file"`
	Auth    AuthConfig   `yaml:"auth"`
	Status  StatusConfig `yaml:"status"`
	Slider  SliderConfig `yaml:"slider"`
}

// ---- BRIDGE LINK ----

type BridgeConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// ---- AUTH ----

// AuthConfig enables HTTP basic auth when Username is set.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ---- STATUS ----

type StatusConfig struct {
	UpdateIntervalMs int `yaml:"update_interval_ms"` // forced client update
	OffTimeoutMs     int `yaml:"off_timeout_ms"`     // no status for this long = system off
}

// ---- SLIDER ----

type SliderConfig struct {
	Cap          int  `yaml:"cap"`            // highest volume a slider may request
	PowerOn      bool `yaml:"power_on"`       // power a zone on before sliding it
	PowerDelayMs int  `yaml:"power_delay_ms"` // wait after power on
	PowerInput   int  `yaml:"power_input"`    // input source that means "on"
}

// Defaults returns the configuration used when no file is given.
func Defaults() *Config {
	return &Config{
		Listen: ":1338",
		Bridge: BridgeConfig{Baud: elan.HostBaudRate},
		Status: StatusConfig{
			UpdateIntervalMs: 10000,
			OffTimeoutMs:     2000,
		},
		Slider: SliderConfig{
			Cap:          33,
			PowerOn:      true,
			PowerDelayMs: 250,
			PowerInput:   1,
		},
	}
}

// Load reads a yaml file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if cfg.Bridge.Baud <= 0 {
		return fmt.Errorf("bridge baud must be positive, got %d", cfg.Bridge.Baud)
	}
	if cfg.Auth.Username != "" && cfg.Auth.Password == "" {
		return fmt.Errorf("auth: username %q has no password", cfg.Auth.Username)
	}
	if cfg.Status.UpdateIntervalMs <= 0 {
		return fmt.Errorf("status.update_interval_ms must be positive")
	}
	if cfg.Status.OffTimeoutMs <= 0 {
		return fmt.Errorf("status.off_timeout_ms must be positive")
	}
	if cfg.Slider.Cap < 0 || cfg.Slider.Cap > elan.VolumeBaseline {
		return fmt.Errorf("slider.cap %d out of range 0-%d", cfg.Slider.Cap, elan.VolumeBaseline)
	}
	if cfg.Slider.PowerDelayMs < 0 {
		return fmt.Errorf("slider.power_delay_ms must not be negative")
	}
	if cfg.Slider.PowerInput < 0 || cfg.Slider.PowerInput > 7 {
		return fmt.Errorf("slider.power_input %d out of range 0-7", cfg.Slider.PowerInput)
	}
	return nil
}

func (c StatusConfig) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalMs) * time.Millisecond
}

func (c StatusConfig) OffTimeout() time.Duration {
	return time.Duration(c.OffTimeoutMs) * time.Millisecond
}

func (c SliderConfig) PowerDelay() time.Duration {
	return time.Duration(c.PowerDelayMs) * time.Millisecond
}
