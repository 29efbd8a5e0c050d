// Package config holds the host-side simulation harness configuration:
// which battery-type jumper state to boot with, which TCP/WebSocket
// ports to expose, synthetic panel/battery simulation parameters, and the
// site coordinates used by the daylight diagnostic. The firmware core
// itself persists nothing (spec.md §6) and never reads this struct
// directly; it governs only the process wrapped around the core.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Config is the harness configuration, loaded from a JSON file and
// overlaid on DefaultConfig.
type Config struct {
	// Identity
	BoardID      int    `json:"board_id"`
	FirmwareMajor int   `json:"firmware_major"`
	FirmwareMinor int   `json:"firmware_minor"`
	BatteryType  string `json:"battery_type"` // "lead_acid" or "lifepo4"
	EnableAtNight bool  `json:"enable_at_night"` // pctrl input

	// Tick cadence
	FastTickInterval time.Duration `json:"fast_tick_interval"` // 10ms nominal
	SlowTickInterval time.Duration `json:"slow_tick_interval"` // 250ms nominal
	SamplerInterval  time.Duration `json:"sampler_interval"`   // ~250us nominal (4kHz)

	// Network surface
	BusPort     int `json:"bus_port"`     // TCP register-bus slave port
	HealthPort  int `json:"health_port"`  // health/ready HTTP port (0 = disabled)
	WebPort     int `json:"web_port"`     // websocket telemetry port (0 = disabled)

	// Site coordinates for the daylight diagnostic
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Synthetic panel/battery simulation parameters, consumed by the
	// harness's sampler.Backend implementation only.
	SimPanelOpenCircuitMv  int `json:"sim_panel_open_circuit_mv"`
	SimPanelMpptMv         int `json:"sim_panel_mpp_mv"`
	SimPanelShortCircuitMa int `json:"sim_panel_short_circuit_ma"`
	SimBatteryMv           int `json:"sim_battery_mv"`

	// SimTimeAcceleration scales wall-clock time for the daylight
	// diagnostic's irradiance driver only; 1 leaves it real-time, higher
	// values compress a full day/night cycle for demonstration.
	SimTimeAcceleration float64 `json:"sim_time_acceleration"`

	LogLevel  string `json:"log_level"`  // debug, info, warn, error
	LogFormat string `json:"log_format"` // text, json
}

// DefaultConfig returns the harness defaults: lead-acid battery, 250ms
// slow tick, cold-start simulation values for a healthy sunny day.
func DefaultConfig() *Config {
	return &Config{
		BoardID:       1,
		FirmwareMajor: 1,
		FirmwareMinor: 0,
		BatteryType:   "lead_acid",
		EnableAtNight: false,

		FastTickInterval: 10 * time.Millisecond,
		SlowTickInterval: 250 * time.Millisecond,
		SamplerInterval:  250 * time.Microsecond,

		BusPort:    5020,
		HealthPort: 8080,
		WebPort:    8081,

		Latitude:  56.9496, // Riga, Latvia
		Longitude: 24.1052,

		SimPanelOpenCircuitMv:  21000,
		SimPanelMpptMv:         18000,
		SimPanelShortCircuitMa: 2500,
		SimBatteryMv:           12700,
		SimTimeAcceleration:    1,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadConfig reads and validates a JSON configuration file, falling back
// to DefaultConfig's values for any field absent from the file.
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration to a JSON file.
func (c *Config) SaveConfig(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(c)
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.BatteryType != "lead_acid" && c.BatteryType != "lifepo4" {
		return fmt.Errorf("battery_type must be lead_acid or lifepo4, got: %s", c.BatteryType)
	}

	if c.FastTickInterval <= 0 {
		return fmt.Errorf("fast_tick_interval must be greater than 0, got: %s", c.FastTickInterval)
	}
	if c.SlowTickInterval <= 0 {
		return fmt.Errorf("slow_tick_interval must be greater than 0, got: %s", c.SlowTickInterval)
	}
	if c.SlowTickInterval < c.FastTickInterval {
		return fmt.Errorf("slow_tick_interval (%s) must be >= fast_tick_interval (%s)", c.SlowTickInterval, c.FastTickInterval)
	}
	if c.SamplerInterval <= 0 {
		return fmt.Errorf("sampler_interval must be greater than 0, got: %s", c.SamplerInterval)
	}

	if c.BusPort < 0 || c.BusPort > 65535 {
		return fmt.Errorf("bus_port must be between 0 and 65535, got: %d", c.BusPort)
	}
	if c.HealthPort < 0 || c.HealthPort > 65535 {
		return fmt.Errorf("health_port must be between 0 and 65535, got: %d", c.HealthPort)
	}
	if c.WebPort < 0 || c.WebPort > 65535 {
		return fmt.Errorf("web_port must be between 0 and 65535, got: %d", c.WebPort)
	}

	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", c.Longitude)
	}

	if c.SimPanelOpenCircuitMv <= 0 || c.SimPanelMpptMv <= 0 || c.SimBatteryMv <= 0 || c.SimPanelShortCircuitMa <= 0 {
		return fmt.Errorf("sim_panel_open_circuit_mv, sim_panel_mpp_mv, sim_panel_short_circuit_ma, and sim_battery_mv must be positive")
	}
	if c.SimPanelMpptMv >= c.SimPanelOpenCircuitMv {
		return fmt.Errorf("sim_panel_mpp_mv (%d) must be less than sim_panel_open_circuit_mv (%d)", c.SimPanelMpptMv, c.SimPanelOpenCircuitMv)
	}
	if c.SimTimeAcceleration <= 0 {
		return fmt.Errorf("sim_time_acceleration must be greater than 0, got: %f", c.SimTimeAcceleration)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s, must be one of: debug, info, warn, error", c.LogLevel)
	}
	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("invalid log_format: %s, must be one of: text, json", c.LogFormat)
	}

	return nil
}
