package robot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gwillem/cyberdog/pkg/action"
	"github.com/gwillem/cyberdog/pkg/hw"
)

const DefaultConfigFile = "cyberdog.json"

// Config holds the robot configuration
type Config struct {
	Backend     hw.Config   `json:"backend"`
	Calibration Calibration `json:"calibration"`

	// SpeedLimit caps every leg's angular speed in degrees per second.
	// Zero leaves the limiter off.
	SpeedLimit int `json:"speed_limit"`

	QueueSize     int  `json:"queue_size"`
	IdleTimeoutMs int  `json:"idle_timeout_ms"`
	SettleMs      int  `json:"settle_ms"`
	HomeOnIdle    bool `json:"home_on_idle"`
	ReleaseOnIdle bool `json:"release_on_idle"`
	Interpolate   bool `json:"interpolate"`

	RemoteAddr  string `json:"remote_addr,omitempty"`
	JournalPath string `json:"journal_path,omitempty"`
}

// DefaultConfig returns a simulated dog with reference timing.
func DefaultConfig() *Config {
	return &Config{
		Backend:       hw.Config{Kind: hw.KindSim},
		Calibration:   DefaultCalibration(),
		QueueSize:     action.DefaultQueueSize,
		IdleTimeoutMs: int(action.DefaultIdleTimeout / time.Millisecond),
		SettleMs:      int(action.DefaultSettle / time.Millisecond),
	}
}

// IdleTimeout returns how long the executor waits for work before exiting.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMs) * time.Millisecond
}

// Settle returns the pause between actions.
func (c *Config) Settle() time.Duration {
	return time.Duration(c.SettleMs) * time.Millisecond
}

// Validate checks the configuration for values the dog cannot run with.
func (c *Config) Validate() error {
	if c.SpeedLimit < 0 {
		return fmt.Errorf("speed_limit %d is negative", c.SpeedLimit)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size %d is negative", c.QueueSize)
	}
	return c.Calibration.Validate()
}

// LoadConfigFrom loads configuration from a specific file. Fields missing
// from the file keep their defaults.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.Calibration = nil
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Calibration == nil {
		cfg.Calibration = DefaultCalibration()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the config file at path exists
func ConfigExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
