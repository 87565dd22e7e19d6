// ABOUTME: Simulator configuration loaded from file, environment and flags
// ABOUTME: Backed by a viper instance and unmarshalled into typed sections
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all simulator configuration
type Config struct {
	Devices []string `mapstructure:"devices" yaml:"devices"`
	FrameMs int      `mapstructure:"frame_ms" yaml:"frame_ms"`
	FPS     int      `mapstructure:"fps" yaml:"fps"`

	Audio AudioConfig `mapstructure:"audio" yaml:"audio"`
	UI    UIConfig    `mapstructure:"ui" yaml:"ui"`
	Log   LogConfig   `mapstructure:"log" yaml:"log"`
	Net   NetConfig   `mapstructure:"net" yaml:"net"`
}

// AudioConfig selects and tunes the audio backend
type AudioConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"`
	LatencyMs  int    `mapstructure:"latency_ms" yaml:"latency_ms"`
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"` // null backend only
	Channels   int    `mapstructure:"channels" yaml:"channels"`       // null backend only
}

// UIConfig selects the surface
type UIConfig struct {
	Mode          string        `mapstructure:"mode" yaml:"mode"`
	Duration      time.Duration `mapstructure:"duration" yaml:"duration"`
	ClickInterval time.Duration `mapstructure:"click_interval" yaml:"click_interval"` // headless only
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// NetConfig configures two-process mode
type NetConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
	Peer   string `mapstructure:"peer" yaml:"peer"`
	MDNS   bool   `mapstructure:"mdns" yaml:"mdns"`
}

// Surface modes
const (
	ModeTUI      = "tui"
	ModeHeadless = "headless"
)

var validBackends = map[string]bool{
	"malgo": true,
	"oto":   true,
	"null":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
	"none":  true,
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Devices: []string{"a", "b"},
		FrameMs: 10,
		FPS:     60,
		Audio: AudioConfig{
			Backend:    "malgo",
			SampleRate: 48000,
			Channels:   1,
		},
		UI: UIConfig{
			Mode: ModeTUI,
		},
		Log: LogConfig{
			Level: "info",
			File:  "hactar-sim.log",
		},
		Net: NetConfig{
			Listen: ":8928",
			MDNS:   true,
		},
	}
}

// SetDefaults registers every key with its default so environment
// variables and flags can override any of them
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("devices", d.Devices)
	v.SetDefault("frame_ms", d.FrameMs)
	v.SetDefault("fps", d.FPS)
	v.SetDefault("audio.backend", d.Audio.Backend)
	v.SetDefault("audio.latency_ms", d.Audio.LatencyMs)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.channels", d.Audio.Channels)
	v.SetDefault("ui.mode", d.UI.Mode)
	v.SetDefault("ui.duration", d.UI.Duration)
	v.SetDefault("ui.click_interval", d.UI.ClickInterval)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("net.listen", d.Net.Listen)
	v.SetDefault("net.peer", d.Net.Peer)
	v.SetDefault("net.mdns", d.Net.MDNS)
}

// Load reads configuration into v and returns the validated result. When
// path is empty hactar-sim.yaml is looked up in the user config directory
// and the working directory; a missing file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hactar-sim")
		v.SetConfigType("yaml")
		if dir := configDir(); dir != "" {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("HACTAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every value and returns all problems found
func (c *Config) Validate() error {
	var errs []error

	if len(c.Devices) == 0 {
		errs = append(errs, fmt.Errorf("devices must name at least one device"))
	}
	seen := make(map[string]bool)
	for _, name := range c.Devices {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("device names must not be empty"))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("device name %q is used twice", name))
		}
		seen[name] = true
	}

	if c.FrameMs < 1 || c.FrameMs > 1000 {
		errs = append(errs, fmt.Errorf("frame_ms %d must be between 1 and 1000", c.FrameMs))
	}
	if c.FPS < 1 || c.FPS > 1000 {
		errs = append(errs, fmt.Errorf("fps %d must be between 1 and 1000", c.FPS))
	}

	if !validBackends[c.Audio.Backend] {
		errs = append(errs, fmt.Errorf("audio.backend %q must be malgo, oto or null", c.Audio.Backend))
	}
	if c.Audio.LatencyMs < 0 {
		errs = append(errs, fmt.Errorf("audio.latency_ms %d must not be negative", c.Audio.LatencyMs))
	}
	if c.Audio.SampleRate < 1000 || c.Audio.SampleRate > 384000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range", c.Audio.SampleRate))
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 8 {
		errs = append(errs, fmt.Errorf("audio.channels %d must be between 1 and 8", c.Audio.Channels))
	}

	switch c.UI.Mode {
	case ModeTUI:
		if c.Log.File == "" && c.Log.Level != "none" {
			errs = append(errs, fmt.Errorf("log.file is required with the terminal UI"))
		}
	case ModeHeadless:
	default:
		errs = append(errs, fmt.Errorf("ui.mode %q must be tui or headless", c.UI.Mode))
	}
	if c.UI.Duration < 0 {
		errs = append(errs, fmt.Errorf("ui.duration %s must not be negative", c.UI.Duration))
	}
	if c.UI.ClickInterval < 0 {
		errs = append(errs, fmt.Errorf("ui.click_interval %s must not be negative", c.UI.ClickInterval))
	}

	if !validLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Errorf("log.level %q is not a valid level", c.Log.Level))
	}

	if errs != nil {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// RequireDevices checks that exactly n device names are configured
func (c *Config) RequireDevices(n int) error {
	if len(c.Devices) != n {
		return fmt.Errorf("expected %d devices, got %d (%s)", n, len(c.Devices), strings.Join(c.Devices, ", "))
	}
	return nil
}

// configDir returns $XDG_CONFIG_HOME/hactar-sim or its platform equivalent
func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "hactar-sim")
}
