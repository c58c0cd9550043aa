// Package config loads handsign configuration from defaults, an optional YAML
// file and HANDSIGN_* environment variables, in increasing priority.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides:
// HANDSIGN_SERVER_ADDR maps to server.addr.
const EnvPrefix = "HANDSIGN_"

// ConfigPathEnvVar names a config file explicitly.
const ConfigPathEnvVar = "HANDSIGN_CONFIG"

// Config is the complete application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Store      StoreConfig      `koanf:"store"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Logging    LoggingConfig    `koanf:"logging"`
	Speech     SpeechConfig     `koanf:"speech"`
	Detector   DetectorConfig   `koanf:"detector"`
	Camera     CameraConfig     `koanf:"camera"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr              string        `koanf:"addr" validate:"required"`
	StaticDir         string        `koanf:"static_dir"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gte=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// StoreConfig configures the sqlite dataset store.
type StoreConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// ClassifierConfig configures the nearest-neighbor classifier.
type ClassifierConfig struct {
	// DefaultK is used for owners that never set their own neighbor count.
	DefaultK int `koanf:"default_k" validate:"min=1,max=100"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// SpeechConfig configures the text-to-speech command. An empty Command
// disables speech.
type SpeechConfig struct {
	Command string        `koanf:"command"`
	Args    []string      `koanf:"args"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// DetectorConfig locates the MediaPipe landmark service.
type DetectorConfig struct {
	Python string `koanf:"python"`
	Script string `koanf:"script"`
}

// CameraConfig configures live recognition from a capture device.
type CameraConfig struct {
	DeviceID        int           `koanf:"device_id" validate:"gte=0"`
	Width           int           `koanf:"width" validate:"gt=0"`
	Height          int           `koanf:"height" validate:"gt=0"`
	MotionThreshold float64       `koanf:"motion_threshold" validate:"gt=0,lte=100"`
	IdleFPS         int           `koanf:"idle_fps" validate:"gt=0"`
	ActiveFPS       int           `koanf:"active_fps" validate:"gtefield=IdleFPS"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	StableFrames    int           `koanf:"stable_frames" validate:"gt=0"`
	MinConfidence   float64       `koanf:"min_confidence" validate:"gte=0,lte=100"`
}

// DataDir returns ~/.handsign, or ".handsign" when the home directory is unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".handsign"
	}
	return filepath.Join(home, ".handsign")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 600,
			RateLimitWindow:   time.Minute,
		},
		Store: StoreConfig{
			Path: filepath.Join(DataDir(), "handsign.db"),
		},
		Classifier: ClassifierConfig{
			DefaultK: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Speech: SpeechConfig{
			Timeout: 5 * time.Second,
		},
		Detector: DetectorConfig{
			Python: "python3",
		},
		Camera: CameraConfig{
			Width:           640,
			Height:          480,
			MotionThreshold: 1.0,
			IdleFPS:         5,
			ActiveFPS:       15,
			IdleTimeout:     2 * time.Second,
			StableFrames:    3,
			MinConfidence:   60,
		},
	}
}

// Load builds the configuration. A non-empty path must exist; otherwise the
// first file from candidatePaths is used, if any.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitListFields(k, "server.cors_origins", "speech.args"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func candidatePaths() []string {
	paths := []string{}
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		paths = append(paths, p)
	}
	return append(paths, "handsign.yaml", "handsign.yml", filepath.Join(DataDir(), "config.yaml"))
}

func findConfigFile() string {
	for _, p := range candidatePaths() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// envKey maps HANDSIGN_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + field
}

// splitListFields turns comma-separated strings (as they arrive from the
// environment) into string slices.
func splitListFields(k *koanf.Koanf, keys ...string) error {
	for _, key := range keys {
		raw, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		if err := k.Set(key, items); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}
