// Package config loads crabwatch settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/crabwatch/internal/capture"
	"github.com/ayusman/crabwatch/internal/detector"
	"github.com/ayusman/crabwatch/internal/pipeline"
	"github.com/ayusman/crabwatch/internal/plugin"
)

// Config holds every runtime setting.
type Config struct {
	// Camera is the capture source: a device index or a file path.
	Camera         string          `yaml:"camera"`
	Prefix         string          `yaml:"prefix"`
	ImageDir       string          `yaml:"image_dir"`
	VideoDir       string          `yaml:"video_dir"`
	DBPath         string          `yaml:"db_path"`
	Addr           string          `yaml:"addr"`
	StaticDir      string          `yaml:"static_dir"`
	PluginDir      string          `yaml:"plugin_dir"`
	PluginTimeout  time.Duration   `yaml:"plugin_timeout"`
	DisplaySlots   int             `yaml:"display_slots"`
	DeliveryFormat string          `yaml:"delivery_format"`
	FrozenInterval time.Duration   `yaml:"frozen_interval"`
	RetryInterval  time.Duration   `yaml:"retry_interval"`
	StillExtension string          `yaml:"still_extension"`
	Recording      RecordingConfig `yaml:"recording"`
	Detector       detector.Config `yaml:"detector"`
	Log            LogConfig       `yaml:"log"`
}

// RecordingConfig controls video output.
type RecordingConfig struct {
	Codec     string  `yaml:"codec"`
	FPS       float64 `yaml:"fps"`
	Extension string  `yaml:"extension"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Camera:         "0",
		Prefix:         pipeline.DefaultPrefix,
		ImageDir:       pipeline.DefaultImageDir,
		VideoDir:       pipeline.DefaultVideoDir,
		DBPath:         "crabwatch.db",
		Addr:           "127.0.0.1:8080",
		PluginDir:      "plugins",
		PluginTimeout:  plugin.DefaultTimeout,
		DisplaySlots:   3,
		DeliveryFormat: string(pipeline.DefaultDeliveryFormat),
		FrozenInterval: pipeline.DefaultFrozenInterval,
		RetryInterval:  pipeline.DefaultRetryInterval,
		StillExtension: capture.DefaultImageExtension,
		Recording: RecordingConfig{
			Codec:     capture.DefaultCodec,
			FPS:       capture.DefaultRecordFPS,
			Extension: capture.DefaultVideoExtension,
		},
		Detector: detector.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over Default. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	var errs []error

	if _, err := capture.ParseSourceID(c.Camera); err != nil {
		errs = append(errs, fmt.Errorf("camera: %w", err))
	}
	if c.Prefix == "" {
		errs = append(errs, errors.New("prefix must not be empty"))
	}
	if c.DisplaySlots < 1 {
		errs = append(errs, fmt.Errorf("display_slots %d must be >= 1", c.DisplaySlots))
	}
	switch capture.PixelFormat(c.DeliveryFormat) {
	case capture.FormatRGB, capture.FormatBGR:
	default:
		errs = append(errs, fmt.Errorf("delivery_format %q must be RGB or BGR", c.DeliveryFormat))
	}
	if c.FrozenInterval <= 0 || c.RetryInterval <= 0 {
		errs = append(errs, errors.New("frozen_interval and retry_interval must be positive"))
	}
	if c.PluginTimeout <= 0 {
		errs = append(errs, fmt.Errorf("plugin_timeout %s must be positive", c.PluginTimeout))
	}
	if len(c.Recording.Codec) != 4 {
		errs = append(errs, fmt.Errorf("recording codec %q must be a FourCC", c.Recording.Codec))
	}
	if c.Recording.FPS <= 0 {
		errs = append(errs, fmt.Errorf("recording fps %g must be positive", c.Recording.FPS))
	}
	if err := c.Detector.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("detector: %w", err))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log format %q must be json or text", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Source returns the parsed camera source.
func (c Config) Source() capture.SourceID {
	id, _ := capture.ParseSourceID(c.Camera)
	return id
}
