// Package config holds the server settings. Values come from ROM_*
// environment variables and may be overridden by command-line flags.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type AppConfig struct {
	Port int `env:"ROM_PORT" envDefault:"8000"`

	StorageDriver string `env:"ROM_STORAGE_DRIVER" envDefault:"memory"`
	StoragePath   string `env:"ROM_STORAGE_PATH" envDefault:"rom.db"`

	PoseEndpoint        string        `env:"ROM_POSE_ENDPOINT" envDefault:"tcp://localhost:5555"`
	PoseTimeout         time.Duration `env:"ROM_POSE_TIMEOUT" envDefault:"5s"`
	PoseRequired        bool          `env:"ROM_POSE_REQUIRED" envDefault:"false"`
	ConfidenceThreshold float64       `env:"ROM_CONFIDENCE_THRESHOLD" envDefault:"0.3"`
	MinKeypointsRatio   float64       `env:"ROM_MIN_KEYPOINTS_RATIO" envDefault:"0.5"`
	MonitorInterval     time.Duration `env:"ROM_MONITOR_INTERVAL" envDefault:"10s"`

	IngestEndpoint string `env:"ROM_INGEST_ENDPOINT"`
	IngestLogEvery int    `env:"ROM_INGEST_LOG_EVERY" envDefault:"100"`
	Workers        int    `env:"ROM_WORKERS" envDefault:"4"`

	RawLogEnabled bool   `env:"ROM_RAW_LOG" envDefault:"false"`
	RawLogDir     string `env:"ROM_RAW_LOG_DIR" envDefault:"rawlog"`
	OutputDir     string `env:"ROM_OUTPUT_DIR" envDefault:"output"`

	Debug     bool    `env:"ROM_DEBUG" envDefault:"false"`
	DebugRate float64 `env:"ROM_DEBUG_RATE" envDefault:"10"`

	// ReadLimit caps a single websocket message in bytes.
	ReadLimit int64 `env:"ROM_READ_LIMIT" envDefault:"8388608"`
}

// Load reads AppConfig from the environment.
func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c AppConfig) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("port %d out of range", c.Port)
	case c.StorageDriver != "memory" && c.StorageDriver != "sqlite":
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	case c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1:
		return fmt.Errorf("confidence threshold %v not in [0, 1]", c.ConfidenceThreshold)
	case c.MinKeypointsRatio < 0 || c.MinKeypointsRatio > 1:
		return fmt.Errorf("min keypoints ratio %v not in [0, 1]", c.MinKeypointsRatio)
	case c.Workers < 1:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	case c.ReadLimit <= 0:
		return fmt.Errorf("read limit must be positive, got %d", c.ReadLimit)
	}
	return nil
}

// Public is the subset of settings reported by /config.
func (c AppConfig) Public() map[string]any {
	return map[string]any{
		"port":                 c.Port,
		"storage_driver":       c.StorageDriver,
		"pose_endpoint":        c.PoseEndpoint,
		"confidence_threshold": c.ConfidenceThreshold,
		"min_keypoints_ratio":  c.MinKeypointsRatio,
		"ingest_endpoint":      c.IngestEndpoint,
		"debug":                c.Debug,
	}
}
