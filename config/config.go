package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"
)

// EnvPrefix marks environment overrides, e.g. VISION_POSE_MODELPATH.
const EnvPrefix = "VISION_"

// ServerConfig defines HTTP server configurations
type ServerConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"readtimeout"`
	WriteTimeout time.Duration `koanf:"writetimeout"`
	PoolSize     int           `koanf:"poolsize"`
	// Readback routes request frames through a GPU texture instead of CPU pixels.
	Readback bool `koanf:"readback"`
}

// RuntimeConfig related to the ONNX Runtime shared library
type RuntimeConfig struct {
	LibraryPath    string `koanf:"librarypath"`
	IntraOpThreads int    `koanf:"intraopthreads"`
	InterOpThreads int    `koanf:"interopthreads"`
}

// PoseConfig related to the MoveNet detector
type PoseConfig struct {
	ModelPath           string  `koanf:"modelpath"`
	ConfidenceThreshold float32 `koanf:"confidencethreshold"`
	DrawSkeleton        bool    `koanf:"drawskeleton"`
}

// FaceConfig related to the BlazeFace detector
type FaceConfig struct {
	ModelPath           string  `koanf:"modelpath"`
	ConfidenceThreshold float32 `koanf:"confidencethreshold"`
	MaxFaces            int     `koanf:"maxfaces"`
}

// LogConfig related to logging
type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
	File        string `koanf:"file"`
	MaxSizeMB   int    `koanf:"maxsizemb"`
	MaxBackups  int    `koanf:"maxbackups"`
	MaxAgeDays  int    `koanf:"maxagedays"`
}

// AppConfig defines
type AppConfig struct {
	Server  ServerConfig  `koanf:"server"`
	Runtime RuntimeConfig `koanf:"runtime"`
	Pose    PoseConfig    `koanf:"pose"`
	Face    FaceConfig    `koanf:"face"`
	Log     LogConfig     `koanf:"log"`
}

var defaults = map[string]any{
	"server.addr":              "127.0.0.1:8080",
	"server.readtimeout":       "60s",
	"server.writetimeout":      "60s",
	"server.poolsize":          4,
	"server.readback":          false,
	"runtime.intraopthreads":   0,
	"runtime.interopthreads":   0,
	"pose.confidencethreshold": 0.3,
	"pose.drawskeleton":        true,
	"face.confidencethreshold": 0.5,
	"face.maxfaces":            10,
	"log.level":                "info",
	"log.maxsizemb":            100,
	"log.maxbackups":           3,
	"log.maxagedays":           28,
}

// Load builds the configuration from defaults, the optional YAML file at
// filePath and VISION_ environment variables, in increasing precedence.
func Load(filePath string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	if filePath != "" {
		if _, err := os.Stat(filePath); err != nil {
			return nil, errors.Wrapf(err, "config file %s", filePath)
		}
		if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", filePath)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(s string, v string) (string, any) {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
		return key, v
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfig rejects settings the detectors would otherwise silently clamp.
func ValidateConfig(cfg *AppConfig) error {
	if cfg.Server.PoolSize < 1 {
		return errors.Errorf("server.poolsize must be at least 1, got %d", cfg.Server.PoolSize)
	}
	for name, t := range map[string]float32{
		"pose.confidencethreshold": cfg.Pose.ConfidenceThreshold,
		"face.confidencethreshold": cfg.Face.ConfidenceThreshold,
	} {
		if t < 0 || t > 1 {
			return errors.Errorf("%s must be within [0,1], got %v", name, t)
		}
	}
	if cfg.Face.MaxFaces < 1 {
		return errors.Errorf("face.maxfaces must be at least 1, got %d", cfg.Face.MaxFaces)
	}
	if cfg.Runtime.IntraOpThreads < 0 || cfg.Runtime.InterOpThreads < 0 {
		return errors.New("runtime thread counts must not be negative")
	}
	return nil
}
