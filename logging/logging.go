package logging

import (
	"io"
	"os"

	"github.com/Tutortoise/vision-inference/config"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger that writes debug and info entries to stdout and
// warnings and above to stderr, plus every entry to a rotated file when
// cfg.File is set. The returned closer flushes the logger and closes the file.
func New(cfg config.LogConfig) (*zap.Logger, func() error, error) {
	return build(cfg, zapcore.Lock(os.Stdout), zapcore.Lock(os.Stderr))
}

func build(cfg config.LogConfig, stdout, stderr zapcore.WriteSyncer) (*zap.Logger, func() error, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "log level %q", cfg.Level)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lowLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return level.Enabled(l) && l < zapcore.WarnLevel
	})
	highLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return level.Enabled(l) && l >= zapcore.WarnLevel
	})

	newEncoder := func() zapcore.Encoder {
		if cfg.Development {
			return zapcore.NewConsoleEncoder(encoderConfig)
		}
		return zapcore.NewJSONEncoder(encoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(), stdout, lowLevel),
		zapcore.NewCore(newEncoder(), stderr, highLevel),
	}

	var file io.Closer
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		file = rotated
		// file output is always JSON so it can be shipped as-is
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotated), level))
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	logger := zap.New(zapcore.NewTee(cores...), opts...)

	closer := func() error {
		// syncing stdout/stderr fails on some terminals, only the file matters
		_ = logger.Sync()
		if file != nil {
			return file.Close()
		}
		return nil
	}
	return logger, closer, nil
}
