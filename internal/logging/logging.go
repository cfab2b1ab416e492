// Package logging builds the process logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// Level is debug, info, warn or error.
	Level string
	// Format is json or console.
	Format string
	// File, when set, receives a JSON copy of every entry with size-based rotation.
	File string
}

// New builds a logger writing to stderr and, optionally, a rotated file. The returned
// closer flushes both.
func New(o Options) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(o.Level)))
	if err != nil || strings.TrimSpace(o.Level) == "" {
		level = zapcore.InfoLevel
	}

	var encCfg zapcore.EncoderConfig
	var enc zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(o.Format)) {
	case "", "json":
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console", "text", "dev":
		encCfg = zap.NewDevelopmentEncoderConfig()
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q (want json or console)", o.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level),
	}

	var rotator *lumberjack.Logger
	if f := strings.TrimSpace(o.File); f != "" {
		if err := os.MkdirAll(filepath.Dir(f), 0750); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		rotator = &lumberjack.Logger{
			Filename:   f,
			MaxSize:    5,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		}
		fileEnc := zap.NewProductionEncoderConfig()
		fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), zapcore.AddSync(rotator), level))
	}

	log := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	closer := func() {
		_ = log.Sync()
		if rotator != nil {
			_ = rotator.Close()
		}
	}
	return log, closer, nil
}

// NewRunID returns a fresh identifier for one scraper run.
func NewRunID() string {
	return uuid.NewString()
}

// WithRun tags every entry with the run identifier.
func WithRun(log *zap.Logger, runID string) *zap.Logger {
	return log.With(zap.String("run", runID))
}
