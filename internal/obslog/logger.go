// Package obslog builds the structured logrus.Logger the lifecycle
// controller and transport layer log through. Rotation is handled by
// internal/logrotate rather than an external lumberjack-style dependency,
// matching the fleet codebase's own logger package.
package obslog

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fleetlink/iotmqtt/internal/logrotate"
)

// Config controls the logger's level, format, and optional file output.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text

	FilePath   string // empty means stderr only
	MaxSizeMB  int
	MaxFiles   int
	FilePrefix string
}

// New builds a *logrus.Logger per cfg. A FilePath turns on rotation via
// internal/logrotate, writing to both the rotated file and stderr so early
// startup messages remain visible on the console.
func New(cfg Config) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.FilePath == "" {
		log.SetOutput(os.Stderr)
		return log
	}

	maxSizeMB := cfg.MaxSizeMB
	if maxSizeMB <= 0 {
		maxSizeMB = 20
	}
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 5
	}
	prefix := cfg.FilePrefix
	if prefix == "" {
		prefix = "iotmqtt"
	}

	rotCfg := logrotate.Config{
		LogDir:       filepath.Dir(cfg.FilePath),
		MaxSizeBytes: int64(maxSizeMB) * 1024 * 1024,
		MaxFiles:     maxFiles,
		FilePrefix:   prefix,
	}

	rotator, err := logrotate.New(rotCfg)
	if err != nil {
		log.WithError(err).Warn("obslog: failed to open rotating log file, falling back to stderr")
		log.SetOutput(os.Stderr)
		return log
	}

	log.SetOutput(io.MultiWriter(rotator, os.Stderr))
	return log
}
