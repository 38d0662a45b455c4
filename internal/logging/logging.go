// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"wishbucket/internal/config"
)

// Setup applies level, format and outputs from cfg. The returned closer
// flushes the rotating file, if any.
func Setup(cfg *config.Config) io.Closer {
	level, err := log.ParseLevel(strings.TrimSpace(cfg.LogLevel))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(cfg.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if cfg.LogFile == "" {
		log.SetOutput(os.Stdout)
		return nopCloser{}
	}

	rotating := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotating))
	return rotating
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
