package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/ReplAI-Neo/ReplAI/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the process logger from the logging config.
func NewLogger(cfg *config.LoggingConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out, err := output(cfg)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(formatter(cfg.Format))
	log.SetOutput(out)
	return log, nil
}

func formatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		}
	}
	return &logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	}
}

func output(cfg *config.LoggingConfig) (io.Writer, error) {
	if cfg.Output != "file" {
		return os.Stdout, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0755); err != nil {
		return nil, err
	}
	// Rotated by lumberjack; sizes in megabytes, ages in days.
	return &lumberjack.Logger{
		Filename:   cfg.File.Path,
		MaxSize:    cfg.File.MaxSize,
		MaxBackups: cfg.File.MaxBackups,
		MaxAge:     cfg.File.MaxAge,
		Compress:   true,
	}, nil
}

// WithChat returns an entry carrying the standard per-chat fields.
func WithChat(log *logrus.Logger, chatID, contact string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"chat_id": chatID,
		"contact": contact,
	})
}
