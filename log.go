package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

// newLogger returns the process logger. Production logs are json for the log
// collector, development logs are text.
func newLogger(cfg Config) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.InfoLevel)
	if cfg.IsProd() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	// errs.LogError goes through the standard logger.
	logrus.SetFormatter(logger.Formatter)
	return logger.WithFields(logrus.Fields{
		"service": "microblog",
		"env":     cfg.Env,
	})
}
