package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a new configured logger instance
func New(level, format string) *logrus.Logger {
	log := logrus.New()

	// Set output
	log.SetOutput(os.Stdout)

	// Set level
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	// Set format
	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return log
}
