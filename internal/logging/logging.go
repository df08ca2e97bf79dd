package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the process logger. Debug mode logs human-readable text, otherwise
// JSON lines are written so transfers can be audited by log tooling.
func New(debug bool, out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}

	log := logrus.New()
	log.Out = out

	if debug {
		log.SetLevel(logrus.DebugLevel)
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

// OrDefault returns log, or the logrus standard logger when log is nil.
func OrDefault(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return logrus.StandardLogger()
	}
	return log
}

// Discard returns a logger that drops everything, for tests and quiet callers.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}
