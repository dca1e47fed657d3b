package observability

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds a logger for a verbosity between 0 (errors only) and 5.
func NewLogger(verbosity int, format string, out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(LevelForVerbosity(verbosity))
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func LevelForVerbosity(v int) logrus.Level {
	switch {
	case v <= 0:
		return logrus.ErrorLevel
	case v == 1:
		return logrus.WarnLevel
	case v == 2:
		return logrus.InfoLevel
	case v == 3:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}
