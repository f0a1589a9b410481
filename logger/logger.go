package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Options struct {
	Service string
	Env     string
	Level   string
	// Output defaults to stdout.
	Output io.Writer
}

// New builds the process logger. Outside dev it emits JSON.
func New(opts Options) *logrus.Entry {
	l := logrus.New()
	l.SetLevel(parseLevel(opts.Level))
	if opts.Output != nil {
		l.SetOutput(opts.Output)
	} else {
		l.SetOutput(os.Stdout)
	}
	if opts.Env == "dev" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	return l.WithFields(logrus.Fields{
		"service": opts.Service,
		"env":     opts.Env,
	})
}

func parseLevel(lvl string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
