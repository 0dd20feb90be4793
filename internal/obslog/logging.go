// Package obslog provides the structured logging used across the writer and
// reader nodes. It wraps logrus with level-routed output (errors to stderr,
// everything else to stdout) so container log collectors can split streams
// without parsing message content.
package obslog

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// streamSplitter routes already-formatted log lines to stdout or stderr
// based on level, so docker/k8s log drivers can treat them independently.
type streamSplitter struct{}

func (streamSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte("level=fatal")) ||
		bytes.Contains(p, []byte(`"level":"error"`)) || bytes.Contains(p, []byte(`"level":"fatal"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Format controls the wire shape of emitted log lines.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config configures a node-level logger.
type Config struct {
	Level     logrus.Level
	Format    Format
	Service   string // "accessd" or "readerd"
	AddCaller bool
}

// New builds a *logrus.Logger pre-wired with the split writer, level,
// caller reporting and formatter from cfg. cfg.Service is not attached to
// the logger; a "service" field is added by the caller via WithField.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(cfg.Level)
	logger.SetReportCaller(cfg.AddCaller)
	logger.SetOutput(streamSplitter{})

	if cfg.Format == FormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}

// Component returns a logrus.Entry scoped to a single component name, the
// shape every subsystem (validate, eventbuf, flush, reader, tripswitch, ...)
// uses to tag its log lines.
func Component(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}
