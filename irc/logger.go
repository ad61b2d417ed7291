// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Manager is the server's logging facade: callers pass a subsystem tag
// plus one or more message fragments, and the manager decides
// whether/how the line gets rendered based on the configured level and
// format.
type Manager struct {
	log *logrus.Logger
}

// NewManager builds a Manager from the --log-level/--log-format flags.
func NewManager(level, format string) (*Manager, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	lvl, err := logrus.ParseLevel(normalizeLevel(level))
	if err != nil {
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	log.SetLevel(lvl)

	return &Manager{log: log}, nil
}

func normalizeLevel(level string) string {
	if strings.EqualFold(level, "warn") {
		return "warning"
	}
	return level
}

func (m *Manager) entry(subsystem string) *logrus.Entry {
	return m.log.WithField("subsystem", subsystem)
}

func join(msgs []string) string {
	return strings.Join(msgs, ": ")
}

// Debug logs a low-level diagnostic line for a subsystem.
func (m *Manager) Debug(subsystem string, msgs ...string) {
	m.entry(subsystem).Debug(join(msgs))
}

// Info logs a routine, expected event.
func (m *Manager) Info(subsystem string, msgs ...string) {
	m.entry(subsystem).Info(join(msgs))
}

// Warning logs a recoverable fault (persistence failures, bad admin
// passwords, and the like).
func (m *Manager) Warning(subsystem string, msgs ...string) {
	m.entry(subsystem).Warn(join(msgs))
}

// Error logs a serious fault. It does not exit the process; only the
// startup path does that, and only after logging.
func (m *Manager) Error(subsystem string, msgs ...string) {
	m.entry(subsystem).Error(join(msgs))
}
