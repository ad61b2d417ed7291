// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"os"
	"sync"
)

// MOTD holds the message of the day, sourced from either an inline
// string or a file, and swappable at runtime by an admin.
type MOTD struct {
	mu   sync.RWMutex
	text string
	path string
}

// NewMOTD builds a MOTD. If path is non-empty it takes precedence over
// inline and is (re)read from disk; otherwise inline is used directly.
func NewMOTD(inline, path string) (*MOTD, error) {
	m := &MOTD{text: inline, path: path}
	if path != "" {
		if err := m.Reload(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Reload re-reads the MOTD file from disk, if one was configured. It is
// a no-op when the server was configured with an inline MOTD only.
func (m *MOTD) Reload() error {
	if m.path == "" {
		return nil
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.text = string(data)
	m.mu.Unlock()
	return nil
}

// Text returns the current message of the day.
func (m *MOTD) Text() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.text
}

// Set overrides the in-memory MOTD text, e.g. from an admin command. It
// does not persist the change back to the configured file.
func (m *MOTD) Set(text string) {
	m.mu.Lock()
	m.text = text
	m.mu.Unlock()
}
