// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeContentStripsControlBytes(t *testing.T) {
	raw := []byte("hello\x07world\x1b[0m")
	got := SanitizeContent(raw)
	assert.NotContains(t, got, "\x07")
	assert.NotContains(t, got, "\x1b")
}

func TestSanitizeContentReplacesInvalidUTF8(t *testing.T) {
	raw := []byte{'h', 'i', 0xff, 0xfe}
	got := SanitizeContent(raw)
	assert.Contains(t, got, "�")
}

func TestSanitizeContentPreservesPlainText(t *testing.T) {
	got := SanitizeContent([]byte("gg, good match"))
	assert.Equal(t, "gg, good match", got)
}

func TestSanitizeContentStripsTabs(t *testing.T) {
	got := SanitizeContent([]byte("a\tb"))
	assert.Equal(t, "ab", got)
}

func TestSanitizeContentStripsColorCodes(t *testing.T) {
	got := SanitizeContent([]byte("\x0304red\x03 plain"))
	assert.Equal(t, "red plain", got)
}

func TestSanitizeContentKeepsDollarSigns(t *testing.T) {
	got := SanitizeContent([]byte("paid $5 for this"))
	assert.Equal(t, "paid $5 for this", got)
}
