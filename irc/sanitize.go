// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"bytes"
	"unicode/utf8"

	"github.com/ergochat/irc-go/ircfmt"
	"golang.org/x/text/unicode/norm"
)

// SanitizeContent prepares raw chat text for broadcast: it replaces
// invalid UTF-8 with the replacement rune, strips mIRC-style formatting
// codes (color sequences carry digit arguments a bare byte strip would
// leave behind), drops every remaining byte below 0x20, and finally
// normalizes to NFC so visually-identical strings render identically
// for all recipients and in history replay.
func SanitizeContent(raw []byte) string {
	valid := bytes.ToValidUTF8(raw, []byte(string(utf8.RuneError)))
	unformatted := ircfmt.Strip(string(valid))
	stripped := stripControlBytes([]byte(unformatted))
	return norm.NFC.String(string(stripped))
}

// stripControlBytes drops every byte below 0x20, the tab included.
func stripControlBytes(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c < 0x20 {
			continue
		}
		out = append(out, c)
	}
	return out
}
