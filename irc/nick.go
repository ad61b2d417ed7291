// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import "strconv"

const (
	defaultNickBase = "Player"
	maxCleanLen     = 20
	maxBaseInSuffix = 17
)

// sanitizeNickBase strips every byte outside [A-Za-z0-9_-], truncates
// to 20 bytes, and falls back to "Player" if nothing survives.
// Nicknames are plain ASCII identifiers, so the scan works bytewise.
func sanitizeNickBase(requested string) string {
	out := make([]byte, 0, len(requested))
	for i := 0; i < len(requested) && len(out) < maxCleanLen; i++ {
		c := requested[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return defaultNickBase
	}
	return string(out)
}

// candidateNick builds the suffix-qualified form of base for the given
// attempt number. Attempt 0 returns base unqualified; attempt N>0
// returns "<base[:17]>_<N>".
func candidateNick(base string, attempt int) string {
	if attempt == 0 {
		return base
	}
	trimmed := base
	if len(trimmed) > maxBaseInSuffix {
		trimmed = trimmed[:maxBaseInSuffix]
	}
	return trimmed + "_" + strconv.Itoa(attempt)
}

// resolveNick finds the first available nickname starting from the
// sanitized form of requested, probing taken(candidate) for collisions
// in increasing suffix order until an unused one is found. taken must
// return true for any nickname currently held OR reserved by a
// different IP (the registry is responsible for folding reservation
// into that check).
func resolveNick(requested string, taken func(candidate string) bool) string {
	base := sanitizeNickBase(requested)
	for attempt := 0; ; attempt++ {
		candidate := candidateNick(base, attempt)
		if !taken(candidate) {
			return candidate
		}
	}
}
