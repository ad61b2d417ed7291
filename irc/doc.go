// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

// Package irc implements the MortalNet chat and matchmaking server: a
// line-framed TCP protocol, an in-memory player registry, and the HTTP
// observation surface that exposes its live state.
package irc
