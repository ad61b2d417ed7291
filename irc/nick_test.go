// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeNickBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Ryu", "Ryu"},
		{"R!y@u#", "Ryu"},
		{"", defaultNickBase},
		{"!!!", defaultNickBase},
		{"ThisNameIsDefinitelyTooLongToFit", "ThisNameIsDefinitely"},
		{"ken_master-99", "ken_master-99"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, sanitizeNickBase(c.in), "input %q", c.in)
	}
}

func TestCandidateNick(t *testing.T) {
	assert.Equal(t, "Ryu", candidateNick("Ryu", 0))
	assert.Equal(t, "Ryu_1", candidateNick("Ryu", 1))

	longBase := "ThisNameIsDefinitely"
	assert.Equal(t, "ThisNameIsDefinit_1", candidateNick(longBase, 1))
}

func TestResolveNickFirstFree(t *testing.T) {
	taken := map[string]bool{}
	nick := resolveNick("Ryu", func(c string) bool { return taken[c] })
	assert.Equal(t, "Ryu", nick)
}

func TestResolveNickCollision(t *testing.T) {
	taken := map[string]bool{"Ryu": true, "Ryu_1": true}
	nick := resolveNick("Ryu", func(c string) bool { return taken[c] })
	assert.Equal(t, "Ryu_2", nick)
}

func TestResolveNickSanitizesFirst(t *testing.T) {
	taken := map[string]bool{}
	nick := resolveNick("!!!", func(c string) bool { return taken[c] })
	assert.Equal(t, defaultNickBase, nick)
}
