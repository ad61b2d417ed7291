// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeSession builds a Session over an in-memory net.Pipe so tests can
// exercise registry/dispatcher behavior without a real socket.
func pipeSession(reg *Registry, ip string) (*Session, net.Conn) {
	server, client := net.Pipe()
	bucket := NewBucket(1000, 1000, 100)
	return NewSession(reg.NextID(), server, ip, bucket), client
}

func drainAsync(conn net.Conn) {
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()
}

func joinedSession(reg *Registry, ip, nick string) (*Session, net.Conn, string) {
	s, conn := pipeSession(reg, ip)
	drainAsync(conn)
	go s.runWriter()
	assigned, _ := reg.Join(s, nick)
	s.SetConfirmed()
	return s, conn, assigned
}

func TestRegistryJoinAssignsRequestedNick(t *testing.T) {
	reg := NewRegistry(60*time.Second, 20, testLogger())
	_, _, nick := joinedSession(reg, "1.2.3.4", "Ryu")
	assert.Equal(t, "Ryu", nick)
	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, int64(1), reg.Counters.TotalConnections.Load())
}

func TestRegistryJoinCollisionGetsSuffix(t *testing.T) {
	reg := NewRegistry(60*time.Second, 20, testLogger())
	joinedSession(reg, "1.1.1.1", "Ryu")
	_, _, nick2 := joinedSession(reg, "2.2.2.2", "Ryu")
	assert.Equal(t, "Ryu_1", nick2)
}

func TestRegistryNickKeysAreCaseSensitive(t *testing.T) {
	reg := NewRegistry(60*time.Second, 20, testLogger())
	joinedSession(reg, "1.1.1.1", "Ryu")
	_, _, nick2 := joinedSession(reg, "2.2.2.2", "ryu")
	assert.Equal(t, "ryu", nick2)

	_, ok := reg.ByNick("Ryu")
	assert.True(t, ok)
	_, ok = reg.ByNick("ryu")
	assert.True(t, ok)
}

func TestRegistryRenameFreesOldNick(t *testing.T) {
	reg := NewRegistry(60*time.Second, 20, testLogger())
	s1, _, _ := joinedSession(reg, "1.1.1.1", "Ryu")

	oldNick, newNick, changed := reg.Rename(s1, "Ken")
	require.True(t, changed)
	assert.Equal(t, "Ryu", oldNick)
	assert.Equal(t, "Ken", newNick)

	// A rename vacates the old name with no reservation; anyone can
	// pick it up immediately.
	_, _, nick2 := joinedSession(reg, "2.2.2.2", "Ryu")
	assert.Equal(t, "Ryu", nick2)
}

func TestRegistryRenameToSameNickIsNoop(t *testing.T) {
	reg := NewRegistry(60*time.Second, 20, testLogger())
	s1, _, _ := joinedSession(reg, "1.1.1.1", "Ryu")

	_, newNick, changed := reg.Rename(s1, "Ryu")
	assert.False(t, changed)
	assert.Equal(t, "Ryu", newNick)
	assert.Equal(t, "Ryu", s1.Nick())
}

func TestRegistryLeaveReservesNickForSameIP(t *testing.T) {
	reg := NewRegistry(60*time.Second, 20, testLogger())
	s1, _, _ := joinedSession(reg, "10.0.0.1", "Alice")
	reg.Leave(s1)

	// A different IP cannot claim the freshly vacated nick during the
	// grace period.
	_, _, nick2 := joinedSession(reg, "10.0.0.9", "Alice")
	assert.Equal(t, "Alice_1", nick2)

	// But the original IP can reclaim it.
	_, _, nick3 := joinedSession(reg, "10.0.0.1", "Alice")
	assert.Equal(t, "Alice", nick3)
}

func TestRegistryLeaveSkipsReservationWhenDisabled(t *testing.T) {
	reg := NewRegistry(0, 20, testLogger())
	s1, _, _ := joinedSession(reg, "10.0.0.1", "Alice")
	reg.Leave(s1)

	_, _, nick2 := joinedSession(reg, "10.0.0.9", "Alice")
	assert.Equal(t, "Alice", nick2)
}

func TestRegistryActiveAndReservedNicksStayDisjoint(t *testing.T) {
	reg := NewRegistry(60*time.Second, 20, testLogger())
	s1, _, _ := joinedSession(reg, "10.0.0.1", "Alice")
	reg.Leave(s1)

	// Reclaiming the reservation must clear it.
	joinedSession(reg, "10.0.0.1", "Alice")

	reg.mu.Lock()
	defer reg.mu.Unlock()
	for nick := range reg.byNick {
		_, reservedToo := reg.reserved[nick]
		assert.False(t, reservedToo, "nick %q is both active and reserved", nick)
	}
}

func TestRegistryLeaveRemovesFromRoster(t *testing.T) {
	reg := NewRegistry(60*time.Second, 20, testLogger())
	s, _, _ := joinedSession(reg, "1.1.1.1", "Ryu")

	require.Equal(t, 1, reg.Count())
	reg.Leave(s)
	assert.Equal(t, 0, reg.Count())

	_, ok := reg.ByNick("Ryu")
	assert.False(t, ok)
}

func TestRegistryMatchmakingPairsTwoQueuedPlayers(t *testing.T) {
	reg := NewRegistry(60*time.Second, 20, testLogger())
	s1, _, _ := joinedSession(reg, "1.1.1.1", "Ryu")
	s2, _, _ := joinedSession(reg, "2.2.2.2", "Ken")

	reg.SetStatus(s1, StatusQueue)
	assert.Equal(t, StatusQueue, s1.Status())

	reg.SetStatus(s2, StatusQueue)

	assert.Equal(t, StatusChat, s1.Status())
	assert.Equal(t, StatusChat, s2.Status())
	assert.Equal(t, int64(1), reg.Counters.MatchesMade.Load())
	assert.Equal(t, int64(1), reg.Counters.Challenges.Load())
}

func TestRegistryMatchmakingLeavesThirdPlayerQueued(t *testing.T) {
	reg := NewRegistry(60*time.Second, 20, testLogger())
	s1, _, _ := joinedSession(reg, "1.1.1.1", "Ryu")
	s2, _, _ := joinedSession(reg, "2.2.2.2", "Ken")
	s3, _, _ := joinedSession(reg, "3.3.3.3", "Chun")

	reg.SetStatus(s1, StatusQueue)
	reg.SetStatus(s2, StatusQueue)
	reg.SetStatus(s3, StatusQueue)

	queued := 0
	for _, s := range []*Session{s1, s2, s3} {
		if s.Status() == StatusQueue {
			queued++
		}
	}
	assert.Equal(t, 1, queued)
	assert.Equal(t, int64(1), reg.Counters.MatchesMade.Load())
}

func TestRegistryHistoryStaysBounded(t *testing.T) {
	reg := NewRegistry(60*time.Second, 3, testLogger())
	reg.BroadcastChat([]byte("Ma 1\n"), nil)
	reg.BroadcastChat([]byte("Ma 2\n"), nil)
	reg.BroadcastChat([]byte("Ma 3\n"), nil)
	reg.BroadcastChat([]byte("Ma 4\n"), nil)

	history := reg.History()
	require.Len(t, history, 3)
	assert.Equal(t, "Ma 2\n", string(history[0]))
	assert.Equal(t, "Ma 4\n", string(history[2]))
}

func TestRegistryBroadcastExcludesGivenSession(t *testing.T) {
	reg := NewRegistry(60*time.Second, 20, testLogger())

	s1, c1 := pipeSession(reg, "1.1.1.1")
	go s1.runWriter()
	reg.Join(s1, "Ryu")
	s1.SetConfirmed()

	s2, c2 := pipeSession(reg, "2.2.2.2")
	go s2.runWriter()
	reg.Join(s2, "Ken")
	s2.SetConfirmed()

	// Drain the join broadcast traffic before asserting on the next one.
	drainOneLine(t, c1)
	drainOneLine(t, c2)

	reg.Broadcast([]byte("Mtest\n"), s1)

	buf := make([]byte, 64)
	c2.SetReadDeadline(time.Now().Add(time.Second))
	n, err := c2.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "Mtest\n", string(buf[:n]))
}

func TestRegistrySeedStatsRestoresCountersAndPlayers(t *testing.T) {
	reg := NewRegistry(60*time.Second, 20, testLogger())
	reg.SeedStats(StatsSnapshot{
		TotalConnections: 7,
		MessagesRelayed:  40,
		Players: map[string]PlayerStats{
			"Ryu": {ConnectCount: 3, MessageCount: 12},
		},
	})

	assert.Equal(t, int64(7), reg.Counters.TotalConnections.Load())
	assert.Equal(t, int64(40), reg.Counters.MessagesRelayed.Load())

	stats := reg.PlayerStatsSnapshot()
	require.Contains(t, stats, "Ryu")
	assert.Equal(t, int64(3), stats["Ryu"].ConnectCount)
	assert.Equal(t, "Ryu", stats["Ryu"].Nick)
}

func drainOneLine(t *testing.T, conn net.Conn) {
	t.Helper()
	buf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	conn.Read(buf)
}

func testLogger() *Manager {
	m, err := NewManager("error", "text")
	if err != nil {
		panic(err)
	}
	return m
}
