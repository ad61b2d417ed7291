// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStatsStoreWritesValidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")
	store := NewFileStatsStore(path)

	snap := StatsSnapshot{CurrentSessions: 3, TotalConnections: 10, MatchesMade: 2}
	require.NoError(t, store.Write(snap))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got StatsSnapshot
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, int64(3), got.CurrentSessions)
	assert.Equal(t, int64(10), got.TotalConnections)
	assert.Equal(t, int64(2), got.MatchesMade)
}

func TestFileStatsStoreOverwritesPreviousContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")
	store := NewFileStatsStore(path)

	require.NoError(t, store.Write(StatsSnapshot{CurrentSessions: 1}))
	require.NoError(t, store.Write(StatsSnapshot{CurrentSessions: 2}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got StatsSnapshot
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, int64(2), got.CurrentSessions)
}

func TestFileStatsStoreLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")
	store := NewFileStatsStore(path)

	snap := StatsSnapshot{
		TotalConnections: 12,
		Players: map[string]PlayerStats{
			"Ryu": {Nick: "Ryu", ConnectCount: 4, MessageCount: 9},
		},
	}
	require.NoError(t, store.Write(snap))

	got, found, err := store.Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(12), got.TotalConnections)
	require.Contains(t, got.Players, "Ryu")
	assert.Equal(t, int64(9), got.Players["Ryu"].MessageCount)
}

func TestFileStatsStoreLoadMissingFile(t *testing.T) {
	store := NewFileStatsStore(filepath.Join(t.TempDir(), "missing.json"))
	_, found, err := store.Load()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMySQLStatsStoreWritePersistsEveryPlayerCounter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO mortalnet_stats").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO mortalnet_player_stats").
		WithArgs("Ryu", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(3), int64(9), int64(1), int64(2), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := &MySQLStatsStore{db: db}
	snap := StatsSnapshot{
		Players: map[string]PlayerStats{
			"Ryu": {
				Nick:                   "Ryu",
				FirstSeen:              time.Now(),
				LastSeen:               time.Now(),
				ConnectCount:           3,
				MessageCount:           9,
				ChallengeSentCount:     1,
				ChallengeReceivedCount: 2,
				LinksSharedCount:       4,
			},
		},
	}
	require.NoError(t, store.Write(snap))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStatsStoreLoadRestoresEveryPlayerCounter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM mortalnet_stats ORDER BY").
		WillReturnRows(sqlmock.NewRows([]string{
			"generated_at", "current_sessions", "total_connections", "matches_made",
			"challenges", "messages_relayed", "links_shared", "kicks", "bans",
		}).AddRow(now, 0, 12, 1, 2, 40, 5, 0, 0))
	mock.ExpectQuery("SELECT (.+) FROM mortalnet_player_stats").
		WillReturnRows(sqlmock.NewRows([]string{
			"nick", "first_seen", "last_seen", "connect_count", "message_count",
			"challenge_sent_count", "challenge_received_count", "links_shared_count",
		}).AddRow("Ryu", now, now, 3, 9, 1, 2, 4))

	store := &MySQLStatsStore{db: db}
	got, found, err := store.Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(12), got.TotalConnections)
	require.Contains(t, got.Players, "Ryu")
	assert.Equal(t, int64(4), got.Players["Ryu"].LinksSharedCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotFromRegistryReflectsLiveValues(t *testing.T) {
	reg := NewRegistry(60*time.Second, 20, testLogger())
	reg.Counters.CurrentSessions.Store(5)
	reg.Counters.MessagesRelayed.Store(42)

	snap := snapshotFromRegistry(reg)
	assert.Equal(t, int64(5), snap.CurrentSessions)
	assert.Equal(t, int64(42), snap.MessagesRelayed)
}
