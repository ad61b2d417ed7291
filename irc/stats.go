// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// StatsSnapshot is the durable record written by the stats persister on
// every departure, first registration, and each 20th relayed message.
// It is plain JSON (global counters plus a nickname-keyed players map)
// that operators and simple external dashboards can read; the stores'
// Load methods also decode it back at boot for Registry.SeedStats.
type StatsSnapshot struct {
	ServerStart      time.Time              `json:"server_start"`
	GeneratedAt      time.Time              `json:"generated_at"`
	CurrentSessions  int64                  `json:"current_sessions"`
	TotalConnections int64                  `json:"total_connections"`
	MatchesMade      int64                  `json:"matches_made"`
	Challenges       int64                  `json:"challenges"`
	MessagesRelayed  int64                  `json:"messages_relayed"`
	LinksShared      int64                  `json:"links_shared"`
	Kicks            int64                  `json:"kicks"`
	Bans             int64                  `json:"bans"`
	Players          map[string]PlayerStats `json:"players"`
}

func snapshotFromRegistry(reg *Registry) StatsSnapshot {
	c := &reg.Counters
	return StatsSnapshot{
		ServerStart:      reg.StartedAt(),
		GeneratedAt:      time.Now(),
		CurrentSessions:  c.CurrentSessions.Load(),
		TotalConnections: c.TotalConnections.Load(),
		MatchesMade:      c.MatchesMade.Load(),
		Challenges:       c.Challenges.Load(),
		MessagesRelayed:  c.MessagesRelayed.Load(),
		LinksShared:      c.LinksShared.Load(),
		Kicks:            c.Kicks.Load(),
		Bans:             c.Bans.Load(),
		Players:          reg.PlayerStatsSnapshot(),
	}
}

// StatsStore persists snapshots of the registry's counters and
// per-player records. Two implementations exist: FileStatsStore (the
// default, used when a stats file is configured) and MySQLStatsStore (an optional
// alternate backend for operators who already centralize metrics in
// MySQL).
type StatsStore interface {
	Load() (StatsSnapshot, bool, error)
	Write(StatsSnapshot) error
	Close() error
}

// FileStatsStore writes JSON to a file using the write-temp-then-rename
// pattern, so a crash mid-write never leaves a truncated stats file
// behind for a dashboard or monitoring script to read.
type FileStatsStore struct {
	path string
}

// NewFileStatsStore builds a store writing to path.
func NewFileStatsStore(path string) *FileStatsStore {
	return &FileStatsStore{path: path}
}

// Load reads the stats file back, reporting found=false when no file
// exists yet, so a freshly configured server starts from zero without
// treating that as a fault.
func (f *FileStatsStore) Load() (StatsSnapshot, bool, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return StatsSnapshot{}, false, nil
	}
	if err != nil {
		return StatsSnapshot{}, false, err
	}
	var s StatsSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return StatsSnapshot{}, false, fmt.Errorf("parsing %s: %w", f.path, err)
	}
	return s, true, nil
}

// Write atomically replaces the stats file's contents.
func (f *FileStatsStore) Write(s StatsSnapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".stats-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Close is a no-op; FileStatsStore holds no persistent resources
// between writes.
func (f *FileStatsStore) Close() error { return nil }

// MySQLStatsStore persists snapshots as rows in a mortalnet_stats
// table, for operators who centralize metrics storage in MySQL rather
// than scraping a JSON file. Per-player records are stored alongside in
// a mortalnet_player_stats table, upserted by nickname.
type MySQLStatsStore struct {
	db *sql.DB
}

// NewMySQLStatsStore opens a connection pool against dsn and ensures
// the stats tables exist.
func NewMySQLStatsStore(dsn string) (*MySQLStatsStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to mysql stats backend: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS mortalnet_stats (
		generated_at TIMESTAMP NOT NULL,
		current_sessions BIGINT NOT NULL,
		total_connections BIGINT NOT NULL,
		matches_made BIGINT NOT NULL,
		challenges BIGINT NOT NULL,
		messages_relayed BIGINT NOT NULL,
		links_shared BIGINT NOT NULL,
		kicks BIGINT NOT NULL,
		bans BIGINT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating mortalnet_stats table: %w", err)
	}

	const playerSchema = `CREATE TABLE IF NOT EXISTS mortalnet_player_stats (
		nick VARCHAR(64) PRIMARY KEY,
		first_seen TIMESTAMP NOT NULL,
		last_seen TIMESTAMP NOT NULL,
		connect_count BIGINT NOT NULL,
		message_count BIGINT NOT NULL,
		challenge_sent_count BIGINT NOT NULL,
		challenge_received_count BIGINT NOT NULL,
		links_shared_count BIGINT NOT NULL
	)`
	if _, err := db.Exec(playerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating mortalnet_player_stats table: %w", err)
	}

	return &MySQLStatsStore{db: db}, nil
}

// Load restores the most recent counters row and every player row, so
// a restarted server carries its lifetime totals forward the same way
// the file backend does.
func (m *MySQLStatsStore) Load() (StatsSnapshot, bool, error) {
	var s StatsSnapshot
	s.Players = make(map[string]PlayerStats)

	const q = `SELECT generated_at, current_sessions, total_connections, matches_made, challenges, messages_relayed, links_shared, kicks, bans
		FROM mortalnet_stats ORDER BY generated_at DESC LIMIT 1`
	row := m.db.QueryRow(q)
	err := row.Scan(&s.GeneratedAt, &s.CurrentSessions, &s.TotalConnections, &s.MatchesMade, &s.Challenges, &s.MessagesRelayed, &s.LinksShared, &s.Kicks, &s.Bans)
	if err == sql.ErrNoRows {
		return StatsSnapshot{}, false, nil
	}
	if err != nil {
		return StatsSnapshot{}, false, err
	}

	rows, err := m.db.Query(`SELECT nick, first_seen, last_seen, connect_count, message_count, challenge_sent_count, challenge_received_count, links_shared_count
		FROM mortalnet_player_stats`)
	if err != nil {
		return StatsSnapshot{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var p PlayerStats
		if err := rows.Scan(&p.Nick, &p.FirstSeen, &p.LastSeen, &p.ConnectCount, &p.MessageCount, &p.ChallengeSentCount, &p.ChallengeReceivedCount, &p.LinksSharedCount); err != nil {
			return StatsSnapshot{}, false, err
		}
		s.Players[p.Nick] = p
	}
	if err := rows.Err(); err != nil {
		return StatsSnapshot{}, false, err
	}
	return s, true, nil
}

// Write inserts one counters row per snapshot and upserts each player's
// lifetime record. The counters table is intended to be pruned or
// aggregated externally; MortalNet never deletes from it.
func (m *MySQLStatsStore) Write(s StatsSnapshot) error {
	const q = `INSERT INTO mortalnet_stats
		(generated_at, current_sessions, total_connections, matches_made, challenges, messages_relayed, links_shared, kicks, bans)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := m.db.Exec(q, s.GeneratedAt, s.CurrentSessions, s.TotalConnections, s.MatchesMade, s.Challenges, s.MessagesRelayed, s.LinksShared, s.Kicks, s.Bans); err != nil {
		return err
	}

	const playerQ = `INSERT INTO mortalnet_player_stats
		(nick, first_seen, last_seen, connect_count, message_count, challenge_sent_count, challenge_received_count, links_shared_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			last_seen = VALUES(last_seen),
			connect_count = VALUES(connect_count),
			message_count = VALUES(message_count),
			challenge_sent_count = VALUES(challenge_sent_count),
			challenge_received_count = VALUES(challenge_received_count),
			links_shared_count = VALUES(links_shared_count)`
	for _, p := range s.Players {
		if _, err := m.db.Exec(playerQ, p.Nick, p.FirstSeen, p.LastSeen, p.ConnectCount, p.MessageCount, p.ChallengeSentCount, p.ChallengeReceivedCount, p.LinksSharedCount); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (m *MySQLStatsStore) Close() error {
	return m.db.Close()
}

// RunPersister writes the registry's counters and per-player records to
// store whenever the registry signals a save (on every departure, on
// first registration, and every 20th relayed message), plus on a slow
// periodic tick as a backstop against a signal getting lost while a
// write is in flight. Write failures are logged and retried on the next
// trigger rather than treated as fatal: an operator who loses their
// stats backend for a minute should not lose their chat server too.
func RunPersister(reg *Registry, store StatsStore, tickInterval time.Duration, log *Manager, stop <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	save := func() {
		snap := snapshotFromRegistry(reg)
		if err := store.Write(snap); err != nil {
			log.Warning("stats", "persist failed", err.Error())
		}
	}

	for {
		select {
		case <-stop:
			return
		case <-reg.SaveTrigger():
			save()
		case <-ticker.C:
			save()
		}
	}
}
