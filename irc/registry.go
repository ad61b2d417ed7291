// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// reservation records that nick was recently vacated by ip and may be
// reclaimed only by that same ip until expires.
type reservation struct {
	ip      string
	expires time.Time
}

// Counters tracks lifetime and point-in-time registry statistics, read
// by the stats persister and the HTTP observation surface. All fields
// are accessed only through atomic operations so Snapshot never needs
// the registry mutex.
type Counters struct {
	TotalConnections atomic.Int64
	CurrentSessions  atomic.Int64
	MatchesMade      atomic.Int64
	Challenges       atomic.Int64
	MessagesRelayed  atomic.Int64
	LinksShared      atomic.Int64
	Kicks            atomic.Int64
	Bans             atomic.Int64
}

// PlayerView is the read-only public shape of a session, as exposed by
// Snapshot to the HTTP dashboard/JSON endpoints.
type PlayerView struct {
	Nick        string  `json:"nick"`
	IP          string  `json:"ip"`
	Status      string  `json:"status"`
	Ident       string  `json:"ident,omitempty"`
	Hostname    string  `json:"hostname,omitempty"`
	JoinedAt    int64   `json:"joined_at"`
	IdleSeconds float64 `json:"idle_seconds"`
}

// Snapshot is the lock-free, point-in-time view of the registry,
// published via atomic.Value so HTTP handlers and the live dashboard
// push never block a chat session's read loop.
type Snapshot struct {
	Players   []PlayerView `json:"players"`
	Generated time.Time    `json:"generated"`
}

// PlayerStats is a player's lifetime record, keyed by nickname and
// carried forward across renames and reconnects.
type PlayerStats struct {
	Nick                   string    `json:"nick"`
	FirstSeen              time.Time `json:"first_seen"`
	LastSeen               time.Time `json:"last_seen"`
	ConnectCount           int64     `json:"connect_count"`
	MessageCount           int64     `json:"message_count"`
	ChallengeSentCount     int64     `json:"challenge_sent_count"`
	ChallengeReceivedCount int64     `json:"challenge_received_count"`
	LinksSharedCount       int64     `json:"links_shared_count"`
}

// Registry is MortalNet's session hub: it owns the authoritative
// id->Session, nick->id, and reserved-nick->reservation maps, and is
// the only place that mutates them. Nick keys are case-sensitive.
// Broadcast and matchmaking fan-out happen after the mutating lock is
// released, so slow or stalled clients can never stall registry
// mutation.
type Registry struct {
	mu         sync.Mutex
	sessions   map[uint64]*Session
	byNick     map[string]uint64
	reserved   map[string]reservation
	reserveFor time.Duration

	playerStats map[string]*PlayerStats

	history    [][]byte
	historyCap int

	ids atomic.Uint64

	snapshot atomic.Value // Snapshot

	Counters Counters

	startedAt time.Time

	saveTrigger chan struct{}

	log *Manager
}

// NewRegistry builds an empty registry. reserveFor is the grace period
// a vacated nickname stays reserved to the IP that held it; zero or
// negative disables reservations. historySize bounds how many chat
// lines are retained for replay to newly registered sessions.
func NewRegistry(reserveFor time.Duration, historySize int, log *Manager) *Registry {
	r := &Registry{
		sessions:    make(map[uint64]*Session),
		byNick:      make(map[string]uint64),
		reserved:    make(map[string]reservation),
		playerStats: make(map[string]*PlayerStats),
		reserveFor:  reserveFor,
		historyCap:  historySize,
		startedAt:   time.Now(),
		saveTrigger: make(chan struct{}, 1),
		log:         log,
	}
	r.snapshot.Store(Snapshot{Generated: time.Now()})
	return r
}

// NextID hands out the next session id. Called once per accepted
// connection, before the session is visible to anything else.
func (r *Registry) NextID() uint64 {
	return r.ids.Add(1)
}

// StartedAt reports when this registry (and so the server) came up.
func (r *Registry) StartedAt() time.Time {
	return r.startedAt
}

// nickTaken reports whether candidate is held by a confirmed session
// other than excludeID, or reserved for an IP other than requesterIP.
// Expired reservations are dropped lazily here, on lookup, rather than
// by a sweeper goroutine; a reservation matched by its owner's IP is
// consumed on the spot.
func (r *Registry) nickTaken(candidate, requesterIP string, excludeID uint64) bool {
	if id, ok := r.byNick[candidate]; ok && id != excludeID {
		return true
	}
	res, ok := r.reserved[candidate]
	if !ok {
		return false
	}
	if time.Now().After(res.expires) {
		delete(r.reserved, candidate)
		return false
	}
	if requesterIP != "" && requesterIP == res.ip {
		delete(r.reserved, candidate)
		return false
	}
	return true
}

// signalSave nudges the stats persister to write immediately, without
// blocking the caller if a save is already pending.
func (r *Registry) signalSave() {
	select {
	case r.saveTrigger <- struct{}{}:
	default:
	}
}

// SaveTrigger returns the channel the stats persister selects on to
// learn about departure-, registration-, and message-count-driven save
// triggers, in addition to its own periodic tick.
func (r *Registry) SaveTrigger() <-chan struct{} {
	return r.saveTrigger
}

// touchPlayerStats records a connect under nick, creating the record on
// first sight.
func (r *Registry) touchPlayerStats(nick string) {
	now := time.Now()
	ps, ok := r.playerStats[nick]
	if !ok {
		ps = &PlayerStats{Nick: nick, FirstSeen: now}
		r.playerStats[nick] = ps
	}
	ps.LastSeen = now
	ps.ConnectCount++
}

// migratePlayerStats carries a player's lifetime record forward across
// a rename, keyed by the new nickname from then on.
func (r *Registry) migratePlayerStats(oldNick, newNick string) {
	if oldNick == newNick {
		return
	}
	if ps, ok := r.playerStats[oldNick]; ok {
		delete(r.playerStats, oldNick)
		ps.Nick = newNick
		r.playerStats[newNick] = ps
	}
}

// Join resolves a nickname for a session's first registration, installs
// it in the nick map, and runs every first-registration side effect: a
// connect_count bump, a reservation clear, counters/snapshot updates,
// and an immediate stats save trigger. It returns the assigned nickname
// and the peers that were already registered, captured under the same
// lock so a concurrent registration can neither appear twice in a
// welcome burst nor be missed by it. The caller is responsible for the
// welcome burst (Y, roster, history, MOTD); Join itself broadcasts the
// arrival to everyone else.
func (r *Registry) Join(session *Session, requestedNick string) (string, []PlayerView) {
	r.mu.Lock()
	peers := make([]PlayerView, 0, len(r.sessions))
	for _, s := range r.sessions {
		peers = append(peers, PlayerView{Nick: s.Nick(), IP: s.IP(), Status: string(s.Status())})
	}
	nick := resolveNick(requestedNick, func(candidate string) bool {
		return r.nickTaken(candidate, session.IP(), session.ID)
	})
	session.SetNick(nick)
	r.sessions[session.ID] = session
	r.byNick[nick] = session.ID
	delete(r.reserved, nick)
	r.touchPlayerStats(nick)
	r.mu.Unlock()

	r.Counters.TotalConnections.Add(1)
	r.Counters.CurrentSessions.Add(1)
	r.publishSnapshot()
	r.signalSave()

	r.Broadcast([]byte(fmt.Sprintf("J%s %s\n", nick, session.IP())), session)
	return nick, peers
}

// Rename reassigns a confirmed session's nickname. It performs only the
// map surgery; the dispatcher owns the Y confirmation and the N
// broadcast so their ordering relative to each other stays in one
// place. A rename resolving to the session's current nickname is a
// no-op and reports changed=false.
func (r *Registry) Rename(session *Session, requestedNick string) (oldNick, newNick string, changed bool) {
	r.mu.Lock()
	oldNick = session.Nick()
	newNick = resolveNick(requestedNick, func(candidate string) bool {
		return r.nickTaken(candidate, session.IP(), session.ID)
	})
	if newNick == oldNick {
		r.mu.Unlock()
		return oldNick, newNick, false
	}
	delete(r.byNick, oldNick)
	r.byNick[newNick] = session.ID
	delete(r.reserved, newNick)
	r.migratePlayerStats(oldNick, newNick)
	session.SetNick(newNick)
	r.mu.Unlock()

	r.publishSnapshot()
	return oldNick, newNick, true
}

// Leave removes a session from the registry and, if it was confirmed,
// reserves its nickname to its IP for the grace period, broadcasts its
// departure, and triggers a stats save.
func (r *Registry) Leave(session *Session) {
	r.mu.Lock()
	if _, ok := r.sessions[session.ID]; !ok {
		r.mu.Unlock()
		return
	}
	nick := session.Nick()
	delete(r.sessions, session.ID)
	delete(r.byNick, nick)
	if r.reserveFor > 0 {
		r.reserved[nick] = reservation{ip: session.IP(), expires: time.Now().Add(r.reserveFor)}
	}
	if ps, ok := r.playerStats[nick]; ok {
		ps.LastSeen = time.Now()
	}
	r.mu.Unlock()

	r.Counters.CurrentSessions.Add(-1)
	r.publishSnapshot()
	r.signalSave()
	r.Broadcast([]byte(fmt.Sprintf("L%s\n", nick)), nil)
}

// SetStatus updates a session's presence/matchmaking status and
// broadcasts the change. A transition into "queue" also attempts a
// one-shot matchmaking scan.
func (r *Registry) SetStatus(session *Session, status Status) {
	session.SetStatus(status)
	r.publishSnapshot()
	r.Broadcast([]byte(fmt.Sprintf("T%s %s\n", session.Nick(), status)), nil)
	if status == StatusQueue {
		r.attemptMatch(session)
	}
}

// attemptMatch pairs the freshly queued session with the first other
// queued peer it finds, if any: each is told who it faces with a C
// line, both move back to StatusChat (broadcasting a status change for
// each), and each gets a pairing notice. The scan is one shot; a queue
// of more than two players resolves over subsequent transitions into
// "queue".
func (r *Registry) attemptMatch(trigger *Session) {
	r.mu.Lock()
	var peer *Session
	for _, s := range r.sessions {
		if s == trigger || s.Status() != StatusQueue {
			continue
		}
		peer = s
		break
	}
	r.mu.Unlock()

	if peer == nil || trigger.Status() != StatusQueue {
		return
	}

	r.Counters.MatchesMade.Add(1)
	r.Counters.Challenges.Add(1)

	trigger.Send([]byte(fmt.Sprintf("C%s\n", peer.Nick())))
	peer.Send([]byte(fmt.Sprintf("C%s\n", trigger.Nick())))

	r.SetStatus(peer, StatusChat)
	r.SetStatus(trigger, StatusChat)

	trigger.Send([]byte(fmt.Sprintf("SMatchmaking: paired with %s!\n", peer.Nick())))
	peer.Send([]byte(fmt.Sprintf("SMatchmaking: paired with %s!\n", trigger.Nick())))
}

// RecordChallenge bumps the challenge counters for a successful
// challenge from fromNick to toNick.
func (r *Registry) RecordChallenge(fromNick, toNick string) {
	r.Counters.Challenges.Add(1)

	r.mu.Lock()
	if ps, ok := r.playerStats[fromNick]; ok {
		ps.ChallengeSentCount++
	}
	if ps, ok := r.playerStats[toNick]; ok {
		ps.ChallengeReceivedCount++
	}
	r.mu.Unlock()
}

// RecordMessage bumps the global and per-player message counters and,
// every 20th message server-wide, triggers a stats save. hasLink also
// bumps the link-sharing counters.
func (r *Registry) RecordMessage(nick string, hasLink bool) {
	r.mu.Lock()
	if ps, ok := r.playerStats[nick]; ok {
		ps.MessageCount++
		if hasLink {
			ps.LinksSharedCount++
		}
	}
	r.mu.Unlock()

	if hasLink {
		r.Counters.LinksShared.Add(1)
	}
	if r.Counters.MessagesRelayed.Add(1)%20 == 0 {
		r.signalSave()
	}
}

// addHistory appends line to the bounded chat-history ring, evicting
// the oldest entry once historyCap is reached.
func (r *Registry) addHistory(line []byte) {
	if r.historyCap <= 0 {
		return
	}
	cp := make([]byte, len(line))
	copy(cp, line)

	r.mu.Lock()
	r.history = append(r.history, cp)
	if len(r.history) > r.historyCap {
		r.history = r.history[len(r.history)-r.historyCap:]
	}
	r.mu.Unlock()
}

// History returns a copy of the current chat-history ring, oldest
// first, for replay to a newly registered session.
func (r *Registry) History() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.history))
	copy(out, r.history)
	return out
}

// Broadcast fans a line out to every confirmed session except the
// optional excluded one. It takes the mutex only long enough to copy
// the session list, then sends with no lock held, so a stalled client's
// bounded outbox can never block this call or any other session's
// delivery.
func (r *Registry) Broadcast(line []byte, except *Session) {
	r.mu.Lock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s == except {
			continue
		}
		targets = append(targets, s)
	}
	r.mu.Unlock()

	for _, s := range targets {
		s.Send(line)
	}
}

// BroadcastChat is Broadcast plus recording line in the chat-history
// ring, for lines that should be replayed to newly registered sessions.
func (r *Registry) BroadcastChat(line []byte, except *Session) {
	r.addHistory(line)
	r.Broadcast(line, except)
}

// CloseAll tears down every live session, for process shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		targets = append(targets, s)
	}
	r.mu.Unlock()

	for _, s := range targets {
		s.closeOutbox()
		s.Close()
	}
}

// BySessionID looks up a currently connected session.
func (r *Registry) BySessionID(id uint64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// ByNick looks up a currently connected session by nickname.
func (r *Registry) ByNick(nick string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byNick[nick]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of currently confirmed sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// publishSnapshot rebuilds and atomically swaps the public Snapshot.
func (r *Registry) publishSnapshot() {
	r.mu.Lock()
	players := make([]PlayerView, 0, len(r.sessions))
	for _, s := range r.sessions {
		players = append(players, PlayerView{
			Nick:        s.Nick(),
			IP:          s.IP(),
			Status:      string(s.Status()),
			Ident:       s.Identity(),
			Hostname:    s.Hostname(),
			JoinedAt:    s.ConnectedAt().Unix(),
			IdleSeconds: s.IdleSince().Seconds(),
		})
	}
	r.mu.Unlock()

	r.snapshot.Store(Snapshot{Players: players, Generated: time.Now()})
}

// CurrentSnapshot returns the most recently published Snapshot. It
// never blocks on registry mutation.
func (r *Registry) CurrentSnapshot() Snapshot {
	return r.snapshot.Load().(Snapshot)
}

// PlayerStatsSnapshot returns a copy of every player's lifetime record,
// keyed by nickname, for inclusion in a StatsSnapshot write.
func (r *Registry) PlayerStatsSnapshot() map[string]PlayerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]PlayerStats, len(r.playerStats))
	for nick, ps := range r.playerStats {
		out[nick] = *ps
	}
	return out
}

// SeedStats restores counters and per-player records from a previously
// persisted snapshot, at boot, before any session connects.
func (r *Registry) SeedStats(s StatsSnapshot) {
	r.Counters.TotalConnections.Store(s.TotalConnections)
	r.Counters.MatchesMade.Store(s.MatchesMade)
	r.Counters.Challenges.Store(s.Challenges)
	r.Counters.MessagesRelayed.Store(s.MessagesRelayed)
	r.Counters.LinksShared.Store(s.LinksShared)
	r.Counters.Kicks.Store(s.Kicks)
	r.Counters.Bans.Store(s.Bans)

	r.mu.Lock()
	defer r.mu.Unlock()
	for nick, ps := range s.Players {
		cp := ps
		cp.Nick = nick
		r.playerStats[nick] = &cp
	}
}
