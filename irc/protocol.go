// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"fmt"
	"net"
	"strings"
	"time"

	"mvdan.cc/xurls/v2"
)

var linkPattern = xurls.Relaxed()

// Dispatcher wires a Registry, AdminHandler and MOTD together
// into the line-framed protocol: one prefix byte selects a handler,
// everything after it up to the trailing LF is that handler's payload.
// A session is unregistered (and every prefix but N and L is dropped
// silently) until its first N command completes the registration
// handshake.
type Dispatcher struct {
	reg   *Registry
	admin *AdminHandler
	motd  *MOTD
	log   *Manager

	idleTimeout time.Duration
}

// NewDispatcher builds a Dispatcher bound to the server's shared
// state.
func NewDispatcher(reg *Registry, admin *AdminHandler, motd *MOTD, log *Manager, idleTimeout time.Duration) *Dispatcher {
	return &Dispatcher{reg: reg, admin: admin, motd: motd, log: log, idleTimeout: idleTimeout}
}

// Serve owns a session's entire lifecycle: the read loop and cleanup.
// Registration itself happens inside the loop, on the session's first N
// command. It returns once the session has disconnected for any reason.
// Callers run it in its own goroutine, one per accepted connection.
func (d *Dispatcher) Serve(session *Session) {
	go session.runWriter()

	d.readLoop(session)

	d.reg.Leave(session)
	session.closeOutbox()
	select {
	case <-session.WriterDone():
	case <-time.After(DefaultCloseWait):
	}
	session.Close()
}

func (d *Dispatcher) readLoop(session *Session) {
	for {
		line, err := session.ReadLine(d.idleTimeout)
		if err != nil {
			return
		}

		trimmed := strings.TrimRight(string(line), "\r\n")
		if trimmed == "" {
			continue
		}

		if d.dispatch(session, trimmed) {
			return
		}
	}
}

// rateLimited reports whether prefix is subject to the per-session
// token bucket. N, A and L are exempt: registration and logout must
// never be starved out by flood control, and admin commands carry their
// own gate.
func rateLimited(prefix byte) bool {
	switch prefix {
	case 'M', 'C', 'W', 'T':
		return true
	}
	return false
}

// dispatch runs a single decoded line through the handler selected by
// its prefix byte. It returns true if the session should be
// disconnected as a result. Unknown prefixes and pre-registration
// commands are dropped without a response; a rate-limited command that
// finds the bucket empty is dropped too, until the strike limit turns
// the drop into a flood disconnect.
func (d *Dispatcher) dispatch(session *Session, line string) bool {
	prefix, rest := line[0], line[1:]

	if prefix != 'N' && prefix != 'L' && !session.Confirmed() {
		return false
	}

	if rateLimited(prefix) {
		allowed, disconnect := session.bucket.Allow()
		if !allowed {
			if disconnect {
				session.Send([]byte("SYou have been disconnected for flooding.\n"))
				return true
			}
			return false
		}
	}

	// Only commands that made it past gating and flood control count
	// as activity; a flood of dropped lines does not look busy on the
	// dashboard.
	session.touch()

	switch prefix {
	case 'N':
		d.handleNick(session, strings.TrimSpace(rest))
	case 'M':
		d.handleMessage(session, rest)
	case 'C':
		d.handleChallenge(session, strings.TrimSpace(rest))
	case 'W':
		d.handleWhois(session, strings.TrimSpace(rest))
	case 'T':
		d.handleStatus(session, rest)
	case 'A':
		session.Send([]byte(d.admin.Handle(session, rest) + "\n"))
	case 'L':
		return true
	default:
		d.log.Debug("protocol", "unknown prefix from", session.IP())
	}
	return false
}

func (d *Dispatcher) handleNick(session *Session, requested string) {
	if !session.Confirmed() {
		d.confirm(session, requested)
		return
	}
	oldNick, newNick, changed := d.reg.Rename(session, requested)
	if !changed {
		return
	}
	session.Send([]byte(fmt.Sprintf("Y%s\n", newNick)))
	d.reg.Broadcast([]byte(fmt.Sprintf("N%s %s\n", oldNick, newNick)), nil)
}

// confirm runs the first-registration handshake. The welcome burst has
// a fixed order clients rely on: the Y confirmation, one J per
// already-connected peer, the replayed chat history, then each
// non-empty MOTD line. Join itself announces the newcomer to everyone
// else.
func (d *Dispatcher) confirm(session *Session, requested string) {
	nick, peers := d.reg.Join(session, requested)
	session.SetConfirmed()

	session.Send([]byte(fmt.Sprintf("Y%s\n", nick)))

	for _, p := range peers {
		session.Send([]byte(fmt.Sprintf("J%s %s\n", p.Nick, p.IP)))
	}

	for _, line := range d.reg.History() {
		session.Send(line)
	}

	for _, line := range strings.Split(d.motd.Text(), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		session.Send([]byte(fmt.Sprintf("S%s\n", line)))
	}
}

func (d *Dispatcher) handleMessage(session *Session, text string) {
	clean := SanitizeContent([]byte(text))
	if clean == "" {
		return
	}
	line := []byte(fmt.Sprintf("M%s %s\n", session.Nick(), clean))
	d.reg.BroadcastChat(line, nil)
	d.reg.RecordMessage(session.Nick(), linkPattern.MatchString(clean))
}

// handleChallenge issues a challenge to another connected player,
// delivering it to the target as a bare "C<challenger>" line.
func (d *Dispatcher) handleChallenge(session *Session, targetNick string) {
	if targetNick == session.Nick() {
		session.Send([]byte("SYou cannot challenge yourself.\n"))
		return
	}
	target, ok := d.reg.ByNick(targetNick)
	if !ok {
		session.Send([]byte(fmt.Sprintf("SNo such user: %s\n", targetNick)))
		return
	}
	target.Send([]byte(fmt.Sprintf("C%s\n", session.Nick())))
	d.reg.RecordChallenge(session.Nick(), target.Nick())
}

// handleWhois replies with a connected player's current nickname and
// raw IP address.
func (d *Dispatcher) handleWhois(session *Session, targetNick string) {
	target, ok := d.reg.ByNick(targetNick)
	if !ok {
		session.Send([]byte(fmt.Sprintf("SNo such user: %s\n", targetNick)))
		return
	}
	session.Send([]byte(fmt.Sprintf("W%s %s\n", target.Nick(), target.IP())))
}

func (d *Dispatcher) handleStatus(session *Session, raw string) {
	status, ok := validStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !ok {
		session.Send([]byte("SInvalid status. Choose: away, chat, game, queue\n"))
		return
	}
	d.reg.SetStatus(session, status)
}

// remoteIP extracts the bare IP address from a net.Conn's remote
// address, stripping the port.
func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
