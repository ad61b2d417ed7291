// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminHandler authenticates and dispatches admin commands sent over
// the chat protocol as "A<password> <cmd> [args]". It accepts either a
// cleartext password (compared in constant time) or a bcrypt hash
// (compared via bcrypt's own timing-safe CompareHashAndPassword). With
// neither configured, admin commands are disabled outright.
type AdminHandler struct {
	password     string
	passwordHash string

	reg  *Registry
	bans *BanList
	motd *MOTD
	log  *Manager
}

// NewAdminHandler builds a handler bound to the server's shared state.
func NewAdminHandler(password, passwordHash string, reg *Registry, bans *BanList, motd *MOTD, log *Manager) *AdminHandler {
	return &AdminHandler{
		password:     password,
		passwordHash: passwordHash,
		reg:          reg,
		bans:         bans,
		motd:         motd,
		log:          log,
	}
}

func (a *AdminHandler) enabled() bool {
	return a.password != "" || a.passwordHash != ""
}

func (a *AdminHandler) checkPassword(given string) bool {
	if a.passwordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(a.password), []byte(given)) == 1
}

// Handle parses and executes an admin line, returning the text to send
// back to the issuing session (never empty: every path, including
// authentication failure, gets a reply).
func (a *AdminHandler) Handle(issuer *Session, line string) string {
	if !a.enabled() {
		return "SAdmin commands are disabled on this server."
	}

	parts := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(parts) < 2 {
		return "Susage: A<password> <kick|ban|reload|motd> [args]"
	}
	password, cmd := parts[0], parts[1]
	rest := ""
	if len(parts) == 3 {
		rest = parts[2]
	}

	if !a.checkPassword(password) {
		ip := "local console"
		if issuer != nil {
			ip = issuer.IP()
		}
		a.log.Warning("admin", "rejected admin attempt", ip)
		return "SInvalid admin password."
	}

	return a.dispatch(cmd, rest)
}

// HandleTrusted runs an admin command without a password check, for
// the local stdin console where the operator is already trusted by
// virtue of having shell access to the process.
func (a *AdminHandler) HandleTrusted(line string) string {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 2)
	if parts[0] == "" {
		return "Susage: <kick|ban|reload|motd|bans> [args]"
	}
	rest := ""
	if len(parts) == 2 {
		rest = parts[1]
	}
	if parts[0] == "bans" {
		ips := a.bans.All()
		if len(ips) == 0 {
			return "SNo banned IPs."
		}
		return "SBanned IPs: " + strings.Join(ips, ", ")
	}
	return a.dispatch(parts[0], rest)
}

func (a *AdminHandler) dispatch(cmd, rest string) string {
	switch cmd {
	case "kick":
		return a.kick(firstField(rest))
	case "ban":
		return a.ban(firstField(rest))
	case "reload":
		return a.reload()
	case "motd":
		return a.setMOTD(rest)
	default:
		return fmt.Sprintf("SUnknown command: %s", cmd)
	}
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (a *AdminHandler) kick(nick string) string {
	session, ok := a.reg.ByNick(nick)
	if !ok {
		return "SNo such user"
	}
	session.DisconnectAfter([]byte("SYou have been kicked by an administrator.\n"))
	a.reg.Counters.Kicks.Add(1)
	return fmt.Sprintf("SKicked %s.", nick)
}

// ban resolves target (a live nick, or failing that a raw IP), kicks
// any matching session, and adds the IP to the denylist. The ban file
// append is best effort: a write failure is logged but the in-memory
// ban still takes.
func (a *AdminHandler) ban(target string) string {
	ip := target
	if session, ok := a.reg.ByNick(target); ok {
		ip = session.IP()
		session.DisconnectAfter([]byte("SYou have been kicked by an administrator.\n"))
		a.reg.Counters.Kicks.Add(1)
	}

	if err := a.bans.Add(ip); err != nil {
		a.log.Warning("admin", "ban file append failed", err.Error())
	}
	a.reg.Counters.Bans.Add(1)
	return fmt.Sprintf("SBanned %s.", ip)
}

func (a *AdminHandler) reload() string {
	if err := a.bans.Reload(); err != nil {
		a.log.Warning("admin", "ban list reload failed", err.Error())
	}
	if err := a.motd.Reload(); err != nil {
		a.log.Warning("admin", "motd reload failed", err.Error())
	}
	return "SReloaded ban list and MOTD."
}

func (a *AdminHandler) setMOTD(text string) string {
	a.motd.Set(text)
	return "SMOTD updated."
}
