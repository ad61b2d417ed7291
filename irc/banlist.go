// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/tidwall/buntdb"
)

// BanList tracks banned IP addresses. The text file named by path is
// the source of truth an operator edits by hand; index mirrors its
// contents into an in-memory buntdb so Banned() is a fast indexed
// lookup rather than a linear scan on every new connection.
type BanList struct {
	mu    sync.RWMutex
	path  string
	index *buntdb.DB
}

// NewBanList loads path (if it exists) into a fresh in-memory index.
// A missing file is not an error: it means no IPs are banned yet.
func NewBanList(path string) (*BanList, error) {
	index, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	b := &BanList{path: path, index: index}
	if err := b.Reload(); err != nil {
		index.Close()
		return nil, err
	}
	return b, nil
}

// Reload re-reads the ban file from disk and rebuilds the index. It is
// invoked at startup and again on the admin "reload" command / SIGHUP.
// A missing or unconfigured file reloads to an empty set.
func (b *BanList) Reload() error {
	entries := make(map[string]string)
	if b.path != "" {
		f, err := os.Open(b.path)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		if err == nil {
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				entries[line] = "1"
			}
			scanErr := scanner.Err()
			f.Close()
			if scanErr != nil {
				return scanErr
			}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Update(func(tx *buntdb.Tx) error {
		var stale []string
		tx.AscendKeys("ban:*", func(key, _ string) bool {
			ip := strings.TrimPrefix(key, "ban:")
			if _, ok := entries[ip]; !ok {
				stale = append(stale, key)
			}
			return true
		})
		for _, key := range stale {
			if _, err := tx.Delete(key); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		for ip := range entries {
			if _, _, err := tx.Set("ban:"+ip, "1", nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// Banned reports whether ip is currently on the ban list.
func (b *BanList) Banned(ip string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	banned := false
	b.index.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get("ban:" + ip)
		banned = err == nil
		return nil
	})
	return banned
}

// Add puts ip on the in-memory denylist immediately, then appends it to
// the ban file if one is configured. A file write failure is reported
// but never undoes the in-memory ban: the running process is
// authoritative.
func (b *BanList) Add(ip string) error {
	if b.Banned(ip) {
		return nil
	}

	b.mu.Lock()
	indexErr := b.index.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set("ban:"+ip, "1", nil)
		return err
	})
	b.mu.Unlock()
	if indexErr != nil {
		return indexErr
	}

	if b.path == "" {
		return nil
	}
	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, ip); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// All returns every currently banned IP, for the operator console's
// "bans" listing.
func (b *BanList) All() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var ips []string
	b.index.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("ban:*", func(key, _ string) bool {
			ips = append(ips, strings.TrimPrefix(key, "ban:"))
			return true
		})
	})
	return ips
}

// Close releases the in-memory index.
func (b *BanList) Close() error {
	return b.index.Close()
}
