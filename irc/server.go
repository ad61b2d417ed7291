// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Server owns every long-lived piece of MortalNet: the chat listener,
// the HTTP observation surface, the registry, and the background
// persister. Run blocks until told to shut down, the same
// signal-channel-driven main loop pattern this codebase has always
// used for its top-level server object.
type Server struct {
	config *Config
	log    *Manager

	reg      *Registry
	bans     *BanList
	motd     *MOTD
	admin    *AdminHandler
	stats    StatsStore
	disp     *Dispatcher
	observe  *ObserveServer
	console  *Console
	resolver *Resolver

	chatListener net.Listener
	httpServer   *http.Server

	liveConns atomic.Int64

	wg sync.WaitGroup

	signals      chan os.Signal
	rehashSignal chan os.Signal
	shutdownOnce sync.Once
	done         chan struct{}
}

// NewServer builds a Server from cfg, but neither binds its listeners
// nor accepts connections; call Run for that.
func NewServer(cfg *Config, log *Manager) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bans, err := NewBanList(cfg.BanFile)
	if err != nil {
		return nil, fmt.Errorf("loading ban list: %w", err)
	}

	motd, err := NewMOTD(cfg.MOTD, cfg.MOTDFile)
	if err != nil {
		return nil, fmt.Errorf("loading motd: %w", err)
	}

	reg := NewRegistry(time.Duration(cfg.NickReserveSecs)*time.Second, cfg.HistorySize, log)
	admin := NewAdminHandler(cfg.AdminPassword, cfg.AdminPasswordHash, reg, bans, motd, log)
	disp := NewDispatcher(reg, admin, motd, log, DefaultIdleTimeout)
	observe := NewObserveServer(reg, log)

	var stats StatsStore
	switch {
	case cfg.StatsMySQLDSN != "":
		stats, err = NewMySQLStatsStore(cfg.StatsMySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("opening mysql stats backend: %w", err)
		}
	case cfg.StatsFile != "":
		stats = NewFileStatsStore(cfg.StatsFile)
	}
	if stats != nil {
		if snap, found, err := stats.Load(); err != nil {
			log.Warning("stats", "loading previous stats failed", err.Error())
		} else if found {
			reg.SeedStats(snap)
		}
	}

	var resolver *Resolver
	if r, err := NewResolver(cfg.DNSTimeout); err == nil {
		resolver = r
	} else {
		log.Warning("server", "reverse DNS disabled", err.Error())
	}

	s := &Server{
		config:       cfg,
		log:          log,
		reg:          reg,
		bans:         bans,
		motd:         motd,
		admin:        admin,
		stats:        stats,
		disp:         disp,
		observe:      observe,
		resolver:     resolver,
		signals:      make(chan os.Signal, 1),
		rehashSignal: make(chan os.Signal, 1),
		done:         make(chan struct{}),
	}
	if cfg.AdminConsole {
		s.console = NewConsole(admin, log)
	}

	signal.Notify(s.signals, os.Interrupt, syscall.SIGTERM)
	signal.Notify(s.rehashSignal, syscall.SIGHUP)

	return s, nil
}

func (s *Server) listenChat() (net.Listener, error) {
	if s.config.TLSCert != "" && s.config.TLSKey != "" {
		cert, err := tls.LoadX509KeyPair(s.config.TLSCert, s.config.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("loading TLS certificate: %w", err)
		}
		return tls.Listen("tcp", s.config.ChatAddr, &tls.Config{Certificates: []tls.Certificate{cert}})
	}
	return net.Listen("tcp", s.config.ChatAddr)
}

// Run binds the chat and HTTP listeners and blocks until a shutdown
// signal arrives, a fatal listener error occurs, or Shutdown is called
// directly. It always returns a non-nil error only on an unrecoverable
// startup failure; a clean shutdown returns nil.
func (s *Server) Run() error {
	chatLn, err := s.listenChat()
	if err != nil {
		return fmt.Errorf("binding chat listener: %w", err)
	}
	s.chatListener = chatLn
	s.log.Info("server", fmt.Sprintf("chat listening on %s", s.config.ChatAddr))

	s.httpServer = &http.Server{Addr: s.config.WebAddr, Handler: s.observe.Handler()}
	httpLn, err := net.Listen("tcp", s.config.WebAddr)
	if err != nil {
		chatLn.Close()
		return fmt.Errorf("binding web listener: %w", err)
	}
	s.log.Info("server", fmt.Sprintf("web listening on %s", s.config.WebAddr))

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.acceptChatLoop(chatLn)
	}()
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(httpLn); err != nil && err != http.ErrServerClosed {
			s.log.Error("server", "http server failed", err.Error())
		}
	}()

	if s.stats != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			RunPersister(s.reg, s.stats, 5*time.Minute, s.log, s.done)
		}()
	}

	if s.console != nil {
		go s.console.Run()
	}

	for {
		select {
		case <-s.signals:
			s.log.Info("server", "received shutdown signal")
			return s.Shutdown()
		case <-s.rehashSignal:
			s.rehash()
		case <-s.done:
			return nil
		}
	}
}

// rehash reloads the ban list and MOTD from disk without restarting
// any listener, in response to SIGHUP. The admin "reload" command does
// the same reload through AdminHandler.
func (s *Server) rehash() {
	if err := s.bans.Reload(); err != nil {
		s.log.Warning("server", "ban list reload failed", err.Error())
	}
	if err := s.motd.Reload(); err != nil {
		s.log.Warning("server", "motd reload failed", err.Error())
	}
	s.log.Info("server", "rehash complete")
}

func (s *Server) acceptChatLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.log.Error("server", "accept failed", err.Error())
				return
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	ip := remoteIP(conn)

	if s.bans.Banned(ip) {
		conn.Write([]byte("SYou are banned from this server.\n"))
		conn.Close()
		return
	}

	if s.liveConns.Load() >= int64(s.config.MaxClients) {
		conn.Write([]byte("SServer is full. Try again later.\n"))
		conn.Close()
		return
	}
	s.liveConns.Add(1)
	defer s.liveConns.Add(-1)

	bucket := NewBucket(s.config.Rate, s.config.Burst, s.config.Strikes)
	session := NewSession(s.reg.NextID(), conn, ip, bucket)

	if s.resolver != nil {
		go func() {
			if host, err := s.resolver.PTR(ip); err == nil {
				session.SetHost(host)
			}
		}()
	}

	go s.lookupIdent(session)

	// The session is not registered with the registry until it sends
	// its first N command; until then the dispatcher drops every other
	// command silently.
	s.disp.Serve(session)
}

// lookupIdent queries RFC 1413 ident on the peer, best-effort, and
// records the result on the session if it succeeds before the
// configured timeout. The peer is the queried host, so its port leads
// the query pair.
func (s *Server) lookupIdent(session *Session) {
	remote, ok := session.conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return
	}
	local, ok := session.conn.LocalAddr().(*net.TCPAddr)
	if !ok {
		return
	}
	identity, err := LookupIdent(context.Background(), remote.IP.String(), remote.Port, local.Port, s.config.IdentTimeout)
	if err != nil {
		return
	}
	session.SetIdentity(identity)
}

// Shutdown stops accepting new connections, closes existing ones, and
// waits for background goroutines to finish, up to a grace period.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.done)
		if s.chatListener != nil {
			s.chatListener.Close()
		}
		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), DefaultCloseWait)
			defer cancel()
			if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
				err = shutdownErr
			}
		}
		s.reg.CloseAll()
		if s.stats != nil {
			if writeErr := s.stats.Write(snapshotFromRegistry(s.reg)); writeErr != nil {
				s.log.Warning("stats", "final persist failed", writeErr.Error())
			}
			s.stats.Close()
		}
		if s.bans != nil {
			s.bans.Close()
		}
		waitCh := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(waitCh)
		}()
		select {
		case <-waitCh:
		case <-time.After(DefaultCloseWait):
			s.log.Warning("server", "shutdown timed out waiting for goroutines")
		}
	})
	return err
}
