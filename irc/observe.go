// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"runtime"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// ObserveServer is MortalNet's HTTP observation surface: a small
// read-only dashboard plus JSON, Prometheus and health endpoints, all
// backed by the same lock-free Snapshot the chat protocol publishes.
type ObserveServer struct {
	reg       *Registry
	startedAt time.Time
	log       *Manager

	promReg *prometheus.Registry

	upgrader websocket.Upgrader
}

// NewObserveServer builds the observation surface and registers its
// Prometheus collectors.
func NewObserveServer(reg *Registry, log *Manager) *ObserveServer {
	o := &ObserveServer{
		reg:       reg,
		startedAt: reg.StartedAt(),
		log:       log,
		promReg:   prometheus.NewRegistry(),
	}
	o.promReg.MustRegister(prometheus.NewGoCollector())
	o.promReg.MustRegister(o.newCounterCollector())
	return o
}

// Handler builds the root HTTP handler, wrapped for cleartext HTTP/2
// (h2c) so load balancers that speak h2c to their backends work
// without a TLS terminator in front of this port.
func (o *ObserveServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", o.wrap(o.handleDashboard))
	mux.HandleFunc("/api/status", o.wrap(o.handleAPIStatus))
	mux.HandleFunc("/api/stats", o.wrap(o.handleAPIStats))
	mux.Handle("/metrics", o.wrapHandler(promhttp.HandlerFor(o.promReg, promhttp.HandlerOpts{})))
	mux.HandleFunc("/healthz", o.wrap(o.handleHealthz))
	mux.HandleFunc("/ws", o.handleWS)

	return h2c.NewHandler(mux, &http2.Server{})
}

// wrap applies method gating and security headers around a plain
// handler func.
func (o *ObserveServer) wrap(fn http.HandlerFunc) http.HandlerFunc {
	return o.wrapHandler(fn).ServeHTTP
}

func (o *ObserveServer) wrapHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		h.ServeHTTP(w, r)
	})
}

func (o *ObserveServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "OK\n")
}

// statusResponse is the shape served by /api/status: enough for a
// dashboard to render uptime, the confirmed roster, and a point-in-time
// counters copy without a second request to /api/stats.
type statusResponse struct {
	UptimeSeconds float64       `json:"uptime_seconds"`
	PlayerCount   int           `json:"player_count"`
	Players       []PlayerView  `json:"players"`
	Counters      StatsSnapshot `json:"counters"`
}

func (o *ObserveServer) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	snap := o.reg.CurrentSnapshot()
	resp := statusResponse{
		UptimeSeconds: time.Since(o.startedAt).Seconds(),
		PlayerCount:   len(snap.Players),
		Players:       snap.Players,
		Counters:      snapshotFromRegistry(o.reg),
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(resp)
}

func (o *ObserveServer) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	snap := snapshotFromRegistry(o.reg)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(snap)
}

// handleDashboard renders a minimal human-readable status page. It is
// intentionally plain HTML with no JS framework beyond a 10-second
// meta refresh: the /ws endpoint is what a richer frontend would use
// for live updates. The "/" pattern also catches every unknown path,
// so anything that isn't exactly the root 404s here.
func (o *ObserveServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "Not found\n")
		return
	}

	snap := o.reg.CurrentSnapshot()
	uptime := time.Since(o.startedAt).Round(time.Second)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!doctype html><html><head><title>MortalNet</title><meta http-equiv="refresh" content="10"></head><body>`)
	fmt.Fprintf(w, "<h1>MortalNet</h1><p>uptime: %s | players: %d | memory: %s</p>",
		uptime, len(snap.Players), bytefmt.ByteSize(currentMemoryEstimate()))
	fmt.Fprint(w, "<table><tr><th>nick</th><th>status</th><th>ip</th><th>idle</th></tr>")
	for _, p := range snap.Players {
		fmt.Fprintf(w, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%.0fs</td></tr>",
			html.EscapeString(p.Nick), html.EscapeString(p.Status), html.EscapeString(p.IP), p.IdleSeconds)
	}
	fmt.Fprint(w, "</table></body></html>")
}

// handleWS upgrades to a websocket and pushes the current snapshot
// every two seconds until the client disconnects, powering a live
// dashboard without polling /api/status.
func (o *ObserveServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.log.Debug("observe", "websocket upgrade failed", err.Error())
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		snap := o.reg.CurrentSnapshot()
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
	}
}

// counterCollector adapts Registry.Counters to Prometheus' pull model
// without duplicating state: it reads the live atomics on every scrape.
type counterCollector struct {
	reg       *Registry
	startedAt time.Time

	activePlayers *prometheus.Desc
	total         *prometheus.Desc
	challenges    *prometheus.Desc
	matches       *prometheus.Desc
	messages      *prometheus.Desc
	links         *prometheus.Desc
	kicks         *prometheus.Desc
	bans          *prometheus.Desc
	uptime        *prometheus.Desc
}

func (o *ObserveServer) newCounterCollector() *counterCollector {
	ns := "mortalnet"
	return &counterCollector{
		reg:           o.reg,
		startedAt:     o.startedAt,
		activePlayers: prometheus.NewDesc(ns+"_active_players", "Currently connected and confirmed players.", nil, nil),
		total:         prometheus.NewDesc(ns+"_connections_total", "Total accepted connections.", nil, nil),
		challenges:    prometheus.NewDesc(ns+"_challenges_total", "Total challenges issued.", nil, nil),
		matches:       prometheus.NewDesc(ns+"_matches_total", "Total matchmaking pairings made.", nil, nil),
		messages:      prometheus.NewDesc(ns+"_messages_total", "Total chat messages relayed.", nil, nil),
		links:         prometheus.NewDesc(ns+"_links_shared_total", "Total chat messages containing a URL.", nil, nil),
		kicks:         prometheus.NewDesc(ns+"_kicks_total", "Total admin kicks.", nil, nil),
		bans:          prometheus.NewDesc(ns+"_bans_total", "Total admin bans.", nil, nil),
		uptime:        prometheus.NewDesc(ns+"_uptime_seconds", "Seconds since the server started.", nil, nil),
	}
}

func (c *counterCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activePlayers
	ch <- c.total
	ch <- c.challenges
	ch <- c.matches
	ch <- c.messages
	ch <- c.links
	ch <- c.kicks
	ch <- c.bans
	ch <- c.uptime
}

func (c *counterCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.activePlayers, prometheus.GaugeValue, float64(c.reg.Counters.CurrentSessions.Load()))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.CounterValue, float64(c.reg.Counters.TotalConnections.Load()))
	ch <- prometheus.MustNewConstMetric(c.challenges, prometheus.CounterValue, float64(c.reg.Counters.Challenges.Load()))
	ch <- prometheus.MustNewConstMetric(c.matches, prometheus.CounterValue, float64(c.reg.Counters.MatchesMade.Load()))
	ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(c.reg.Counters.MessagesRelayed.Load()))
	ch <- prometheus.MustNewConstMetric(c.links, prometheus.CounterValue, float64(c.reg.Counters.LinksShared.Load()))
	ch <- prometheus.MustNewConstMetric(c.kicks, prometheus.CounterValue, float64(c.reg.Counters.Kicks.Load()))
	ch <- prometheus.MustNewConstMetric(c.bans, prometheus.CounterValue, float64(c.reg.Counters.Bans.Load()))
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, time.Since(c.startedAt).Seconds())
}

// currentMemoryEstimate reports this process's current heap usage for
// the dashboard's memory figure.
func currentMemoryEstimate() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}
