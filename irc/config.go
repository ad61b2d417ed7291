// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"fmt"
	"os"
	"strconv"
	"time"

	docopt "github.com/docopt/docopt-go"
	"golang.org/x/term"
	"gopkg.in/yaml.v2"
)

// Usage is the docopt usage string for mortalnetd. Flags carry no
// [default: ...] annotations on purpose: that lets us tell "the user
// passed this flag" apart from "accept the built-in default", so a YAML
// config file (--config) can supply values that CLI flags still
// override.
const Usage = `MortalNet matchmaking server.

Usage:
  mortalnetd [options]
  mortalnetd -h | --help

Options:
  --config=<path>                 Optional YAML config file.
  --chat-addr=<addr>               TCP listen address for chat.
  --web-addr=<addr>                HTTP observation listen address.
  --max-clients=<n>                Maximum concurrent sessions.
  --rate=<n>                       Token bucket refill rate, in messages/sec.
  --burst=<n>                      Token bucket burst size.
  --strikes=<n>                    Flood strikes before disconnect.
  --log-level=<level>               One of debug, info, warn, error.
  --log-format=<format>             One of text, json.
  --motd=<text>                     Inline message of the day.
  --motd-file=<path>                Path to a message-of-the-day file.
  --history-size=<n>                Broadcast history ring size.
  --nick-reserve-secs=<n>           Nick reservation grace period, in seconds.
  --stats-file=<path>               JSON stats file path.
  --stats-mysql-dsn=<dsn>           MySQL DSN for the stats backend.
  --admin-password=<password>       Admin password, in cleartext.
  --admin-password-hash=<hash>      Admin password, as a bcrypt hash.
  --admin-password-prompt           Prompt for the admin password at startup.
  --admin-console                   Enable the local stdin admin console.
  --ban-file=<path>                 Ban list file path.
  --tls-cert=<path>                 TLS certificate path for the chat listener.
  --tls-key=<path>                  TLS key path for the chat listener.
  --ident-timeout=<duration>        Ident lookup timeout.
  --dns-timeout=<duration>          Reverse DNS lookup timeout.
  -h --help                         Show this help.
`

// Config holds every tunable of the server. Zero value is not valid;
// use DefaultConfig or ParseConfig.
type Config struct {
	ChatAddr string
	WebAddr  string

	MaxClients int
	Rate       float64
	Burst      float64
	Strikes    int

	LogLevel  string
	LogFormat string

	MOTD     string
	MOTDFile string

	HistorySize     int
	NickReserveSecs int

	StatsFile     string
	StatsMySQLDSN string

	AdminPassword       string
	AdminPasswordHash   string
	AdminPasswordPrompt bool
	AdminConsole        bool

	BanFile string

	TLSCert string
	TLSKey  string

	IdentTimeout time.Duration
	DNSTimeout   time.Duration
}

// DefaultConfig returns the documented flag defaults.
func DefaultConfig() *Config {
	return &Config{
		ChatAddr:        ":14883",
		WebAddr:         ":8080",
		MaxClients:      100,
		Rate:            5.0,
		Burst:           10.0,
		Strikes:         3,
		LogLevel:        "info",
		LogFormat:       "text",
		HistorySize:     20,
		NickReserveSecs: 60,
		IdentTimeout:    2 * time.Second,
		DNSTimeout:      1 * time.Second,
	}
}

// yamlConfig mirrors Config but with every field optional, so that
// loading a YAML file only overrides keys that are actually present in
// it, leaving DefaultConfig()'s values (or already-layered-in flags)
// alone otherwise.
type yamlConfig struct {
	ChatAddr            *string  `yaml:"chat-addr"`
	WebAddr             *string  `yaml:"web-addr"`
	MaxClients          *int     `yaml:"max-clients"`
	Rate                *float64 `yaml:"rate"`
	Burst               *float64 `yaml:"burst"`
	Strikes             *int     `yaml:"strikes"`
	LogLevel            *string  `yaml:"log-level"`
	LogFormat           *string  `yaml:"log-format"`
	MOTD                *string  `yaml:"motd"`
	MOTDFile            *string  `yaml:"motd-file"`
	HistorySize         *int     `yaml:"history-size"`
	NickReserveSecs     *int     `yaml:"nick-reserve-secs"`
	StatsFile           *string  `yaml:"stats-file"`
	StatsMySQLDSN       *string  `yaml:"stats-mysql-dsn"`
	AdminPassword       *string  `yaml:"admin-password"`
	AdminPasswordHash   *string  `yaml:"admin-password-hash"`
	AdminPasswordPrompt *bool    `yaml:"admin-password-prompt"`
	AdminConsole        *bool    `yaml:"admin-console"`
	BanFile             *string  `yaml:"ban-file"`
	TLSCert             *string  `yaml:"tls-cert"`
	TLSKey              *string  `yaml:"tls-key"`
	IdentTimeout        *string  `yaml:"ident-timeout"`
	DNSTimeout          *string  `yaml:"dns-timeout"`
}

func (c *Config) applyYAML(y *yamlConfig) error {
	if y.ChatAddr != nil {
		c.ChatAddr = *y.ChatAddr
	}
	if y.WebAddr != nil {
		c.WebAddr = *y.WebAddr
	}
	if y.MaxClients != nil {
		c.MaxClients = *y.MaxClients
	}
	if y.Rate != nil {
		c.Rate = *y.Rate
	}
	if y.Burst != nil {
		c.Burst = *y.Burst
	}
	if y.Strikes != nil {
		c.Strikes = *y.Strikes
	}
	if y.LogLevel != nil {
		c.LogLevel = *y.LogLevel
	}
	if y.LogFormat != nil {
		c.LogFormat = *y.LogFormat
	}
	if y.MOTD != nil {
		c.MOTD = *y.MOTD
	}
	if y.MOTDFile != nil {
		c.MOTDFile = *y.MOTDFile
	}
	if y.HistorySize != nil {
		c.HistorySize = *y.HistorySize
	}
	if y.NickReserveSecs != nil {
		c.NickReserveSecs = *y.NickReserveSecs
	}
	if y.StatsFile != nil {
		c.StatsFile = *y.StatsFile
	}
	if y.StatsMySQLDSN != nil {
		c.StatsMySQLDSN = *y.StatsMySQLDSN
	}
	if y.AdminPassword != nil {
		c.AdminPassword = *y.AdminPassword
	}
	if y.AdminPasswordHash != nil {
		c.AdminPasswordHash = *y.AdminPasswordHash
	}
	if y.AdminPasswordPrompt != nil {
		c.AdminPasswordPrompt = *y.AdminPasswordPrompt
	}
	if y.AdminConsole != nil {
		c.AdminConsole = *y.AdminConsole
	}
	if y.BanFile != nil {
		c.BanFile = *y.BanFile
	}
	if y.TLSCert != nil {
		c.TLSCert = *y.TLSCert
	}
	if y.TLSKey != nil {
		c.TLSKey = *y.TLSKey
	}
	if y.IdentTimeout != nil {
		d, err := time.ParseDuration(*y.IdentTimeout)
		if err != nil {
			return fmt.Errorf("ident-timeout: %w", err)
		}
		c.IdentTimeout = d
	}
	if y.DNSTimeout != nil {
		d, err := time.ParseDuration(*y.DNSTimeout)
		if err != nil {
			return fmt.Errorf("dns-timeout: %w", err)
		}
		c.DNSTimeout = d
	}
	return nil
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg.applyYAML(&y)
}

// str reads a present, non-nil string option out of docopt's Opts map.
func str(opts docopt.Opts, key string) (string, bool) {
	v, ok := opts[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolFlag(opts docopt.Opts, key string) bool {
	v, ok := opts[key]
	if !ok || v == nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

func applyFlags(cfg *Config, opts docopt.Opts) error {
	if v, ok := str(opts, "--chat-addr"); ok {
		cfg.ChatAddr = v
	}
	if v, ok := str(opts, "--web-addr"); ok {
		cfg.WebAddr = v
	}
	if v, ok := str(opts, "--max-clients"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("--max-clients: %w", err)
		}
		cfg.MaxClients = n
	}
	if v, ok := str(opts, "--rate"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("--rate: %w", err)
		}
		cfg.Rate = f
	}
	if v, ok := str(opts, "--burst"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("--burst: %w", err)
		}
		cfg.Burst = f
	}
	if v, ok := str(opts, "--strikes"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("--strikes: %w", err)
		}
		cfg.Strikes = n
	}
	if v, ok := str(opts, "--log-level"); ok {
		cfg.LogLevel = v
	}
	if v, ok := str(opts, "--log-format"); ok {
		cfg.LogFormat = v
	}
	if v, ok := str(opts, "--motd"); ok {
		cfg.MOTD = v
	}
	if v, ok := str(opts, "--motd-file"); ok {
		cfg.MOTDFile = v
	}
	if v, ok := str(opts, "--history-size"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("--history-size: %w", err)
		}
		cfg.HistorySize = n
	}
	if v, ok := str(opts, "--nick-reserve-secs"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("--nick-reserve-secs: %w", err)
		}
		cfg.NickReserveSecs = n
	}
	if v, ok := str(opts, "--stats-file"); ok {
		cfg.StatsFile = v
	}
	if v, ok := str(opts, "--stats-mysql-dsn"); ok {
		cfg.StatsMySQLDSN = v
	}
	if v, ok := str(opts, "--admin-password"); ok {
		cfg.AdminPassword = v
	}
	if v, ok := str(opts, "--admin-password-hash"); ok {
		cfg.AdminPasswordHash = v
	}
	if boolFlag(opts, "--admin-password-prompt") {
		cfg.AdminPasswordPrompt = true
	}
	if boolFlag(opts, "--admin-console") {
		cfg.AdminConsole = true
	}
	if v, ok := str(opts, "--ban-file"); ok {
		cfg.BanFile = v
	}
	if v, ok := str(opts, "--tls-cert"); ok {
		cfg.TLSCert = v
	}
	if v, ok := str(opts, "--tls-key"); ok {
		cfg.TLSKey = v
	}
	if v, ok := str(opts, "--ident-timeout"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("--ident-timeout: %w", err)
		}
		cfg.IdentTimeout = d
	}
	if v, ok := str(opts, "--dns-timeout"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("--dns-timeout: %w", err)
		}
		cfg.DNSTimeout = d
	}
	return nil
}

// ParseConfig builds a Config by layering, lowest precedence first:
// built-in defaults, an optional --config YAML file, then explicit CLI
// flags.
func ParseConfig(argv []string) (*Config, error) {
	opts, err := docopt.ParseArgs(Usage, argv, Ver)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	if path, ok := str(opts, "--config"); ok && path != "" {
		if err := loadYAMLFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyFlags(cfg, opts); err != nil {
		return nil, err
	}

	if cfg.AdminPasswordPrompt && cfg.AdminPassword == "" && cfg.AdminPasswordHash == "" {
		pass, err := promptAdminPassword()
		if err != nil {
			return nil, fmt.Errorf("reading admin password: %w", err)
		}
		cfg.AdminPassword = pass
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations that can never serve correctly. It is
// intentionally permissive: most out-of-range numeric values are the
// operator's prerogative, not ours to second-guess.
func (c *Config) Validate() error {
	if c.MaxClients < 1 {
		return fmt.Errorf("--max-clients must be at least 1")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("--log-format must be text or json")
	}
	return nil
}

// promptAdminPassword reads a password from the controlling terminal
// without echoing it, so it never lands in shell history or a process
// listing the way --admin-password would.
func promptAdminPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Admin password: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pass), nil
}
