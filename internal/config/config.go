package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigError marks a fatal startup misconfiguration. Anything else the
// loader can clamp or default is not an error.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "config: " + e.Reason }

// NodePortPeer carries the per-protocol ports a peer exposes through
// node ports. A zero port means that protocol is not reachable this way.
type NodePortPeer struct {
	Host     string `yaml:"host"`
	WSPort   int    `yaml:"ws_port"`
	TCPPort  int    `yaml:"tcp_port"`
	HTTPPort int    `yaml:"http_port"`
}

// LBPorts are the fixed service ports behind every load-balanced IP.
type LBPorts struct {
	WS   int `yaml:"ws"`
	TCP  int `yaml:"tcp"`
	HTTP int `yaml:"http"`
}

// ProbeConfig holds cadence and timeout settings, in milliseconds so the
// sub-second intervals the migration runs with stay expressible in YAML.
type ProbeConfig struct {
	HTTPIntervalMS   int `yaml:"http_interval_ms"`
	WSIntervalMS     int `yaml:"ws_interval_ms"`
	TCPIntervalMS    int `yaml:"tcp_interval_ms"`
	PollIntervalMS   int `yaml:"poll_interval_ms"`
	ReconnectDelayMS int `yaml:"reconnect_delay_ms"`
	HTTPTimeoutMS    int `yaml:"http_timeout_ms"`
	WSOpenTimeoutMS  int `yaml:"ws_open_timeout_ms"`
	TCPConnTimeoutMS int `yaml:"tcp_connect_timeout_ms"`
}

func (p ProbeConfig) HTTPInterval() time.Duration   { return ms(p.HTTPIntervalMS) }
func (p ProbeConfig) WSInterval() time.Duration     { return ms(p.WSIntervalMS) }
func (p ProbeConfig) TCPInterval() time.Duration    { return ms(p.TCPIntervalMS) }
func (p ProbeConfig) PollInterval() time.Duration   { return ms(p.PollIntervalMS) }
func (p ProbeConfig) ReconnectDelay() time.Duration { return ms(p.ReconnectDelayMS) }
func (p ProbeConfig) HTTPTimeout() time.Duration    { return ms(p.HTTPTimeoutMS) }
func (p ProbeConfig) WSOpenTimeout() time.Duration  { return ms(p.WSOpenTimeoutMS) }
func (p ProbeConfig) TCPConnTimeout() time.Duration { return ms(p.TCPConnTimeoutMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// TrackerConfig tunes debouncing and history retention.
type TrackerConfig struct {
	DownThreshold int `yaml:"down_threshold"`
	UpThreshold   int `yaml:"up_threshold"`
	MaxHistory    int `yaml:"max_history"`
}

// Config is the bastion monitor configuration.
type Config struct {
	ListenAddr    string                  `yaml:"listen_addr"`
	LogDir        string                  `yaml:"log_dir"`
	AdminKeys     []string                `yaml:"admin_keys"`
	RateLimitRPM  int                     `yaml:"rate_limit_rpm"`
	SlackWebhook  string                  `yaml:"slack_webhook"`
	AlertCooldown time.Duration           `yaml:"-"`
	CooldownSec   int                     `yaml:"alert_cooldown_seconds"`
	ArchiveDSN    string                  `yaml:"archive_dsn"`
	LoadBalancers map[string]string       `yaml:"load_balancers"`
	NodePorts     map[string]NodePortPeer `yaml:"node_ports"`
	Routes        []string                `yaml:"routes"`
	LBPorts       LBPorts                 `yaml:"lb_ports"`
	Probe         ProbeConfig             `yaml:"probe"`
	Tracker       TrackerConfig           `yaml:"tracker"`
}

// PeerConfig is the peer responder configuration.
type PeerConfig struct {
	Name     string        `yaml:"name"`
	Peers    []string      `yaml:"peers"`
	WSPort   int           `yaml:"ws_port"`
	TCPPort  int           `yaml:"tcp_port"`
	HTTPPort int           `yaml:"http_port"`
	LogDir   string        `yaml:"log_dir"`
	Probe    ProbeConfig   `yaml:"probe"`
	Tracker  TrackerConfig `yaml:"tracker"`
}

// Default returns the configuration the original lab setup runs with.
func Default() Config {
	return Config{
		ListenAddr:   ":9091",
		LogDir:       "logs",
		RateLimitRPM: 600,
		CooldownSec:  300,
		LBPorts:      LBPorts{WS: 8080, TCP: 8081, HTTP: 8082},
		Probe:        defaultProbe(),
		Tracker:      defaultTracker(),
	}
}

// DefaultPeer returns peer responder defaults.
func DefaultPeer() PeerConfig {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "peer-local"
	}
	p := defaultProbe()
	p.HTTPIntervalMS = 500
	p.WSIntervalMS = 100
	p.TCPIntervalMS = 100
	return PeerConfig{
		Name:     hostname,
		WSPort:   8080,
		TCPPort:  8081,
		HTTPPort: 8082,
		LogDir:   "logs",
		Probe:    p,
		Tracker:  defaultTracker(),
	}
}

func defaultProbe() ProbeConfig {
	return ProbeConfig{
		HTTPIntervalMS:   1000,
		WSIntervalMS:     500,
		TCPIntervalMS:    500,
		PollIntervalMS:   1000,
		ReconnectDelayMS: 1000,
		HTTPTimeoutMS:    1000,
		WSOpenTimeoutMS:  1000,
		TCPConnTimeoutMS: 1000,
	}
}

func defaultTracker() TrackerConfig {
	return TrackerConfig{DownThreshold: 1, UpThreshold: 1, MaxHistory: 200}
}

// Load reads the bastion config from a YAML file. A missing file falls
// back to defaults; a present but invalid one is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// defaults
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	// Validation also derives AlertCooldown, so it runs on every path,
	// defaults included.
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadPeer reads the peer responder config from a YAML file.
func LoadPeer(path string) (PeerConfig, error) {
	cfg := DefaultPeer()
	if path == "" {
		return cfg, nil
	}
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return PeerConfig{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return PeerConfig{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.Probe = clampProbe(cfg.Probe)
	cfg.Tracker = clampTracker(cfg.Tracker)
	if cfg.Name == "" {
		return PeerConfig{}, &ConfigError{Reason: "peer name is empty"}
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return &ConfigError{Reason: "listen_addr is empty"}
	}
	c.Probe = clampProbe(c.Probe)
	c.Tracker = clampTracker(c.Tracker)
	if c.LBPorts.WS <= 0 {
		c.LBPorts.WS = 8080
	}
	if c.LBPorts.TCP <= 0 {
		c.LBPorts.TCP = 8081
	}
	if c.LBPorts.HTTP <= 0 {
		c.LBPorts.HTTP = 8082
	}
	if c.CooldownSec < 0 {
		c.CooldownSec = 0
	}
	c.AlertCooldown = time.Duration(c.CooldownSec) * time.Second
	return nil
}

func clampProbe(p ProbeConfig) ProbeConfig {
	d := defaultProbe()
	if p.HTTPIntervalMS <= 0 {
		p.HTTPIntervalMS = d.HTTPIntervalMS
	}
	if p.WSIntervalMS <= 0 {
		p.WSIntervalMS = d.WSIntervalMS
	}
	if p.TCPIntervalMS <= 0 {
		p.TCPIntervalMS = d.TCPIntervalMS
	}
	if p.PollIntervalMS <= 0 {
		p.PollIntervalMS = d.PollIntervalMS
	}
	if p.ReconnectDelayMS <= 0 {
		p.ReconnectDelayMS = d.ReconnectDelayMS
	}
	if p.HTTPTimeoutMS <= 0 {
		p.HTTPTimeoutMS = d.HTTPTimeoutMS
	}
	if p.WSOpenTimeoutMS <= 0 {
		p.WSOpenTimeoutMS = d.WSOpenTimeoutMS
	}
	if p.TCPConnTimeoutMS <= 0 {
		p.TCPConnTimeoutMS = d.TCPConnTimeoutMS
	}
	return p
}

func clampTracker(t TrackerConfig) TrackerConfig {
	if t.DownThreshold < 1 {
		t.DownThreshold = 1
	}
	if t.UpThreshold < 1 {
		t.UpThreshold = 1
	}
	if t.MaxHistory < 1 {
		t.MaxHistory = 200
	}
	return t
}
