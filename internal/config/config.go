package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Transport names accepted in Config.Transport.
const (
	TransportPull = "pull"
	TransportPush = "push"
)

// Config is the application configuration.
type Config struct {
	// Transport selects the connector: "pull" (HTTP polling) or "push" (WebSocket).
	Transport string `json:"transport" yaml:"transport" toml:"transport"`

	Pull    PullConfig    `json:"pull" yaml:"pull" toml:"pull"`
	Push    PushConfig    `json:"push" yaml:"push" toml:"push"`
	Feed    FeedConfig    `json:"feed" yaml:"feed" toml:"feed"`
	Backoff BackoffConfig `json:"backoff" yaml:"backoff" toml:"backoff"`
	Log     LogConfig     `json:"log" yaml:"log" toml:"log"`
	Journal JournalConfig `json:"journal" yaml:"journal" toml:"journal"`
}

// PullConfig configures HTTP polling against <base_url>/api/data.
type PullConfig struct {
	BaseURL    string `json:"base_url" yaml:"base_url" toml:"base_url"`
	Source     string `json:"source" yaml:"source" toml:"source"` // target listing URL / filter sent in the request body
	IntervalMs int    `json:"interval_ms" yaml:"interval_ms" toml:"interval_ms"`
	TimeoutMs  int    `json:"timeout_ms" yaml:"timeout_ms" toml:"timeout_ms"`
}

// PushConfig configures the WebSocket channel at <base_url>/ws.
type PushConfig struct {
	BaseURL         string `json:"base_url" yaml:"base_url" toml:"base_url"`
	MaxMessageBytes int64  `json:"max_message_bytes" yaml:"max_message_bytes" toml:"max_message_bytes"`
}

// FeedConfig configures reconciliation and highlighting.
type FeedConfig struct {
	MaxSize            int    `json:"max_size" yaml:"max_size" toml:"max_size"`
	HighlightTTLMs     int    `json:"highlight_ttl_ms" yaml:"highlight_ttl_ms" toml:"highlight_ttl_ms"`
	SeenScope          string `json:"seen_scope" yaml:"seen_scope" toml:"seen_scope"` // "displayed" or "snapshot"
	HighlightFirstLoad bool   `json:"highlight_first_load" yaml:"highlight_first_load" toml:"highlight_first_load"`
}

// BackoffConfig bounds the reconnect delay of the push transport.
type BackoffConfig struct {
	MinMs  int     `json:"min_ms" yaml:"min_ms" toml:"min_ms"`
	MaxMs  int     `json:"max_ms" yaml:"max_ms" toml:"max_ms"`
	Jitter float64 `json:"jitter" yaml:"jitter" toml:"jitter"` // fraction of the delay, 0..1
}

// LogConfig configures the JSONL event log.
type LogConfig struct {
	Path string `json:"path" yaml:"path" toml:"path"`
}

// JournalConfig configures the SQLite arrival journal.
type JournalConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Path    string `json:"path" yaml:"path" toml:"path"`
}

// DefaultConfig returns sensible defaults. Base URLs are left empty: there is
// no sensible default endpoint, and Validate rejects a missing one.
func DefaultConfig() *Config {
	dir := DataDir()
	return &Config{
		Transport: TransportPull,
		Pull: PullConfig{
			IntervalMs: 2000,
			TimeoutMs:  15000,
		},
		Push: PushConfig{
			MaxMessageBytes: 8 << 20,
		},
		Feed: FeedConfig{
			MaxSize:        200,
			HighlightTTLMs: 5000,
			SeenScope:      "displayed",
		},
		Backoff: BackoffConfig{
			MinMs:  500,
			MaxMs:  30000,
			Jitter: 0.2,
		},
		Log: LogConfig{
			Path: filepath.Join(dir, "events.jsonl"),
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "journal.db"),
		},
	}
}

// DataDir returns ~/.livefeed, or a temp directory if home is unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "livefeed")
	}
	return filepath.Join(home, ".livefeed")
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// Load reads config from path over the defaults. The format follows the file
// extension: .json, .yaml/.yml or .toml. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".json", "":
		err = json.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("config %s: unsupported format %q", path, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Encode renders the config in the format named by ext, using the same
// extensions Load accepts.
func (c *Config) Encode(ext string) ([]byte, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		return yaml.Marshal(c)
	case "toml":
		return toml.Marshal(c)
	case "json", "":
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	return nil, fmt.Errorf("unsupported config format %q", ext)
}

// Save writes the config to path in the format its extension names.
func (c *Config) Save(path string) error {
	data, err := c.Encode(filepath.Ext(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Overrides are settings layered over the config file by the environment
// and then by flags. Zero fields leave the file's value in place.
type Overrides struct {
	Transport  string
	BaseURL    string
	Source     string
	IntervalMs int
}

// EnvOverrides reads the LIVEFEED_* environment variables.
func EnvOverrides() (Overrides, error) {
	o := Overrides{
		Transport: os.Getenv("LIVEFEED_TRANSPORT"),
		BaseURL:   os.Getenv("LIVEFEED_BASE_URL"),
		Source:    os.Getenv("LIVEFEED_SOURCE"),
	}
	if v := os.Getenv("LIVEFEED_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return o, fmt.Errorf("LIVEFEED_INTERVAL_MS: %w", err)
		}
		o.IntervalMs = ms
	}
	return o, nil
}

// Apply overlays o. The transport is settled before the base URL is routed,
// so a base URL always lands on the transport that will run.
func (c *Config) Apply(o Overrides) {
	if o.Transport != "" {
		c.Transport = o.Transport
	}
	if o.BaseURL != "" {
		c.SetBaseURL(o.BaseURL)
	}
	if o.Source != "" {
		c.Pull.Source = o.Source
	}
	if o.IntervalMs != 0 {
		c.Pull.IntervalMs = o.IntervalMs
	}
}

// SetBaseURL sets the base URL of the selected transport.
func (c *Config) SetBaseURL(u string) {
	if c.Transport == TransportPush {
		c.Push.BaseURL = u
		return
	}
	c.Pull.BaseURL = u
}

// BaseURL returns the base URL of the selected transport.
func (c *Config) BaseURL() string {
	if c.Transport == TransportPush {
		return c.Push.BaseURL
	}
	return c.Pull.BaseURL
}

// Validate reports configuration errors. These are the only fatal errors in
// livefeed and are checked once at startup.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport {
	case TransportPull, TransportPush:
	default:
		errs = append(errs, fmt.Errorf("transport: must be %q or %q, got %q", TransportPull, TransportPush, c.Transport))
	}

	if err := validateBaseURL(c.BaseURL(), c.Transport); err != nil {
		errs = append(errs, err)
	}

	if c.Transport == TransportPull {
		if c.Pull.IntervalMs <= 0 {
			errs = append(errs, fmt.Errorf("pull.interval_ms: must be positive, got %d", c.Pull.IntervalMs))
		}
		if c.Pull.TimeoutMs < 0 {
			errs = append(errs, fmt.Errorf("pull.timeout_ms: must not be negative, got %d", c.Pull.TimeoutMs))
		}
	}
	if c.Feed.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("feed.max_size: must be positive, got %d", c.Feed.MaxSize))
	}
	if c.Feed.HighlightTTLMs <= 0 {
		errs = append(errs, fmt.Errorf("feed.highlight_ttl_ms: must be positive, got %d", c.Feed.HighlightTTLMs))
	}
	switch c.Feed.SeenScope {
	case "", "displayed", "snapshot":
	default:
		errs = append(errs, fmt.Errorf("feed.seen_scope: must be \"displayed\" or \"snapshot\", got %q", c.Feed.SeenScope))
	}
	if c.Backoff.MinMs <= 0 || c.Backoff.MaxMs <= 0 {
		errs = append(errs, fmt.Errorf("backoff: min_ms and max_ms must be positive"))
	} else if c.Backoff.MinMs > c.Backoff.MaxMs {
		errs = append(errs, fmt.Errorf("backoff: min_ms %d exceeds max_ms %d", c.Backoff.MinMs, c.Backoff.MaxMs))
	}
	if c.Backoff.Jitter < 0 || c.Backoff.Jitter > 1 {
		errs = append(errs, fmt.Errorf("backoff.jitter: must be within [0,1], got %g", c.Backoff.Jitter))
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, errors.New("journal.path: required when the journal is enabled"))
	}

	return errors.Join(errs...)
}

func validateBaseURL(raw, transport string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s.base_url: required", transport)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s.base_url: %w", transport, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("%s.base_url: unsupported scheme %q", transport, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s.base_url: missing host", transport)
	}
	return nil
}

// PollInterval returns the pull interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Pull.IntervalMs) * time.Millisecond
}

// RequestTimeout returns the configured per-request timeout. The poller
// substitutes its 30s default when this is zero.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Pull.TimeoutMs) * time.Millisecond
}

// HighlightTTL returns how long arrivals stay highlighted.
func (c *Config) HighlightTTL() time.Duration {
	return time.Duration(c.Feed.HighlightTTLMs) * time.Millisecond
}

// BackoffMin returns the smallest reconnect delay.
func (c *Config) BackoffMin() time.Duration {
	return time.Duration(c.Backoff.MinMs) * time.Millisecond
}

// BackoffMax returns the largest reconnect delay.
func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Backoff.MaxMs) * time.Millisecond
}
