package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config is the persistent application configuration.
type Config struct {
	Feed  FeedConfig  `json:"feed"`
	Wiki  WikiConfig  `json:"wiki"`
	UI    UIConfig    `json:"ui"`
	Store StoreConfig `json:"store"`
}

// FeedConfig tunes the stream controller.
type FeedConfig struct {
	ThinThreshold int `json:"thin_threshold"` // fresh items below this trigger an automatic follow-up
	RetryDelayMs  int `json:"retry_delay_ms"` // pause after an all-duplicate page
	ThinDelayMs   int `json:"thin_delay_ms"`  // pause before a thin-batch follow-up
}

// WikiConfig configures the Wikipedia gateway.
type WikiConfig struct {
	Endpoint          string  `json:"endpoint"`
	FeedEndpoint      string  `json:"feed_endpoint"` // featured-content RSS
	UserAgent         string  `json:"user_agent"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	PageSize          int     `json:"page_size"`
}

// UIConfig holds UI preferences.
type UIConfig struct {
	ProximityRows    int  `json:"proximity_rows"`   // load more when the cursor is this close to the end
	PollIntervalMs   int  `json:"poll_interval_ms"` // fallback position check
	ImagesOnly       bool `json:"images_only"`
	ShowDebugOverlay bool `json:"show_debug_overlay"`
}

// StoreConfig locates the article database.
type StoreConfig struct {
	Path    string `json:"path"` // empty means <data dir>/wikiscroll.db
	Enabled bool   `json:"enabled"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			ThinThreshold: 5,
			RetryDelayMs:  500,
			ThinDelayMs:   1000,
		},
		Wiki: WikiConfig{
			Endpoint:          "https://en.wikipedia.org/w/api.php",
			FeedEndpoint:      "https://en.wikipedia.org/w/api.php",
			UserAgent:         "wikiscroll/0.3 (https://github.com/abelbrown/wikiscroll)",
			TimeoutSeconds:    20,
			RequestsPerSecond: 2,
			PageSize:          10,
		},
		UI: UIConfig{
			ProximityRows:  3,
			PollIntervalMs: 750,
		},
		Store: StoreConfig{
			Enabled: true,
		},
	}
}

// DataDir returns ~/.wikiscroll, or $WIKISCROLL_HOME when set.
func DataDir() string {
	if dir := os.Getenv("WIKISCROLL_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wikiscroll")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// Load reads the config at path. A missing file yields defaults. Values
// absent from the file keep their defaults. Environment overrides are
// applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.ApplyEnv()
	cfg.normalize()
	return cfg, nil
}

// Save writes the config to path, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides fields from WIKISCROLL_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("WIKISCROLL_ENDPOINT"); v != "" {
		c.Wiki.Endpoint = v
		c.Wiki.FeedEndpoint = v
	}
	if v := os.Getenv("WIKISCROLL_USER_AGENT"); v != "" {
		c.Wiki.UserAgent = v
	}
	if v := os.Getenv("WIKISCROLL_DB"); v != "" {
		c.Store.Path = v
	}
}

// normalize replaces nonsensical values with defaults.
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.Feed.ThinThreshold <= 0 {
		c.Feed.ThinThreshold = d.Feed.ThinThreshold
	}
	if c.Feed.RetryDelayMs <= 0 {
		c.Feed.RetryDelayMs = d.Feed.RetryDelayMs
	}
	if c.Feed.ThinDelayMs <= 0 {
		c.Feed.ThinDelayMs = d.Feed.ThinDelayMs
	}
	if c.Wiki.Endpoint == "" {
		c.Wiki.Endpoint = d.Wiki.Endpoint
	}
	if c.Wiki.FeedEndpoint == "" {
		c.Wiki.FeedEndpoint = c.Wiki.Endpoint
	}
	if c.Wiki.TimeoutSeconds <= 0 {
		c.Wiki.TimeoutSeconds = d.Wiki.TimeoutSeconds
	}
	if c.Wiki.RequestsPerSecond <= 0 {
		c.Wiki.RequestsPerSecond = d.Wiki.RequestsPerSecond
	}
	if c.Wiki.PageSize <= 0 || c.Wiki.PageSize > 50 {
		c.Wiki.PageSize = d.Wiki.PageSize
	}
	if c.UI.ProximityRows < 0 {
		c.UI.ProximityRows = d.UI.ProximityRows
	}
	if c.UI.PollIntervalMs <= 0 {
		c.UI.PollIntervalMs = d.UI.PollIntervalMs
	}
}

// DBPath returns the database path, defaulting to the data directory.
func (c *Config) DBPath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(DataDir(), "wikiscroll.db")
}

// RetryDelay returns Feed.RetryDelayMs as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Feed.RetryDelayMs) * time.Millisecond
}

// ThinDelay returns Feed.ThinDelayMs as a duration.
func (c *Config) ThinDelay() time.Duration {
	return time.Duration(c.Feed.ThinDelayMs) * time.Millisecond
}

// PollInterval returns UI.PollIntervalMs as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.UI.PollIntervalMs) * time.Millisecond
}

// Timeout returns the HTTP timeout for gateway requests.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Wiki.TimeoutSeconds) * time.Second
}
