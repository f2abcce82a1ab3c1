package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jinzhu/configor"
	"github.com/joho/godotenv"
)

// DefaultOwner is the owner that feeds listed in FEEDS belong to.
const DefaultOwner = "default"

// Owner - A person or team responsible for a set of feeds
type Owner struct {
	Name  string   `yaml:"name"`
	Title string   `yaml:"title"` // Display name used in alerts
	Feeds []string `yaml:"feeds"`
}

// Config - Application configuration
type Config struct {
	Fetch struct {
		Timeout        int    `yaml:"timeout" default:"20" env:"REQUEST_TIMEOUT_SECONDS"`   // Timeout in seconds
		ConnectTimeout int    `yaml:"connect_timeout" default:"0" env:"FETCH_CONNECT_TIMEOUT"` // 0 falls back to Timeout
		ReadTimeout    int    `yaml:"read_timeout" default:"0" env:"FETCH_READ_TIMEOUT"`       // 0 falls back to Timeout
		Retries        int    `yaml:"retries" default:"1" env:"FETCH_RETRIES"`
		UserAgent      string `yaml:"user_agent" default:"FeedMonitorBot/1.0 (+https://example.org)" env:"USER_AGENT"`
		CacheSize      int    `yaml:"cache_size" default:"256" env:"FETCH_CACHE_SIZE"`
	} `yaml:"fetch"`
	Audit struct {
		Feeds              string  `yaml:"feeds" env:"FEEDS"` // Comma separated, owned by DefaultOwner
		Owners             []Owner `yaml:"owners"`
		AllowSubdomains    bool    `yaml:"allow_subdomains" default:"false" env:"ALLOW_SUBDOMAINS"`
		ProbeOriginEnabled bool    `yaml:"probe_origin_enabled" default:"false" env:"PROBE_ORIGIN_ENABLED"`
		Workers            int     `yaml:"workers" default:"1" env:"AUDIT_WORKERS"`
		RunTimeout         int     `yaml:"run_timeout" default:"0" env:"AUDIT_RUN_TIMEOUT"` // Seconds, 0 disables the deadline
	} `yaml:"audit"`
	Timezone string `yaml:"timezone" default:"Europe/Berlin" env:"TIMEZONE"`
	Log      struct {
		Dir           string `yaml:"dir" default:"logs" env:"LOG_DIR"`
		PublicBaseURL string `yaml:"public_base_url" env:"LOG_PUBLIC_BASE_URL"`
		Level         string `yaml:"level" default:"info" env:"LOG_LEVEL"`
		Development   bool   `yaml:"development" default:"false" env:"LOG_DEVELOPMENT"`
	} `yaml:"log"`
	Telegram struct {
		Enabled       bool    `yaml:"enabled" default:"true" env:"TELEGRAM_ENABLED"`
		BotToken      string  `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
		ChatID        string  `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
		RatePerSecond float64 `yaml:"rate_per_second" default:"1" env:"TELEGRAM_RATE_PER_SECOND"`
	} `yaml:"telegram"`
	Stats struct {
		Path string `yaml:"path" env:"FIDS_STAT_PATH"`
	} `yaml:"stats"`
	Metrics struct {
		Textfile string `yaml:"textfile" env:"METRICS_TEXTFILE"`
	} `yaml:"metrics"`
}

// LoadConfig - Load .env, then the configuration file (when present) and the environment
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env file")
	}

	var files []string
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			files = append(files, path)
		}
	}

	cfg := &Config{}
	err := configor.New(&configor.Config{
		Debug:      false,
		Verbose:    false,
		Silent:     true,
		AutoReload: false,
	}).Load(cfg, files...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}

	cfg.applyEnvFallbacks()
	return cfg, nil
}

// applyEnvFallbacks reads the legacy variable names FEED_URLS, BOT_TOKEN and CHAT_ID.
func (c *Config) applyEnvFallbacks() {
	if c.Audit.Feeds == "" {
		c.Audit.Feeds = os.Getenv("FEED_URLS")
	}
	if c.Telegram.BotToken == "" {
		c.Telegram.BotToken = os.Getenv("BOT_TOKEN")
	}
	if c.Telegram.ChatID == "" {
		c.Telegram.ChatID = os.Getenv("CHAT_ID")
	}
}

// Validate - Check that the configuration is usable
func (c *Config) Validate() error {
	if c.Fetch.Timeout <= 0 {
		return errors.New("fetch timeout must be positive")
	}
	if c.Fetch.ConnectTimeout < 0 || c.Fetch.ReadTimeout < 0 {
		return errors.New("fetch connect and read timeouts cannot be negative")
	}
	if c.Fetch.Retries < 0 {
		return errors.New("fetch retries cannot be negative")
	}
	if c.Audit.Workers < 0 {
		return errors.New("audit workers cannot be negative")
	}
	if c.Audit.RunTimeout < 0 {
		return errors.New("audit run timeout cannot be negative")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.Wrapf(err, "invalid timezone %q", c.Timezone)
	}
	for _, o := range c.Audit.Owners {
		if strings.TrimSpace(o.Name) == "" {
			return errors.New("owner name cannot be empty")
		}
	}
	return nil
}

// OwnerList - All owners with their feeds; FEEDS entries are grouped under DefaultOwner
func (c *Config) OwnerList() []Owner {
	owners := make([]Owner, 0, len(c.Audit.Owners)+1)
	if feeds := SplitCSV(c.Audit.Feeds); len(feeds) > 0 {
		owners = append(owners, Owner{Name: DefaultOwner, Feeds: feeds})
	}
	for _, o := range c.Audit.Owners {
		feeds := make([]string, 0, len(o.Feeds))
		for _, f := range o.Feeds {
			if f = strings.TrimSpace(f); f != "" {
				feeds = append(feeds, f)
			}
		}
		o.Feeds = feeds
		owners = append(owners, o)
	}
	return owners
}

// OwnerTitles - Display names keyed by lower-cased owner name
func (c *Config) OwnerTitles() map[string]string {
	titles := make(map[string]string)
	for _, o := range c.Audit.Owners {
		if o.Title != "" {
			titles[strings.ToLower(o.Name)] = o.Title
		}
	}
	return titles
}

// Location - The configured timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StatsPath - Location of the daily stats document
func (c *Config) StatsPath() string {
	if c.Stats.Path == "" {
		return filepath.Join(c.Log.Dir, "fids_stat.json")
	}
	if strings.EqualFold(filepath.Ext(c.Stats.Path), ".json") {
		return c.Stats.Path
	}
	return filepath.Join(c.Stats.Path, "fids_stat.json")
}

// SplitCSV - Split a comma separated list, dropping blanks
func SplitCSV(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
