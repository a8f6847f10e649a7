// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	PublicURL   string `yaml:"public_url"`   // base URL the provider can reach us on
	WebhookPath string `yaml:"webhook_path"` // defaults to /webhook/try-on
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

func (c *RedisConfig) UnmarshalYAML(n *yaml.Node) error {
	type alias struct {
		URL      string        `yaml:"url"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTL      durationValue `yaml:"ttl"`
	}
	var a alias
	if err := n.Decode(&a); err != nil {
		return err
	}
	*c = RedisConfig{URL: a.URL, Password: a.Password, DB: a.DB, TTL: time.Duration(a.TTL)}
	return nil
}

type ProviderConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	DefaultCategory string        `yaml:"default_category"`
	SubmitTimeout   time.Duration `yaml:"submit_timeout"`
	PollTimeout     time.Duration `yaml:"poll_timeout"`
	CallbackSecret  string        `yaml:"callback_secret"` // HMAC key for callback tokens
	CallbackTTL     time.Duration `yaml:"callback_ttl"`
}

func (c *ProviderConfig) UnmarshalYAML(n *yaml.Node) error {
	type alias struct {
		BaseURL         string        `yaml:"base_url"`
		APIKey          string        `yaml:"api_key"`
		DefaultCategory string        `yaml:"default_category"`
		SubmitTimeout   durationValue `yaml:"submit_timeout"`
		PollTimeout     durationValue `yaml:"poll_timeout"`
		CallbackSecret  string        `yaml:"callback_secret"`
		CallbackTTL     durationValue `yaml:"callback_ttl"`
	}
	var a alias
	if err := n.Decode(&a); err != nil {
		return err
	}
	*c = ProviderConfig{
		BaseURL:         a.BaseURL,
		APIKey:          a.APIKey,
		DefaultCategory: a.DefaultCategory,
		SubmitTimeout:   time.Duration(a.SubmitTimeout),
		PollTimeout:     time.Duration(a.PollTimeout),
		CallbackSecret:  a.CallbackSecret,
		CallbackTTL:     time.Duration(a.CallbackTTL),
	}
	return nil
}

type StorageConfig struct {
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	Prefix        string `yaml:"prefix"`
	PublicBaseURL string `yaml:"public_base_url"` // CDN or bucket website base
}

type WorkerConfig struct {
	Workers      int           `yaml:"workers"`
	PollEvery    time.Duration `yaml:"poll_every"` // queue poll interval
	MaxAttempts  int           `yaml:"max_attempts"`
	BackoffBase  time.Duration `yaml:"backoff_base"`
	BackoffLimit time.Duration `yaml:"backoff_limit"`
	LeaseTTL     time.Duration `yaml:"lease_ttl"` // processing rows older than this get requeued
}

func (c *WorkerConfig) UnmarshalYAML(n *yaml.Node) error {
	type alias struct {
		Workers      int           `yaml:"workers"`
		PollEvery    durationValue `yaml:"poll_every"`
		MaxAttempts  int           `yaml:"max_attempts"`
		BackoffBase  durationValue `yaml:"backoff_base"`
		BackoffLimit durationValue `yaml:"backoff_limit"`
		LeaseTTL     durationValue `yaml:"lease_ttl"`
	}
	var a alias
	if err := n.Decode(&a); err != nil {
		return err
	}
	*c = WorkerConfig{
		Workers:      a.Workers,
		PollEvery:    time.Duration(a.PollEvery),
		MaxAttempts:  a.MaxAttempts,
		BackoffBase:  time.Duration(a.BackoffBase),
		BackoffLimit: time.Duration(a.BackoffLimit),
		LeaseTTL:     time.Duration(a.LeaseTTL),
	}
	return nil
}

type PollerConfig struct {
	Interval   time.Duration `yaml:"interval"`    // scan interval
	StaleAfter time.Duration `yaml:"stale_after"` // no signal for this long => poll
	FailAfter  time.Duration `yaml:"fail_after"`  // hard ceiling => failed/timeout
	BatchSize  int           `yaml:"batch_size"`
}

func (c *PollerConfig) UnmarshalYAML(n *yaml.Node) error {
	type alias struct {
		Interval   durationValue `yaml:"interval"`
		StaleAfter durationValue `yaml:"stale_after"`
		FailAfter  durationValue `yaml:"fail_after"`
		BatchSize  int           `yaml:"batch_size"`
	}
	var a alias
	if err := n.Decode(&a); err != nil {
		return err
	}
	*c = PollerConfig{
		Interval:   time.Duration(a.Interval),
		StaleAfter: time.Duration(a.StaleAfter),
		FailAfter:  time.Duration(a.FailAfter),
		BatchSize:  a.BatchSize,
	}
	return nil
}

// durationValue decodes either a Go duration string ("90s", "15m") or a bare
// integer, read as seconds.
type durationValue time.Duration

func (d *durationValue) UnmarshalYAML(n *yaml.Node) error {
	if n.Tag == "!!int" {
		var secs int64
		if err := n.Decode(&secs); err != nil {
			return err
		}
		*d = durationValue(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = durationValue(v)
	return nil
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Provider ProviderConfig `yaml:"provider"`
	Storage  StorageConfig  `yaml:"storage"`
	Worker   WorkerConfig   `yaml:"worker"`
	Poller   PollerConfig   `yaml:"poller"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.WebhookPath == "" {
		cfg.Server.WebhookPath = "/webhook/try-on"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Provider.DefaultCategory == "" {
		cfg.Provider.DefaultCategory = "upper_body"
	}
	if cfg.Provider.SubmitTimeout <= 0 {
		cfg.Provider.SubmitTimeout = 30 * time.Second
	}
	if cfg.Provider.PollTimeout <= 0 {
		cfg.Provider.PollTimeout = 15 * time.Second
	}
	if cfg.Provider.CallbackTTL <= 0 {
		cfg.Provider.CallbackTTL = 24 * time.Hour
	}
	if cfg.Worker.Workers <= 0 {
		cfg.Worker.Workers = 4
	}
	if cfg.Worker.PollEvery <= 0 {
		cfg.Worker.PollEvery = 500 * time.Millisecond
	}
	if cfg.Worker.MaxAttempts <= 0 {
		cfg.Worker.MaxAttempts = 5
	}
	if cfg.Worker.BackoffBase <= 0 {
		cfg.Worker.BackoffBase = 2 * time.Second
	}
	if cfg.Worker.BackoffLimit <= 0 {
		cfg.Worker.BackoffLimit = 2 * time.Minute
	}
	if cfg.Worker.LeaseTTL <= 0 {
		cfg.Worker.LeaseTTL = 5 * time.Minute
	}
	if cfg.Poller.Interval <= 0 {
		cfg.Poller.Interval = 30 * time.Second
	}
	if cfg.Poller.StaleAfter <= 0 {
		cfg.Poller.StaleAfter = 90 * time.Second
	}
	if cfg.Poller.FailAfter <= 0 {
		cfg.Poller.FailAfter = 15 * time.Minute
	}
	if cfg.Poller.BatchSize <= 0 {
		cfg.Poller.BatchSize = 50
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Provider.BaseURL == "" && !dev {
		return nil, errors.New("provider.base_url is required")
	}
	if cfg.Server.PublicURL == "" && !dev {
		return nil, errors.New("server.public_url is required (webhook callbacks)")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
