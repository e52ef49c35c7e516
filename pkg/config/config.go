package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	MySQL  MySQLConfig  `yaml:"mysql"`
	Queue  QueueConfig  `yaml:"queue"`
	LMS    LMSConfig    `yaml:"lms"`
	Sync   SyncConfig   `yaml:"sync"`
	Logger LoggerConfig `yaml:"logger"`

	Notification NotificationConfig `yaml:"notification"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port          int    `yaml:"port"`
	Mode          string `yaml:"mode"`           // debug, release
	APIKey        string `yaml:"api_key"`        // API key for privileged endpoints (if empty, auth is disabled)
	WebhookSecret string `yaml:"webhook_secret"` // HMAC secret for webhook signature verification
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// QueueConfig queue configuration
type QueueConfig struct {
	Concurrency        int `yaml:"concurrency"`         // worker pool size
	MaxRetry           int `yaml:"max_retry"`           // maximum retry count for retryable failures
	RetryBaseDelay     int `yaml:"retry_base_delay"`    // base delay for exponential backoff (seconds)
	JobTimeout         int `yaml:"job_timeout"`         // per-job timeout (seconds)
	CompletedRetention int `yaml:"completed_retention"` // completed jobs retained for inspection
	FailedRetention    int `yaml:"failed_retention"`    // failed jobs retained in the dead-letter set
}

// LMSConfig external LMS API configuration
type LMSConfig struct {
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	Subdomain    string `yaml:"subdomain"`
	MaxRequests  int    `yaml:"max_requests"`   // requests allowed per window
	WindowMs     int    `yaml:"window_ms"`      // rate limit window (milliseconds)
	RetryAfterMs int    `yaml:"retry_after_ms"` // spacing between drained requests (milliseconds)
	TimeoutSec   int    `yaml:"timeout_sec"`    // request timeout (seconds)
}

// SyncConfig reconciliation sync configuration
type SyncConfig struct {
	Enabled     bool `yaml:"enabled"`      // whether the periodic reconciliation job runs
	IntervalSec int  `yaml:"interval_sec"` // reconciliation interval (seconds)
	PageSize    int  `yaml:"page_size"`    // LMS listing page size
	CursorTTLh  int  `yaml:"cursor_ttl_h"` // cursor expiry (hours)
	LookbackH   int  `yaml:"lookback_h"`   // default cursor lookback on first run (hours)
}

// NotificationConfig operational alerting configuration
type NotificationConfig struct {
	FeishuWebhookURL string `yaml:"feishu_webhook_url"`
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	cfg.ApplyDefaults()
	GlobalConfig = &cfg
	return nil
}

// ApplyDefaults fills zero-valued settings with operational defaults.
func (c *Config) ApplyDefaults() {
	if c.Queue.Concurrency <= 0 {
		c.Queue.Concurrency = 5
	}
	if c.Queue.MaxRetry <= 0 {
		c.Queue.MaxRetry = 3
	}
	if c.Queue.RetryBaseDelay <= 0 {
		c.Queue.RetryBaseDelay = 2
	}
	if c.Queue.JobTimeout <= 0 {
		c.Queue.JobTimeout = 60
	}
	if c.Queue.CompletedRetention <= 0 {
		c.Queue.CompletedRetention = 100
	}
	if c.Queue.FailedRetention <= 0 {
		c.Queue.FailedRetention = 50
	}
	if c.LMS.MaxRequests <= 0 {
		c.LMS.MaxRequests = 100
	}
	if c.LMS.WindowMs <= 0 {
		c.LMS.WindowMs = 60000
	}
	if c.LMS.RetryAfterMs <= 0 {
		c.LMS.RetryAfterMs = 1000
	}
	if c.LMS.TimeoutSec <= 0 {
		c.LMS.TimeoutSec = 30
	}
	if c.Sync.IntervalSec <= 0 {
		c.Sync.IntervalSec = 900
	}
	if c.Sync.PageSize <= 0 {
		c.Sync.PageSize = 100
	}
	if c.Sync.CursorTTLh <= 0 {
		c.Sync.CursorTTLh = 24
	}
	if c.Sync.LookbackH <= 0 {
		c.Sync.LookbackH = 24
	}
}

// Window returns the rate limit window as a duration.
func (c *LMSConfig) Window() time.Duration {
	return time.Duration(c.WindowMs) * time.Millisecond
}

// RetryAfter returns the drain spacing as a duration.
func (c *LMSConfig) RetryAfter() time.Duration {
	return time.Duration(c.RetryAfterMs) * time.Millisecond
}

// Timeout returns the request timeout as a duration.
func (c *LMSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}
