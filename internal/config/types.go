package config

import (
	"errors"
	"strings"
)

type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Logging     LoggingConfig     `json:"logging"`
	Album       AlbumConfig       `json:"album,omitempty"`
	Delivery    DeliveryConfig    `json:"delivery,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// ArchiveChatID is the optional archive channel. 0 disables archive
	// delivery entirely (logged once at startup).
	ArchiveChatID int64 `json:"archive_chat_id,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level,omitempty"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file,omitempty"`
	Telegram LoggingTelegram `json:"telegram,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// AlbumConfig controls accumulation. All durations are Go duration strings.
type AlbumConfig struct {
	// QuietPeriod is how long a chat must stay silent before the bot offers
	// the done button. Default "2s".
	QuietPeriod string `json:"quiet_period,omitempty"`
	// MaxGroupSize caps items per album. Default (and platform ceiling) 10.
	MaxGroupSize int `json:"max_group_size,omitempty"`
}

// DeliveryConfig controls the send pipeline.
type DeliveryConfig struct {
	// RetryMax is the total attempt count per batch (not extra retries).
	// Default 3.
	RetryMax int `json:"retry_max,omitempty"`
	// ArchiveRetryBase is the base of the exponential backoff used for
	// archive sends. Default "2s". The primary path retries without delay.
	ArchiveRetryBase string `json:"archive_retry_base,omitempty"`
}

// MaintenanceConfig controls background housekeeping.
type MaintenanceConfig struct {
	// PruneSchedule is a cron expression for reaping idle chat state.
	// Default "*/30 * * * *". Empty string disables pruning.
	PruneSchedule string `json:"prune_schedule,omitempty"`
	// PruneIdleAfter is how long a chat entry must be idle before it is
	// reaped. Default "1h".
	PruneIdleAfter string `json:"prune_idle_after,omitempty"`
}

// Validate checks the parts that cannot be defaulted away.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Album.MaxGroupSize < 0 || c.Album.MaxGroupSize > 10 {
		return errors.New("album.max_group_size must be between 0 (default) and 10")
	}
	if c.Delivery.RetryMax < 0 {
		return errors.New("delivery.retry_max must be >= 0")
	}
	return nil
}
