package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the folio binaries.
type Config struct {
	// ListenAddress is the address the HTTP API listens on.
	ListenAddress string `yaml:"listen_addr"`
	// ServerURL is the folio server base URL used by the admin CLI.
	ServerURL string `yaml:"server_url"`
	// DatabaseURL is the Postgres connection string for the folio record store.
	DatabaseURL string `yaml:"database_url"`
	// RedisAddress enables the read-through record cache when set (host:port).
	RedisAddress string `yaml:"redis_addr"`
	// RedisCacheTTL bounds how long cached folio records stay fresh.
	RedisCacheTTL time.Duration `yaml:"redis_cache_ttl"`
	// TelegramToken switches notifications to the Telegram Bot API when set.
	TelegramToken string `yaml:"telegram_token"`
	// TelegramAPIBase overrides the Bot API endpoint, mainly for tests.
	TelegramAPIBase string `yaml:"telegram_api_base"`
	// AdminToken authorizes override requests on the HTTP API.
	AdminToken string `yaml:"admin_token"`
	// Timeout is the duration for outbound network operations.
	Timeout time.Duration `yaml:"timeout"`
	// FolioPrefix is the fixed numeric prefix of every issued folio.
	FolioPrefix string `yaml:"folio_prefix"`
	// CounterSeed is the starting numeric suffix used when the store is empty.
	CounterSeed uint64 `yaml:"counter_seed"`
	// MaxAllocAttempts bounds the allocator's collision-retry loop.
	MaxAllocAttempts int `yaml:"max_alloc_attempts"`
	// AllocRetryInterval is the pause between allocator collision retries.
	AllocRetryInterval time.Duration `yaml:"alloc_retry_interval"`
	// CountdownDuration is the payment deadline measured from issuance.
	CountdownDuration time.Duration `yaml:"countdown"`
	// ReminderOffsets are remaining-time checkpoints at which reminders fire,
	// strictly decreasing and all below CountdownDuration.
	ReminderOffsets []time.Duration `yaml:"reminder_offsets"`
}

const (
	// DefaultConfigFilename is the default filename for folio settings.
	DefaultConfigFilename = "folio-settings.yaml"

	// DefaultListenAddress is the default HTTP API listen address.
	DefaultListenAddress = ":8080"

	// DefaultTimeout is the default duration for outbound network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultFolioPrefix matches the issuing authority's fixed prefix.
	DefaultFolioPrefix = "1"

	// DefaultCounterSeed is the first numeric suffix handed out on a fresh store.
	DefaultCounterSeed = 769

	// DefaultMaxAllocAttempts bounds collision retries before giving up.
	DefaultMaxAllocAttempts = 25

	// DefaultAllocRetryInterval keeps the collision loop from hammering the store.
	DefaultAllocRetryInterval = 50 * time.Millisecond

	// DefaultCountdownDuration is the payment deadline for an issued folio.
	DefaultCountdownDuration = 2 * time.Hour

	// DefaultRedisCacheTTL bounds staleness of cached folio records.
	DefaultRedisCacheTTL = 30 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

// DefaultReminderOffsets emit reminders at 90, 60, 30 and 10 minutes
// before the deadline under the default two-hour countdown.
//
//nolint:gochecknoglobals // Shared default shared by Validate and tests.
var DefaultReminderOffsets = []time.Duration{
	90 * time.Minute,
	60 * time.Minute,
	30 * time.Minute,
	10 * time.Minute,
}

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errPrefixNotNumeric is returned when the folio prefix contains non-digits.
	errPrefixNotNumeric = errors.New("folio prefix must be numeric")
	// errOffsetsNotDecreasing is returned when reminder offsets are not strictly decreasing.
	errOffsetsNotDecreasing = errors.New("reminder offsets must be strictly decreasing")
	// errOffsetExceedsCountdown is returned when an offset is not below the countdown duration.
	errOffsetExceedsCountdown = errors.New("reminder offsets must be less than the countdown duration")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields,
// applies defaults, and enforces reminder checkpoint ordering.
//
//nolint:cyclop // A flat list of field checks reads better than helpers.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	// The database URL is required only by the server binary, which
	// enforces it at startup; the admin CLI never opens the store.
	if cfg.DatabaseURL != "" {
		if _, err := url.Parse(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("invalid database URL: %w", err)
		}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.FolioPrefix == "" {
		cfg.FolioPrefix = DefaultFolioPrefix
	}

	for _, r := range cfg.FolioPrefix {
		if r < '0' || r > '9' {
			return errPrefixNotNumeric
		}
	}

	if cfg.CounterSeed == 0 {
		cfg.CounterSeed = DefaultCounterSeed
	}

	if cfg.MaxAllocAttempts <= 0 {
		cfg.MaxAllocAttempts = DefaultMaxAllocAttempts
	}

	if cfg.AllocRetryInterval <= 0 {
		cfg.AllocRetryInterval = DefaultAllocRetryInterval
	}

	if cfg.CountdownDuration <= 0 {
		cfg.CountdownDuration = DefaultCountdownDuration
	}

	if cfg.RedisCacheTTL <= 0 {
		cfg.RedisCacheTTL = DefaultRedisCacheTTL
	}

	if len(cfg.ReminderOffsets) == 0 {
		cfg.ReminderOffsets = append([]time.Duration(nil), DefaultReminderOffsets...)
	}

	for i, offset := range cfg.ReminderOffsets {
		if offset <= 0 || offset >= cfg.CountdownDuration {
			return errOffsetExceedsCountdown
		}

		if i > 0 && offset >= cfg.ReminderOffsets[i-1] {
			return errOffsetsNotDecreasing
		}
	}

	return nil
}
