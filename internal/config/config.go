package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	DBPath     string
	StatusPort string
	LogLevel   string

	// BridgeURL is the local endpoint of the out-of-process client
	// wrapper that owns the live MTGO session.
	BridgeURL string

	// Archetype backfill knobs.
	BackfillLookbackDays int
	MinUnlabeledDecks    int

	// Date-offset window, in days, used both for the secondary site's
	// candidate search and for the primary source's date-keyed slug
	// variants. Both sites sometimes publish under a shifted date.
	DateOffsetBefore int
	DateOffsetAfter  int

	// Daily maintenance reset boundary. ResetTime is the time-of-day in
	// UTC ("HH:MM") of the first reset; ResetInterval the spacing between
	// resets.
	ResetTime     string
	ResetInterval time.Duration
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:               getEnv("DB_PATH", "mtgo.db"),
		BridgeURL:            getEnv("BRIDGE_URL", "http://127.0.0.1:5900"),
		StatusPort:           getEnv("STATUS_PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		BackfillLookbackDays: getEnvInt("BACKFILL_LOOKBACK_DAYS", 7),
		MinUnlabeledDecks:    getEnvInt("MIN_UNLABELED_DECKS", 4),
		DateOffsetBefore:     getEnvInt("DATE_OFFSET_BEFORE", 1),
		DateOffsetAfter:      getEnvInt("DATE_OFFSET_AFTER", 2),
		ResetTime:            getEnv("RESET_TIME", "11:00"),
		ResetInterval:        getEnvDuration("RESET_INTERVAL", 24*time.Hour),
	}

	if _, err := time.Parse("15:04", cfg.ResetTime); err != nil {
		return nil, fmt.Errorf("invalid RESET_TIME %q: %w", cfg.ResetTime, err)
	}
	if cfg.ResetInterval <= 0 {
		return nil, fmt.Errorf("RESET_INTERVAL must be positive, got %s", cfg.ResetInterval)
	}
	if cfg.DateOffsetBefore < 0 || cfg.DateOffsetAfter < 0 {
		return nil, fmt.Errorf("date offsets must be non-negative, got -%d/+%d", cfg.DateOffsetBefore, cfg.DateOffsetAfter)
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("bridge_url", cfg.BridgeURL).
		Str("status_port", cfg.StatusPort).
		Str("log_level", cfg.LogLevel).
		Int("backfill_lookback_days", cfg.BackfillLookbackDays).
		Int("min_unlabeled_decks", cfg.MinUnlabeledDecks).
		Int("date_offset_before", cfg.DateOffsetBefore).
		Int("date_offset_after", cfg.DateOffsetAfter).
		Str("reset_time", cfg.ResetTime).
		Dur("reset_interval", cfg.ResetInterval).
		Msg("configuration loaded")

	return cfg, nil
}

// NextReset returns the first maintenance reset boundary after now.
func (c *Config) NextReset(now time.Time) time.Time {
	t, _ := time.Parse("15:04", c.ResetTime)
	reset := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	for !reset.After(now) {
		reset = reset.Add(c.ResetInterval)
	}
	return reset
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

var Module = fx.Provide(Load)
