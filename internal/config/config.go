// Package config loads the immutable service configuration from the
// environment. Every knob has a default; components receive the loaded
// Config at construction and never read the environment themselves.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full configuration surface of the service.
type Config struct {
	// Daemon stats database (read-only). Fatal at startup when missing.
	KDFDBPath string

	// Event definitions file.
	EventsJSONPath     string
	EventsAllowEmpty   bool
	EventsAllowOverlap bool

	// Privacy.
	PubkeyHashKey string

	// Ingestion.
	LoadHistory   bool
	BackfillSince int64 // unix seconds; 0 means everything
	PollInterval  time.Duration
	LegTimeout    time.Duration

	// Pruning.
	RetentionHours int
	PruneInterval  time.Duration

	// HTTP.
	Listen string

	// Logging.
	LogLevel    string
	LogEncoding string

	// Registration.
	RegistrationDBPath      string
	RegistrationDOCAddress  string
	RegistrationPollSeconds int
	RegistrationExpiry      time.Duration
	RegistrationAmountMin   float64
	RegistrationAmountMax   float64

	// Insight explorer.
	InsightBaseURL string
	InsightAPIPath string

	// Price cache.
	CoinConfigPath      string
	CoinConfigURL       string
	PriceRefreshSeconds int
}

// DefaultCoinConfigURL is the canonical coins configuration published by the
// Komodo Platform coins repository.
const DefaultCoinConfigURL = "https://raw.githubusercontent.com/KomodoPlatform/coins/master/utils/coins_config.json"

// Load reads the configuration from the environment. When ENV_FILE names a
// file it is loaded first; otherwise a .env in the working directory is
// loaded when present. Values already set in the environment win.
func Load() Config {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		_ = godotenv.Load()
	}

	retention := envInt("RETENTION_HOURS", 1)
	if retention < 0 {
		retention = 0
	}

	return Config{
		KDFDBPath:          envStr("KDF_DB_PATH", "MM2.db"),
		EventsJSONPath:     envStr("EVENTS_JSON_PATH", "events.json"),
		EventsAllowEmpty:   envBool("EVENTS_ALLOW_EMPTY", false),
		EventsAllowOverlap: envBool("EVENTS_ALLOW_OVERLAP", true),

		PubkeyHashKey: envStr("PUBKEY_HASH_KEY", "komodian"),

		LoadHistory:   envBool("KDF_LOAD_HISTORY", true),
		BackfillSince: envInt64("BACKFILL_SINCE", 0),
		PollInterval:  time.Duration(envInt("POLL_INTERVAL_SECONDS", 2)) * time.Second,
		LegTimeout:    time.Duration(envInt("LEG_TIMEOUT_SECONDS", 600)) * time.Second,

		RetentionHours: retention,
		PruneInterval:  time.Duration(envInt("PRUNE_INTERVAL_SECONDS", 300)) * time.Second,

		Listen: envStr("HTTP_LISTEN", ":8080"),

		LogLevel:    envStr("LOG_LEVEL", "info"),
		LogEncoding: envStr("LOG_ENCODING", "json"),

		RegistrationDBPath:      envStr("REGISTRATION_DB_PATH", "DEX_COMP.db"),
		RegistrationDOCAddress:  envStr("REGISTRATION_DOC_ADDRESS", "RGzkzaZcRySBYq4jStV6iVtccztLh51WRt"),
		RegistrationPollSeconds: envInt("REGISTRATION_POLL_SECONDS", 180),
		RegistrationExpiry:      time.Duration(envInt("REGISTRATION_EXPIRY_HOURS", 24)) * time.Hour,
		RegistrationAmountMin:   envFloat("REGISTRATION_AMOUNT_MIN", 0.001),
		RegistrationAmountMax:   envFloat("REGISTRATION_AMOUNT_MAX", 3.33),

		InsightBaseURL: envStr("DOC_INSIGHT_BASE_URL", "https://doc.explorer.dexstats.info"),
		InsightAPIPath: envStr("DOC_INSIGHT_API_PATH", "insight-api-komodo"),

		CoinConfigPath:      envStr("COIN_CONFIG_PATH", ""),
		CoinConfigURL:       envStr("COIN_CONFIG_URL", DefaultCoinConfigURL),
		PriceRefreshSeconds: envInt("PRICE_REFRESH_SECONDS", 600),
	}
}

// Retention converts the configured retention to a duration.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// RegistrationEnabled reports whether the registration workflow should run.
func (c Config) RegistrationEnabled() bool {
	return c.RegistrationDOCAddress != ""
}

// PricesEnabled reports whether a coin configuration source is available.
func (c Config) PricesEnabled() bool {
	return c.CoinConfigPath != "" || c.CoinConfigURL != ""
}

func envStr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off":
		return false
	}
	return fallback
}
