// Package config loads the process configuration from environment
// variables (optionally seeded from a .env file via joho/godotenv),
// applying the same defaults/clamps the original implementation's
// discordgsm/config.py documents (spec.md §6's environment variable
// table).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
)

// AdvertiseType selects one of the three presence string modes (spec.md
// §4.H).
type AdvertiseType string

const (
	AdvertiseServerCount  AdvertiseType = "server_count"
	AdvertiseIndividually AdvertiseType = "individually"
	AdvertisePlayerStats  AdvertiseType = "player_stats"
)

// Config is the fully-resolved, validated process configuration.
type Config struct {
	AppToken      string
	WhitelistIDs  []int64
	Debug         bool
	ActivityType  string
	ActivityName  string
	AdvertiseType AdvertiseType

	TickPeriod          time.Duration
	ProbeTimeout        time.Duration
	ChunkSize           int
	DisableAfterDays    int
	EditTimeout         time.Duration

	DatabaseURL     string
	PostgresSSLMode string

	MetricsEnable      bool
	MetricsRecordLimit int

	WebAPIEnable bool
	HerokuApp    string
}

const (
	defaultTickPeriod   = 60 * time.Second
	minTickPeriod       = 15 * time.Second
	defaultProbeTimeout = 15 * time.Second
	defaultChunkSize    = 50
	defaultEditTimeout  = 3 * time.Second
	defaultMetricLimit  = 1000
)

// Load reads environment variables, applying .env overrides from path if
// it exists (a missing .env is not an error — matches godotenv.Load's own
// convention of being a no-op-friendly default in production containers
// where environment variables are injected directly).
func Load(path string) (*Config, error) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			return nil, errs.New(errs.InvalidInput, "config: load .env", err)
		}
	}

	token := os.Getenv("APP_TOKEN")
	if token == "" {
		return nil, errs.New(errs.InvalidInput, "config: APP_TOKEN is required", nil)
	}

	cfg := &Config{
		AppToken:           token,
		WhitelistIDs:       parseIDList(os.Getenv("WHITELIST_GUILDS")),
		Debug:              parseBool(os.Getenv("APP_DEBUG"), false),
		ActivityType:       os.Getenv("APP_ACTIVITY_TYPE"),
		ActivityName:       os.Getenv("APP_ACTIVITY_NAME"),
		AdvertiseType:      parseAdvertiseType(os.Getenv("APP_ADVERTISE_TYPE")),
		TickPeriod:         clampDuration(os.Getenv("TASK_QUERY_SERVER"), defaultTickPeriod, minTickPeriod),
		ProbeTimeout:       parseDuration(os.Getenv("TASK_QUERY_SERVER_TIMEOUT"), defaultProbeTimeout),
		ChunkSize:          parseInt(os.Getenv("TASK_QUERY_CHUNK_SIZE"), defaultChunkSize),
		DisableAfterDays:   parseInt(os.Getenv("TASK_QUERY_DISABLE_AFTER_DAYS"), 0),
		EditTimeout:        parseDuration(os.Getenv("TASK_EDIT_MESSAGE_TIMEOUT"), defaultEditTimeout),
		DatabaseURL:        firstNonEmptyEnv("DATABASE_URL", "DB_CONNECTION"),
		PostgresSSLMode:    os.Getenv("POSTGRES_SSL_MODE"),
		MetricsEnable:      parseBool(os.Getenv("METRICS_ENABLE"), false),
		MetricsRecordLimit: parseInt(os.Getenv("METRICS_RECORD_LIMIT"), defaultMetricLimit),
		WebAPIEnable:       parseBool(os.Getenv("WEB_API_ENABLE"), false),
		HerokuApp:          os.Getenv("HEROKU_APP_NAME"),
	}
	return cfg, nil
}

// UsesSQLite reports whether the resolved configuration should default to
// the local SQLite backend, matching
// original_source/discordgsm/database.py's sqlite-default behavior.
func (c *Config) UsesSQLite() bool { return c.DatabaseURL == "" }

func firstNonEmptyEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func parseAdvertiseType(s string) AdvertiseType {
	switch AdvertiseType(s) {
	case AdvertiseIndividually:
		return AdvertiseIndividually
	case AdvertisePlayerStats:
		return AdvertisePlayerStats
	default:
		return AdvertiseServerCount
	}
}

func parseBool(s string, def bool) bool {
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return v
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func parseDuration(s string, def time.Duration) time.Duration {
	n := parseInt(s, 0)
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func clampDuration(s string, def, floor time.Duration) time.Duration {
	d := parseDuration(s, def)
	if d < floor {
		return floor
	}
	return d
}

// parseIDList accepts either semicolon- or comma-separated snowflake IDs.
func parseIDList(s string) []int64 {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ";", ",")
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
