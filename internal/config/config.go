package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Addr           string
	DatabaseDriver string
	DatabaseURL    string
	JWTSecret      string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	CORSOrigin     string
	DefaultLocale  string
	LogLevel       string
	LogFormat      string
	// Redis backs refresh sessions and the cross-instance feed relay.
	RedisURL    string
	FeedChannel string
	// Search
	MeiliURL       string
	MeiliMasterKey string
	// Archive storage (S3 compatible)
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool
	ArchiveSchedule string
	// Mutation rate limiting, per user.
	RateLimitRPS   float64
	RateLimitBurst int
	// GoogleAPIKey is read so deployments can provision it; no feature uses it yet.
	GoogleAPIKey string
}

type binding struct {
	key      string
	env      string
	fallback any
}

var bindings = []binding{
	{"addr", "API_ADDR", ":8787"},
	{"database.driver", "DATABASE_DRIVER", DriverSQLite},
	{"database.url", "DATABASE_URL", "file:moscow.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
	{"auth.jwt_secret", "MOSCOW_JWT_SECRET", "moscow-dev-secret"},
	{"auth.access_ttl_seconds", "MOSCOW_ACCESS_TTL_SECONDS", 900},
	{"auth.refresh_ttl_seconds", "MOSCOW_REFRESH_TTL_SECONDS", 2592000},
	{"http.cors_origin", "MOSCOW_CORS_ORIGIN", "*"},
	{"i18n.default_locale", "MOSCOW_DEFAULT_LOCALE", "en"},
	{"log.level", "LOG_LEVEL", "info"},
	{"log.format", "LOG_FORMAT", "json"},
	{"redis.url", "REDIS_URL", ""},
	{"redis.feed_channel", "MOSCOW_FEED_CHANNEL", "moscow:feed"},
	{"meili.url", "MEILI_URL", ""},
	{"meili.master_key", "MEILI_MASTER_KEY", ""},
	{"minio.endpoint", "MINIO_ENDPOINT", ""},
	{"minio.access_key", "MINIO_ACCESS_KEY", ""},
	{"minio.secret_key", "MINIO_SECRET_KEY", ""},
	{"minio.bucket", "MINIO_BUCKET", "moscow-archive"},
	{"minio.use_ssl", "MINIO_USE_SSL", false},
	{"archive.schedule", "ARCHIVE_SCHEDULE", ""},
	{"ratelimit.rps", "MOSCOW_RATE_LIMIT_RPS", 5.0},
	{"ratelimit.burst", "MOSCOW_RATE_LIMIT_BURST", 10},
	{"ai.google_api_key", "GOOGLE_API_KEY", ""},
}

// Load reads configuration from the environment, after merging .env.local
// and .env when present.
func Load() Config {
	cfg, _ := LoadFile("")
	return cfg
}

// LoadFile is Load plus an optional yaml/json/toml file. Environment
// variables win over file values.
func LoadFile(path string) (Config, error) {
	// godotenv never overrides variables that are already set, so the
	// first file loaded wins.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	v := viper.New()
	for _, b := range bindings {
		v.SetDefault(b.key, b.fallback)
		_ = v.BindEnv(b.key, b.env)
	}
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Addr:            v.GetString("addr"),
		DatabaseDriver:  strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseURL:     v.GetString("database.url"),
		JWTSecret:       v.GetString("auth.jwt_secret"),
		AccessTTL:       time.Duration(v.GetInt("auth.access_ttl_seconds")) * time.Second,
		RefreshTTL:      time.Duration(v.GetInt("auth.refresh_ttl_seconds")) * time.Second,
		CORSOrigin:      v.GetString("http.cors_origin"),
		DefaultLocale:   v.GetString("i18n.default_locale"),
		LogLevel:        v.GetString("log.level"),
		LogFormat:       v.GetString("log.format"),
		RedisURL:        v.GetString("redis.url"),
		FeedChannel:     v.GetString("redis.feed_channel"),
		MeiliURL:        v.GetString("meili.url"),
		MeiliMasterKey:  v.GetString("meili.master_key"),
		MinioEndpoint:   v.GetString("minio.endpoint"),
		MinioAccessKey:  v.GetString("minio.access_key"),
		MinioSecretKey:  v.GetString("minio.secret_key"),
		MinioBucket:     v.GetString("minio.bucket"),
		MinioUseSSL:     v.GetBool("minio.use_ssl"),
		ArchiveSchedule: v.GetString("archive.schedule"),
		RateLimitRPS:    v.GetFloat64("ratelimit.rps"),
		RateLimitBurst:  v.GetInt("ratelimit.burst"),
		GoogleAPIKey:    v.GetString("ai.google_api_key"),
	}
	if cfg.DatabaseDriver == "postgresql" || cfg.DatabaseDriver == "pgx" {
		cfg.DatabaseDriver = DriverPostgres
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("MOSCOW_JWT_SECRET is required")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("token ttls must be positive")
	}
	return nil
}

// ArchiveEnabled reports whether board snapshots can be written to object storage.
func (c Config) ArchiveEnabled() bool {
	return strings.TrimSpace(c.MinioEndpoint) != "" && strings.TrimSpace(c.MinioBucket) != ""
}
