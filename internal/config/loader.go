package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LUNARWATCH_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LUNARWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Deriv ──
	setStr(&cfg.Deriv.WsURL, "LUNARWATCH_DERIV_WS_URL")
	setInt(&cfg.Deriv.AppID, "LUNARWATCH_DERIV_APP_ID")
	setStr(&cfg.Deriv.APIToken, "LUNARWATCH_DERIV_API_TOKEN")
	setStr(&cfg.Deriv.EncryptedKeyPath, "LUNARWATCH_DERIV_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Deriv.KeyPassword, "LUNARWATCH_DERIV_KEY_PASSWORD")
	setStr(&cfg.Deriv.TokenDir, "LUNARWATCH_DERIV_TOKEN_DIR")
	setDuration(&cfg.Deriv.TokenWait, "LUNARWATCH_DERIV_TOKEN_WAIT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LUNARWATCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "LUNARWATCH_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "LUNARWATCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LUNARWATCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LUNARWATCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LUNARWATCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LUNARWATCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LUNARWATCH_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "LUNARWATCH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LUNARWATCH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LUNARWATCH_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "LUNARWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LUNARWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LUNARWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LUNARWATCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LUNARWATCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LUNARWATCH_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.CacheTTLMin, "LUNARWATCH_REDIS_CACHE_TTL_MINUTES")
	setInt(&cfg.Redis.StreamMaxLen, "LUNARWATCH_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "LUNARWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LUNARWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "LUNARWATCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LUNARWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LUNARWATCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LUNARWATCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LUNARWATCH_S3_FORCE_PATH_STYLE")

	// ── Correlation ──
	setDuration(&cfg.Correlation.MatchWindow, "LUNARWATCH_CORRELATION_MATCH_WINDOW")
	setFloat64(&cfg.Correlation.AmountCeiling, "LUNARWATCH_CORRELATION_AMOUNT_CEILING")
	setFloat64(&cfg.Correlation.TimingWeight, "LUNARWATCH_CORRELATION_TIMING_WEIGHT")
	setFloat64(&cfg.Correlation.DirectionWeight, "LUNARWATCH_CORRELATION_DIRECTION_WEIGHT")
	setFloat64(&cfg.Correlation.AmountWeight, "LUNARWATCH_CORRELATION_AMOUNT_WEIGHT")
	setFloat64(&cfg.Correlation.FlaggedThreshold, "LUNARWATCH_CORRELATION_FLAGGED_THRESHOLD")
	setFloat64(&cfg.Correlation.SuspiciousThreshold, "LUNARWATCH_CORRELATION_SUSPICIOUS_THRESHOLD")
	setInt(&cfg.Correlation.Workers, "LUNARWATCH_CORRELATION_WORKERS")

	// ── Ring ──
	setInt(&cfg.Ring.MaxRingSize, "LUNARWATCH_RING_MAX_RING_SIZE")

	// ── Agents ──
	setDuration(&cfg.Agents.Deadline, "LUNARWATCH_AGENTS_DEADLINE")
	setInt(&cfg.Agents.HubDegree, "LUNARWATCH_AGENTS_HUB_DEGREE")
	setInt(&cfg.Agents.FlaggedChildren, "LUNARWATCH_AGENTS_FLAGGED_CHILDREN")
	setDuration(&cfg.Agents.BurstBucket, "LUNARWATCH_AGENTS_BURST_BUCKET")
	setInt(&cfg.Agents.BurstAccounts, "LUNARWATCH_AGENTS_BURST_ACCOUNTS")
	setDuration(&cfg.Agents.PairWindow, "LUNARWATCH_AGENTS_PAIR_WINDOW")
	setFloat64(&cfg.Agents.StakeTolerance, "LUNARWATCH_AGENTS_STAKE_TOLERANCE")
	setInt(&cfg.Agents.MinOccurrences, "LUNARWATCH_AGENTS_MIN_OCCURRENCES")
	setStr(&cfg.Agents.AlertSeverityFloor, "LUNARWATCH_AGENTS_ALERT_SEVERITY_FLOOR")

	// ── Analysis ──
	setDuration(&cfg.Analysis.CoherenceWindow, "LUNARWATCH_ANALYSIS_COHERENCE_WINDOW")
	setInt(&cfg.Analysis.RequiredAgents, "LUNARWATCH_ANALYSIS_REQUIRED_AGENTS")
	setInt(&cfg.Analysis.RecentAlerts, "LUNARWATCH_ANALYSIS_RECENT_ALERTS")

	// ── Pipeline ──
	setBool(&cfg.Pipeline.Enabled, "LUNARWATCH_PIPELINE_ENABLED")
	setDuration(&cfg.Pipeline.IngestInterval, "LUNARWATCH_PIPELINE_INGEST_INTERVAL")
	setDuration(&cfg.Pipeline.AnalysisInterval, "LUNARWATCH_PIPELINE_ANALYSIS_INTERVAL")
	setDuration(&cfg.Pipeline.AnalysisWindow, "LUNARWATCH_PIPELINE_ANALYSIS_WINDOW")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "LUNARWATCH_PIPELINE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Pipeline.ArchiveInterval, "LUNARWATCH_PIPELINE_ARCHIVE_INTERVAL")
	setDuration(&cfg.Pipeline.LockTTL, "LUNARWATCH_PIPELINE_LOCK_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "LUNARWATCH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LUNARWATCH_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "LUNARWATCH_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "LUNARWATCH_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "LUNARWATCH_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "LUNARWATCH_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LUNARWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LUNARWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LUNARWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LUNARWATCH_NOTIFY_EVENTS")

	// ── AI ──
	setStr(&cfg.AI.Endpoint, "LUNARWATCH_AI_ENDPOINT")
	setStr(&cfg.AI.APIKey, "LUNARWATCH_AI_API_KEY")
	setDuration(&cfg.AI.Timeout, "LUNARWATCH_AI_TIMEOUT")

	// ── Top-level ──
	setStr(&cfg.Mode, "LUNARWATCH_MODE")
	setStr(&cfg.LogLevel, "LUNARWATCH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
