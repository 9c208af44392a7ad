// Package config defines the top-level configuration for lunarwatch and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by LUNARWATCH_* environment
// variables.
type Config struct {
	Deriv       DerivConfig       `toml:"deriv"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Correlation CorrelationConfig `toml:"correlation"`
	Ring        RingConfig        `toml:"ring"`
	Agents      AgentsConfig      `toml:"agents"`
	Analysis    AnalysisConfig    `toml:"analysis"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	AI          AIConfig          `toml:"ai"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// DerivConfig holds the upstream trading API endpoint and credentials.
type DerivConfig struct {
	WsURL            string   `toml:"ws_url"`
	AppID            int      `toml:"app_id"`
	APIToken         string   `toml:"api_token"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	TokenDir         string   `toml:"token_dir"`
	TokenWait        duration `toml:"token_wait"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	CacheTTLMin  int    `toml:"cache_ttl_minutes"`
	StreamMaxLen int    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// CorrelationConfig holds the pairwise scoring model parameters.
type CorrelationConfig struct {
	MatchWindow         duration `toml:"match_window"`
	AmountCeiling       float64  `toml:"amount_ceiling"`
	TimingWeight        float64  `toml:"timing_weight"`
	DirectionWeight     float64  `toml:"direction_weight"`
	AmountWeight        float64  `toml:"amount_weight"`
	FlaggedThreshold    float64  `toml:"flagged_threshold"`
	SuspiciousThreshold float64  `toml:"suspicious_threshold"`
	Workers             int      `toml:"workers"`
}

// RingConfig holds the clustering parameters.
type RingConfig struct {
	MaxRingSize int `toml:"max_ring_size"`
}

// AgentsConfig holds per-agent tuning and the shared deadline.
type AgentsConfig struct {
	Deadline           duration `toml:"deadline"`
	HubDegree          int      `toml:"hub_degree"`
	FlaggedChildren    int      `toml:"flagged_children"`
	BurstBucket        duration `toml:"burst_bucket"`
	BurstAccounts      int      `toml:"burst_accounts"`
	PairWindow         duration `toml:"pair_window"`
	StakeTolerance     float64  `toml:"stake_tolerance"`
	MinOccurrences     int      `toml:"min_occurrences"`
	AlertSeverityFloor string   `toml:"alert_severity_floor"`
}

// AnalysisConfig holds the run-completeness policy.
type AnalysisConfig struct {
	CoherenceWindow duration `toml:"coherence_window"`
	RequiredAgents  int      `toml:"required_agents"`
	RecentAlerts    int      `toml:"recent_alerts"`
}

// PipelineConfig holds ingestion and analysis scheduling.
type PipelineConfig struct {
	Enabled              bool     `toml:"enabled"`
	IngestInterval       duration `toml:"ingest_interval"`
	AnalysisInterval     duration `toml:"analysis_interval"`
	AnalysisWindow       duration `toml:"analysis_window"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	ArchiveInterval      duration `toml:"archive_interval"`
	LockTTL              duration `toml:"lock_ttl"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// AIConfig holds the optional narrative endpoint.
type AIConfig struct {
	Endpoint string   `toml:"endpoint"`
	APIKey   string   `toml:"api_key"`
	Timeout  duration `toml:"timeout"`
}

// duration wraps time.Duration so TOML string values like "5m" decode.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Deriv: DerivConfig{
			WsURL:     "wss://ws.derivws.com/websockets/v3",
			AppID:     1089,
			TokenWait: duration{120 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "lunarwatch",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			CacheTTLMin:  60,
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "lunarwatch-data",
			ForcePathStyle: true,
		},
		Correlation: CorrelationConfig{
			MatchWindow:         duration{5 * time.Second},
			AmountCeiling:       0.5,
			TimingWeight:        0.4,
			DirectionWeight:     0.3,
			AmountWeight:        0.3,
			FlaggedThreshold:    0.75,
			SuspiciousThreshold: 0.45,
			Workers:             0, // 0 = GOMAXPROCS
		},
		Ring: RingConfig{
			MaxRingSize: 12,
		},
		Agents: AgentsConfig{
			Deadline:           duration{30 * time.Second},
			HubDegree:          3,
			FlaggedChildren:    2,
			BurstBucket:        duration{10 * time.Second},
			BurstAccounts:      3,
			PairWindow:         duration{5 * time.Second},
			StakeTolerance:     0.1,
			MinOccurrences:     3,
			AlertSeverityFloor: "warning",
		},
		Analysis: AnalysisConfig{
			CoherenceWindow: duration{60 * time.Second},
			RequiredAgents:  3,
			RecentAlerts:    50,
		},
		Pipeline: PipelineConfig{
			Enabled:              true,
			IngestInterval:       duration{1 * time.Minute},
			AnalysisInterval:     duration{5 * time.Minute},
			AnalysisWindow:       duration{24 * time.Hour},
			ArchiveRetentionDays: 90,
			ArchiveInterval:      duration{24 * time.Hour},
			LockTTL:              duration{10 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{1 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"alert_critical", "ring_detected", "analysis_failed"},
		},
		AI: AIConfig{
			Timeout: duration{20 * time.Second},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"analyze": true,
	"ingest":  true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSeverityFloors = map[string]bool{
	"critical": true,
	"warning":  true,
	"info":     true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: analyze, ingest, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ingestion modes need a credential source.
	needsToken := c.Mode == "ingest" || c.Mode == "full"
	if needsToken {
		if c.Deriv.APIToken == "" && c.Deriv.EncryptedKeyPath == "" && c.Deriv.TokenDir == "" {
			errs = append(errs, "deriv: one of api_token, encrypted_key_path, or token_dir must be set for mode "+c.Mode)
		}
		if c.Deriv.EncryptedKeyPath != "" && c.Deriv.KeyPassword == "" {
			errs = append(errs, "deriv: key_password is required when encrypted_key_path is set")
		}
		if c.Deriv.WsURL == "" {
			errs = append(errs, "deriv: ws_url must not be empty")
		}
		if c.Deriv.AppID <= 0 {
			errs = append(errs, "deriv: app_id must be positive")
		}
	}
	if c.Deriv.TokenWait.Duration <= 0 {
		errs = append(errs, "deriv: token_wait must be positive")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if c.Correlation.MatchWindow.Duration <= 0 {
		errs = append(errs, "correlation: match_window must be positive")
	}
	if c.Correlation.AmountCeiling <= 0 || c.Correlation.AmountCeiling > 1 {
		errs = append(errs, "correlation: amount_ceiling must be in (0, 1]")
	}
	weightSum := c.Correlation.TimingWeight + c.Correlation.DirectionWeight + c.Correlation.AmountWeight
	if weightSum < 0.99 || weightSum > 1.01 {
		errs = append(errs, fmt.Sprintf("correlation: weights must sum to 1, got %.2f", weightSum))
	}
	if c.Correlation.SuspiciousThreshold <= 0 || c.Correlation.FlaggedThreshold <= c.Correlation.SuspiciousThreshold {
		errs = append(errs, "correlation: thresholds must satisfy 0 < suspicious < flagged")
	}

	if c.Ring.MaxRingSize < 2 {
		errs = append(errs, "ring: max_ring_size must be >= 2")
	}

	if c.Agents.Deadline.Duration <= 0 {
		errs = append(errs, "agents: deadline must be positive")
	}
	if !validSeverityFloors[strings.ToLower(c.Agents.AlertSeverityFloor)] {
		errs = append(errs, fmt.Sprintf("agents: unknown alert_severity_floor %q (valid: critical, warning, info)", c.Agents.AlertSeverityFloor))
	}

	if c.Analysis.CoherenceWindow.Duration <= 0 {
		errs = append(errs, "analysis: coherence_window must be positive")
	}
	if c.Analysis.RequiredAgents < 1 {
		errs = append(errs, "analysis: required_agents must be >= 1")
	}

	if c.Pipeline.Enabled {
		if c.Pipeline.AnalysisInterval.Duration <= 0 {
			errs = append(errs, "pipeline: analysis_interval must be positive when enabled")
		}
		if c.Pipeline.AnalysisWindow.Duration <= 0 {
			errs = append(errs, "pipeline: analysis_window must be positive when enabled")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
