// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the cascade engine's YAML configuration, applying
// defaults before unmarshalling so that absent keys keep sane values.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the cascade engine server.
type Config struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	Debug              bool   `yaml:"debug" json:"debug"`
	LoggingToFile      bool   `yaml:"logging-to-file" json:"logging-to-file"`
	LogsMaxTotalSizeMB int    `yaml:"logs-max-total-size-mb" json:"logs-max-total-size-mb"`
	AuthDir            string `yaml:"auth-dir" json:"auth-dir"`

	Store      StoreConfig      `yaml:"store" json:"store"`
	RateLimit  RateLimitConfig  `yaml:"rate-limit" json:"rate-limit"`
	Classifier ClassifierConfig `yaml:"classifier" json:"classifier"`
	Cascade    CascadeConfig    `yaml:"cascade" json:"cascade"`
	Logs       LogsConfig       `yaml:"logs" json:"logs"`
	Auth       AuthConfig       `yaml:"auth" json:"auth"`
}

// StoreConfig selects and configures the metadata/code store backends.
type StoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend     string `yaml:"backend" json:"backend"`
	DSN         string `yaml:"dsn" json:"dsn"`
	TablePrefix string `yaml:"table-prefix" json:"table-prefix"`

	// ObjectBackend is "memory" or "minio".
	ObjectBackend   string `yaml:"object-backend" json:"object-backend"`
	ObjectEndpoint  string `yaml:"object-endpoint" json:"object-endpoint"`
	ObjectBucket    string `yaml:"object-bucket" json:"object-bucket"`
	ObjectAccessKey string `yaml:"object-access-key" json:"object-access-key"`
	ObjectSecretKey string `yaml:"object-secret-key" json:"object-secret-key"`
	ObjectUseTLS    bool   `yaml:"object-use-tls" json:"object-use-tls"`

	// CompressionCodec is "gzip" or "brotli".
	CompressionCodec string `yaml:"compression-codec" json:"compression-codec"`
}

// RateLimitConfig selects the rate limiter backend and the hot-path limit.
type RateLimitConfig struct {
	// Backend is "memory" or "redis".
	Backend   string `yaml:"backend" json:"backend"`
	RedisAddr string `yaml:"redis-addr" json:"redis-addr"`
	RedisDB   int    `yaml:"redis-db" json:"redis-db"`
	Namespace string `yaml:"namespace" json:"namespace"`

	// Limit of 0 disables the per-function rate limit entirely.
	Limit    int   `yaml:"limit" json:"limit"`
	WindowMs int64 `yaml:"window-ms" json:"window-ms"`
}

// ClassifierConfig tunes the function classifier's cache and thresholds.
type ClassifierConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence-threshold" json:"confidence-threshold"`
	CacheSize           int     `yaml:"cache-size" json:"cache-size"`
	CacheTTLMs          int64   `yaml:"cache-ttl-ms" json:"cache-ttl-ms"`
	AnthropicAPIKey     string  `yaml:"anthropic-api-key" json:"-"`
	AnthropicModel      string  `yaml:"anthropic-model" json:"anthropic-model"`
}

// CascadeConfig holds the default tier timeouts and authorization posture.
type CascadeConfig struct {
	CodeTimeoutMs       int64 `yaml:"code-timeout-ms" json:"code-timeout-ms"`
	GenerativeTimeoutMs int64 `yaml:"generative-timeout-ms" json:"generative-timeout-ms"`
	AgenticTimeoutMs    int64 `yaml:"agentic-timeout-ms" json:"agentic-timeout-ms"`
	HumanTimeoutMs      int64 `yaml:"human-timeout-ms" json:"human-timeout-ms"`

	// AuthorizationEnabled must be explicitly set; leaving it false disables
	// all scope checks (a deliberate, trusted-context configuration per spec).
	AuthorizationEnabled bool `yaml:"authorization-enabled" json:"authorization-enabled"`
}

// LogsConfig tunes the log aggregator's retention and streaming defaults.
type LogsConfig struct {
	MaxMessageLen     int   `yaml:"max-message-len" json:"max-message-len"`
	DefaultPageSize   int   `yaml:"default-page-size" json:"default-page-size"`
	MaxPageSize       int   `yaml:"max-page-size" json:"max-page-size"`
	RetentionMaxAgeMs int64 `yaml:"retention-max-age-ms" json:"retention-max-age-ms"`

	// DBPath, when set, backs the in-memory index with a durable SQLite
	// logs table at this path.
	DBPath string `yaml:"db-path" json:"db-path"`
}

// AuthConfig configures the credential surface the authorization guard reads
// principal scopes from. Credential issuance is an external concern.
type AuthConfig struct {
	EnvFile string `yaml:"env-file" json:"env-file"`
}

// Default returns a Config populated with the engine's documented defaults.
func Default() *Config {
	return &Config{
		Host:               "",
		Port:               8080,
		LoggingToFile:      false,
		LogsMaxTotalSizeMB: 0,
		AuthDir:            "./auth",
		Store: StoreConfig{
			Backend:          "memory",
			TablePrefix:      "cascade",
			ObjectBackend:    "memory",
			ObjectBucket:     "cascade-code",
			CompressionCodec: "gzip",
		},
		RateLimit: RateLimitConfig{
			Backend:   "memory",
			Namespace: "cascade:ratelimit",
			Limit:     0,
			WindowMs:  60_000,
		},
		Classifier: ClassifierConfig{
			ConfidenceThreshold: 0.6,
			CacheSize:           500,
			CacheTTLMs:          3600_000,
			AnthropicModel:      "claude-haiku-4-5",
		},
		Cascade: CascadeConfig{
			CodeTimeoutMs:        5_000,
			GenerativeTimeoutMs:  30_000,
			AgenticTimeoutMs:     5 * 60_000,
			HumanTimeoutMs:       24 * 60 * 60_000,
			AuthorizationEnabled: false,
		},
		Logs: LogsConfig{
			MaxMessageLen:     100_000,
			DefaultPageSize:   100,
			MaxPageSize:       1_000,
			RetentionMaxAgeMs: 30 * 24 * 60 * 60_000,
		},
	}
}

// Load reads YAML from configFile, applying Default()'s values for any key
// the file omits. If optional is true and the file is missing or empty, the
// defaults are returned unchanged.
func Load(configFile string, optional bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && (os.IsNotExist(err) || errors.Is(err, os.ErrNotExist)) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if optional && len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if optional {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Auth.EnvFile != "" {
		_ = godotenv.Load(cfg.Auth.EnvFile)
	}

	return cfg, nil
}
