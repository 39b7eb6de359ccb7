/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects the codec the bridge transcodes to for the TV.
type OutputFormat string

const (
	FormatMP3  OutputFormat = "mp3"
	FormatAAC  OutputFormat = "aac"
	FormatFLAC OutputFormat = "flac"
)

// GroupStreamMode selects how synchronized multi-player audio is delivered.
type GroupStreamMode string

const (
	// GroupStreamIndependent runs one full pipeline per group member.
	GroupStreamIndependent GroupStreamMode = "independent"
	// GroupStreamShared multiplexes one encoder output to all members.
	GroupStreamShared GroupStreamMode = "shared"
)

// Config covers process level configuration read from environment variables,
// optionally pre-seeded from a YAML file.
type Config struct {
	Environment string `yaml:"environment"`
	HTTPBind    string `yaml:"http_bind"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsBind string `yaml:"metrics_bind"`

	// Music Assistant host API
	MAURL string `yaml:"ma_url"` // Base URL of the host API (e.g., http://music-assistant:8095)

	// Streaming
	OutputFormat   OutputFormat `yaml:"output_format"`
	FFmpegBin      string       `yaml:"ffmpeg_bin"`
	PrebufferBytes int          `yaml:"prebuffer_bytes"`

	// Player lifecycle
	IdleTimeout  time.Duration `yaml:"-"`
	ReapInterval time.Duration `yaml:"-"`

	// Remote client behavior
	ShowStopNotification bool `yaml:"show_stop_notification"`
	// StopBroadcastFirst sends the stop push before aborting stream transports.
	// Some MSX builds react faster the other way around.
	StopBroadcastFirst bool `yaml:"stop_broadcast_first"`

	// Grouping
	GroupingEnabled bool            `yaml:"grouping_enabled"`
	GroupStreamMode GroupStreamMode `yaml:"group_stream_mode"`

	// Library cache. Empty RedisAddr disables caching entirely.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Tracing configuration
	TracingEnabled    bool    `yaml:"tracing_enabled"`
	OTLPEndpoint      string  `yaml:"otlp_endpoint"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate"`
}

// Load reads the optional config file and environment variables, applies
// defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:          "development",
		HTTPBind:             "0.0.0.0",
		HTTPPort:             8099,
		MetricsBind:          "127.0.0.1:9100",
		MAURL:                "http://music-assistant:8095",
		OutputFormat:         FormatMP3,
		FFmpegBin:            "ffmpeg",
		PrebufferBytes:       64 * 1024,
		ShowStopNotification: false,
		StopBroadcastFirst:   true,
		GroupingEnabled:      true,
		GroupStreamMode:      GroupStreamIndependent,
		OTLPEndpoint:         "localhost:4317",
		TracingSampleRate:    1.0,
	}

	if path := os.Getenv("MSXBRIDGE_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Environment = getEnv("MSXBRIDGE_ENV", cfg.Environment)
	cfg.HTTPBind = getEnv("MSXBRIDGE_HTTP_BIND", cfg.HTTPBind)
	cfg.HTTPPort = getEnvInt("MSXBRIDGE_HTTP_PORT", cfg.HTTPPort)
	cfg.MetricsBind = getEnv("MSXBRIDGE_METRICS_BIND", cfg.MetricsBind)
	cfg.MAURL = strings.TrimRight(getEnv("MSXBRIDGE_MA_URL", cfg.MAURL), "/")
	cfg.OutputFormat = OutputFormat(getEnv("MSXBRIDGE_OUTPUT_FORMAT", string(cfg.OutputFormat)))
	cfg.FFmpegBin = getEnv("MSXBRIDGE_FFMPEG_BIN", cfg.FFmpegBin)
	cfg.PrebufferBytes = getEnvInt("MSXBRIDGE_PREBUFFER_BYTES", cfg.PrebufferBytes)
	cfg.IdleTimeout = time.Duration(getEnvInt("MSXBRIDGE_IDLE_TIMEOUT_MINUTES", 30)) * time.Minute
	cfg.ReapInterval = time.Duration(getEnvInt("MSXBRIDGE_REAP_INTERVAL_SECONDS", 60)) * time.Second
	cfg.ShowStopNotification = getEnvBool("MSXBRIDGE_SHOW_STOP_NOTIFICATION", cfg.ShowStopNotification)
	cfg.StopBroadcastFirst = getEnvBool("MSXBRIDGE_STOP_BROADCAST_FIRST", cfg.StopBroadcastFirst)
	cfg.GroupingEnabled = getEnvBool("MSXBRIDGE_GROUPING_ENABLED", cfg.GroupingEnabled)
	cfg.GroupStreamMode = GroupStreamMode(getEnv("MSXBRIDGE_GROUP_STREAM_MODE", string(cfg.GroupStreamMode)))
	cfg.RedisAddr = getEnv("MSXBRIDGE_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("MSXBRIDGE_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("MSXBRIDGE_REDIS_DB", cfg.RedisDB)
	cfg.TracingEnabled = getEnvBool("MSXBRIDGE_TRACING_ENABLED", cfg.TracingEnabled)
	cfg.OTLPEndpoint = getEnv("MSXBRIDGE_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.TracingSampleRate = getEnvFloat("MSXBRIDGE_TRACING_SAMPLE_RATE", cfg.TracingSampleRate)

	if cfg.OutputFormat != FormatMP3 && cfg.OutputFormat != FormatAAC && cfg.OutputFormat != FormatFLAC {
		return nil, fmt.Errorf("unsupported output format %q", cfg.OutputFormat)
	}
	if cfg.GroupStreamMode != GroupStreamIndependent && cfg.GroupStreamMode != GroupStreamShared {
		return nil, fmt.Errorf("unsupported group stream mode %q", cfg.GroupStreamMode)
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid http port %d", cfg.HTTPPort)
	}
	if cfg.IdleTimeout <= 0 {
		return nil, fmt.Errorf("idle timeout must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
