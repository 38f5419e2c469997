// Package config provides centralized configuration management with
// environment variable support for the ingestion core.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Jetstream  JetstreamConfig
	Cursor     CursorConfig
	DIDResolver DIDResolverConfig
	Broker     BrokerConfig
	Server     ServerConfig
}

// JetstreamConfig holds firehose connection and reconnect settings.
type JetstreamConfig struct {
	Endpoint                string
	ReconnectMaxAttempts    int
	ReconnectInitialBackoffMs int
	ReconnectMaxBackoffMs   int
	Compress                bool
	MaxDurationMs           int
	InactivityTimeoutMs     int
	// FailoverEndpoints is a supplemented feature: additional candidate
	// hosts rotated through together with the primary endpoint, advancing
	// to the next host after every failed connection attempt.
	FailoverEndpoints []string
}

// CursorConfig holds cursor persistence backend settings.
type CursorConfig struct {
	Persistence string // memory, file, remote-kv
	FilePath    string
	AutoSaveMs  int
}

// DIDResolverConfig holds DID resolver cache and HTTP settings.
type DIDResolverConfig struct {
	MaxCacheSize      int
	CacheTTLMs        int
	BatchSize         int
	RequestTimeoutMs  int
	APIBaseURL        string
	SweepIntervalMs   int
}

// BrokerConfig holds message-broker transport settings.
type BrokerConfig struct {
	NATSURL string
}

// ServerConfig holds the internal status/metrics HTTP surface settings.
type ServerConfig struct {
	Host string
	Port int
}

// Load reads configuration from an optional config file and environment
// variables. Environment variables take precedence over config file values.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Jetstream: JetstreamConfig{
			Endpoint:                  getStringWithEnvFallback("jetstream.endpoint", "JETSTREAM_ENDPOINT", "wss://jetstream2.us-west.bsky.network/subscribe"),
			ReconnectMaxAttempts:      getIntWithEnvFallback("jetstream.reconnect_max_attempts", "JETSTREAM_RECONNECT_MAX_ATTEMPTS", 10),
			ReconnectInitialBackoffMs: getIntWithEnvFallback("jetstream.reconnect_initial_backoff_ms", "JETSTREAM_RECONNECT_INITIAL_BACKOFF_MS", 1000),
			ReconnectMaxBackoffMs:     getIntWithEnvFallback("jetstream.reconnect_max_backoff_ms", "JETSTREAM_RECONNECT_MAX_BACKOFF_MS", 30000),
			Compress:                  getBoolWithEnvFallback("jetstream.compress", "JETSTREAM_COMPRESS", false),
			MaxDurationMs:             getIntWithEnvFallback("jetstream.max_duration_ms", "JETSTREAM_MAX_DURATION_MS", 3600000),
			InactivityTimeoutMs:       getIntWithEnvFallback("jetstream.inactivity_timeout_ms", "JETSTREAM_INACTIVITY_TIMEOUT_MS", 300000),
			FailoverEndpoints:         getStringSliceWithEnvFallback("jetstream.failover_endpoints", "JETSTREAM_FAILOVER_ENDPOINTS"),
		},
		Cursor: CursorConfig{
			Persistence: getStringWithEnvFallback("cursor.persistence", "JETSTREAM_CURSOR_PERSISTENCE", "memory"),
			FilePath:    getStringWithEnvFallback("cursor.file_path", "JETSTREAM_CURSOR_FILE_PATH", "./cursor.json"),
			AutoSaveMs:  getIntWithEnvFallback("cursor.auto_save_ms", "JETSTREAM_CURSOR_AUTO_SAVE_MS", 5000),
		},
		DIDResolver: DIDResolverConfig{
			MaxCacheSize:     getIntWithEnvFallback("did_resolver.max_cache_size", "DID_RESOLVER_MAX_CACHE_SIZE", 10000),
			CacheTTLMs:       getIntWithEnvFallback("did_resolver.cache_ttl_ms", "DID_RESOLVER_CACHE_TTL_MS", 3600000),
			BatchSize:        getIntWithEnvFallback("did_resolver.batch_size", "DID_RESOLVER_BATCH_SIZE", 25),
			RequestTimeoutMs: getIntWithEnvFallback("did_resolver.request_timeout_ms", "DID_RESOLVER_REQUEST_TIMEOUT_MS", 5000),
			APIBaseURL:       getStringWithEnvFallback("did_resolver.api_base_url", "DID_RESOLVER_API_BASE_URL", "https://public.api.bsky.app"),
			SweepIntervalMs:  getIntWithEnvFallback("did_resolver.sweep_interval_ms", "DID_RESOLVER_SWEEP_INTERVAL_MS", 60000),
		},
		Broker: BrokerConfig{
			NATSURL: getStringWithEnvFallback("broker.nats_url", "BROKER_NATS_URL", "nats://localhost:4222"),
		},
		Server: ServerConfig{
			Host: getStringWithEnvFallback("server.host", "SERVER_HOST", "0.0.0.0"),
			Port: getIntWithEnvFallback("server.port", "SERVER_PORT", 8080),
		},
	}

	return cfg, nil
}

// bindEnvVars explicitly binds environment variables to viper keys.
func bindEnvVars() {
	viper.BindEnv("jetstream.endpoint", "JETSTREAM_ENDPOINT")
	viper.BindEnv("jetstream.reconnect_max_attempts", "JETSTREAM_RECONNECT_MAX_ATTEMPTS")
	viper.BindEnv("jetstream.reconnect_initial_backoff_ms", "JETSTREAM_RECONNECT_INITIAL_BACKOFF_MS")
	viper.BindEnv("jetstream.reconnect_max_backoff_ms", "JETSTREAM_RECONNECT_MAX_BACKOFF_MS")
	viper.BindEnv("jetstream.compress", "JETSTREAM_COMPRESS")
	viper.BindEnv("jetstream.max_duration_ms", "JETSTREAM_MAX_DURATION_MS")
	viper.BindEnv("jetstream.inactivity_timeout_ms", "JETSTREAM_INACTIVITY_TIMEOUT_MS")
	viper.BindEnv("jetstream.failover_endpoints", "JETSTREAM_FAILOVER_ENDPOINTS")

	viper.BindEnv("cursor.persistence", "JETSTREAM_CURSOR_PERSISTENCE")
	viper.BindEnv("cursor.file_path", "JETSTREAM_CURSOR_FILE_PATH")
	viper.BindEnv("cursor.auto_save_ms", "JETSTREAM_CURSOR_AUTO_SAVE_MS")

	viper.BindEnv("did_resolver.max_cache_size", "DID_RESOLVER_MAX_CACHE_SIZE")
	viper.BindEnv("did_resolver.cache_ttl_ms", "DID_RESOLVER_CACHE_TTL_MS")
	viper.BindEnv("did_resolver.batch_size", "DID_RESOLVER_BATCH_SIZE")
	viper.BindEnv("did_resolver.request_timeout_ms", "DID_RESOLVER_REQUEST_TIMEOUT_MS")
	viper.BindEnv("did_resolver.api_base_url", "DID_RESOLVER_API_BASE_URL")
	viper.BindEnv("did_resolver.sweep_interval_ms", "DID_RESOLVER_SWEEP_INTERVAL_MS")

	viper.BindEnv("broker.nats_url", "BROKER_NATS_URL")

	viper.BindEnv("server.host", "SERVER_HOST")
	viper.BindEnv("server.port", "SERVER_PORT")
}

// getStringWithEnvFallback gets a string value, preferring env var over config file.
func getStringWithEnvFallback(viperKey, envKey, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if val := viper.GetString(viperKey); val != "" {
		return val
	}
	return defaultVal
}

// getIntWithEnvFallback gets an int value, preferring env var over config file.
func getIntWithEnvFallback(viperKey, envKey string, defaultVal int) int {
	if val := os.Getenv(envKey); val != "" {
		var intVal int
		fmt.Sscanf(val, "%d", &intVal)
		if intVal != 0 {
			return intVal
		}
	}
	if val := viper.GetInt(viperKey); val != 0 {
		return val
	}
	return defaultVal
}

// getBoolWithEnvFallback gets a bool value, preferring env var over config file.
func getBoolWithEnvFallback(viperKey, envKey string, defaultVal bool) bool {
	if val := os.Getenv(envKey); val != "" {
		return val == "true" || val == "1"
	}
	if viper.IsSet(viperKey) {
		return viper.GetBool(viperKey)
	}
	return defaultVal
}

// getStringSliceWithEnvFallback gets a comma-separated string slice, preferring
// env var over config file. Empty elements are dropped.
func getStringSliceWithEnvFallback(viperKey, envKey string) []string {
	raw := os.Getenv(envKey)
	if raw == "" {
		if vals := viper.GetStringSlice(viperKey); len(vals) > 0 {
			return vals
		}
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
