// Package config provides configuration loading from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Page and buffer defaults.
const (
	DefaultPageSizeValue      = 50
	DefaultLiveBufferMaxValue = 500
	DefaultCacheMaxItemsValue = 256
)

// Config holds all configuration for the synchronization layer.
type Config struct {
	BaseURL  string // OBSYNC_BASE_URL, default "http://localhost:8080/api"
	LivePath string // OBSYNC_LIVE_PATH, default "/live"
	PageHost string // OBSYNC_PAGE_HOST, used when BaseURL is relative

	HTTPClientTimeout time.Duration // OBSYNC_HTTP_TIMEOUT_MS, default 10000ms
	PollInterval      time.Duration // OBSYNC_POLL_INTERVAL_MS, default 10000ms
	QueryCacheTTL     time.Duration // OBSYNC_CACHE_TTL_MS, default 2000ms
	QueryCacheItems   int           // OBSYNC_CACHE_MAX_ITEMS, default 256

	PageSize         int // OBSYNC_PAGE_SIZE, default 50
	LiveBufferMax    int // OBSYNC_LIVE_BUFFER_MAX, default 500
	StreamMaxRetries int // OBSYNC_STREAM_MAX_RETRIES, default 8

	ColorMapPath string // OBSYNC_COLOR_MAP, default "" (memory only)

	// Logging configuration
	LogLevel      string // LOG_LEVEL, default "info"
	LogFile       string // LOG_FILE, default "" (stderr only)
	LogMaxSizeMB  int    // LOG_MAX_SIZE_MB, default 10
	LogMaxBackups int    // LOG_MAX_BACKUPS, default 5
	LogMaxAgeDays int    // LOG_MAX_AGE_DAYS, default 28
	LogCompress   bool   // LOG_COMPRESS, default true
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		BaseURL:  getEnvString("OBSYNC_BASE_URL", "http://localhost:8080/api"),
		LivePath: getEnvString("OBSYNC_LIVE_PATH", "/live"),
		PageHost: getEnvString("OBSYNC_PAGE_HOST", ""),

		HTTPClientTimeout: getEnvDurationMs("OBSYNC_HTTP_TIMEOUT_MS", 10000),
		PollInterval:      getEnvDurationMs("OBSYNC_POLL_INTERVAL_MS", 10000),
		QueryCacheTTL:     getEnvDurationMs("OBSYNC_CACHE_TTL_MS", 2000),
		QueryCacheItems:   getEnvInt("OBSYNC_CACHE_MAX_ITEMS", DefaultCacheMaxItemsValue),

		PageSize:         getEnvInt("OBSYNC_PAGE_SIZE", DefaultPageSizeValue),
		LiveBufferMax:    getEnvInt("OBSYNC_LIVE_BUFFER_MAX", DefaultLiveBufferMaxValue),
		StreamMaxRetries: getEnvInt("OBSYNC_STREAM_MAX_RETRIES", 8),

		ColorMapPath: getEnvString("OBSYNC_COLOR_MAP", ""),

		LogLevel:      getEnvString("LOG_LEVEL", "info"),
		LogFile:       getEnvString("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 10),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultVal
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDurationMs(key string, defaultMs int) time.Duration {
	ms := getEnvInt(key, defaultMs)
	return time.Duration(ms) * time.Millisecond
}
