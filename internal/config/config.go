// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はコアライブラリ全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend
	BackendBaseURL string
	BackendAPIKey  string
	RealtimeURL    string

	// Retry
	MaxRetries     int
	RetryBaseDelay time.Duration

	// Connectivity
	ProbeURL        string
	ProbeInterval   time.Duration
	ConnWaitTimeout time.Duration

	// Navigation paths
	LoginPath     string
	DashboardPath string
	HomePath      string

	// Redirect marker
	MarkerStorePath string

	// Fetch
	FetchTimeout time.Duration

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.BackendBaseURL = os.Getenv("BACKEND_BASE_URL")
	if cfg.BackendBaseURL == "" {
		missing = append(missing, "BACKEND_BASE_URL")
	}

	cfg.BackendAPIKey = os.Getenv("BACKEND_API_KEY")
	if cfg.BackendAPIKey == "" {
		missing = append(missing, "BACKEND_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RealtimeURL = getEnvString("REALTIME_URL", "")
	cfg.MaxRetries = getEnvInt("MAX_RETRIES", 3)
	cfg.RetryBaseDelay = getEnvDuration("RETRY_BASE_DELAY", 500*time.Millisecond)
	cfg.ProbeURL = getEnvString("CONNECTIVITY_PROBE_URL", cfg.BackendBaseURL+"/auth/v1/health")
	cfg.ProbeInterval = getEnvDuration("CONNECTIVITY_PROBE_INTERVAL", 2*time.Second)
	cfg.ConnWaitTimeout = getEnvDuration("CONNECTIVITY_WAIT_TIMEOUT", 15*time.Second)
	cfg.LoginPath = getEnvString("LOGIN_PATH", "/login")
	cfg.DashboardPath = getEnvString("DASHBOARD_PATH", "/dashboard")
	cfg.HomePath = getEnvString("HOME_PATH", "/")
	cfg.MarkerStorePath = getEnvString("MARKER_STORE_PATH", "")
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
