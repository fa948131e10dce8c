package config

import (
	"strings"
	"testing"
	"time"
)

// TestLoad_RequiredVariables は必須環境変数の欠落がエラーになることを検証する。
func TestLoad_RequiredVariables(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "")
	t.Setenv("BACKEND_API_KEY", "")

	_, err := Load()
	if err == nil {
		t.Fatal("必須環境変数が未設定ならエラーが返されるべき")
	}
	if !strings.Contains(err.Error(), "BACKEND_BASE_URL") || !strings.Contains(err.Error(), "BACKEND_API_KEY") {
		t.Errorf("エラーに欠落変数名が含まれるべき: %v", err)
	}
}

// TestLoad_Defaults は任意項目にデフォルト値が適用されることを検証する。
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://api.example.com")
	t.Setenv("BACKEND_API_KEY", "key-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.RetryBaseDelay != 500*time.Millisecond {
		t.Errorf("RetryBaseDelay = %v, want 500ms", cfg.RetryBaseDelay)
	}
	if cfg.ProbeURL != "https://api.example.com/auth/v1/health" {
		t.Errorf("ProbeURL = %q", cfg.ProbeURL)
	}
	if cfg.ConnWaitTimeout != 15*time.Second {
		t.Errorf("ConnWaitTimeout = %v, want 15s", cfg.ConnWaitTimeout)
	}
	if cfg.LoginPath != "/login" || cfg.DashboardPath != "/dashboard" || cfg.HomePath != "/" {
		t.Errorf("ナビゲーションパスのデフォルトが不正: %+v", cfg)
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want 10s", cfg.FetchTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

// TestLoad_Overrides は環境変数による上書きが反映されることを検証する。
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://api.example.com")
	t.Setenv("BACKEND_API_KEY", "key-1")
	t.Setenv("REALTIME_URL", "wss://realtime.example.com")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("RETRY_BASE_DELAY", "1s")
	t.Setenv("CONNECTIVITY_PROBE_URL", "https://probe.example.com/ping")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.RealtimeURL != "wss://realtime.example.com" {
		t.Errorf("RealtimeURL = %q", cfg.RealtimeURL)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.RetryBaseDelay != time.Second {
		t.Errorf("RetryBaseDelay = %v, want 1s", cfg.RetryBaseDelay)
	}
	if cfg.ProbeURL != "https://probe.example.com/ping" {
		t.Errorf("ProbeURL = %q", cfg.ProbeURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

// TestLoad_InvalidNumbersFallBack は解析不能な値がデフォルトへフォールバックすることを検証する。
func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://api.example.com")
	t.Setenv("BACKEND_API_KEY", "key-1")
	t.Setenv("MAX_RETRIES", "not-a-number")
	t.Setenv("RETRY_BASE_DELAY", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.RetryBaseDelay != 500*time.Millisecond {
		t.Errorf("RetryBaseDelay = %v, want 500ms", cfg.RetryBaseDelay)
	}
}
