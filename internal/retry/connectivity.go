package retry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Probe は接続性確認のインターフェース。
type Probe interface {
	// Check は到達確認を行い、接続が生きていればtrueを返す。
	Check(ctx context.Context) bool
}

// HTTPProbe はHTTP HEADリクエストによるProbe実装。
// レスポンスが返ればステータスコードにかかわらずオンラインとみなす。
type HTTPProbe struct {
	url    string
	client *http.Client
}

// NewHTTPProbe はHTTPProbeを生成する。
func NewHTTPProbe(url string) *HTTPProbe {
	return &HTTPProbe{
		url:    url,
		client: &http.Client{Timeout: 3 * time.Second},
	}
}

// Check は到達確認を行う。
func (p *HTTPProbe) Check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Monitor は接続性の問い合わせと回復待ちを提供する。
// プローブの実行頻度はrate.Limiterで制限し、頻繁なIsOnline呼び出しが
// プローブ先を叩き続けないようにする。制限区間内は直近の結果を返す。
type Monitor struct {
	probe   Probe
	limiter *rate.Limiter

	mu     sync.Mutex
	online bool
}

// NewMonitor はMonitorを生成する。intervalはプローブの最小実行間隔。
func NewMonitor(probe Probe, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Monitor{
		probe:   probe,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		online:  true, // 初期状態はオンライン想定
	}
}

// IsOnline は現在の接続状態を返す。
// プローブ間隔内の再呼び出しではキャッシュ済みの結果を返す。
func (m *Monitor) IsOnline(ctx context.Context) bool {
	if !m.limiter.Allow() {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.online
	}

	ok := m.probe.Check(ctx)
	m.mu.Lock()
	m.online = ok
	m.mu.Unlock()
	return ok
}

// WaitForConnection は接続が回復するまで待機する。
// timeoutを超えても回復しない場合はエラーを返す。
func (m *Monitor) WaitForConnection(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		if m.probe.Check(ctx) {
			m.mu.Lock()
			m.online = true
			m.mu.Unlock()
			return nil
		}
		if err := m.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("connection did not recover within %s: %w", timeout, err)
		}
	}
}
