package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Mkayzw/uz-sub000/internal/model"
)

// HTTPError はバックエンドが返したエラーレスポンスを表す。
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus はエラー分類器が参照するHTTPステータスコードを返す。
func (e *HTTPError) HTTPStatus() int {
	return e.StatusCode
}

// Client はホスティングバックエンドのREST APIクライアント。
// SessionTransport、ProfileFetcher、CollectionFetcherを実装する。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// NewClient はClientを生成する。timeoutが0以下の場合は10秒を使用する。
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetAccessToken は以降のリクエストに付与するアクセストークンを設定する。
// セッションの確立・更新・破棄に追従してSessionManager側から呼ばれる。
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// RestoreSession は保存済みセッションを復元する。
// 401/404はセッションなしとして (nil, nil) を返す。
func (c *Client) RestoreSession(ctx context.Context) (*model.Session, error) {
	var session model.Session
	err := c.doJSON(ctx, http.MethodGet, "/auth/v1/session", nil, &session)
	if err != nil {
		var he *HTTPError
		if errors.As(err, &he) && (he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	if session.AccessToken == "" {
		return nil, nil
	}
	c.SetAccessToken(session.AccessToken)
	return &session, nil
}

// SignOut はリモートのセッションを破棄する。
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/logout", nil, nil); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

// FetchProfile はセッションに紐づくプロファイルを取得する。
func (c *Client) FetchProfile(ctx context.Context, session *model.Session) (*model.Profile, error) {
	query := url.Values{}
	query.Set("id", "eq."+session.UserID)
	query.Set("limit", "1")

	var profiles []model.Profile
	if err := c.doJSON(ctx, http.MethodGet, "/rest/v1/profiles", query, &profiles); err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("profile not found for user %s", session.UserID)
	}
	return &profiles[0], nil
}

// FetchOwnedListings はエージェントが所有する物件一覧を取得する。
func (c *Client) FetchOwnedListings(ctx context.Context, userID string) ([]model.Listing, error) {
	query := url.Values{}
	query.Set("agent_id", "eq."+userID)

	var listings []model.Listing
	if err := c.doJSON(ctx, http.MethodGet, "/rest/v1/listings", query, &listings); err != nil {
		return nil, fmt.Errorf("failed to fetch owned listings: %w", err)
	}
	return listings, nil
}

// FetchAllActiveListings は公開中の全物件一覧を取得する。
func (c *Client) FetchAllActiveListings(ctx context.Context) ([]model.Listing, error) {
	query := url.Values{}
	query.Set("status", "eq.active")

	var listings []model.Listing
	if err := c.doJSON(ctx, http.MethodGet, "/rest/v1/listings", query, &listings); err != nil {
		return nil, fmt.Errorf("failed to fetch active listings: %w", err)
	}
	return listings, nil
}

// FetchTenantApplications はテナントの入居申請一覧を取得する。
func (c *Client) FetchTenantApplications(ctx context.Context, userID string) ([]model.Application, error) {
	query := url.Values{}
	query.Set("tenant_id", "eq."+userID)

	var apps []model.Application
	if err := c.doJSON(ctx, http.MethodGet, "/rest/v1/applications", query, &apps); err != nil {
		return nil, fmt.Errorf("failed to fetch tenant applications: %w", err)
	}
	return apps, nil
}

// FetchAgentApplications はエージェントの物件への申請一覧を取得する。
func (c *Client) FetchAgentApplications(ctx context.Context, userID string) ([]model.Application, error) {
	query := url.Values{}
	query.Set("agent_id", "eq."+userID)

	var apps []model.Application
	if err := c.doJSON(ctx, http.MethodGet, "/rest/v1/applications", query, &apps); err != nil {
		return nil, fmt.Errorf("failed to fetch agent applications: %w", err)
	}
	return apps, nil
}

// FetchSavedListings はテナントの保存済み物件一覧を取得する。
func (c *Client) FetchSavedListings(ctx context.Context, userID string) ([]model.SavedListing, error) {
	query := url.Values{}
	query.Set("tenant_id", "eq."+userID)

	var saved []model.SavedListing
	if err := c.doJSON(ctx, http.MethodGet, "/rest/v1/saved_listings", query, &saved); err != nil {
		return nil, fmt.Errorf("failed to fetch saved listings: %w", err)
	}
	return saved, nil
}

// doJSON はリクエストを送信し、レスポンスJSONをoutにデコードする。
// 4xx/5xxはHTTPErrorとして返す。
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.apiKey)

	c.mu.RLock()
	token := c.accessToken
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseErrorResponse(resp *http.Response) error {
	he := &HTTPError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(body) > 0 {
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
			he.Code = payload.Code
			he.Message = payload.Message
		} else {
			he.Message = strings.TrimSpace(string(body))
		}
	}
	if he.Message == "" {
		he.Message = http.StatusText(resp.StatusCode)
	}
	return he
}

var _ SessionTransport = (*Client)(nil)
var _ ProfileFetcher = (*Client)(nil)
var _ CollectionFetcher = (*Client)(nil)
