// Package model はドメインモデルを定義する。
package model

import "time"

// Session は認証済みユーザーのセッションを表す。
// ホスティングバックエンドが発行するアクセストークンと有効期限を保持する。
// 同時に「現行」として扱われる未失効セッションは最大1つ。
type Session struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired はセッションが指定時刻において失効しているかを返す。
// ExpiresAtがゼロ値の場合は失効扱いにしない（期限情報なしのセッション）。
func (s *Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !s.ExpiresAt.After(now)
}

// SessionEvent は外部セッショントランスポートから通知されるイベント種別。
type SessionEvent string

const (
	// SessionSignedIn はサインイン完了イベント。
	SessionSignedIn SessionEvent = "SIGNED_IN"
	// SessionSignedOut はサインアウトイベント。
	SessionSignedOut SessionEvent = "SIGNED_OUT"
	// SessionTokenRefreshed はトークン更新イベント。
	SessionTokenRefreshed SessionEvent = "TOKEN_REFRESHED"
)
