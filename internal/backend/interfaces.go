// Package backend はホスティングバックエンドとの境界を定義する。
// コアはここで定義するインターフェースのみを通じて外部と通信し、
// 永続化層やワイヤフォーマットには依存しない。
package backend

import (
	"context"
	"encoding/json"

	"github.com/Mkayzw/uz-sub000/internal/model"
)

// SessionTransport はセッションの復元とサインアウトを提供する。
type SessionTransport interface {
	// RestoreSession は保存済みセッションを復元する。存在しない場合は (nil, nil) を返す。
	RestoreSession(ctx context.Context) (*model.Session, error)

	// SignOut はリモートのセッションを破棄する。
	SignOut(ctx context.Context) error
}

// SessionEvents は外部セッションイベントの購読を提供する。
type SessionEvents interface {
	// OnSessionEvent はイベントハンドラを登録し、解除関数を返す。
	OnSessionEvent(handler func(event model.SessionEvent, session *model.Session)) (unsubscribe func())
}

// ProfileFetcher はセッションに紐づくプロファイルの取得を提供する。
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, session *model.Session) (*model.Profile, error)
}

// CollectionFetcher は各エンティティコレクションの取得を提供する。
// いずれも配列全体を返し、呼び出し側はコレクションを全置換する。
type CollectionFetcher interface {
	// FetchOwnedListings はエージェントが所有する物件一覧を取得する。
	FetchOwnedListings(ctx context.Context, userID string) ([]model.Listing, error)
	// FetchAllActiveListings は公開中の全物件一覧を取得する。
	FetchAllActiveListings(ctx context.Context) ([]model.Listing, error)
	// FetchTenantApplications はテナントの入居申請一覧を取得する。
	FetchTenantApplications(ctx context.Context, userID string) ([]model.Application, error)
	// FetchAgentApplications はエージェントの物件への申請一覧を取得する。
	FetchAgentApplications(ctx context.Context, userID string) ([]model.Application, error)
	// FetchSavedListings はテナントの保存済み物件一覧を取得する。
	FetchSavedListings(ctx context.Context, userID string) ([]model.SavedListing, error)
}

// KV は「認証後リダイレクト先」マーカーの永続化に使うキーバリュー面。
type KV interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// 変更イベントのアクション種別。
const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
	ActionAll    = "*"
)

// ChangeEvent はチェンジフィードから配送される変更通知。
// OldとNewは変更前後のレコードスナップショットで、欠落していることもある。
type ChangeEvent struct {
	Action string          `json:"action"`
	Table  string          `json:"table"`
	Old    json.RawMessage `json:"old,omitempty"`
	New    json.RawMessage `json:"new,omitempty"`
}

// Channel は1コレクション分の購読チャネル。
// Closeは冪等で、繰り返し呼び出しても安全。
type Channel interface {
	// On は指定アクションのハンドラを登録する。ActionAllで全アクションに反応する。
	On(action string, handler func(ChangeEvent))
	// Close は購読を解除する。冪等。
	Close() error
}

// Realtime はチェンジフィード購読チャネルの生成を提供する。
type Realtime interface {
	// OpenChannel はtopic（テーブル名）とフィルタ条件で購読チャネルを開く。
	OpenChannel(topic string, filter string) (Channel, error)
}
