// Package live はチェンジフィード購読によるストアのライブ更新を提供する。
// 変更イベントを受けるたびに該当コレクション全体を再フェッチして全置換する。
// サーバー状態と乖離しうる部分マージは行わず、効率より一貫性を優先する。
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/Mkayzw/uz-sub000/internal/backend"
	"github.com/Mkayzw/uz-sub000/internal/metrics"
	"github.com/Mkayzw/uz-sub000/internal/model"
	"github.com/Mkayzw/uz-sub000/internal/store"
)

// IdentitySource は現在の身元と役割を参照するインターフェース。
type IdentitySource interface {
	Session() *model.Session
	Profile() *model.Profile
}

// ProfileRefresher はプロファイルの再取得を依頼するインターフェース。
// SessionManagerが実装する。
type ProfileRefresher interface {
	RefreshProfile(ctx context.Context) error
}

// Deps はReconcilerの依存コンポーネント。
type Deps struct {
	Source   IdentitySource
	Profiles ProfileRefresher
	Realtime backend.Realtime
	Fetchers backend.CollectionFetcher
	Store    *store.Store
	Metrics  metrics.Recorder
	Logger   *slog.Logger
	Notify   func(model.Notification)
}

// Reconciler は身元スコープ付きの購読チャネル群を所有し、
// 変更イベントをストアの全置換とユーザー向け通知に変換する。
type Reconciler struct {
	source   IdentitySource
	profiles ProfileRefresher
	realtime backend.Realtime
	fetchers backend.CollectionFetcher
	store    *store.Store
	metrics  metrics.Recorder
	logger   *slog.Logger
	notify   func(model.Notification)

	mu          sync.Mutex
	channels    []backend.Channel
	alive       bool
	generation  int
	scopeUserID string
	scopeRole   model.Role
	scopeStatus model.AgentStatus
}

// NewReconciler はReconcilerを生成する。
func NewReconciler(deps Deps) *Reconciler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notify == nil {
		deps.Notify = func(model.Notification) {}
	}
	return &Reconciler{
		source:   deps.Source,
		profiles: deps.Profiles,
		realtime: deps.Realtime,
		fetchers: deps.Fetchers,
		store:    deps.Store,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		notify:   deps.Notify,
	}
}

// Sync は現在の身元・役割・有効化状態に合わせて購読を開き直す。
// スコープが前回と同一なら何もしない。変わっていれば全購読を閉じて再作成する。
// セッションが無い場合は全購読を閉じるだけ。
func (r *Reconciler) Sync(ctx context.Context) error {
	sess := r.source.Session()
	if sess == nil {
		r.Teardown()
		return nil
	}

	var role model.Role
	var status model.AgentStatus
	if prof := r.source.Profile(); prof != nil {
		role = prof.Role
		status = prof.AgentStatus
	}

	r.mu.Lock()
	if r.alive && r.scopeUserID == sess.UserID && r.scopeRole == role && r.scopeStatus == status {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	r.Teardown()
	return r.subscribe(ctx, sess.UserID, role, status)
}

// Teardown は開いている全購読チャネルを閉じる。冪等。
// 閉じた後に到着する遅延フェッチ結果は世代チェックで破棄される。
func (r *Reconciler) Teardown() {
	r.mu.Lock()
	channels := r.channels
	r.channels = nil
	r.alive = false
	r.generation++
	r.mu.Unlock()

	for _, ch := range channels {
		if err := ch.Close(); err != nil {
			r.logger.Warn("購読チャネルのクローズに失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}
}

// subscribe は現在のスコープに必要な購読チャネルを開く。
func (r *Reconciler) subscribe(ctx context.Context, userID string, role model.Role, status model.AgentStatus) error {
	r.mu.Lock()
	r.alive = true
	r.generation++
	gen := r.generation
	r.scopeUserID = userID
	r.scopeRole = role
	r.scopeStatus = status
	r.mu.Unlock()

	// プロファイル変更: SessionManagerに再取得を依頼する
	r.open("profiles", "id=eq."+userID, func(event backend.ChangeEvent) {
		if !r.live(gen) {
			return
		}
		if err := r.profiles.RefreshProfile(ctx); err != nil {
			r.logger.Warn("プロファイルの再取得に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	})

	// 公開中物件の広域フィード
	r.open("listings", "", func(event backend.ChangeEvent) {
		r.reloadAllActive(ctx, gen)
	})

	if role == model.RoleAgent && status == model.AgentStatusActive {
		r.open("listings", "agent_id=eq."+userID, func(event backend.ChangeEvent) {
			r.reloadOwned(ctx, gen, userID)
		})
		r.open("applications", "agent_id=eq."+userID, func(event backend.ChangeEvent) {
			r.reloadAgentApplications(ctx, gen, userID)
			r.emitNotifications(event, userID)
		})
	}

	if role == model.RoleTenant {
		r.open("applications", "tenant_id=eq."+userID, func(event backend.ChangeEvent) {
			r.reloadTenantApplications(ctx, gen, userID)
			r.emitNotifications(event, userID)
		})
		r.open("saved_listings", "tenant_id=eq."+userID, func(event backend.ChangeEvent) {
			r.reloadSaved(ctx, gen, userID)
		})
	}

	r.logger.Info("ライブ更新の購読を開始しました",
		slog.String("user_id", userID),
		slog.String("role", string(role)),
		slog.String("agent_status", string(status)),
	)
	return nil
}

// open は1チャネルを開いてハンドラを登録する。
// チャネルのオープン失敗は他の購読を巻き込まず、ログに残すだけにする。
func (r *Reconciler) open(topic, filter string, handler func(backend.ChangeEvent)) {
	ch, err := r.realtime.OpenChannel(topic, filter)
	if err != nil {
		r.logger.Warn("購読チャネルのオープンに失敗しました",
			slog.String("topic", topic),
			slog.String("filter", filter),
			slog.String("error", err.Error()),
		)
		return
	}
	ch.On(backend.ActionAll, handler)

	r.mu.Lock()
	r.channels = append(r.channels, ch)
	r.mu.Unlock()
}

// live は指定世代の購読がまだ有効かを返す。
// ティアダウン後に解決した遅延結果を古いスコープへ書き込まないための検査。
func (r *Reconciler) live(gen int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alive && r.generation == gen
}

func (r *Reconciler) reloadAllActive(ctx context.Context, gen int) {
	listings, err := r.fetchers.FetchAllActiveListings(ctx)
	if err != nil {
		r.logger.Warn("公開中物件の再フェッチに失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}
	if !r.live(gen) {
		return
	}
	r.store.SetAllActiveListings(listings)
	r.metrics.RecordReconcileEvent("all_active_listings")
}

func (r *Reconciler) reloadOwned(ctx context.Context, gen int, userID string) {
	listings, err := r.fetchers.FetchOwnedListings(ctx, userID)
	if err != nil {
		r.logger.Warn("所有物件の再フェッチに失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}
	if !r.live(gen) {
		return
	}
	r.store.SetOwnedListings(listings)
	r.metrics.RecordReconcileEvent("owned_listings")
}

func (r *Reconciler) reloadTenantApplications(ctx context.Context, gen int, userID string) {
	apps, err := r.fetchers.FetchTenantApplications(ctx, userID)
	if err != nil {
		r.logger.Warn("テナント申請の再フェッチに失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}
	if !r.live(gen) {
		return
	}
	r.store.SetTenantApplications(apps)
	r.metrics.RecordReconcileEvent("tenant_applications")
}

func (r *Reconciler) reloadAgentApplications(ctx context.Context, gen int, userID string) {
	apps, err := r.fetchers.FetchAgentApplications(ctx, userID)
	if err != nil {
		r.logger.Warn("エージェント側申請の再フェッチに失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}
	if !r.live(gen) {
		return
	}
	r.store.SetAgentApplications(apps)
	r.metrics.RecordReconcileEvent("agent_applications")
}

func (r *Reconciler) reloadSaved(ctx context.Context, gen int, userID string) {
	saved, err := r.fetchers.FetchSavedListings(ctx, userID)
	if err != nil {
		r.logger.Warn("保存済み物件の再フェッチに失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}
	if !r.live(gen) {
		return
	}
	r.store.SetSavedListings(saved)
	r.metrics.RecordReconcileEvent("saved_listings")
}

// decodeApplication はスナップショットをデコードする。欠落時はnilを返す。
func decodeApplication(raw json.RawMessage) *model.Application {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var app model.Application
	if err := json.Unmarshal(raw, &app); err != nil {
		return nil
	}
	return &app
}
