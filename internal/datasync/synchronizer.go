// Package datasync は役割に応じたエンティティコレクションの一括読み込みを提供する。
// 同一の身元・役割での再呼び出しでは再フェッチせず、
// 身元または役割が変わった場合のみ読み込みをやり直す。
package datasync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mkayzw/uz-sub000/internal/backend"
	"github.com/Mkayzw/uz-sub000/internal/metrics"
	"github.com/Mkayzw/uz-sub000/internal/model"
	"github.com/Mkayzw/uz-sub000/internal/phase"
	"github.com/Mkayzw/uz-sub000/internal/retry"
	"github.com/Mkayzw/uz-sub000/internal/store"
)

// fallbackLoadError はエラー値が取得できない失敗の固定メッセージ。
// 表示層が不正な値をそのまま描画しないための正規化。
const fallbackLoadError = "Failed to load dashboard data"

// IdentitySource は現在の身元と役割を参照するインターフェース。
// SessionManagerが実装する。
type IdentitySource interface {
	Session() *model.Session
	Profile() *model.Profile
}

// Deps はSynchronizerの依存コンポーネント。
type Deps struct {
	Source   IdentitySource
	Fetchers backend.CollectionFetcher
	Store    *store.Store
	Machine  *phase.Machine
	Executor *retry.Executor
	Metrics  metrics.Recorder
	Logger   *slog.Logger
}

// Synchronizer は身元+役割に基づくコレクションの一括読み込みを行う。
type Synchronizer struct {
	source   IdentitySource
	fetchers backend.CollectionFetcher
	store    *store.Store
	machine  *phase.Machine
	exec     *retry.Executor
	metrics  metrics.Recorder
	logger   *slog.Logger

	mu         sync.Mutex
	loaded     bool
	lastUserID string
	lastRole   model.Role
	// gen はサインアウトで進む世代番号。
	// 実行中のLoadはスコープ破棄後にストアへ書き込んではならないため、
	// フェッチ完了ごとに世代を照合し、古くなった結果は破棄する。
	gen uint64
}

// NewSynchronizer はSynchronizerを生成する。
func NewSynchronizer(deps Deps) *Synchronizer {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Synchronizer{
		source:   deps.Source,
		fetchers: deps.Fetchers,
		store:    deps.Store,
		machine:  deps.Machine,
		exec:     deps.Executor,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
}

// ShouldReload は読み込みが必要かどうかを判定する。
// 必要となるのは、セッションとプロファイルが揃っていて、かつ
// まだ一度も成功していないか、前回成功時から身元IDまたは役割が変わった場合のみ。
func (s *Synchronizer) ShouldReload() bool {
	sess := s.source.Session()
	prof := s.source.Profile()
	if sess == nil || prof == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return true
	}
	return s.lastUserID != sess.UserID || s.lastRole != prof.Role
}

// LoadIfNeeded は判定規則に従い、必要な場合のみ読み込みを実行する。
func (s *Synchronizer) LoadIfNeeded(ctx context.Context) error {
	if !s.ShouldReload() {
		return nil
	}
	return s.Load(ctx)
}

// Load は現在の身元と役割に応じたコレクションを読み込む。
// 公開中物件は常にフェッチし、役割固有のコレクションはペアで並行フェッチする。
// 役割条件に合致しないコレクションは明示的にクリアし、
// 役割降格後に古いデータが残らないようにする。
// 実行中にReset（サインアウト）が入った場合、フェッチ結果は破棄され
// ストアと読み込み済みメモには触れない。
func (s *Synchronizer) Load(ctx context.Context) (err error) {
	sess := s.source.Session()
	prof := s.source.Profile()
	if sess == nil || prof == nil {
		return nil
	}

	// エラー値を持たない失敗は固定メッセージに正規化する
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("データ読み込み中にpanicが発生しました",
				slog.Any("panic", r),
			)
			err = errors.New(fallbackLoadError)
			s.machine.SetError(fallbackLoadError, err)
		}
	}()

	start := time.Now()
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.machine.SetPhase(model.PhaseLoadingData)

	// 公開中物件は役割にかかわらず常に取得する
	all, err := retry.DoValue(ctx, s.exec, func(ctx context.Context) ([]model.Listing, error) {
		return s.fetchers.FetchAllActiveListings(ctx)
	}, retry.Options{})
	if err != nil {
		s.machine.SetError(fallbackLoadError+": "+err.Error(), err)
		return fmt.Errorf("failed to load active listings: %w", err)
	}
	if !s.live(gen) {
		return s.discardStale(sess.UserID)
	}
	s.store.SetAllActiveListings(all)

	switch {
	case prof.ActiveAgent():
		owned, apps, err := s.fetchAgentCollections(ctx, sess.UserID)
		if err != nil {
			s.machine.SetError(fallbackLoadError+": "+err.Error(), err)
			return err
		}
		if !s.live(gen) {
			return s.discardStale(sess.UserID)
		}
		s.store.SetOwnedListings(owned)
		s.store.SetAgentApplications(apps)
		// テナント側コレクションは役割に合致しないためクリアする
		s.store.SetTenantApplications(nil)
		s.store.SetSavedListings(nil)

	case prof.Role == model.RoleTenant:
		apps, saved, err := s.fetchTenantCollections(ctx, sess.UserID)
		if err != nil {
			s.machine.SetError(fallbackLoadError+": "+err.Error(), err)
			return err
		}
		if !s.live(gen) {
			return s.discardStale(sess.UserID)
		}
		s.store.SetTenantApplications(apps)
		s.store.SetSavedListings(saved)
		s.store.SetOwnedListings(nil)
		s.store.SetAgentApplications(nil)

	default:
		// 未活性エージェントや管理者は基本コレクションのみ
		s.store.ClearRoleSpecific()
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return s.discardStale(sess.UserID)
	}
	s.loaded = true
	s.lastUserID = sess.UserID
	s.lastRole = prof.Role
	s.mu.Unlock()

	s.machine.SetPhase(model.PhaseReady)
	s.metrics.RecordLoadDuration(time.Since(start))
	s.logger.Info("ダッシュボードデータの読み込みが完了しました",
		slog.String("user_id", sess.UserID),
		slog.String("role", string(prof.Role)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// live は読み込み開始時に捕捉した世代がまだ有効かを返す。
func (s *Synchronizer) live(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

// discardStale は破棄済みスコープへの遅延結果を捨てる。エラーにはしない。
func (s *Synchronizer) discardStale(userID string) error {
	s.logger.Info("スコープ破棄後に到着した読み込み結果を破棄しました",
		slog.String("user_id", userID),
	)
	return nil
}

// fetchAgentCollections は所有物件と申請一覧をペアで並行フェッチする。
// どちらか一方の失敗はペア全体の失敗になる。
func (s *Synchronizer) fetchAgentCollections(ctx context.Context, userID string) ([]model.Listing, []model.Application, error) {
	var owned []model.Listing
	var apps []model.Application

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := retry.DoValue(gctx, s.exec, func(ctx context.Context) ([]model.Listing, error) {
			return s.fetchers.FetchOwnedListings(ctx, userID)
		}, retry.Options{})
		if err != nil {
			return fmt.Errorf("failed to load owned listings: %w", err)
		}
		owned = v
		return nil
	})
	g.Go(func() error {
		v, err := retry.DoValue(gctx, s.exec, func(ctx context.Context) ([]model.Application, error) {
			return s.fetchers.FetchAgentApplications(ctx, userID)
		}, retry.Options{})
		if err != nil {
			return fmt.Errorf("failed to load agent applications: %w", err)
		}
		apps = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return owned, apps, nil
}

// fetchTenantCollections は申請一覧と保存済み物件をペアで並行フェッチする。
func (s *Synchronizer) fetchTenantCollections(ctx context.Context, userID string) ([]model.Application, []model.SavedListing, error) {
	var apps []model.Application
	var saved []model.SavedListing

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := retry.DoValue(gctx, s.exec, func(ctx context.Context) ([]model.Application, error) {
			return s.fetchers.FetchTenantApplications(ctx, userID)
		}, retry.Options{})
		if err != nil {
			return fmt.Errorf("failed to load tenant applications: %w", err)
		}
		apps = v
		return nil
	})
	g.Go(func() error {
		v, err := retry.DoValue(gctx, s.exec, func(ctx context.Context) ([]model.SavedListing, error) {
			return s.fetchers.FetchSavedListings(ctx, userID)
		}, retry.Options{})
		if err != nil {
			return fmt.Errorf("failed to load saved listings: %w", err)
		}
		saved = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return apps, saved, nil
}

// Refresh は判定規則を無視して強制的に再読み込みする。
// ユーザー操作による明示的な更新やミューテーション後の再検証に使う。
// 身元または役割が未確定の場合は何もしない。
func (s *Synchronizer) Refresh(ctx context.Context) error {
	if s.source.Session() == nil || s.source.Profile() == nil {
		return nil
	}
	return s.Load(ctx)
}

// Retry はエラーをクリアして読み込みをやり直す。
func (s *Synchronizer) Retry(ctx context.Context) error {
	s.machine.ClearError()
	s.machine.BeginRetry()

	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()

	return s.Load(ctx)
}

// Reset は読み込み済みメモをクリアし、世代を進める。サインアウト時に呼ばれる。
// 世代が進むと、実行中のLoadはその結果をストアに書き込まずに破棄する。
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.loaded = false
	s.lastUserID = ""
	s.lastRole = ""
	s.gen++
	s.mu.Unlock()
}
