// Package session はプロセスで唯一の認証セッションのブートストラップと管理を提供する。
// ブートストラップはプロセス起動・画面再入・プッシュイベントから重複して起動されるため、
// single-flightで多重実行を防ぐことがこのコンポーネントの中核の正しさ要件になる。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Mkayzw/uz-sub000/internal/backend"
	"github.com/Mkayzw/uz-sub000/internal/metrics"
	"github.com/Mkayzw/uz-sub000/internal/model"
	"github.com/Mkayzw/uz-sub000/internal/phase"
	"github.com/Mkayzw/uz-sub000/internal/retry"
)

// RedirectMarkerKey はKVに保存する「認証後リダイレクト先」マーカーのキー。
const RedirectMarkerKey = "redirectAfterLogin"

// Navigator は表示層へのナビゲーション指示を受け取るインターフェース。
type Navigator interface {
	// CurrentPath は現在表示中のパスを返す。
	CurrentPath() string
	// NavigateTo は指定パスへの遷移を指示する。
	NavigateTo(path string)
}

// Deps はManagerの依存コンポーネント。
type Deps struct {
	Transport backend.SessionTransport
	Profiles  backend.ProfileFetcher
	KV        backend.KV
	Navigator Navigator
	Machine   *phase.Machine
	Executor  *retry.Executor
	Metrics   metrics.Recorder
	Logger    *slog.Logger
}

// Config はManagerの設定。
type Config struct {
	LoginPath       string
	DashboardPath   string
	HomePath        string
	ConnWaitTimeout time.Duration
}

// Manager は認証セッションとプロファイルを所有する長寿命コンポーネント。
// セッションとプロファイルはManagerの外では読み取り専用。
type Manager struct {
	transport backend.SessionTransport
	profiles  backend.ProfileFetcher
	kv        backend.KV
	nav       Navigator
	machine   *phase.Machine
	exec      *retry.Executor
	metrics   metrics.Recorder
	logger    *slog.Logger
	cfg       Config

	sf singleflight.Group

	mu          sync.RWMutex
	session     *model.Session
	profile     *model.Profile
	initialized bool
	onChange    func(session *model.Session, profile *model.Profile)
	unsubscribe func()

	// now はテストから差し替える現在時刻関数。
	now func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(deps Deps, cfg Config) *Manager {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.HomePath == "" {
		cfg.HomePath = "/"
	}
	if cfg.ConnWaitTimeout <= 0 {
		cfg.ConnWaitTimeout = 15 * time.Second
	}
	return &Manager{
		transport: deps.Transport,
		profiles:  deps.Profiles,
		kv:        deps.KV,
		nav:       deps.Navigator,
		machine:   deps.Machine,
		exec:      deps.Executor,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetOnChange はセッション/プロファイル変化時のコールバックを設定する。
func (m *Manager) SetOnChange(fn func(session *model.Session, profile *model.Profile)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Session は現在のセッションのコピーを返す。未確立の場合はnil。
func (m *Manager) Session() *model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// Profile は現在のプロファイルのコピーを返す。未取得の場合はnil。
func (m *Manager) Profile() *model.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.profile == nil {
		return nil
	}
	p := *m.profile
	return &p
}

// Initialize はセッションをブートストラップする。冪等かつsingle-flight。
// 初期化が既に進行中の場合、呼び出し側は新しい実行を開始せず
// 同一の進行中実行の完了を待つ。完了済みの場合は何もしない。
// 進行中実行は最初の呼び出しのctxで駆動される。
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.RLock()
	done := m.initialized
	m.mu.RUnlock()
	if done {
		return nil
	}

	_, err, _ := m.sf.Do("initialize", func() (any, error) {
		return nil, m.bootstrap(ctx)
	})
	return err
}

// bootstrap はセッション復元とプロファイル読み込みの本体。
func (m *Manager) bootstrap(ctx context.Context) error {
	m.machine.SetPhase(model.PhaseAuthenticating)

	sess, err := retry.DoValue(ctx, m.exec, func(ctx context.Context) (*model.Session, error) {
		return m.transport.RestoreSession(ctx)
	}, retry.Options{})
	if err != nil {
		if retry.Classify(err).Class == retry.ClassAuthentication {
			// 死んだセッションでの再試行は成功しないため、ログインへ誘導する
			m.logger.Info("セッション復元が認証エラーで失敗したためログインへ誘導します",
				slog.String("error", err.Error()),
			)
			m.metrics.RecordSessionBootstrap("auth_failed")
			m.rememberCurrentPath()
			m.markInitialized()
			m.machine.SetPhase(model.PhaseReady)
			m.goToLogin()
			return nil
		}
		m.metrics.RecordSessionBootstrap("error")
		m.machine.SetError("Session restore failed: "+err.Error(), err)
		return err
	}

	if sess == nil {
		// セッションなし: 復帰先を記録してログインへ
		m.logger.Info("保存済みセッションが存在しません")
		m.metrics.RecordSessionBootstrap("no_session")
		m.rememberCurrentPath()
		m.markInitialized()
		m.machine.SetPhase(model.PhaseReady)
		m.goToLogin()
		return nil
	}

	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()

	m.loadProfile(ctx, sess)
	m.markInitialized()
	m.machine.SetPhase(model.PhaseReady)
	m.metrics.RecordSessionBootstrap("ok")
	m.notifyChange()
	return nil
}

// loadProfile はプロファイルを読み込む。
// 失敗してもセッションは破棄しない。プロファイルなしのセッションは
// 有効な劣化状態であり、致命的エラーではない。
func (m *Manager) loadProfile(ctx context.Context, sess *model.Session) {
	m.machine.SetPhase(model.PhaseLoadingProfile)

	prof, err := retry.DoValue(ctx, m.exec, func(ctx context.Context) (*model.Profile, error) {
		return m.profiles.FetchProfile(ctx, sess)
	}, retry.Options{})
	if err != nil {
		m.logger.Warn("プロファイルの読み込みに失敗しました。セッションは劣化状態で継続します",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		return
	}

	m.mu.Lock()
	m.profile = prof
	m.mu.Unlock()
}

// RefreshProfile はプロファイルを再取得して差し替える。
// プッシュ通知によるプロファイル変更の反映に使う。セッション未確立なら何もしない。
func (m *Manager) RefreshProfile(ctx context.Context) error {
	sess := m.Session()
	if sess == nil {
		return nil
	}

	prof, err := retry.DoValue(ctx, m.exec, func(ctx context.Context) (*model.Profile, error) {
		return m.profiles.FetchProfile(ctx, sess)
	}, retry.Options{})
	if err != nil {
		return fmt.Errorf("failed to refresh profile: %w", err)
	}

	m.mu.Lock()
	m.profile = prof
	m.mu.Unlock()
	m.notifyChange()
	return nil
}

// ListenEvents は外部セッションイベントの購読を開始する。
func (m *Manager) ListenEvents(ctx context.Context, events backend.SessionEvents) {
	unsub := events.OnSessionEvent(func(event model.SessionEvent, sess *model.Session) {
		m.HandleSessionEvent(ctx, event, sess)
	})

	m.mu.Lock()
	m.unsubscribe = unsub
	m.mu.Unlock()
}

// Teardown はイベント購読を解除する。冪等。
func (m *Manager) Teardown() {
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// HandleSessionEvent は外部セッションイベントを処理する。
func (m *Manager) HandleSessionEvent(ctx context.Context, event model.SessionEvent, sess *model.Session) {
	switch event {
	case model.SessionSignedOut:
		m.handleSignedOut()

	case model.SessionSignedIn:
		m.handleSignedIn(ctx, sess)

	case model.SessionTokenRefreshed:
		m.handleTokenRefreshed(sess)

	default:
		m.logger.Debug("未知のセッションイベントを無視します",
			slog.String("event", string(event)),
		)
	}
}

func (m *Manager) handleSignedOut() {
	m.logger.Info("サインアウトイベントを受信しました")
	m.clearLocal()
	m.machine.ClearError()
	if err := m.kv.Delete(RedirectMarkerKey); err != nil {
		m.logger.Warn("リダイレクトマーカーの削除に失敗しました",
			slog.String("error", err.Error()),
		)
	}
	m.goToLogin()
	m.notifyChange()
}

func (m *Manager) handleSignedIn(ctx context.Context, sess *model.Session) {
	if sess == nil {
		m.logger.Warn("セッションなしのSIGNED_INイベントを無視します")
		return
	}
	if sess.Expired(m.now()) {
		m.logger.Warn("期限切れセッションのSIGNED_INイベントを無視します",
			slog.String("user_id", sess.UserID),
			slog.Time("expires_at", sess.ExpiresAt),
		)
		return
	}

	m.mu.Lock()
	m.session = sess
	m.profile = nil // 別の身元でのサインインに備えて古いプロファイルを破棄する
	m.mu.Unlock()

	m.loadProfile(ctx, sess)
	m.markInitialized()
	m.machine.SetPhase(model.PhaseReady)

	// リダイレクトマーカーが現在パスと異なる場合のみ消費して遷移する
	if target, ok := m.kv.Get(RedirectMarkerKey); ok && target != "" && target != m.nav.CurrentPath() {
		if err := m.kv.Delete(RedirectMarkerKey); err != nil {
			m.logger.Warn("リダイレクトマーカーの削除に失敗しました",
				slog.String("error", err.Error()),
			)
		}
		m.nav.NavigateTo(target)
	}
	m.notifyChange()
}

func (m *Manager) handleTokenRefreshed(sess *model.Session) {
	if sess == nil {
		m.logger.Warn("セッションなしのTOKEN_REFRESHEDイベントを無視します")
		return
	}
	if sess.Expired(m.now()) {
		// 失効済みトークンの更新イベントは強制ログアウト扱い
		m.logger.Warn("失効済みセッションのトークン更新を検出したため強制サインアウトします",
			slog.String("user_id", sess.UserID),
		)
		m.handleSignedOut()
		return
	}

	// プロファイルは再取得せずセッションのみ差し替える
	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()
	m.notifyChange()
}

// SignOut はサインアウトする。リモート呼び出しはベストエフォート（再試行1回）で、
// 結果にかかわらずローカルのセッション/プロファイル/マーカーは必ずクリアし、
// ホームへの遷移を指示する。
func (m *Manager) SignOut(ctx context.Context) {
	err := m.exec.Do(ctx, func(ctx context.Context) error {
		return m.transport.SignOut(ctx)
	}, retry.Options{MaxRetries: 1})
	if err != nil {
		m.logger.Warn("リモートサインアウトに失敗しました。ローカル状態はクリアします",
			slog.String("error", err.Error()),
		)
	}

	m.clearLocal()
	m.machine.ClearError()
	if derr := m.kv.Delete(RedirectMarkerKey); derr != nil {
		m.logger.Warn("リダイレクトマーカーの削除に失敗しました",
			slog.String("error", derr.Error()),
		)
	}
	m.nav.NavigateTo(m.cfg.HomePath)
	m.notifyChange()
}

// Retry はエラーをクリアし、オフラインなら接続回復を待ってから初期化をやり直す。
func (m *Manager) Retry(ctx context.Context) error {
	m.machine.ClearError()
	m.machine.BeginRetry()

	m.mu.Lock()
	m.initialized = false
	m.mu.Unlock()
	m.sf.Forget("initialize")

	if !m.exec.IsOnline(ctx) {
		if err := m.exec.WaitForConnection(ctx, m.cfg.ConnWaitTimeout); err != nil {
			m.machine.SetError("Still offline: "+err.Error(), err)
			return err
		}
	}
	return m.Initialize(ctx)
}

// rememberCurrentPath は現在パスをリダイレクトマーカーとして保存する。
// ログイン/ダッシュボードパスにいる場合は保存しない。
func (m *Manager) rememberCurrentPath() {
	path := m.nav.CurrentPath()
	if path == "" || path == m.cfg.LoginPath || path == m.cfg.DashboardPath {
		return
	}
	if err := m.kv.Set(RedirectMarkerKey, path); err != nil {
		m.logger.Warn("リダイレクトマーカーの保存に失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) goToLogin() {
	if m.nav.CurrentPath() != m.cfg.LoginPath {
		m.nav.NavigateTo(m.cfg.LoginPath)
	}
}

func (m *Manager) clearLocal() {
	m.mu.Lock()
	m.session = nil
	m.profile = nil
	m.initialized = false
	m.mu.Unlock()
	m.sf.Forget("initialize")
}

func (m *Manager) markInitialized() {
	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
}

func (m *Manager) notifyChange() {
	m.mu.RLock()
	fn := m.onChange
	m.mu.RUnlock()
	if fn != nil {
		fn(m.Session(), m.Profile())
	}
}
