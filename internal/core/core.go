// Package core は各コンポーネントを組み立て、表示層への境界面を提供する。
// SessionManagerが身元を確立し、DataSynchronizerが一括読み込みを行い、
// LiveUpdateReconcilerが購読でストアを最新に保つ、という制御の流れをここで接続する。
package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Mkayzw/uz-sub000/internal/backend"
	"github.com/Mkayzw/uz-sub000/internal/config"
	"github.com/Mkayzw/uz-sub000/internal/datasync"
	"github.com/Mkayzw/uz-sub000/internal/live"
	"github.com/Mkayzw/uz-sub000/internal/logger"
	"github.com/Mkayzw/uz-sub000/internal/metrics"
	"github.com/Mkayzw/uz-sub000/internal/model"
	"github.com/Mkayzw/uz-sub000/internal/phase"
	"github.com/Mkayzw/uz-sub000/internal/retry"
	"github.com/Mkayzw/uz-sub000/internal/session"
	"github.com/Mkayzw/uz-sub000/internal/store"
)

// notificationBuffer は未消費通知の保持上限。超過分は破棄される。
const notificationBuffer = 16

// Options はCore生成時の注入ポイント。
type Options struct {
	// Navigator は必須。表示層のナビゲーションを受け取る。
	Navigator session.Navigator
	// Registry が指定された場合、Prometheusメトリクスを登録する。
	Registry prometheus.Registerer
	// KV を指定するとリダイレクトマーカーの保存先を差し替えられる。
	KV     backend.KV
	Logger *slog.Logger
}

// Core はライブラリ全体の組み立てと表示層への公開面。
type Core struct {
	cfg    *config.Config
	logger *slog.Logger

	client   *backend.Client
	realtime *backend.WSRealtime
	bus      *backend.SessionEventBus

	entityStore *store.Store
	sessions    *session.Manager
	sync        *datasync.Synchronizer
	reconciler  *live.Reconciler

	authMachine *phase.Machine
	dataMachine *phase.Machine

	notifications chan model.Notification

	mu sync.Mutex
	// starting はStartの同期的な初回resyncが控えている間true。
	// その間のセッション変化通知は非同期resyncを起動しない。
	starting bool
	ctx      context.Context
}

// New は設定からCoreを組み立てる。
func New(cfg *config.Config, opts Options) (*Core, error) {
	if opts.Navigator == nil {
		return nil, fmt.Errorf("navigator is required")
	}

	log := opts.Logger
	if log == nil {
		log = logger.Setup(os.Stdout, cfg.LogLevel)
	}

	var recorder metrics.Recorder = metrics.Nop{}
	if opts.Registry != nil {
		recorder = metrics.NewCollector(opts.Registry)
	}

	kv := opts.KV
	if kv == nil {
		if cfg.MarkerStorePath != "" {
			fileKV, err := backend.NewFileKV(cfg.MarkerStorePath)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize marker store: %w", err)
			}
			kv = fileKV
		} else {
			kv = backend.NewMemoryKV()
		}
	}

	client := backend.NewClient(cfg.BackendBaseURL, cfg.BackendAPIKey, cfg.FetchTimeout)
	monitor := retry.NewMonitor(retry.NewHTTPProbe(cfg.ProbeURL), cfg.ProbeInterval)
	exec := retry.NewExecutor(monitor, recorder, log, retry.ExecutorConfig{
		MaxRetries:      cfg.MaxRetries,
		BaseDelay:       cfg.RetryBaseDelay,
		ConnWaitTimeout: cfg.ConnWaitTimeout,
	})

	authMachine := phase.NewMachine("auth", cfg.MaxRetries, log)
	dataMachine := phase.NewMachine("data", cfg.MaxRetries, log)
	bus := backend.NewSessionEventBus(log)
	entityStore := store.New()

	c := &Core{
		cfg:           cfg,
		logger:        log,
		client:        client,
		bus:           bus,
		entityStore:   entityStore,
		authMachine:   authMachine,
		dataMachine:   dataMachine,
		notifications: make(chan model.Notification, notificationBuffer),
		ctx:           context.Background(),
	}

	c.sessions = session.NewManager(session.Deps{
		Transport: client,
		Profiles:  client,
		KV:        kv,
		Navigator: opts.Navigator,
		Machine:   authMachine,
		Executor:  exec,
		Metrics:   recorder,
		Logger:    log,
	}, session.Config{
		LoginPath:       cfg.LoginPath,
		DashboardPath:   cfg.DashboardPath,
		HomePath:        cfg.HomePath,
		ConnWaitTimeout: cfg.ConnWaitTimeout,
	})

	c.sync = datasync.NewSynchronizer(datasync.Deps{
		Source:   c.sessions,
		Fetchers: client,
		Store:    entityStore,
		Machine:  dataMachine,
		Executor: exec,
		Metrics:  recorder,
		Logger:   log,
	})

	var rt backend.Realtime
	if cfg.RealtimeURL != "" {
		c.realtime = backend.NewWSRealtime(cfg.RealtimeURL, cfg.BackendAPIKey, log)
		rt = c.realtime
	}
	if rt != nil {
		c.reconciler = live.NewReconciler(live.Deps{
			Source:   c.sessions,
			Profiles: c.sessions,
			Realtime: rt,
			Fetchers: client,
			Store:    entityStore,
			Metrics:  recorder,
			Logger:   log,
			Notify:   c.pushNotification,
		})
	}

	c.sessions.SetOnChange(c.onSessionChange)
	return c, nil
}

// Start はセッションを確立し、初回の一括読み込みと購読開始まで行う。
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.starting = true
	c.mu.Unlock()

	c.sessions.ListenEvents(ctx, c.bus)

	if c.realtime != nil {
		if err := c.realtime.Connect(ctx); err != nil {
			// ライブ更新なしでも起動は継続する
			c.logger.Warn("チェンジフィードへの接続に失敗しました。ライブ更新なしで継続します",
				slog.String("error", err.Error()),
			)
		}
	}

	err := c.sessions.Initialize(ctx)
	c.mu.Lock()
	c.starting = false
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.resync(ctx)
}

// onSessionChange はセッション/プロファイルの変化に追従する。
// サインアウトではコレクションと購読を破棄し、確立・変更では再同期する。
func (c *Core) onSessionChange(sess *model.Session, prof *model.Profile) {
	if sess == nil {
		c.client.SetAccessToken("")
		c.entityStore.ClearAll()
		c.sync.Reset()
		if c.reconciler != nil {
			c.reconciler.Teardown()
		}
		return
	}

	c.client.SetAccessToken(sess.AccessToken)

	c.mu.Lock()
	ctx := c.ctx
	starting := c.starting
	c.mu.Unlock()
	// Startが直後に同期resyncを行うため、初期化中の通知では二重読み込みを避ける
	if starting {
		return
	}
	go func() {
		if err := c.resync(ctx); err != nil {
			c.logger.Warn("セッション変化後の再同期に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}()
}

// resync は判定規則に従う一括読み込みと購読スコープの追従を行う。
func (c *Core) resync(ctx context.Context) error {
	if err := c.sync.LoadIfNeeded(ctx); err != nil {
		return err
	}
	if c.reconciler != nil {
		return c.reconciler.Sync(ctx)
	}
	return nil
}

func (c *Core) pushNotification(n model.Notification) {
	select {
	case c.notifications <- n:
	default:
		c.logger.Warn("通知バッファが満杯のため通知を破棄しました",
			slog.String("kind", string(n.Kind)),
		)
	}
}

// Session は現在のセッションを返す。
func (c *Core) Session() *model.Session { return c.sessions.Session() }

// Profile は現在のプロファイルを返す。
func (c *Core) Profile() *model.Profile { return c.sessions.Profile() }

// Store はエンティティストアを返す。
// コレクションのgetterに加え、表示層の手動上書き用setterもここから使う。
func (c *Core) Store() *store.Store { return c.entityStore }

// AuthState は認証オーケストレータの読み込み状態を返す。
func (c *Core) AuthState() model.LoadingState { return c.authMachine.Snapshot() }

// DataState はデータオーケストレータの読み込み状態を返す。
func (c *Core) DataState() model.LoadingState { return c.dataMachine.Snapshot() }

// Notifications は導出通知の受信チャネルを返す。
func (c *Core) Notifications() <-chan model.Notification { return c.notifications }

// SessionEvents は外部セッションイベントの発行口を返す。
// 認証フローを実装するホストアプリがここへイベントを流す。
func (c *Core) SessionEvents() *backend.SessionEventBus { return c.bus }

// Refresh は判定規則を無視した強制再読み込みを行う。
func (c *Core) Refresh(ctx context.Context) error { return c.sync.Refresh(ctx) }

// RetryAuth はセッション初期化をやり直す。
func (c *Core) RetryAuth(ctx context.Context) error { return c.sessions.Retry(ctx) }

// RetryDataLoading はデータ一括読み込みをやり直す。
func (c *Core) RetryDataLoading(ctx context.Context) error { return c.sync.Retry(ctx) }

// SignOut はサインアウトする。
func (c *Core) SignOut(ctx context.Context) { c.sessions.SignOut(ctx) }

// Close は購読とイベントリスナーを解放する。冪等。
func (c *Core) Close() error {
	if c.reconciler != nil {
		c.reconciler.Teardown()
	}
	c.sessions.Teardown()
	if c.realtime != nil {
		return c.realtime.Close()
	}
	return nil
}
