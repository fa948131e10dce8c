package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mkayzw/uz-sub000/internal/metrics"
)

// Options は1回の実行における再試行設定。
type Options struct {
	// MaxRetries はネットワークエラー時の最大再試行回数。0の場合はExecutorのデフォルト値。
	MaxRetries int
}

// ExecutorConfig はExecutorの生成設定。
type ExecutorConfig struct {
	MaxRetries      int
	BaseDelay       time.Duration
	ConnWaitTimeout time.Duration
}

// Executor は任意の操作を有界再試行付きで実行する。
// エラー分類に応じて挙動が変わる:
//   - ネットワーク: 接続性確認を挟みつつ固定の短い遅延で最大MaxRetries回再試行
//   - 認証: 再試行せず即時伝播
//   - 未知: 最大1回だけ再試行
//
// 再試行は操作のat-least-once実行を意味する。非冪等な操作を渡す場合、
// その意味論を受け入れるかどうかは呼び出し側の責任であり、ここでは解決しない。
type Executor struct {
	maxRetries      int
	baseDelay       time.Duration
	connWaitTimeout time.Duration
	monitor         *Monitor
	metrics         metrics.Recorder
	logger          *slog.Logger

	// sleep はテストから差し替える待機関数。
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor はExecutorを生成する。設定のゼロ値にはデフォルトを適用する。
func NewExecutor(monitor *Monitor, recorder metrics.Recorder, logger *slog.Logger, cfg ExecutorConfig) *Executor {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.ConnWaitTimeout <= 0 {
		cfg.ConnWaitTimeout = 15 * time.Second
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		maxRetries:      cfg.MaxRetries,
		baseDelay:       cfg.BaseDelay,
		connWaitTimeout: cfg.ConnWaitTimeout,
		monitor:         monitor,
		metrics:         recorder,
		logger:          logger,
		sleep:           sleepContext,
	}
}

// IsOnline は現在の接続状態を返す。Monitor未設定の場合は常にtrue。
func (e *Executor) IsOnline(ctx context.Context) bool {
	if e.monitor == nil {
		return true
	}
	return e.monitor.IsOnline(ctx)
}

// WaitForConnection は接続回復を待つ。Monitor未設定の場合は即時成功する。
func (e *Executor) WaitForConnection(ctx context.Context, timeout time.Duration) error {
	if e.monitor == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = e.connWaitTimeout
	}
	return e.monitor.WaitForConnection(ctx, timeout)
}

// Do は操作を再試行付きで実行する。
// 全試行が失敗した場合は最後のエラーを返す。
func (e *Executor) Do(ctx context.Context, op func(context.Context) error, opts Options) error {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = e.maxRetries
	}

	var networkRetries, unknownRetries int
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}

		c := Classify(err)
		switch c.Class {
		case ClassAuthentication:
			// 死んだセッションで再試行しても成功しないため即時伝播
			e.metrics.RecordOperationFailure(string(ClassAuthentication))
			return err

		case ClassNetwork:
			if networkRetries >= maxRetries {
				e.metrics.RecordOperationFailure(string(ClassNetwork))
				return fmt.Errorf("retries exhausted after %d attempts: %w", networkRetries+1, err)
			}
			if !e.IsOnline(ctx) {
				if werr := e.WaitForConnection(ctx, e.connWaitTimeout); werr != nil {
					e.metrics.RecordOperationFailure(string(ClassNetwork))
					return fmt.Errorf("offline and connection did not recover: %w", err)
				}
			}
			delay := e.baseDelay
			networkRetries++
			e.metrics.RecordRetry(string(ClassNetwork))
			e.logger.Debug("ネットワークエラーのため再試行します",
				slog.Int("attempt", networkRetries),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
			if serr := e.sleep(ctx, delay); serr != nil {
				return fmt.Errorf("retry aborted: %w", err)
			}

		case ClassUnknown:
			if unknownRetries >= 1 {
				e.metrics.RecordOperationFailure(string(ClassUnknown))
				return err
			}
			unknownRetries++
			e.metrics.RecordRetry(string(ClassUnknown))
			e.logger.Debug("未知のエラーのため1回だけ再試行します",
				slog.String("error", err.Error()),
			)
			if serr := e.sleep(ctx, e.baseDelay); serr != nil {
				return fmt.Errorf("retry aborted: %w", err)
			}
		}
	}
}

// DoValue は結果を返す操作をExecutorの再試行付きで実行する。
func DoValue[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error), opts Options) (T, error) {
	var result T
	err := e.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	}, opts)
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
