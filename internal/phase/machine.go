// Package phase はオーケストレータ共通の読み込み段階トラッカーを提供する。
// 各オーケストレータ（セッション、データ）が1つずつMachineを保持し、
// 表示層はSnapshotを通じて一貫した段階/エラー信号を観測する。
package phase

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Mkayzw/uz-sub000/internal/model"
	"github.com/Mkayzw/uz-sub000/internal/retry"
)

// Machine は読み込み段階の有限状態トラッカー。
// Initializing → Authenticating → LoadingProfile → LoadingData → Ready と遷移し、
// Errorは任意の段階から到達しうる。並行利用に対して安全。
//
// 不変条件: 段階がErrorであることとエラー情報が設定されていることは常に同値。
type Machine struct {
	mu         sync.Mutex
	name       string
	phase      model.Phase
	retryCount int
	maxRetries int
	isRetrying bool
	errMessage string
	errClass   retry.Class
	canRetry   bool
	onChange   func(model.LoadingState)
	logger     *slog.Logger
}

// NewMachine はInitializing段階のMachineを生成する。
// nameはログ出力用のオーケストレータ識別子。
func NewMachine(name string, maxRetries int, logger *slog.Logger) *Machine {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		name:       name,
		phase:      model.PhaseInitializing,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// SetOnChange は状態変化時に呼ばれるコールバックを設定する。
// コールバックはロック外で呼び出される。
func (m *Machine) SetOnChange(fn func(model.LoadingState)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// SetPhase は段階を遷移させる。Errorから離れる場合は保存済みエラーをクリアする。
// Readyへの到達で再試行カウントをリセットする。
func (m *Machine) SetPhase(next model.Phase) {
	m.mu.Lock()
	if m.phase == model.PhaseError && next != model.PhaseError {
		m.clearErrorLocked()
	}
	m.phase = next
	if next == model.PhaseReady {
		m.retryCount = 0
		m.isRetrying = false
	}
	snapshot := m.snapshotLocked()
	fn := m.onChange
	m.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// SetError はエラーを分類してError段階へ遷移する。
// canRetryは分類が再試行可能かつ再試行カウントが上限未満の場合のみtrueになる。
func (m *Machine) SetError(message string, raw error) {
	c := retry.Classify(raw)

	m.mu.Lock()
	m.phase = model.PhaseError
	m.errMessage = message
	m.errClass = c.Class
	m.canRetry = c.Retryable && m.retryCount < m.maxRetries
	m.isRetrying = false
	snapshot := m.snapshotLocked()
	fn := m.onChange
	m.mu.Unlock()

	m.logger.Warn("エラー状態に遷移しました",
		slog.String("machine", m.name),
		slog.String("class", string(c.Class)),
		slog.String("message", message),
		slog.Bool("can_retry", snapshot.CanRetry),
	)

	if fn != nil {
		fn(snapshot)
	}
}

// ClearError はエラーをクリアしInitializingへ戻す。
func (m *Machine) ClearError() {
	m.mu.Lock()
	m.clearErrorLocked()
	m.phase = model.PhaseInitializing
	snapshot := m.snapshotLocked()
	fn := m.onChange
	m.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// BeginRetry は再試行の開始を記録する。再試行カウントをインクリメントする。
func (m *Machine) BeginRetry() {
	m.mu.Lock()
	m.retryCount++
	m.isRetrying = true
	snapshot := m.snapshotLocked()
	fn := m.onChange
	m.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// Phase は現在の段階を返す。
func (m *Machine) Phase() model.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// CanRetry は再試行可能かどうかを返す。
func (m *Machine) CanRetry() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canRetry
}

// Snapshot は現在のLoadingStateを返す。
func (m *Machine) Snapshot() model.LoadingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// ExecuteOperation は段階を設定してから操作を実行する。
// 失敗時はラベル付きメッセージでSetErrorを呼び、エラーを伝播せずfalseを返す。
// 呼び出し側は失敗を「結果なし」として扱える。
func (m *Machine) ExecuteOperation(ctx context.Context, op func(context.Context) error, p model.Phase, label string) bool {
	m.SetPhase(p)
	if err := op(ctx); err != nil {
		m.SetError(label+": "+err.Error(), err)
		return false
	}
	return true
}

func (m *Machine) clearErrorLocked() {
	m.errMessage = ""
	m.errClass = ""
	m.canRetry = false
}

func (m *Machine) snapshotLocked() model.LoadingState {
	return model.LoadingState{
		Phase:        m.phase,
		Message:      m.phase.Message(),
		RetryCount:   m.retryCount,
		CanRetry:     m.canRetry,
		IsRetrying:   m.isRetrying,
		ErrorMessage: m.errMessage,
		ErrorClass:   string(m.errClass),
	}
}
