package model

// Phase はオーケストレータのライフサイクル段階を表す。
type Phase string

const (
	// PhaseInitializing は初期化中。
	PhaseInitializing Phase = "initializing"
	// PhaseAuthenticating はセッション復元中。
	PhaseAuthenticating Phase = "authenticating"
	// PhaseLoadingProfile はプロファイル取得中。
	PhaseLoadingProfile Phase = "loading_profile"
	// PhaseLoadingData はコレクション取得中。
	PhaseLoadingData Phase = "loading_data"
	// PhaseReady は準備完了。
	PhaseReady Phase = "ready"
	// PhaseError はエラー状態。任意の段階から遷移しうる。
	PhaseError Phase = "error"
)

// Message は表示層向けの段階メッセージを返す。
func (p Phase) Message() string {
	switch p {
	case PhaseInitializing:
		return "Initializing..."
	case PhaseAuthenticating:
		return "Checking your session..."
	case PhaseLoadingProfile:
		return "Loading your profile..."
	case PhaseLoadingData:
		return "Loading dashboard data..."
	case PhaseReady:
		return "Ready"
	case PhaseError:
		return "Something went wrong"
	default:
		return ""
	}
}

// LoadingState はオーケストレータ1つにつき1インスタンス存在する読み込み状態。
// 不変条件: Phase == PhaseError ⟺ ErrorMessage が設定されている。
// CanRetry は分類が再試行可能かつ RetryCount < 上限 の場合のみ true。
type LoadingState struct {
	Phase        Phase  `json:"phase"`
	Message      string `json:"message"`
	RetryCount   int    `json:"retry_count"`
	CanRetry     bool   `json:"can_retry"`
	IsRetrying   bool   `json:"is_retrying"`
	ErrorMessage string `json:"error_message,omitempty"`
	ErrorClass   string `json:"error_class,omitempty"`
}
