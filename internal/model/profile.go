package model

import "time"

// Role はユーザーの役割を表す。
type Role string

const (
	// RoleTenant は入居希望者（テナント）。
	RoleTenant Role = "tenant"
	// RoleAgent は物件を掲載するエージェント。
	RoleAgent Role = "agent"
	// RoleAdmin は運営管理者。
	RoleAdmin Role = "admin"
)

// AgentStatus はエージェントアカウントの有効化状態を表す。
type AgentStatus string

const (
	// AgentStatusNotApplicable はエージェント以外のユーザーの状態。
	AgentStatusNotApplicable AgentStatus = "not_applicable"
	// AgentStatusPendingPayment は登録料支払い待ち。
	AgentStatusPendingPayment AgentStatus = "pending_payment"
	// AgentStatusPendingVerification は支払い確認待ち。
	AgentStatusPendingVerification AgentStatus = "pending_verification"
	// AgentStatusActive は有効化済み。
	AgentStatusActive AgentStatus = "active"
)

// Profile はセッションに紐づくユーザープロファイルを表す。
// セッション資格情報そのものとは別に管理される。
// SessionManagerが所有し、他コンポーネントからは読み取り専用。
type Profile struct {
	UserID      string      `json:"id"`
	FullName    string      `json:"full_name"`
	Email       string      `json:"email"`
	PhoneNumber string      `json:"phone_number"`
	Role        Role        `json:"role"`
	AgentStatus AgentStatus `json:"agent_status"`
	AvatarURL   string      `json:"avatar_url"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ActiveAgent は有効化済みエージェントかどうかを返す。
// エージェント向けコレクションをフェッチするかの判定に使う。
func (p *Profile) ActiveAgent() bool {
	return p.Role == RoleAgent && p.AgentStatus == AgentStatusActive
}
