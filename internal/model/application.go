package model

import "time"

// ApplicationStatus は入居申請の審査状態を表す。
type ApplicationStatus string

const (
	// ApplicationStatusPending は審査待ち。
	ApplicationStatusPending ApplicationStatus = "pending"
	// ApplicationStatusApproved は承認済み（支払い待ち）。
	ApplicationStatusApproved ApplicationStatus = "approved"
	// ApplicationStatusRejected は却下。
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

// Application は物件への入居申請を表す。
// PaymentVerifiedは支払い確認フラグで、未設定（null）と false を区別するため
// ポインタで保持する。nullのままのレコードは支払いフローに入っていない。
type Application struct {
	ID              string            `json:"id"`
	ListingID       string            `json:"listing_id"`
	BedID           string            `json:"bed_id"`
	TenantID        string            `json:"tenant_id"`
	AgentID         string            `json:"agent_id"`
	Status          ApplicationStatus `json:"status"`
	PaymentVerified *bool             `json:"payment_verified"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// PaymentConfirmed は支払い確認済みかどうかを返す。null は未確認扱い。
func (a *Application) PaymentConfirmed() bool {
	return a.PaymentVerified != nil && *a.PaymentVerified
}
