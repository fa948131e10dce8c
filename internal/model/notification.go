package model

import "time"

// NotificationKind は通知の種別を表す。
type NotificationKind string

const (
	// NotificationApplicationApproved は申請承認通知（テナント向け、支払い導線付き）。
	NotificationApplicationApproved NotificationKind = "application_approved"
	// NotificationApplicationRejected は申請却下通知（テナント向け）。
	NotificationApplicationRejected NotificationKind = "application_rejected"
	// NotificationPaymentVerified は支払い確認通知（テナント向け、領収書導線付き）。
	NotificationPaymentVerified NotificationKind = "payment_verified"
	// NotificationAgentPaymentReceived は支払い確認通知（エージェント向け）。
	NotificationAgentPaymentReceived NotificationKind = "agent_payment_received"
)

// Notification はレコードの状態遷移から導出される一時的な通知イベント。
// 永続化されず、表示層が一度だけ消費する。
type Notification struct {
	ID            string           `json:"id"`
	Kind          NotificationKind `json:"kind"`
	Message       string           `json:"message"`
	Link          string           `json:"link"`
	ApplicationID string           `json:"application_id"`
	CreatedAt     time.Time        `json:"created_at"`
}
