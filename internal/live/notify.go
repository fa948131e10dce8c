package live

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Mkayzw/uz-sub000/internal/backend"
	"github.com/Mkayzw/uz-sub000/internal/model"
)

// emitNotifications は申請イベントの新旧スナップショットを比較し、
// 意味のある遷移ごとに通知を発行する。
// 審査状態と支払い確認フラグは独立に判定し、同一イベントで両方発火しうる。
func (r *Reconciler) emitNotifications(event backend.ChangeEvent, userID string) {
	oldApp := decodeApplication(event.Old)
	newApp := decodeApplication(event.New)

	for _, n := range r.deriveNotifications(oldApp, newApp, userID) {
		r.metrics.RecordNotification(string(n.Kind))
		r.logger.Info("状態遷移から通知を導出しました",
			slog.String("kind", string(n.Kind)),
			slog.String("application_id", n.ApplicationID),
		)
		r.notify(n)
	}
}

// deriveNotifications は新旧レコードの差分から通知を導出する。
// 新旧いずれも欠落しているイベントや、対象フィールドが未変化/未設定の場合は
// 何も発行しない。
func (r *Reconciler) deriveNotifications(oldApp, newApp *model.Application, userID string) []model.Notification {
	if oldApp == nil && newApp == nil {
		return nil
	}

	var out []model.Notification
	now := time.Now()

	// 審査状態の遷移（テナント本人の申請のみ）
	if oldApp != nil && newApp != nil && oldApp.Status != newApp.Status && newApp.TenantID == userID {
		switch newApp.Status {
		case model.ApplicationStatusApproved:
			out = append(out, model.Notification{
				ID:            uuid.New().String(),
				Kind:          model.NotificationApplicationApproved,
				Message:       "Your application has been approved. Pay now to secure your room.",
				Link:          "/dashboard/applications/" + newApp.ID + "/pay",
				ApplicationID: newApp.ID,
				CreatedAt:     now,
			})
		case model.ApplicationStatusRejected:
			out = append(out, model.Notification{
				ID:            uuid.New().String(),
				Kind:          model.NotificationApplicationRejected,
				Message:       "Unfortunately your application was not successful.",
				Link:          "/dashboard/applications/" + newApp.ID,
				ApplicationID: newApp.ID,
				CreatedAt:     now,
			})
		}
	}

	// 支払い確認フラグの false→true 遷移。nullのままの場合は対象外
	if paymentFlipped(oldApp, newApp) {
		if newApp.TenantID == userID {
			out = append(out, model.Notification{
				ID:            uuid.New().String(),
				Kind:          model.NotificationPaymentVerified,
				Message:       "Your payment has been verified. Download your receipt.",
				Link:          "/dashboard/applications/" + newApp.ID + "/receipt",
				ApplicationID: newApp.ID,
				CreatedAt:     now,
			})
		}
		if r.agentOwnsBed(newApp.BedID) {
			out = append(out, model.Notification{
				ID:            uuid.New().String(),
				Kind:          model.NotificationAgentPaymentReceived,
				Message:       "A tenant payment has been verified for one of your beds.",
				Link:          "/dashboard/applications/" + newApp.ID,
				ApplicationID: newApp.ID,
				CreatedAt:     now,
			})
		}
	}

	return out
}

// paymentFlipped は支払い確認フラグが明示的に false から true に
// 遷移したかを返す。どちらかが未設定（null）なら遷移とみなさない。
func paymentFlipped(oldApp, newApp *model.Application) bool {
	if oldApp == nil || newApp == nil {
		return false
	}
	if oldApp.PaymentVerified == nil || newApp.PaymentVerified == nil {
		return false
	}
	return !*oldApp.PaymentVerified && *newApp.PaymentVerified
}

// agentOwnsBed は対象ベッドIDが現エージェントの申請キャッシュに含まれるかを返す。
// イベント時点でキャッシュが古い場合は通知が落ちる。
func (r *Reconciler) agentOwnsBed(bedID string) bool {
	if bedID == "" {
		return false
	}
	for _, app := range r.store.AgentApplications() {
		if app.BedID == bedID {
			return true
		}
	}
	return false
}
