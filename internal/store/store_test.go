package store

import (
	"testing"

	"github.com/Mkayzw/uz-sub000/internal/model"
)

// TestStore_SetAndGet はコレクションの全置換と取得を検証する。
func TestStore_SetAndGet(t *testing.T) {
	s := New()

	listings := []model.Listing{{ID: "l1"}, {ID: "l2"}}
	s.SetAllActiveListings(listings)

	got := s.AllActiveListings()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "l1" || got[1].ID != "l2" {
		t.Errorf("取得結果が設定値と一致すべき。got %+v", got)
	}

	// 2度目のSetは追記ではなく全置換
	s.SetAllActiveListings([]model.Listing{{ID: "l3"}})
	got = s.AllActiveListings()
	if len(got) != 1 || got[0].ID != "l3" {
		t.Errorf("Setは全置換であるべき。got %+v", got)
	}
}

// TestStore_GetReturnsCopy は取得結果を書き換えても内部状態が汚れないことを検証する。
func TestStore_GetReturnsCopy(t *testing.T) {
	s := New()
	s.SetTenantApplications([]model.Application{{ID: "a1", Status: model.ApplicationStatusPending}})

	got := s.TenantApplications()
	got[0].Status = model.ApplicationStatusApproved

	again := s.TenantApplications()
	if again[0].Status != model.ApplicationStatusPending {
		t.Error("取得結果への変更が内部状態へ波及すべきでない")
	}
}

// TestStore_ClearRoleSpecific は役割依存コレクションのみが消えることを検証する。
func TestStore_ClearRoleSpecific(t *testing.T) {
	s := New()
	s.SetOwnedListings([]model.Listing{{ID: "l1"}})
	s.SetAllActiveListings([]model.Listing{{ID: "l2"}})
	s.SetTenantApplications([]model.Application{{ID: "a1"}})
	s.SetAgentApplications([]model.Application{{ID: "a2"}})
	s.SetSavedListings([]model.SavedListing{{ID: "s1"}})

	s.ClearRoleSpecific()

	if len(s.OwnedListings()) != 0 {
		t.Error("所有物件はクリアされるべき")
	}
	if len(s.TenantApplications()) != 0 || len(s.AgentApplications()) != 0 {
		t.Error("申請コレクションはクリアされるべき")
	}
	if len(s.SavedListings()) != 0 {
		t.Error("保存済み物件はクリアされるべき")
	}
	if len(s.AllActiveListings()) != 1 {
		t.Error("公開中物件は役割非依存なので残るべき")
	}
}

// TestStore_ClearAll は全コレクションが消えることを検証する。
func TestStore_ClearAll(t *testing.T) {
	s := New()
	s.SetAllActiveListings([]model.Listing{{ID: "l1"}})
	s.SetSavedListings([]model.SavedListing{{ID: "s1"}})

	s.ClearAll()

	if len(s.AllActiveListings()) != 0 || len(s.SavedListings()) != 0 {
		t.Error("ClearAll後は全コレクションが空であるべき")
	}
}
