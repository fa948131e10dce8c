// Package store はダッシュボードのエンティティコレクションを保持するインメモリストアを提供する。
// 各コレクションはフェッチ結果で常に全置換され、部分更新は行わない。
// 書き込みはDataSynchronizer（一括読み込み）とLiveUpdateReconciler（イベント駆動）に限られ、
// 各書き込みがストアから見てアトミックなため、両者の交錯による不整合は生じない。
package store

import (
	"sync"

	"github.com/Mkayzw/uz-sub000/internal/model"
)

// Store はエンティティコレクションの集合。並行利用に対して安全。
type Store struct {
	mu sync.RWMutex

	ownedListings      []model.Listing
	allActiveListings  []model.Listing
	tenantApplications []model.Application
	agentApplications  []model.Application
	savedListings      []model.SavedListing
}

// New は空のStoreを生成する。
func New() *Store {
	return &Store{}
}

// OwnedListings はエージェント所有物件の現在のスナップショットを返す。
func (s *Store) OwnedListings() []model.Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySlice(s.ownedListings)
}

// SetOwnedListings はエージェント所有物件コレクションを全置換する。
func (s *Store) SetOwnedListings(listings []model.Listing) {
	s.mu.Lock()
	s.ownedListings = copySlice(listings)
	s.mu.Unlock()
}

// AllActiveListings は公開中物件の現在のスナップショットを返す。
func (s *Store) AllActiveListings() []model.Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySlice(s.allActiveListings)
}

// SetAllActiveListings は公開中物件コレクションを全置換する。
func (s *Store) SetAllActiveListings(listings []model.Listing) {
	s.mu.Lock()
	s.allActiveListings = copySlice(listings)
	s.mu.Unlock()
}

// TenantApplications はテナント申請の現在のスナップショットを返す。
func (s *Store) TenantApplications() []model.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySlice(s.tenantApplications)
}

// SetTenantApplications はテナント申請コレクションを全置換する。
func (s *Store) SetTenantApplications(apps []model.Application) {
	s.mu.Lock()
	s.tenantApplications = copySlice(apps)
	s.mu.Unlock()
}

// AgentApplications はエージェント側申請の現在のスナップショットを返す。
func (s *Store) AgentApplications() []model.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySlice(s.agentApplications)
}

// SetAgentApplications はエージェント側申請コレクションを全置換する。
func (s *Store) SetAgentApplications(apps []model.Application) {
	s.mu.Lock()
	s.agentApplications = copySlice(apps)
	s.mu.Unlock()
}

// SavedListings は保存済み物件の現在のスナップショットを返す。
func (s *Store) SavedListings() []model.SavedListing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySlice(s.savedListings)
}

// SetSavedListings は保存済み物件コレクションを全置換する。
func (s *Store) SetSavedListings(saved []model.SavedListing) {
	s.mu.Lock()
	s.savedListings = copySlice(saved)
	s.mu.Unlock()
}

// ClearRoleSpecific は役割依存のコレクションを空にする。
// 役割の変更・降格時に古いデータが残らないようにする。
func (s *Store) ClearRoleSpecific() {
	s.mu.Lock()
	s.ownedListings = nil
	s.tenantApplications = nil
	s.agentApplications = nil
	s.savedListings = nil
	s.mu.Unlock()
}

// ClearAll は全コレクションを空にする。サインアウト時に呼ばれる。
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.ownedListings = nil
	s.allActiveListings = nil
	s.tenantApplications = nil
	s.agentApplications = nil
	s.savedListings = nil
	s.mu.Unlock()
}

func copySlice[T any](src []T) []T {
	if src == nil {
		return nil
	}
	dst := make([]T, len(src))
	copy(dst, src)
	return dst
}
