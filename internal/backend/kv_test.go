package backend

import (
	"os"
	"path/filepath"
	"testing"
)

// TestMemoryKV はメモリKVの基本操作を検証する。
func TestMemoryKV(t *testing.T) {
	kv := NewMemoryKV()

	if _, ok := kv.Get("missing"); ok {
		t.Error("未設定キーはokがfalseであるべき")
	}

	if err := kv.Set("redirectAfterLogin", "/listings/1"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	v, ok := kv.Get("redirectAfterLogin")
	if !ok || v != "/listings/1" {
		t.Errorf("Get = (%q, %v), want (%q, true)", v, ok, "/listings/1")
	}

	if err := kv.Delete("redirectAfterLogin"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, ok := kv.Get("redirectAfterLogin"); ok {
		t.Error("削除済みキーはokがfalseであるべき")
	}
}

// TestFileKV_PersistsAcrossInstances は別インスタンスから同じ値が読めることを検証する。
func TestFileKV_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.json")

	kv1, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("NewFileKV returned error: %v", err)
	}
	if err := kv1.Set("key", "value"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	kv2, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("NewFileKV returned error: %v", err)
	}
	v, ok := kv2.Get("key")
	if !ok || v != "value" {
		t.Errorf("別インスタンスから読んだ値 = (%q, %v), want (%q, true)", v, ok, "value")
	}
}

// TestFileKV_CreatesParentDir は親ディレクトリが自動作成されることを検証する。
func TestFileKV_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "markers.json")

	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("NewFileKV returned error: %v", err)
	}
	if err := kv.Set("key", "value"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("KVファイルが作成されているべき: %v", err)
	}
}

// TestFileKV_Delete は削除がファイルへ反映されることを検証する。
func TestFileKV_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.json")

	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("NewFileKV returned error: %v", err)
	}
	if err := kv.Set("key", "value"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := kv.Delete("key"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	again, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("NewFileKV returned error: %v", err)
	}
	if _, ok := again.Get("key"); ok {
		t.Error("削除済みキーは再読込後も存在すべきでない")
	}
}
