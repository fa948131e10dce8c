package backend

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// MemoryKV はメモリ上のKV実装。テストとマーカー永続化不要の組み込みで使う。
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryKV はMemoryKVを生成する。
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

// Get は指定キーの値を返す。
func (m *MemoryKV) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Set は指定キーに値を保存する。
func (m *MemoryKV) Set(key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

// Delete は指定キーを削除する。
func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// FileKV はJSONファイルに永続化するKV実装。
// プロセス再起動をまたいでリダイレクトマーカーを保持するために使う。
// 書き込みは一時ファイル経由のrenameでアトミックに行う。
type FileKV struct {
	path string
	mu   sync.Mutex
}

// NewFileKV はFileKVを生成する。親ディレクトリが無ければ作成する。
func NewFileKV(path string) (*FileKV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create kv directory: %w", err)
	}
	return &FileKV{path: path}, nil
}

// Get は指定キーの値を返す。
func (f *FileKV) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return "", false
	}
	v, ok := data[key]
	return v, ok
}

// Set は指定キーに値を保存する。
func (f *FileKV) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return err
	}
	data[key] = value
	return f.save(data)
}

// Delete は指定キーを削除する。
func (f *FileKV) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return err
	}
	delete(data, key)
	return f.save(data)
}

func (f *FileKV) load() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("failed to read kv file: %w", err)
	}
	data := make(map[string]string)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse kv file: %w", err)
	}
	return data, nil
}

func (f *FileKV) save(data map[string]string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode kv data: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write kv file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace kv file: %w", err)
	}
	return nil
}

var _ KV = (*MemoryKV)(nil)
var _ KV = (*FileKV)(nil)
