package retry

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Mkayzw/uz-sub000/internal/metrics"
)

// mockRecorder はテスト用のmetrics.Recorderモック。
type mockRecorder struct {
	retries  []string
	failures []string
}

func (m *mockRecorder) RecordRetry(class string)            { m.retries = append(m.retries, class) }
func (m *mockRecorder) RecordOperationFailure(class string) { m.failures = append(m.failures, class) }
func (m *mockRecorder) RecordSessionBootstrap(string)       {}
func (m *mockRecorder) RecordLoadDuration(time.Duration)    {}
func (m *mockRecorder) RecordReconcileEvent(string)         {}
func (m *mockRecorder) RecordNotification(string)           {}

var _ metrics.Recorder = (*mockRecorder)(nil)

func newTestExecutor(rec metrics.Recorder) *Executor {
	e := NewExecutor(nil, rec, slog.Default(), ExecutorConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
	})
	// テストでは実時間を待たない
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e
}

// TestExecutor_Success は成功した操作が1回だけ呼ばれることを検証する。
func TestExecutor_Success(t *testing.T) {
	e := newTestExecutor(&mockRecorder{})

	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, Options{})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 1 {
		t.Errorf("成功した操作は1回のみ実行されるべき。calls = %d", calls)
	}
}

// TestExecutor_AuthErrorNotRetried は認証エラーが再試行されずに即時伝播されることを検証する。
func TestExecutor_AuthErrorNotRetried(t *testing.T) {
	rec := &mockRecorder{}
	e := newTestExecutor(rec)

	authErr := errors.New("Invalid JWT")
	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return authErr
	}, Options{})
	if !errors.Is(err, authErr) {
		t.Fatalf("元の認証エラーが返されるべき。err = %v", err)
	}
	if calls != 1 {
		t.Errorf("認証エラーは再試行されるべきでない。calls = %d", calls)
	}
	if len(rec.retries) != 0 {
		t.Errorf("再試行メトリクスが記録されるべきでない。got %v", rec.retries)
	}
	if len(rec.failures) != 1 || rec.failures[0] != string(ClassAuthentication) {
		t.Errorf("失敗メトリクス = %v, want [authentication]", rec.failures)
	}
}

// TestExecutor_NetworkErrorRetriedToLimit はネットワークエラーが上限まで再試行されることを検証する。
func TestExecutor_NetworkErrorRetriedToLimit(t *testing.T) {
	rec := &mockRecorder{}
	e := newTestExecutor(rec)

	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("fetch failed")
	}, Options{})
	if err == nil {
		t.Fatal("全試行失敗後はエラーが返されるべき")
	}
	// 初回 + 再試行3回
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if len(rec.retries) != 3 {
		t.Errorf("再試行メトリクス = %d件, want 3件", len(rec.retries))
	}
}

// TestExecutor_NetworkErrorRecovers は途中で回復した場合に成功が返ることを検証する。
func TestExecutor_NetworkErrorRecovers(t *testing.T) {
	e := newTestExecutor(&mockRecorder{})

	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, Options{})
	if err != nil {
		t.Fatalf("回復後は成功すべき: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

// TestExecutor_UnknownErrorRetriedOnce は未知エラーが1回だけ再試行されることを検証する。
func TestExecutor_UnknownErrorRetriedOnce(t *testing.T) {
	rec := &mockRecorder{}
	e := newTestExecutor(rec)

	unknownErr := errors.New("something odd")
	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return unknownErr
	}, Options{})
	if !errors.Is(err, unknownErr) {
		t.Fatalf("元のエラーが返されるべき。err = %v", err)
	}
	if calls != 2 {
		t.Errorf("未知エラーは1回のみ再試行されるべき。calls = %d", calls)
	}
}

// TestExecutor_OptionsOverrideMaxRetries はOptionsのMaxRetriesが優先されることを検証する。
func TestExecutor_OptionsOverrideMaxRetries(t *testing.T) {
	e := newTestExecutor(&mockRecorder{})

	calls := 0
	_ = e.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("fetch failed")
	}, Options{MaxRetries: 1})
	if calls != 2 {
		t.Errorf("MaxRetries=1なら初回+1回の計2回であるべき。calls = %d", calls)
	}
}

// TestExecutor_SleepAborted は待機中のキャンセルで再試行が中断されることを検証する。
func TestExecutor_SleepAborted(t *testing.T) {
	e := newTestExecutor(&mockRecorder{})
	e.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("fetch failed")
	}, Options{})
	if err == nil {
		t.Fatal("中断時はエラーが返されるべき")
	}
	if calls != 1 {
		t.Errorf("中断後は再実行されるべきでない。calls = %d", calls)
	}
}

// TestDoValue は値を返す操作の結果が伝播されることを検証する。
func TestDoValue(t *testing.T) {
	e := newTestExecutor(&mockRecorder{})

	calls := 0
	got, err := DoValue(context.Background(), e, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("fetch failed")
		}
		return "hello", nil
	}, Options{})
	if err != nil {
		t.Fatalf("DoValue returned error: %v", err)
	}
	if got != "hello" {
		t.Errorf("got = %q, want %q", got, "hello")
	}
}

// TestDoValue_FailureReturnsZero は失敗時にゼロ値が返ることを検証する。
func TestDoValue_FailureReturnsZero(t *testing.T) {
	e := newTestExecutor(&mockRecorder{})

	got, err := DoValue(context.Background(), e, func(context.Context) (int, error) {
		return 42, errors.New("Invalid JWT")
	}, Options{})
	if err == nil {
		t.Fatal("エラーが返されるべき")
	}
	if got != 0 {
		t.Errorf("失敗時はゼロ値が返るべき。got = %d", got)
	}
}

// TestExecutor_FixedNetworkDelay はネットワーク再試行の待機が
// 試行回数に依らず固定のBaseDelayであることを検証する。
func TestExecutor_FixedNetworkDelay(t *testing.T) {
	e := NewExecutor(nil, &mockRecorder{}, slog.Default(), ExecutorConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
	})
	var delays []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	err := e.Do(context.Background(), func(context.Context) error {
		return errors.New("network request failed")
	}, Options{})
	if err == nil {
		t.Fatal("エラーが返されるべき")
	}
	if len(delays) != 3 {
		t.Fatalf("待機回数 = %d, want 3", len(delays))
	}
	for i, d := range delays {
		if d != time.Millisecond {
			t.Errorf("delays[%d] = %v, want %v", i, d, time.Millisecond)
		}
	}
}
