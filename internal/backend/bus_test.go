package backend

import (
	"io"
	"log/slog"
	"testing"

	"github.com/Mkayzw/uz-sub000/internal/model"
)

// TestSessionEventBus_Emit は登録済みハンドラへイベントが配送されることを検証する。
func TestSessionEventBus_Emit(t *testing.T) {
	bus := NewSessionEventBus(nil)

	var gotEvent model.SessionEvent
	var gotSession *model.Session
	bus.OnSessionEvent(func(event model.SessionEvent, sess *model.Session) {
		gotEvent = event
		gotSession = sess
	})

	sess := &model.Session{UserID: "user-1"}
	bus.Emit(model.SessionSignedIn, sess)

	if gotEvent != model.SessionSignedIn {
		t.Errorf("event = %q, want %q", gotEvent, model.SessionSignedIn)
	}
	if gotSession != sess {
		t.Error("セッションがそのまま渡されるべき")
	}
}

// TestSessionEventBus_Unsubscribe は解除後のハンドラが呼ばれないことを検証する。
func TestSessionEventBus_Unsubscribe(t *testing.T) {
	bus := NewSessionEventBus(nil)

	calls := 0
	unsubscribe := bus.OnSessionEvent(func(model.SessionEvent, *model.Session) {
		calls++
	})

	bus.Emit(model.SessionSignedIn, nil)
	unsubscribe()
	bus.Emit(model.SessionSignedOut, nil)
	unsubscribe() // 解除は冪等

	if calls != 1 {
		t.Errorf("解除後はハンドラが呼ばれるべきでない。calls = %d", calls)
	}
}

// TestSessionEventBus_PanicIsolation はハンドラのpanicが他のハンドラを巻き込まないことを検証する。
func TestSessionEventBus_PanicIsolation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := NewSessionEventBus(logger)

	bus.OnSessionEvent(func(model.SessionEvent, *model.Session) {
		panic("boom")
	})
	survived := false
	bus.OnSessionEvent(func(model.SessionEvent, *model.Session) {
		survived = true
	})

	bus.Emit(model.SessionSignedIn, nil)

	if !survived {
		t.Error("panicしたハンドラがあっても他のハンドラへ配送されるべき")
	}
}
