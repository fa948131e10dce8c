package backend

import (
	"log/slog"
	"sync"

	"github.com/Mkayzw/uz-sub000/internal/model"
)

// SessionEventBus は外部セッションイベントの配送を仲介するSessionEvents実装。
// 認証フローを持つホストアプリケーションがEmitで通知し、
// SessionManagerがOnSessionEventで購読する。
type SessionEventBus struct {
	mu       sync.Mutex
	handlers map[int]func(model.SessionEvent, *model.Session)
	nextID   int
	logger   *slog.Logger
}

// NewSessionEventBus はSessionEventBusを生成する。
func NewSessionEventBus(logger *slog.Logger) *SessionEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionEventBus{
		handlers: make(map[int]func(model.SessionEvent, *model.Session)),
		logger:   logger,
	}
}

// OnSessionEvent はハンドラを登録し、解除関数を返す。解除は冪等。
func (b *SessionEventBus) OnSessionEvent(handler func(model.SessionEvent, *model.Session)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Emit は登録済みの全ハンドラへイベントを配送する。
// ハンドラのpanicは捕捉してログに残し、他のハンドラへの配送は継続する。
func (b *SessionEventBus) Emit(event model.SessionEvent, session *model.Session) {
	b.mu.Lock()
	handlers := make([]func(model.SessionEvent, *model.Session), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("セッションイベントハンドラでpanicが発生しました",
						slog.String("event", string(event)),
						slog.Any("panic", r),
					)
				}
			}()
			h(event, session)
		}()
	}
}

var _ SessionEvents = (*SessionEventBus)(nil)
