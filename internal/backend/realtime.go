package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Mkayzw/uz-sub000/internal/retry"
)

// wsFrame はチェンジフィードWebSocketのワイヤフレーム。
type wsFrame struct {
	Type   string          `json:"type"`
	Topic  string          `json:"topic,omitempty"`
	Filter string          `json:"filter,omitempty"`
	Action string          `json:"action,omitempty"`
	Table  string          `json:"table,omitempty"`
	Old    json.RawMessage `json:"old,omitempty"`
	New    json.RawMessage `json:"new,omitempty"`
}

const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameEvent       = "event"
)

// WSRealtime はWebSocketによるチェンジフィード購読のRealtime実装。
// 1本の接続を全チャネルで共有し、トピックごとに配送を分離する。
// 切断時は指数バックオフで自動再接続し、開いているチャネルを再購読する。
type WSRealtime struct {
	url           string
	apiKey        string
	dialer        *websocket.Dialer
	logger        *slog.Logger
	reconnectBase time.Duration
	reconnectMax  time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	channels map[string]*wsChannel
	closed   bool
	ctx      context.Context
	cancel   context.CancelFunc

	// writeMu はWebSocketへの書き込みを直列化する。
	writeMu sync.Mutex
}

// NewWSRealtime はWSRealtimeを生成する。
func NewWSRealtime(url, apiKey string, logger *slog.Logger) *WSRealtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSRealtime{
		url:           url,
		apiKey:        apiKey,
		dialer:        &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:        logger,
		reconnectBase: time.Second,
		reconnectMax:  30 * time.Second,
		channels:      make(map[string]*wsChannel),
	}
}

// Connect はWebSocket接続を確立し、受信ループを開始する。
func (r *WSRealtime) Connect(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("realtime client is closed")
	}
	if r.conn != nil {
		r.mu.Unlock()
		return nil
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	conn, err := r.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect realtime channel: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	channels := r.channelList()
	r.mu.Unlock()

	for _, ch := range channels {
		r.sendSubscribe(ch)
	}
	go r.readLoop(conn)
	return nil
}

// OpenChannel はトピックとフィルタで購読チャネルを開く。
func (r *WSRealtime) OpenChannel(topic string, filter string) (Channel, error) {
	ch := &wsChannel{
		id:       uuid.New().String(),
		topic:    topic,
		filter:   filter,
		parent:   r,
		handlers: make(map[string][]func(ChangeEvent)),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("realtime client is closed")
	}
	r.channels[ch.id] = ch
	connected := r.conn != nil
	r.mu.Unlock()

	if connected {
		r.sendSubscribe(ch)
	}
	return ch, nil
}

// Close は接続と全チャネルを閉じる。冪等。
func (r *WSRealtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	conn := r.conn
	r.conn = nil
	cancel := r.cancel
	r.channels = make(map[string]*wsChannel)
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	return nil
}

func (r *WSRealtime) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if r.apiKey != "" {
		header.Set("apikey", r.apiKey)
	}
	conn, _, err := r.dialer.DialContext(ctx, r.url, header)
	return conn, err
}

func (r *WSRealtime) readLoop(conn *websocket.Conn) {
	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			r.handleDisconnect(conn, err)
			return
		}
		if frame.Type != frameEvent {
			continue
		}
		r.dispatch(frame)
	}
}

// handleDisconnect は切断を検出して再接続を試みる。
// Closeによる切断の場合は何もしない。
func (r *WSRealtime) handleDisconnect(conn *websocket.Conn, cause error) {
	r.mu.Lock()
	if r.closed || r.conn != conn {
		r.mu.Unlock()
		return
	}
	r.conn = nil
	ctx := r.ctx
	r.mu.Unlock()

	r.logger.Warn("チェンジフィード接続が切断されました。再接続します",
		slog.String("error", cause.Error()),
	)

	for attempt := 0; ; attempt++ {
		delay := retry.Backoff(attempt, r.reconnectBase, r.reconnectMax)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		newConn, err := r.dial(ctx)
		if err != nil {
			r.logger.Warn("チェンジフィードの再接続に失敗しました",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			continue
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			newConn.Close()
			return
		}
		r.conn = newConn
		channels := r.channelList()
		r.mu.Unlock()

		for _, ch := range channels {
			r.sendSubscribe(ch)
		}
		r.logger.Info("チェンジフィード接続を再確立しました",
			slog.Int("channel_count", len(channels)),
		)
		go r.readLoop(newConn)
		return
	}
}

// dispatch はイベントフレームを該当トピックの全ハンドラへ配送する。
// ハンドラのpanicは捕捉してログに残し、他の購読を巻き込まない。
func (r *WSRealtime) dispatch(frame wsFrame) {
	event := ChangeEvent{
		Action: frame.Action,
		Table:  frame.Table,
		Old:    frame.Old,
		New:    frame.New,
	}

	r.mu.Lock()
	var targets []*wsChannel
	for _, ch := range r.channels {
		if ch.topic == frame.Topic {
			targets = append(targets, ch)
		}
	}
	r.mu.Unlock()

	for _, ch := range targets {
		ch.deliver(event, r.logger)
	}
}

func (r *WSRealtime) channelList() []*wsChannel {
	channels := make([]*wsChannel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	return channels
}

func (r *WSRealtime) sendSubscribe(ch *wsChannel) {
	r.writeFrame(wsFrame{Type: frameSubscribe, Topic: ch.topic, Filter: ch.filter})
}

func (r *WSRealtime) writeFrame(frame wsFrame) {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := conn.WriteJSON(frame); err != nil {
		r.logger.Warn("チェンジフィードへのフレーム送信に失敗しました",
			slog.String("type", frame.Type),
			slog.String("topic", frame.Topic),
			slog.String("error", err.Error()),
		)
	}
}

func (r *WSRealtime) removeChannel(ch *wsChannel) {
	r.mu.Lock()
	_, ok := r.channels[ch.id]
	if ok {
		delete(r.channels, ch.id)
	}
	connected := r.conn != nil
	r.mu.Unlock()

	if ok && connected {
		r.writeFrame(wsFrame{Type: frameUnsubscribe, Topic: ch.topic, Filter: ch.filter})
	}
}

// wsChannel はWSRealtime上の1購読分のChannel実装。
type wsChannel struct {
	id     string
	topic  string
	filter string
	parent *WSRealtime

	mu       sync.Mutex
	handlers map[string][]func(ChangeEvent)
	closed   bool
}

// On は指定アクションのハンドラを登録する。
func (c *wsChannel) On(action string, handler func(ChangeEvent)) {
	c.mu.Lock()
	c.handlers[action] = append(c.handlers[action], handler)
	c.mu.Unlock()
}

// Close は購読を解除する。繰り返し呼んでも安全。
func (c *wsChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.parent.removeChannel(c)
	return nil
}

// deliver はイベントを該当アクションのハンドラへ届ける。
func (c *wsChannel) deliver(event ChangeEvent, logger *slog.Logger) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var handlers []func(ChangeEvent)
	handlers = append(handlers, c.handlers[event.Action]...)
	handlers = append(handlers, c.handlers[ActionAll]...)
	c.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("購読コールバックでpanicが発生しました",
						slog.String("topic", c.topic),
						slog.String("action", event.Action),
						slog.Any("panic", r),
					)
				}
			}()
			h(event)
		}()
	}
}

var _ Realtime = (*WSRealtime)(nil)
var _ Channel = (*wsChannel)(nil)
