package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/ButyrinIA/casefeed/internal/feed"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// ErrClosed возвращается при отправке в закрытый канал
var ErrClosed = errors.New("realtime channel closed")

// Handler получает входящие события. Реализуется feed.Store.
type Handler interface {
	ApplyRemoteEvent(ev feed.Event) bool
}

// Channel - одно соединение с сервером событий, привязанное к пользователю
// в момент подключения
type Channel struct {
	conn     *websocket.Conn
	userID   string
	clientID string
	handler  Handler
	log      *zap.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func dial(ctx context.Context, dialer *websocket.Dialer, rawURL, userID string, handler Handler, log *zap.Logger) (*Channel, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}
	clientID := uuid.NewString()
	q := u.Query()
	if userID != "" {
		q.Set("userId", userID)
	}
	q.Set("clientId", clientID)
	u.RawQuery = q.Encode()

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", u.Redacted(), err)
	}

	c := &Channel{
		conn:     conn,
		userID:   userID,
		clientID: clientID,
		handler:  handler,
		log:      log.With(zap.String("client_id", clientID)),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// UserID - пользователь, с которым открыто соединение
func (c *Channel) UserID() string { return c.userID }

func (c *Channel) ClientID() string { return c.clientID }

// Done закрывается, когда соединение завершено
func (c *Channel) Done() <-chan struct{} { return c.done }

func (c *Channel) readLoop() {
	defer c.shutdown()
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("realtime read stopped", zap.Error(err))
			}
			return
		}
		ev, err := Decode(frame)
		if err != nil {
			c.log.Debug("dropping malformed frame", zap.Error(err))
			continue
		}
		c.handler.ApplyRemoteEvent(ev)
	}
}

// Emit отправляет событие без гарантии доставки. Ошибка возвращается только
// для логирования, повторной отправки нет.
func (c *Channel) Emit(kind feed.EventKind, payload any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	frame, err := Encode(kind, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to emit %s: %w", kind, err)
	}
	return nil
}

// Close закрывает соединение; повторный вызов безопасен
func (c *Channel) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.shutdown()
	return nil
}

func (c *Channel) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
