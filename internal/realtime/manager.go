package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ButyrinIA/casefeed/internal/feed"
	"github.com/ButyrinIA/casefeed/internal/logger"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Identity отдает id текущего пользователя из сохраненной сессии
type Identity interface {
	UserID(ctx context.Context) (string, error)
}

type Options struct {
	URL              string
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

// Manager владеет единственным соединением сессии: создает его при первом
// обращении и закрывает в Disconnect. Держится корнем приложения и
// передается компонентам.
type Manager struct {
	url      string
	dialer   *websocket.Dialer
	identity Identity
	handler  Handler
	log      *zap.Logger

	mu sync.Mutex
	ch *Channel
	// userID закрепляется при первом успешном подключении и сбрасывается
	// в Disconnect
	userID string
	bound  bool
}

func NewManager(opts Options, identity Identity, handler Handler) *Manager {
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Manager{
		url: opts.URL,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		identity: identity,
		handler:  handler,
		log:      logger.OrNop(opts.Logger),
	}
}

// Get возвращает соединение сессии, подключаясь при первом вызове.
// Пользователь читается из сессии в этот момент и позже не меняется:
// оборванное соединение переоткрывается при следующем вызове с тем же
// пользователем.
func (m *Manager) Get(ctx context.Context) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ch != nil {
		select {
		case <-m.ch.Done():
			m.ch = nil
		default:
			return m.ch, nil
		}
	}

	userID := m.userID
	if !m.bound {
		id, err := m.identity.UserID(ctx)
		if err != nil {
			m.log.Debug("connecting without user id", zap.Error(err))
			id = ""
		}
		userID = id
	}
	ch, err := dial(ctx, m.dialer, m.url, userID, m.handler, m.log)
	if err != nil {
		return nil, err
	}
	m.log.Info("realtime channel connected", zap.String("user_id", userID), zap.String("client_id", ch.ClientID()))
	m.ch = ch
	m.userID, m.bound = userID, true
	return ch, nil
}

// Emit отправляет событие через текущее соединение. Если его нет или оно
// недоступно, событие отбрасывается: согласованность восстановит
// следующая перезагрузка.
func (m *Manager) Emit(kind feed.EventKind, payload any) {
	m.mu.Lock()
	ch := m.ch
	m.mu.Unlock()

	if ch == nil {
		m.log.Debug("realtime channel unavailable, event dropped", zap.String("event", string(kind)))
		return
	}
	if err := ch.Emit(kind, payload); err != nil {
		m.log.Debug("event dropped", zap.String("event", string(kind)), zap.Error(err))
	}
}

// Disconnect закрывает и забывает соединение вместе с пользователем
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	ch := m.ch
	m.ch = nil
	m.userID, m.bound = "", false
	m.mu.Unlock()

	if ch == nil {
		return nil
	}
	return ch.Close()
}
