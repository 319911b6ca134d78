package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// live транслирует изменения хранилища подключенному клиенту
func (s *Server) live(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("live upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	changes, cancel := s.deps.Store.Subscribe(32)
	defer cancel()

	// чтение нужно только чтобы заметить закрытие со стороны клиента
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(ch); err != nil {
				return
			}
		}
	}
}
