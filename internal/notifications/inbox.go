package notifications

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/ButyrinIA/casefeed/internal/logger"
	"github.com/ButyrinIA/casefeed/internal/models"
	"go.uber.org/zap"
)

const TypeLike = "like"

type API interface {
	ListNotifications(ctx context.Context) ([]models.Notification, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// Inbox - список уведомлений пользователя и счетчик непрочитанных
type Inbox struct {
	api API
	log *zap.Logger

	mu     sync.RWMutex
	items  []models.Notification
	unread int
}

func NewInbox(api API, log *zap.Logger) *Inbox {
	return &Inbox{api: api, log: logger.OrNop(log)}
}

// Load перечитывает уведомления. Уведомления об удаленных постах и
// комментариях отбрасываются.
func (in *Inbox) Load(ctx context.Context) error {
	list, err := in.api.ListNotifications(ctx)
	if err != nil {
		return fmt.Errorf("failed to load notifications: %w", err)
	}
	kept := make([]models.Notification, 0, len(list))
	for _, n := range list {
		if Visible(n) {
			kept = append(kept, n)
		}
	}

	in.mu.Lock()
	in.items = kept
	in.mu.Unlock()
	return nil
}

// Visible - пост уведомления существует, а для не-лайков существует и комментарий
func Visible(n models.Notification) bool {
	return n.PostID() != "" && (n.Type == TypeLike || n.CommentID() != "")
}

func (in *Inbox) Items() []models.Notification {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return append([]models.Notification(nil), in.items...)
}

// RefreshUnread запрашивает счетчик непрочитанных у сервера
func (in *Inbox) RefreshUnread(ctx context.Context) (int, error) {
	n, err := in.api.UnreadCount(ctx)
	if err != nil {
		return in.Unread(), fmt.Errorf("failed to load unread count: %w", err)
	}
	in.mu.Lock()
	in.unread = n
	in.mu.Unlock()
	return n, nil
}

func (in *Inbox) Unread() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.unread
}

// MarkRead сразу помечает уведомление прочитанным и сообщает серверу.
// Если сервер ответил ошибкой, отметка снимается.
func (in *Inbox) MarkRead(ctx context.Context, id string) error {
	if !in.setRead(id, true) {
		return nil
	}
	if err := in.api.MarkNotificationRead(ctx, id); err != nil {
		in.setRead(id, false)
		in.log.Warn("mark notification read failed", zap.String("notification_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

// setRead меняет флаг и счетчик; false, если менять нечего
func (in *Inbox) setRead(id string, read bool) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := range in.items {
		if in.items[i].ID != id || in.items[i].Read == read {
			continue
		}
		in.items[i].Read = read
		if read {
			in.unread = max(0, in.unread-1)
		} else {
			in.unread++
		}
		return true
	}
	return false
}

// Target - адрес, куда ведет уведомление
func Target(n models.Notification) string {
	path := "/post/" + url.PathEscape(n.PostID())
	if n.Type == TypeLike || n.CommentID() == "" {
		return path
	}
	return path + "?comment=" + url.QueryEscape(n.CommentID())
}
