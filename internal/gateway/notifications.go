package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ButyrinIA/casefeed/internal/models"
)

// ListNotifications - GET /notifications
func (c *Client) ListNotifications(ctx context.Context) ([]models.Notification, error) {
	var items []models.Notification
	if err := c.getJSON(ctx, "/notifications", &items); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, nil
}

// UnreadCount - GET /notifications/unread-count
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var res struct {
		Count int `json:"count"`
	}
	if err := c.getJSON(ctx, "/notifications/unread-count", &res); err != nil {
		return 0, fmt.Errorf("failed to load unread count: %w", err)
	}
	return res.Count, nil
}

// MarkNotificationRead - PUT /notifications/mark-one-read/{id}
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPut, "/notifications/mark-one-read/"+url.PathEscape(id), nil, "", nil); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}
