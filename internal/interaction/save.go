package interaction

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ButyrinIA/casefeed/internal/models"
	"github.com/ButyrinIA/casefeed/internal/optimistic"
	"go.uber.org/zap"
)

type SaveAPI interface {
	ToggleSave(ctx context.Context, postID string) (models.SaveResult, error)
}

// SavedSet - сохраненные посты в сессии пользователя
type SavedSet interface {
	SetSaved(ctx context.Context, postID string, saved bool) error
}

// SaveButton - кнопка "сохранить". Состояние личное, событий не рассылает.
type SaveButton struct {
	env    Env
	api    SaveAPI
	saved  SavedSet
	postID string
	field  *optimistic.Field[bool]
	closed atomic.Bool
}

func NewSaveButton(env Env, api SaveAPI, saved SavedSet, postID string, initial bool) *SaveButton {
	return &SaveButton{
		env:    env,
		api:    api,
		saved:  saved,
		postID: postID,
		field:  optimistic.New(initial),
	}
}

func (b *SaveButton) Saved() bool { return b.field.Value() }

func (b *SaveButton) Busy() bool { return b.field.Busy() }

func (b *SaveButton) Close() { b.closed.Store(true) }

// Toggle переключает сохранение и при успехе обновляет набор в сессии
func (b *SaveButton) Toggle(ctx context.Context) error {
	attempt := b.field.Begin(func(v bool) bool { return !v })

	res, err := b.api.ToggleSave(ctx, b.postID)
	if err != nil {
		if !b.closed.Load() {
			attempt.Rollback()
		}
		b.env.log().Warn("save toggle failed", zap.String("post_id", b.postID), zap.Error(err))
		return fmt.Errorf("failed to toggle save: %w", err)
	}

	var now bool
	switch {
	case res.IsSaved != nil:
		now = *res.IsSaved
		if !b.closed.Load() {
			attempt.Confirm(now)
		}
	default:
		now = attempt.Commit()
	}

	if err := b.saved.SetSaved(ctx, b.postID, now); err != nil {
		b.env.log().Warn("failed to persist saved posts", zap.String("post_id", b.postID), zap.Error(err))
	}
	return nil
}
