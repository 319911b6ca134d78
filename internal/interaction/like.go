package interaction

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ButyrinIA/casefeed/internal/feed"
	"github.com/ButyrinIA/casefeed/internal/models"
	"github.com/ButyrinIA/casefeed/internal/optimistic"
	"go.uber.org/zap"
)

type LikeAPI interface {
	ToggleLike(ctx context.Context, postID string) (models.LikeResult, error)
}

// LikeState - то, что показывает кнопка
type LikeState struct {
	Liked bool
	Count int
}

func flipLike(s LikeState) LikeState {
	if s.Liked {
		return LikeState{Liked: false, Count: max(0, s.Count-1)}
	}
	return LikeState{Liked: true, Count: s.Count + 1}
}

// LikeButton - кнопка лайка одного поста
type LikeButton struct {
	env    Env
	api    LikeAPI
	postID string
	userID string
	field  *optimistic.Field[LikeState]

	mu       sync.Mutex
	snapshot models.Post
	onLike   func(models.Post)
	closed   bool
}

// NewLikeButton создает кнопку для поста от имени пользователя userID
func NewLikeButton(env Env, api LikeAPI, post models.Post, userID string) *LikeButton {
	return &LikeButton{
		env:      env,
		api:      api,
		postID:   post.ID,
		userID:   userID,
		snapshot: post.Clone(),
		field:    optimistic.New(LikeState{Liked: post.LikedBy(userID), Count: post.LikeTotal()}),
	}
}

// OnLike задает обработчик, которому передается пост после подтвержденного лайка
func (b *LikeButton) OnLike(fn func(models.Post)) {
	b.mu.Lock()
	b.onLike = fn
	b.mu.Unlock()
}

// State - текущее видимое состояние, с учетом запросов в пути
func (b *LikeButton) State() LikeState {
	return b.field.Value()
}

// Busy сообщает, что есть неподтвержденные нажатия
func (b *LikeButton) Busy() bool {
	return b.field.Busy()
}

func (b *LikeButton) Phase() optimistic.Phase {
	return b.field.Phase()
}

// Sync подтягивает состояние из новой версии поста, если нет нажатий в пути
func (b *LikeButton) Sync(post models.Post) {
	if post.ID != b.postID || b.field.Busy() {
		return
	}
	b.field.Reset(LikeState{Liked: post.LikedBy(b.userID), Count: post.LikeTotal()})
	b.mu.Lock()
	b.snapshot = post.Clone()
	b.mu.Unlock()
}

// Close отвязывает кнопку: поздние ответы больше не меняют ее состояние,
// но хранилище и канал по-прежнему получают подтвержденный результат.
func (b *LikeButton) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// Toggle переключает лайк. Локальное состояние меняется сразу; при ошибке
// оно возвращается к значению до нажатия.
func (b *LikeButton) Toggle(ctx context.Context) error {
	attempt := b.field.Begin(flipLike)

	res, err := b.api.ToggleLike(ctx, b.postID)
	if err != nil {
		if !b.isClosed() {
			attempt.Rollback()
		}
		b.env.log().Warn("like toggle failed", zap.String("post_id", b.postID), zap.Error(err))
		return fmt.Errorf("failed to toggle like: %w", err)
	}
	if !b.isClosed() {
		attempt.Confirm(LikeState{Liked: res.IsLiked, Count: res.LikesCount})
	}

	post := b.current()
	likes := slices.Clone([]string(post.Likes))
	has := slices.Contains(likes, b.userID)
	switch {
	case res.IsLiked && !has:
		likes = append(likes, b.userID)
	case !res.IsLiked && has:
		likes = slices.DeleteFunc(likes, func(id string) bool { return id == b.userID })
	}
	if likes == nil {
		likes = []string{}
	}
	patch := models.PostPatch{Likes: likes, LikesCount: models.IntPtr(res.LikesCount)}

	b.env.Store.SyncPostUpdate(b.postID, patch)
	patch.ApplyTo(&post)

	b.mu.Lock()
	b.snapshot = post.Clone()
	onLike, closed := b.onLike, b.closed
	b.mu.Unlock()

	if onLike != nil && !closed {
		onLike(post)
	}
	b.env.emit(feed.PostLiked, post)
	return nil
}

// current - последняя версия поста: из хранилища, а если его там нет,
// из собственного снимка
func (b *LikeButton) current() models.Post {
	if p, ok := b.env.Store.Post(b.postID); ok {
		return p
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot.Clone()
}

func (b *LikeButton) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
