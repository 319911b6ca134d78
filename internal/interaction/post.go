package interaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ButyrinIA/casefeed/internal/feed"
	"github.com/ButyrinIA/casefeed/internal/models"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type PostAPI interface {
	CreatePost(ctx context.Context, in models.PostInput) (models.Post, error)
	UpdatePost(ctx context.Context, id string, in models.PostInput) (models.Post, error)
	DeletePost(ctx context.Context, id string) error
}

// fieldMessages - тексты ошибок формы поста по имени поля
var fieldMessages = map[string]string{
	"Title":      "Title is required.",
	"Content":    "Case description is required.",
	"Categories": "Please select at least one category.",
}

// PostEditor - создание, правка и удаление постов
type PostEditor struct {
	env      Env
	api      PostAPI
	validate *validator.Validate
}

func NewPostEditor(env Env, api PostAPI) *PostEditor {
	return &PostEditor{env: env, api: api, validate: validator.New()}
}

// Validate проверяет форму поста до отправки
func (e *PostEditor) Validate(in models.PostInput) error {
	if err := e.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			// dive по категориям дает имя вида Categories[0]
			name := fieldErrs[0].StructField()
			if strings.HasPrefix(name, "Categories") {
				name = "Categories"
			}
			if msg, ok := fieldMessages[name]; ok {
				return &ValidationError{Message: msg}
			}
		}
		return &ValidationError{Message: err.Error()}
	}
	if len(in.Images)+len(in.ExistingImages) > MaxAttachments {
		return &ValidationError{Message: msgTooManyFiles}
	}
	return nil
}

// Create публикует пост, сразу добавляет его в ленту и рассылает post:new
func (e *PostEditor) Create(ctx context.Context, in models.PostInput) (models.Post, error) {
	if err := e.Validate(in); err != nil {
		return models.Post{}, err
	}
	post, err := e.api.CreatePost(ctx, in)
	if err != nil {
		e.env.log().Warn("create post failed", zap.Error(err))
		return models.Post{}, fmt.Errorf("failed to save post: %w", err)
	}
	e.env.Store.InsertPost(post)
	e.env.emit(feed.PostCreated, post)
	return post, nil
}

// Update сохраняет правку и переносит изменяемые поля в хранилище
func (e *PostEditor) Update(ctx context.Context, id string, in models.PostInput) (models.Post, error) {
	if err := e.Validate(in); err != nil {
		return models.Post{}, err
	}
	post, err := e.api.UpdatePost(ctx, id, in)
	if err != nil {
		e.env.log().Warn("update post failed", zap.String("post_id", id), zap.Error(err))
		return models.Post{}, fmt.Errorf("failed to save post: %w", err)
	}
	if post.ID == "" {
		post.ID = id
	}
	e.env.Store.SyncPostUpdate(id, models.PatchFromPost(post))
	e.env.emit(feed.PostUpdated, post)
	return post, nil
}

// Delete удаляет пост; удалять может автор или администратор
func (e *PostEditor) Delete(ctx context.Context, post models.Post, user models.User) error {
	if user.ID == "" || (post.User.ID != user.ID && !user.IsAdmin()) {
		return ErrForbidden
	}
	if err := e.api.DeletePost(ctx, post.ID); err != nil {
		e.env.log().Warn("delete post failed", zap.String("post_id", post.ID), zap.Error(err))
		return fmt.Errorf("failed to delete post: %w", err)
	}
	e.env.Store.RemovePost(post.ID)
	e.env.emit(feed.PostDeleted, post.ID)
	return nil
}
