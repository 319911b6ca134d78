package interaction

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ButyrinIA/casefeed/internal/feed"
	"github.com/ButyrinIA/casefeed/internal/models"
	"go.uber.org/zap"
)

const (
	msgEmptyComment  = "Please write a comment or upload a file."
	msgTooManyFiles  = "You can only upload up to 10 images."
	msgCommentFailed = "Failed to post comment."
)

type CommentAPI interface {
	AddComment(ctx context.Context, in models.CommentInput) (models.CommentResult, error)
	DeleteComment(ctx context.Context, id string) error
}

// CommentBox - поле ввода комментария или ответа
type CommentBox struct {
	env      Env
	api      CommentAPI
	postID   string
	parentID *string

	mu         sync.Mutex
	body       string
	files      []models.Upload
	submitting bool
	errMsg     string
	closed     bool
	onAdded    func(models.Comment)
}

// NewCommentBox создает поле для поста; parentID != nil - поле ответа
func NewCommentBox(env Env, api CommentAPI, postID string, parentID *string) *CommentBox {
	return &CommentBox{env: env, api: api, postID: postID, parentID: parentID}
}

// OnAdded задает обработчик успешной отправки (обычно перечитать комментарии)
func (b *CommentBox) OnAdded(fn func(models.Comment)) {
	b.mu.Lock()
	b.onAdded = fn
	b.mu.Unlock()
}

func (b *CommentBox) SetBody(body string) {
	b.mu.Lock()
	b.body = body
	b.mu.Unlock()
}

func (b *CommentBox) Body() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.body
}

// AddAttachments добавляет файлы. Если всего стало бы больше
// MaxAttachments, не добавляется ни один.
func (b *CommentBox) AddAttachments(files ...models.Upload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.files)+len(files) > MaxAttachments {
		return &ValidationError{Message: msgTooManyFiles}
	}
	b.files = append(b.files, files...)
	return nil
}

func (b *CommentBox) RemoveAttachment(i int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.files) {
		return
	}
	b.files = append(b.files[:i:i], b.files[i+1:]...)
}

// MoveAttachment переставляет вложение с позиции from на позицию to
func (b *CommentBox) MoveAttachment(from, to int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.files)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return
	}
	f := b.files[from]
	b.files = append(b.files[:from:from], b.files[from+1:]...)
	b.files = append(b.files[:to], append([]models.Upload{f}, b.files[to:]...)...)
}

func (b *CommentBox) Attachments() []models.Upload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Upload(nil), b.files...)
}

// Error - сообщение под полем ввода, пустое если ошибки нет
func (b *CommentBox) Error() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errMsg
}

func (b *CommentBox) Submitting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submitting
}

func (b *CommentBox) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// Submit отправляет комментарий. Пустой текст без вложений отклоняется без
// обращения к сети. При ошибке ввод сохраняется для повторной попытки.
func (b *CommentBox) Submit(ctx context.Context) (models.Comment, error) {
	b.mu.Lock()
	if b.submitting {
		b.mu.Unlock()
		return models.Comment{}, ErrBusy
	}
	if strings.TrimSpace(b.body) == "" && len(b.files) == 0 {
		b.errMsg = msgEmptyComment
		b.mu.Unlock()
		return models.Comment{}, &ValidationError{Message: msgEmptyComment}
	}
	in := models.CommentInput{
		PostID:   b.postID,
		Content:  b.body,
		ParentID: b.parentID,
		Files:    append([]models.Upload(nil), b.files...),
	}
	b.submitting = true
	b.errMsg = ""
	b.mu.Unlock()

	res, err := b.api.AddComment(ctx, in)

	b.mu.Lock()
	b.submitting = false
	if err != nil {
		if !b.closed {
			b.errMsg = msgCommentFailed
		}
		b.mu.Unlock()
		b.env.log().Warn("comment submit failed", zap.String("post_id", b.postID), zap.Error(err))
		return models.Comment{}, fmt.Errorf("failed to post comment: %w", err)
	}
	if !b.closed {
		b.body = ""
		b.files = nil
	}
	onAdded, closed := b.onAdded, b.closed
	b.mu.Unlock()

	c := res.Comment
	if c.PostID == "" {
		c.PostID = b.postID
	}
	if onAdded != nil && !closed {
		onAdded(c)
	}
	// счетчик сервера точнее; без него комментарий прикрепляется локально
	if res.CommentCount != nil {
		b.env.Store.SyncPostUpdate(b.postID, models.PostPatch{CommentsCount: models.IntPtr(*res.CommentCount)})
	} else {
		b.env.Store.AttachComment(c)
	}
	b.env.emit(feed.CommentCreated, c)
	return c, nil
}

// CommentActions - действия над уже опубликованными комментариями
type CommentActions struct {
	env Env
	api CommentAPI
}

func NewCommentActions(env Env, api CommentAPI) *CommentActions {
	return &CommentActions{env: env, api: api}
}

// Delete удаляет комментарий, если пользователь - его автор или администратор
func (a *CommentActions) Delete(ctx context.Context, c models.Comment, user models.User) error {
	if !c.CanDelete(user) {
		return ErrForbidden
	}
	if err := a.api.DeleteComment(ctx, c.ID); err != nil {
		a.env.log().Warn("comment delete failed", zap.String("comment_id", c.ID), zap.Error(err))
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	a.env.Store.RemoveComment(c.PostID, c.ID)
	a.env.emit(feed.CommentDeleted, models.Comment{ID: c.ID, PostID: c.PostID})
	return nil
}
