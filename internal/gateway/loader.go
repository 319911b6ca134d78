package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/ButyrinIA/casefeed/internal/models"
	"github.com/graph-gophers/dataloader/v7"
)

// CommentLister - источник комментариев поста
type CommentLister interface {
	ListComments(ctx context.Context, postID string) ([]models.Comment, error)
}

// CommentLoader собирает запросы комментариев от карточек ленты в пачки и
// кэширует их на время одного прохода отрисовки: кэш сбрасывается при
// отправке каждой пачки. API не умеет отдавать комментарии нескольких
// постов сразу, поэтому пачка разворачивается в параллельные
// GET /comments/{postId}.
type CommentLoader struct {
	loader *dataloader.Loader[string, []models.Comment]
}

func NewCommentLoader(src CommentLister, wait time.Duration) *CommentLoader {
	if wait <= 0 {
		wait = 5 * time.Millisecond
	}
	batch := func(ctx context.Context, keys []string) []*dataloader.Result[[]models.Comment] {
		results := make([]*dataloader.Result[[]models.Comment], len(keys))
		var wg sync.WaitGroup
		for i, key := range keys {
			wg.Add(1)
			go func(i int, postID string) {
				defer wg.Done()
				comments, err := src.ListComments(ctx, postID)
				results[i] = &dataloader.Result[[]models.Comment]{Data: comments, Error: err}
			}(i, key)
		}
		wg.Wait()
		return results
	}
	return &CommentLoader{
		loader: dataloader.NewBatchedLoader(batch,
			dataloader.WithWait[string, []models.Comment](wait),
			dataloader.WithClearCacheOnBatch[string, []models.Comment](),
		),
	}
}

// Load возвращает комментарии поста. Неудачный ответ в кэше не остается.
func (l *CommentLoader) Load(ctx context.Context, postID string) ([]models.Comment, error) {
	comments, err := l.loader.Load(ctx, postID)()
	if err != nil {
		l.loader.Clear(ctx, postID)
		return nil, err
	}
	return comments, nil
}

// LoadMany загружает комментарии нескольких постов одной пачкой. Ошибки
// возвращаются по id поста.
func (l *CommentLoader) LoadMany(ctx context.Context, postIDs []string) (map[string][]models.Comment, map[string]error) {
	thunks := make([]dataloader.Thunk[[]models.Comment], len(postIDs))
	for i, id := range postIDs {
		thunks[i] = l.loader.Load(ctx, id)
	}

	out := make(map[string][]models.Comment, len(postIDs))
	errs := make(map[string]error)
	for i, id := range postIDs {
		comments, err := thunks[i]()
		if err != nil {
			l.loader.Clear(ctx, id)
			errs[id] = err
			continue
		}
		out[id] = comments
	}
	return out, errs
}

// Forget сбрасывает кэш поста после добавления или удаления комментария
func (l *CommentLoader) Forget(ctx context.Context, postID string) {
	l.loader.Clear(ctx, postID)
}
