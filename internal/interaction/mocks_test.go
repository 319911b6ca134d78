package interaction

import (
	"context"
	"testing"

	"github.com/ButyrinIA/casefeed/internal/feed"
	"github.com/ButyrinIA/casefeed/internal/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type staticSource []models.Post

func (s staticSource) ListPosts(context.Context) ([]models.Post, error) {
	return s, nil
}

func newStore(t *testing.T, posts ...models.Post) *feed.Store {
	t.Helper()
	s := feed.NewStore(staticSource(posts))
	require.NoError(t, s.Reload(context.Background()))
	return s
}

type mockEmitter struct {
	mock.Mock
}

func (m *mockEmitter) Emit(kind feed.EventKind, payload any) {
	m.Called(kind, payload)
}

func newEmitter() *mockEmitter {
	e := &mockEmitter{}
	e.On("Emit", mock.Anything, mock.Anything).Return()
	return e
}

type mockLikeAPI struct {
	mock.Mock
}

func (m *mockLikeAPI) ToggleLike(ctx context.Context, postID string) (models.LikeResult, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).(models.LikeResult), args.Error(1)
}

type likeReply struct {
	res models.LikeResult
	err error
}

// gatedLikeAPI отвечает только когда тест пришлет ответ в канал вызова
type gatedLikeAPI struct {
	calls chan chan likeReply
}

func (g *gatedLikeAPI) ToggleLike(ctx context.Context, postID string) (models.LikeResult, error) {
	reply := make(chan likeReply, 1)
	g.calls <- reply
	r := <-reply
	return r.res, r.err
}

type mockSaveAPI struct {
	mock.Mock
}

func (m *mockSaveAPI) ToggleSave(ctx context.Context, postID string) (models.SaveResult, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).(models.SaveResult), args.Error(1)
}

type mockSavedSet struct {
	mock.Mock
}

func (m *mockSavedSet) SetSaved(ctx context.Context, postID string, saved bool) error {
	args := m.Called(ctx, postID, saved)
	return args.Error(0)
}

type mockCommentAPI struct {
	mock.Mock
}

func (m *mockCommentAPI) AddComment(ctx context.Context, in models.CommentInput) (models.CommentResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(models.CommentResult), args.Error(1)
}

func (m *mockCommentAPI) DeleteComment(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockPostAPI struct {
	mock.Mock
}

func (m *mockPostAPI) CreatePost(ctx context.Context, in models.PostInput) (models.Post, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(models.Post), args.Error(1)
}

func (m *mockPostAPI) UpdatePost(ctx context.Context, id string, in models.PostInput) (models.Post, error) {
	args := m.Called(ctx, id, in)
	return args.Get(0).(models.Post), args.Error(1)
}

func (m *mockPostAPI) DeletePost(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
