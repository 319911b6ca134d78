package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ButyrinIA/casefeed/internal/feed"
	"github.com/ButyrinIA/casefeed/internal/models"
	"github.com/ButyrinIA/casefeed/internal/notifications"
	"github.com/ButyrinIA/casefeed/internal/session"
	"github.com/ButyrinIA/casefeed/internal/storage/memory"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) ToggleLike(ctx context.Context, postID string) (models.LikeResult, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).(models.LikeResult), args.Error(1)
}

func (m *mockAPI) ToggleSave(ctx context.Context, postID string) (models.SaveResult, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).(models.SaveResult), args.Error(1)
}

func (m *mockAPI) AddComment(ctx context.Context, in models.CommentInput) (models.CommentResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(models.CommentResult), args.Error(1)
}

func (m *mockAPI) DeleteComment(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockAPI) CreatePost(ctx context.Context, in models.PostInput) (models.Post, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(models.Post), args.Error(1)
}

func (m *mockAPI) UpdatePost(ctx context.Context, id string, in models.PostInput) (models.Post, error) {
	args := m.Called(ctx, id, in)
	return args.Get(0).(models.Post), args.Error(1)
}

func (m *mockAPI) DeletePost(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockComments struct {
	mock.Mock
}

func (m *mockComments) Load(ctx context.Context, postID string) ([]models.Comment, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).([]models.Comment), args.Error(1)
}

func (m *mockComments) Forget(ctx context.Context, postID string) {
	m.Called(ctx, postID)
}

type mockNotifications struct {
	mock.Mock
}

func (m *mockNotifications) ListNotifications(ctx context.Context) ([]models.Notification, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Notification), args.Error(1)
}

func (m *mockNotifications) UnreadCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockNotifications) MarkNotificationRead(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type staticSource []models.Post

func (s staticSource) ListPosts(context.Context) ([]models.Post, error) {
	return s, nil
}

type fixture struct {
	srv      *Server
	store    *feed.Store
	sess     *session.Session
	api      *mockAPI
	comments *mockComments
	notes    *mockNotifications
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	posts := staticSource{
		{ID: "p1", Title: "Pneumonia", Content: "see www.who.int", Categories: models.Categories{"Pulmonology"}, User: models.User{ID: "u1"}, CreatedAt: time.Now().Add(-time.Hour)},
		{ID: "p2", Title: "Arrhythmia", Categories: models.Categories{"Cardiology"}, User: models.User{ID: "u2"}, CreatedAt: time.Now()},
	}
	store := feed.NewStore(posts, feed.WithSavedPosts([]string{"p2"}))
	require.NoError(t, store.Reload(context.Background()))

	sess := session.New(memory.New())
	require.NoError(t, sess.Login(context.Background(), "token", models.User{ID: "u1", FullName: "Dr. Grey", SavedPosts: []string{"p2"}}))

	f := &fixture{store: store, sess: sess, api: &mockAPI{}, comments: &mockComments{}, notes: &mockNotifications{}}
	f.srv = New("0", Deps{
		Store:    store,
		API:      f.api,
		Comments: f.comments,
		Session:  sess,
		Inbox:    notifications.NewInbox(f.notes, nil),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return f.send(req)
}

func (f *fixture) send(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	f := newFixture(t)
	assert.NotNil(t, f.srv)
	assert.Equal(t, "0", f.srv.port)
	assert.NotNil(t, f.srv.handler)
}

func TestListPosts(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/recent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Loading bool `json:"loading"`
		Posts   []struct {
			ID    string `json:"_id"`
			HTML  string `json:"html"`
			Saved bool   `json:"saved"`
		} `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Posts, 2)
	assert.Equal(t, "p2", resp.Posts[0].ID)
	assert.True(t, resp.Posts[0].Saved)
	assert.Contains(t, resp.Posts[1].HTML, "<a ")

	rec = f.do(t, http.MethodGet, "/api/feed?category=cardiology", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Posts, 1)
	assert.Equal(t, "p2", resp.Posts[0].ID)

	rec = f.do(t, http.MethodGet, "/api/feed?q=pneum", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Posts, 1)
	assert.Equal(t, "p1", resp.Posts[0].ID)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/posts/missing", "").Code)
}

func TestToggleLike(t *testing.T) {
	f := newFixture(t)
	f.api.On("ToggleLike", mock.Anything, "p2").Return(models.LikeResult{IsLiked: true, LikesCount: 1}, nil).Once()

	rec := f.do(t, http.MethodPost, "/api/posts/p2/like", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"isLiked":true,"likesCount":1}`, rec.Body.String())

	p, _ := f.store.Post("p2")
	assert.Equal(t, models.RefList{"u1"}, p.Likes)
	f.api.AssertExpectations(t)
}

func TestAddComment(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/posts/p1/comments", `{"content":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please write a comment or upload a file.")
	f.api.AssertNotCalled(t, "AddComment", mock.Anything, mock.Anything)

	f.api.On("AddComment", mock.Anything, mock.Anything).Return(models.CommentResult{
		Comment:      models.Comment{ID: "c1", PostID: "p1", Content: "ok"},
		CommentCount: models.IntPtr(1),
	}, nil).Once()
	f.comments.On("Forget", mock.Anything, "p1").Return().Once()

	rec = f.do(t, http.MethodPost, "/api/posts/p1/comments", `{"content":"ok"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	p, _ := f.store.Post("p1")
	assert.Equal(t, 1, p.CommentTotal())
	f.comments.AssertExpectations(t)
}

func TestListComments(t *testing.T) {
	f := newFixture(t)
	f.comments.On("Load", mock.Anything, "p1").Return([]models.Comment{}, nil).Once()

	rec := f.do(t, http.MethodGet, "/api/posts/p1/comments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"empty":true`)
}

func TestDeleteComment(t *testing.T) {
	f := newFixture(t)
	own := models.Comment{ID: "c1", PostID: "p1", User: models.User{ID: "u1"}}
	other := models.Comment{ID: "c2", PostID: "p1", User: models.User{ID: "u7"}}
	f.comments.On("Load", mock.Anything, "p1").Return([]models.Comment{own, other}, nil)
	f.comments.On("Forget", mock.Anything, "p1").Return()
	f.api.On("DeleteComment", mock.Anything, "c1").Return(nil).Once()

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/api/posts/p1/comments/c2", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/posts/p1/comments/c9", "").Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/posts/p1/comments/c1", "").Code)
	f.api.AssertExpectations(t)
}

func TestNotifications(t *testing.T) {
	f := newFixture(t)
	post := models.Ref("p1")
	f.notes.On("ListNotifications", mock.Anything).Return([]models.Notification{
		{ID: "n1", Type: "like", Post: &post},
		{ID: "n2", Type: "comment"},
	}, nil)
	f.notes.On("UnreadCount", mock.Anything).Return(1, nil)
	f.notes.On("MarkNotificationRead", mock.Anything, "n1").Return(nil).Once()

	rec := f.do(t, http.MethodGet, "/api/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"target":"/post/p1"`)
	assert.NotContains(t, rec.Body.String(), `"n2"`)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/api/notifications/n1/read", "").Code)
}

func TestLive(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/live", nil)
	require.NoError(t, err)
	defer conn.Close()

	// подписка создается после апгрейда; повторяем вставку, пока событие не дойдет
	got := make(chan feed.Change, 1)
	go func() {
		var ch feed.Change
		if conn.ReadJSON(&ch) == nil {
			got <- ch
		}
	}()
	require.Eventually(t, func() bool {
		f.store.ApplyRemoteEvent(feed.Event{Kind: feed.PostDeleted, PostID: "p1"})
		f.store.InsertPost(models.Post{ID: "p1"})
		select {
		case ch := <-got:
			assert.Equal(t, "p1", ch.PostID)
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSaveShowsInViews(t *testing.T) {
	f := newFixture(t)
	saved := true
	f.api.On("ToggleSave", mock.Anything, "p1").Return(models.SaveResult{IsSaved: &saved}, nil).Once()

	rec := f.do(t, http.MethodPost, "/api/posts/p1/save", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"isSaved":true}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/posts/p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Saved bool `json:"saved"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.Saved)

	rec = f.do(t, http.MethodGet, "/api/recent", "")
	var list struct {
		Posts []struct {
			ID    string `json:"_id"`
			Saved bool   `json:"saved"`
		} `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	for _, p := range list.Posts {
		assert.True(t, p.Saved, p.ID)
	}
	f.api.AssertExpectations(t)
}

func TestCreatePost(t *testing.T) {
	f := newFixture(t)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("title", "Endocarditis"))
	require.NoError(t, w.WriteField("content", "Fever and murmur"))
	require.NoError(t, w.WriteField("category", "Cardiology"))
	require.NoError(t, w.WriteField("category", "Infectious"))
	part, err := w.CreateFormFile("images", "echo.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f.api.On("CreatePost", mock.Anything, mock.MatchedBy(func(in models.PostInput) bool {
		return in.Title == "Endocarditis" && len(in.Categories) == 2 &&
			len(in.Images) == 1 && in.Images[0].Name == "echo.png" && string(in.Images[0].Data) == "png"
	})).Return(models.Post{ID: "p3", Title: "Endocarditis", User: models.User{ID: "u1"}, CreatedAt: time.Now()}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/posts", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := f.send(req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"_id":"p3"`)

	_, ok := f.store.Post("p3")
	assert.True(t, ok)
	assert.Equal(t, "p3", f.store.Recent()[0].ID)

	form := url.Values{"content": {"x"}, "category": {"Cardiology"}}
	req = httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = f.send(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Title is required.")
	f.api.AssertExpectations(t)
}

func TestUpdatePost(t *testing.T) {
	f := newFixture(t)
	f.api.On("UpdatePost", mock.Anything, "p1", mock.MatchedBy(func(in models.PostInput) bool {
		return in.Title == "Pneumonia, day 3" && len(in.ExistingImages) == 1 && in.ExistingImages[0] == "uploads/a.png"
	})).Return(models.Post{
		ID:         "p1",
		Title:      "Pneumonia, day 3",
		Content:    "improving",
		Categories: models.Categories{"Pulmonology"},
		Images:     []string{"uploads/a.png"},
		User:       models.User{ID: "u1"},
	}, nil).Once()

	form := url.Values{
		"title":          {"Pneumonia, day 3"},
		"content":        {"improving"},
		"category":       {"Pulmonology"},
		"existingImages": {`["uploads/a.png"]`},
	}
	put := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/api/posts/"+id, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return f.send(req)
	}

	require.Equal(t, http.StatusOK, put("p1").Code)
	p, _ := f.store.Post("p1")
	assert.Equal(t, "Pneumonia, day 3", p.Title)
	assert.Equal(t, []string{"uploads/a.png"}, p.Images)

	// чужой пост
	assert.Equal(t, http.StatusForbidden, put("p2").Code)
	assert.Equal(t, http.StatusNotFound, put("missing").Code)
	f.api.AssertExpectations(t)
}

func TestCommentViewActions(t *testing.T) {
	f := newFixture(t)
	parent := "c1"
	f.comments.On("Load", mock.Anything, "p1").Return([]models.Comment{
		{ID: "c1", PostID: "p1", Content: "first"},
		{ID: "c2", PostID: "p1", Content: "second"},
		{ID: "c3", PostID: "p1", Content: "third"},
		{ID: "r1", PostID: "p1", Content: "reply one", ParentID: &parent},
		{ID: "r2", PostID: "p1", Content: "reply two", ParentID: &parent},
	}, nil)

	type state struct {
		Remaining   int  `json:"remaining"`
		CanShowLess bool `json:"canShowLess"`
	}
	read := func(rec *httptest.ResponseRecorder) state {
		t.Helper()
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var st state
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
		return st
	}
	action := func(body string) *httptest.ResponseRecorder {
		return f.do(t, http.MethodPost, "/api/posts/p1/comments/view", body)
	}

	assert.Equal(t, state{Remaining: 1}, read(f.do(t, http.MethodGet, "/api/posts/p1/comments", "")))
	assert.Equal(t, state{Remaining: 0, CanShowLess: true}, read(action(`{"action":"more"}`)))
	assert.Equal(t, state{Remaining: 1}, read(action(`{"action":"less"}`)))
	assert.Equal(t, state{Remaining: 0, CanShowLess: true}, read(action(`{"action":"all"}`)))

	// состояние показа переживает повторную загрузку
	assert.Equal(t, state{Remaining: 0, CanShowLess: true}, read(f.do(t, http.MethodGet, "/api/posts/p1/comments", "")))

	text := f.do(t, http.MethodGet, "/api/posts/p1/comments?format=text", "").Body.String()
	assert.Contains(t, text, "View more replies (1)")

	require.Equal(t, http.StatusOK, action(`{"action":"toggle","commentId":"c1"}`).Code)
	text = f.do(t, http.MethodGet, "/api/posts/p1/comments?format=text", "").Body.String()
	assert.Contains(t, text, "reply two")
	assert.Contains(t, text, "Show less replies")

	assert.Equal(t, http.StatusBadRequest, action(`{"action":"sideways"}`).Code)
	assert.Equal(t, http.StatusBadRequest, action(`{"action":"toggle"}`).Code)
}

func TestWatchForgetsStaleState(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f.srv.watch(ctx)

	forgotten := make(chan string, 4)
	f.comments.On("Forget", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		forgotten <- args.String(1)
	}).Return()
	wait := func() string {
		t.Helper()
		select {
		case id := <-forgotten:
			return id
		case <-time.After(time.Second):
			t.Fatal("comment cache was not reset")
			return ""
		}
	}

	// комментарий из другой сессии
	require.True(t, f.store.ApplyRemoteEvent(feed.Event{Kind: feed.CommentCreated, Comment: &models.Comment{ID: "c5", PostID: "p1"}}))
	assert.Equal(t, "p1", wait())

	f.api.On("ToggleLike", mock.Anything, "p2").Return(models.LikeResult{IsLiked: true, LikesCount: 1}, nil).Once()
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/posts/p2/like", "").Code)
	unsaved := false
	f.api.On("ToggleSave", mock.Anything, "p2").Return(models.SaveResult{IsSaved: &unsaved}, nil).Once()
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/posts/p2/save", "").Code)
	f.comments.On("Load", mock.Anything, "p2").Return([]models.Comment{}, nil).Once()
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/posts/p2/comments", "").Code)

	sizes := func() [3]int {
		f.srv.mu.Lock()
		defer f.srv.mu.Unlock()
		return [3]int{len(f.srv.likes), len(f.srv.saves), len(f.srv.views)}
	}
	require.Equal(t, [3]int{1, 1, 1}, sizes())

	require.True(t, f.store.ApplyRemoteEvent(feed.Event{Kind: feed.PostDeleted, PostID: "p2"}))
	assert.Equal(t, "p2", wait())
	assert.Equal(t, [3]int{0, 0, 0}, sizes())
	f.api.AssertExpectations(t)
}
