package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ButyrinIA/casefeed/internal/commenttree"
	"github.com/ButyrinIA/casefeed/internal/feed"
	"github.com/ButyrinIA/casefeed/internal/interaction"
	"github.com/ButyrinIA/casefeed/internal/logger"
	"github.com/ButyrinIA/casefeed/internal/models"
	"github.com/ButyrinIA/casefeed/internal/notifications"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// API - вызовы удаленного сервиса, нужные оболочке
type API interface {
	interaction.LikeAPI
	interaction.SaveAPI
	interaction.CommentAPI
	interaction.PostAPI
}

// CommentSource отдает комментарии поста; после отправки кэш поста сбрасывается
type CommentSource interface {
	Load(ctx context.Context, postID string) ([]models.Comment, error)
	Forget(ctx context.Context, postID string)
}

// Session - текущий пользователь и его сохраненные посты
type Session interface {
	CurrentUser(ctx context.Context) (models.User, error)
	SavedPosts(ctx context.Context) ([]string, error)
	IsSaved(ctx context.Context, postID string) (bool, error)
	SetSaved(ctx context.Context, postID string, saved bool) error
}

type Deps struct {
	Store    *feed.Store
	API      API
	Comments CommentSource
	Session  Session
	Channel  interaction.Emitter
	Inbox    *notifications.Inbox
	Logger   *zap.Logger
}

// Server - локальная HTTP-оболочка над хранилищем ленты: отдает
// представления, принимает действия и транслирует изменения в /live
type Server struct {
	port     string
	deps     Deps
	env      interaction.Env
	log      *zap.Logger
	handler  *gin.Engine
	upgrader websocket.Upgrader
	editor   *interaction.PostEditor
	actions  *interaction.CommentActions

	mu    sync.Mutex
	likes map[string]*interaction.LikeButton
	saves map[string]*interaction.SaveButton
	views map[string]*commenttree.View
}

func New(port string, deps Deps) *Server {
	log := logger.OrNop(deps.Logger)
	env := interaction.Env{Store: deps.Store, Channel: deps.Channel, Logger: log}
	s := &Server{
		port: port,
		deps: deps,
		env:  env,
		log:  log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		editor:  interaction.NewPostEditor(env, deps.API),
		actions: interaction.NewCommentActions(env, deps.API),
		likes:   make(map[string]*interaction.LikeButton),
		saves:   make(map[string]*interaction.SaveButton),
		views:   make(map[string]*commenttree.View),
	}
	s.handler = s.routes()
	return s
}

// Handler возвращает http.Handler (используется и в тестах)
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	api := r.Group("/api")
	api.GET("/feed", s.listPosts(s.deps.Store.Feed))
	api.GET("/recent", s.listPosts(s.deps.Store.Recent))
	api.POST("/reload", s.reload)
	api.POST("/posts", s.createPost)
	api.GET("/posts/:id", s.getPost)
	api.PUT("/posts/:id", s.updatePost)
	api.DELETE("/posts/:id", s.deletePost)
	api.POST("/posts/:id/like", s.toggleLike)
	api.POST("/posts/:id/save", s.toggleSave)
	api.GET("/posts/:id/comments", s.listComments)
	api.POST("/posts/:id/comments", s.addComment)
	api.POST("/posts/:id/comments/view", s.changeCommentView)
	api.DELETE("/posts/:id/comments/:commentId", s.deleteComment)
	if s.deps.Inbox != nil {
		api.GET("/notifications", s.listNotifications)
		api.POST("/notifications/:id/read", s.markRead)
	}

	r.GET("/live", s.live)
	return r
}

// Run слушает порт до отмены ctx
func (s *Server) Run(ctx context.Context) error {
	s.watch(ctx)

	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http shell listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

// watch подписывается на хранилище: при изменении комментариев сбрасывает
// кэш комментариев поста, при удалении поста забывает его компоненты
func (s *Server) watch(ctx context.Context) {
	changes, cancel := s.deps.Store.Subscribe(64)
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ch, ok := <-changes:
				if !ok {
					return
				}
				switch ch.Kind {
				case feed.ChangeComments:
					s.deps.Comments.Forget(ctx, ch.PostID)
				case feed.ChangeRemoved:
					s.forgetPost(ch.PostID)
					s.deps.Comments.Forget(ctx, ch.PostID)
				}
			}
		}
	}()
}

func (s *Server) forgetPost(postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := postID + "/"
	for key, btn := range s.likes {
		if strings.HasPrefix(key, prefix) {
			btn.Close()
			delete(s.likes, key)
		}
	}
	if btn, ok := s.saves[postID]; ok {
		btn.Close()
		delete(s.saves, postID)
	}
	delete(s.views, postID)
}

// commentView - состояние показа комментариев поста, общее для запросов
func (s *Server) commentView(postID string) *commenttree.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[postID]
	if !ok {
		v = commenttree.NewView(nil)
		s.views[postID] = v
	}
	return v
}

func (s *Server) likeButton(post models.Post, userID string) *interaction.LikeButton {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := post.ID + "/" + userID
	btn, ok := s.likes[key]
	if !ok {
		btn = interaction.NewLikeButton(s.env, s.deps.API, post, userID)
		s.likes[key] = btn
		return btn
	}
	btn.Sync(post)
	return btn
}

func (s *Server) saveButton(ctx context.Context, postID string) *interaction.SaveButton {
	s.mu.Lock()
	defer s.mu.Unlock()
	if btn, ok := s.saves[postID]; ok {
		return btn
	}
	saved, err := s.deps.Session.IsSaved(ctx, postID)
	if err != nil {
		s.log.Warn("failed to read saved posts", zap.Error(err))
	}
	btn := interaction.NewSaveButton(s.env, s.deps.API, s.deps.Session, postID, saved)
	s.saves[postID] = btn
	return btn
}
