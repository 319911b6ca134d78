package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ButyrinIA/casefeed/internal/commenttree"
	"github.com/ButyrinIA/casefeed/internal/feed"
	"github.com/ButyrinIA/casefeed/internal/gateway"
	"github.com/ButyrinIA/casefeed/internal/interaction"
	"github.com/ButyrinIA/casefeed/internal/models"
	"github.com/ButyrinIA/casefeed/internal/notifications"
	"github.com/ButyrinIA/casefeed/internal/render"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// postView - пост в ответе оболочки
type postView struct {
	models.Post
	HTML    string `json:"html"`
	TimeAgo string `json:"timeAgo"`
	Saved   bool   `json:"saved"`
}

func (s *Server) view(p models.Post, now time.Time, saved map[string]bool) postView {
	return postView{
		Post:    p,
		HTML:    render.Text(p.Content),
		TimeAgo: render.TimeAgo(p.CreatedAt, now),
		Saved:   saved[p.ID],
	}
}

// savedSet читает сохраненные посты из сессии; если сессия недоступна,
// используется набор, прочитанный хранилищем при запуске
func (s *Server) savedSet(ctx context.Context, posts []models.Post) map[string]bool {
	out := make(map[string]bool)
	ids, err := s.deps.Session.SavedPosts(ctx)
	if err != nil {
		s.log.Warn("failed to read saved posts", zap.Error(err))
		for _, p := range posts {
			out[p.ID] = s.deps.Store.IsSaved(p.ID)
		}
		return out
	}
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func (s *Server) listPosts(source func() []models.Post) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts := feed.FilterOptions{Query: c.Query("q")}
		for _, v := range c.QueryArray("category") {
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					opts.Categories = append(opts.Categories, part)
				}
			}
		}

		posts := feed.Filter(source(), opts)
		saved := s.savedSet(c.Request.Context(), posts)
		now := time.Now()
		out := make([]postView, 0, len(posts))
		for _, p := range posts {
			out = append(out, s.view(p, now, saved))
		}
		c.JSON(http.StatusOK, gin.H{"loading": s.deps.Store.Loading(), "posts": out})
	}
}

func (s *Server) reload(c *gin.Context) {
	if err := s.deps.Store.Reload(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": s.deps.Store.Len()})
}

func (s *Server) getPost(c *gin.Context) {
	p, ok := s.deps.Store.Post(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	c.JSON(http.StatusOK, s.view(p, time.Now(), s.savedSet(c.Request.Context(), []models.Post{p})))
}

// postInput разбирает форму поста: title, content, category[], images[]
// и existingImages (JSON-массив путей) при редактировании
func postInput(c *gin.Context) (models.PostInput, error) {
	in := models.PostInput{
		Title:      strings.TrimSpace(c.PostForm("title")),
		Content:    strings.TrimSpace(c.PostForm("content")),
		Categories: c.PostFormArray("category"),
	}
	if raw := c.PostForm("existingImages"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.ExistingImages); err != nil {
			return in, fmt.Errorf("invalid existingImages: %w", err)
		}
	}

	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return in, nil
		}
		return in, fmt.Errorf("invalid form: %w", err)
	}
	for _, fh := range form.File["images"] {
		f, err := fh.Open()
		if err != nil {
			return in, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return in, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
		}
		in.Images = append(in.Images, models.Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return in, nil
}

func (s *Server) createPost(c *gin.Context) {
	in, err := postInput(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	post, err := s.editor.Create(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.view(post, time.Now(), nil))
}

func (s *Server) updatePost(c *gin.Context) {
	ctx := c.Request.Context()
	current, ok := s.deps.Store.Post(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	user, err := s.deps.Session.CurrentUser(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	if user.ID == "" || (current.User.ID != user.ID && !user.IsAdmin()) {
		s.fail(c, interaction.ErrForbidden)
		return
	}
	in, err := postInput(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	post, err := s.editor.Update(ctx, current.ID, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	updated, ok := s.deps.Store.Post(current.ID)
	if !ok {
		updated = post
	}
	c.JSON(http.StatusOK, s.view(updated, time.Now(), s.savedSet(ctx, []models.Post{updated})))
}

func (s *Server) deletePost(c *gin.Context) {
	p, ok := s.deps.Store.Post(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	user, err := s.deps.Session.CurrentUser(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.editor.Delete(c.Request.Context(), p, user); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) toggleLike(c *gin.Context) {
	ctx := c.Request.Context()
	p, ok := s.deps.Store.Post(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	user, err := s.deps.Session.CurrentUser(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	btn := s.likeButton(p, user.ID)
	if err := btn.Toggle(ctx); err != nil {
		s.fail(c, err)
		return
	}
	state := btn.State()
	c.JSON(http.StatusOK, gin.H{"isLiked": state.Liked, "likesCount": state.Count})
}

func (s *Server) toggleSave(c *gin.Context) {
	ctx := c.Request.Context()
	btn := s.saveButton(ctx, c.Param("id"))
	if err := btn.Toggle(ctx); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isSaved": btn.Saved()})
}

func (s *Server) listComments(c *gin.Context) {
	postID := c.Param("id")
	comments, err := s.deps.Comments.Load(c.Request.Context(), postID)
	if err != nil {
		s.fail(c, err)
		return
	}
	view := s.commentView(postID)
	view.SetComments(comments)
	s.writeCommentView(c, view)
}

type viewRequest struct {
	Action    string `json:"action" binding:"required,oneof=more less all toggle"`
	CommentID string `json:"commentId" binding:"required_if=Action toggle"`
}

// changeCommentView меняет показ комментариев: more, less, all или
// toggle (раскрыть/свернуть ответы commentId)
func (s *Server) changeCommentView(c *gin.Context) {
	var req viewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view := s.commentView(c.Param("id"))
	switch req.Action {
	case "more":
		view.ViewMore()
	case "less":
		view.ShowLess()
	case "all":
		view.ShowAll()
	case "toggle":
		view.ToggleReplies(req.CommentID)
	}
	s.writeCommentView(c, view)
}

// writeCommentView отдает дерево в JSON или, при format=text, текстом
func (s *Server) writeCommentView(c *gin.Context, view *commenttree.View) {
	if c.Query("format") == "text" {
		var buf bytes.Buffer
		if err := view.Render(&buf, time.Now()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"empty":       view.Empty(),
		"comments":    view.Tree(),
		"remaining":   view.Remaining(),
		"canShowLess": view.CanShowLess(),
	})
}

type commentRequest struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parentCommentId"`
}

func (s *Server) addComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	postID := c.Param("id")
	box := interaction.NewCommentBox(s.env, s.deps.API, postID, req.ParentID)
	box.OnAdded(func(models.Comment) { s.deps.Comments.Forget(c.Request.Context(), postID) })
	box.SetBody(req.Content)

	comment, err := box.Submit(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (s *Server) deleteComment(c *gin.Context) {
	ctx := c.Request.Context()
	postID, commentID := c.Param("id"), c.Param("commentId")

	comments, err := s.deps.Comments.Load(ctx, postID)
	if err != nil {
		s.fail(c, err)
		return
	}
	var target *models.Comment
	for i := range comments {
		if comments[i].ID == commentID {
			target = &comments[i]
			break
		}
	}
	if target == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
		return
	}
	if target.PostID == "" {
		target.PostID = postID
	}

	user, err := s.deps.Session.CurrentUser(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.actions.Delete(ctx, *target, user); err != nil {
		s.fail(c, err)
		return
	}
	s.deps.Comments.Forget(ctx, postID)
	c.Status(http.StatusNoContent)
}

type notificationView struct {
	models.Notification
	Target string `json:"target"`
}

func (s *Server) listNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.deps.Inbox.Load(ctx); err != nil {
		s.fail(c, err)
		return
	}
	if _, err := s.deps.Inbox.RefreshUnread(ctx); err != nil {
		s.log.Debug("unread count unavailable", zap.Error(err))
	}
	items := s.deps.Inbox.Items()
	out := make([]notificationView, 0, len(items))
	for _, n := range items {
		out = append(out, notificationView{Notification: n, Target: notifications.Target(n)})
	}
	c.JSON(http.StatusOK, gin.H{"unread": s.deps.Inbox.Unread(), "notifications": out})
}

func (s *Server) markRead(c *gin.Context) {
	if err := s.deps.Inbox.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail переводит ошибку в HTTP-статус
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch {
	case interaction.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, interaction.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, interaction.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, gateway.ErrNotFound):
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
