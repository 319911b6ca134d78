package feed

import "github.com/ButyrinIA/casefeed/internal/models"

// EventKind - имя события канала реального времени
type EventKind string

const (
	PostCreated    EventKind = "post:new"
	PostUpdated    EventKind = "post:updated"
	PostDeleted    EventKind = "post:deleted"
	CommentCreated EventKind = "comment:new"
	CommentDeleted EventKind = "comment:deleted"
	PostLiked      EventKind = "post:liked"
)

// Known сообщает, умеет ли хранилище применять событие этого вида
func (k EventKind) Known() bool {
	switch k {
	case PostCreated, PostUpdated, PostDeleted, CommentCreated, CommentDeleted, PostLiked:
		return true
	}
	return false
}

// Event - одно входящее событие. Заполнены только поля, нужные для Kind:
//
//	post:new        Post
//	post:updated    PostID, Patch
//	post:deleted    PostID
//	comment:new     Comment (Comment.PostID - целевой пост)
//	comment:deleted Comment.ID, Comment.PostID
//	post:liked      PostID, Likes (nil - оставить текущий список)
type Event struct {
	Kind    EventKind
	PostID  string
	Post    *models.Post
	Patch   *models.PostPatch
	Comment *models.Comment
	Likes   []string
}
