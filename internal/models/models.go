package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// User - автор поста или комментария
type User struct {
	ID         string   `json:"_id"`
	FullName   string   `json:"fullname,omitempty"`
	Email      string   `json:"email,omitempty"`
	ProfileURL string   `json:"profile_url,omitempty"`
	Role       string   `json:"role,omitempty"`
	External   bool     `json:"isExternal,omitempty"`
	SavedPosts []string `json:"savedPosts,omitempty"`
}

// IsAdmin сообщает, может ли пользователь модерировать чужой контент
func (u User) IsAdmin() bool {
	switch strings.ToLower(strings.TrimSpace(u.Role)) {
	case "admin", "superadmin", "super_admin", "super admin":
		return true
	}
	return false
}

// UnmarshalJSON принимает как объект пользователя, так и голый идентификатор
func (u *User) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*u = User{ID: id}
		return nil
	}
	type plain User
	var p struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*u = User(p.plain)
	if u.ID == "" {
		u.ID = p.AltID
	}
	return nil
}

// Ref - ссылка на сущность: сервер отдает либо id, либо объект с полем _id
type Ref string

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = Ref(id)
		return nil
	}
	var obj struct {
		ID    string `json:"_id"`
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.ID == "" {
		obj.ID = obj.AltID
	}
	*r = Ref(obj.ID)
	return nil
}

// Categories - упорядоченный набор тегов; сервер присылает строку или массив
type Categories []string

func (c *Categories) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		if one == "" {
			*c = Categories{}
			return nil
		}
		*c = Categories{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	if many == nil {
		many = []string{}
	}
	*c = Categories(many)
	return nil
}

// Contains проверяет наличие тега без учета регистра
func (c Categories) Contains(tag string) bool {
	for _, t := range c {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// RefList - список ссылок (лайки приходят как id или как объекты пользователей)
type RefList []string

func (l *RefList) UnmarshalJSON(data []byte) error {
	var raw []Ref
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if r != "" {
			out = append(out, string(r))
		}
	}
	*l = out
	return nil
}

// Post - клинический кейс в ленте
type Post struct {
	ID            string     `json:"_id"`
	User          User       `json:"user"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Categories    Categories `json:"category"`
	Images        []string   `json:"images,omitempty"`
	Likes         RefList    `json:"likes"`
	LikesCount    *int       `json:"likesCount,omitempty"`
	CommentsCount *int       `json:"commentsCount,omitempty"`
	Comments      []Comment  `json:"comments,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// UnmarshalJSON дополнительно понимает устаревшее поле commentCount
func (p *Post) UnmarshalJSON(data []byte) error {
	type plain Post
	var aux struct {
		plain
		LegacyCount *int `json:"commentCount"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Post(aux.plain)
	if p.CommentsCount == nil && aux.LegacyCount != nil {
		p.CommentsCount = aux.LegacyCount
	}
	return nil
}

// LikeTotal возвращает число лайков: серверный счетчик приоритетнее длины списка
func (p Post) LikeTotal() int {
	if p.LikesCount != nil {
		return *p.LikesCount
	}
	return len(p.Likes)
}

// CommentTotal возвращает число комментариев с учетом локально прикрепленных
func (p Post) CommentTotal() int {
	if p.CommentsCount != nil {
		return *p.CommentsCount
	}
	return len(p.Comments)
}

// LikedBy сообщает, лайкнул ли пост пользователь
func (p Post) LikedBy(userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range p.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone возвращает копию поста без общих срезов и указателей
func (p Post) Clone() Post {
	out := p
	out.Categories = cloneStrings(p.Categories)
	out.Images = cloneStrings(p.Images)
	out.Likes = cloneStrings(p.Likes)
	out.User.SavedPosts = cloneStrings(p.User.SavedPosts)
	if p.LikesCount != nil {
		out.LikesCount = IntPtr(*p.LikesCount)
	}
	if p.CommentsCount != nil {
		out.CommentsCount = IntPtr(*p.CommentsCount)
	}
	if p.Comments != nil {
		out.Comments = make([]Comment, len(p.Comments))
		for i, c := range p.Comments {
			out.Comments[i] = c.Clone()
		}
	}
	return out
}

// Comment - комментарий или ответ на комментарий
type Comment struct {
	ID        string    `json:"_id"`
	PostID    string    `json:"postId"`
	User      User      `json:"user"`
	Content   string    `json:"content"`
	Files     []string  `json:"files,omitempty"`
	ParentID  *string   `json:"parentComment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// UnmarshalJSON нормализует post/postId и parentComment (id или объект)
func (c *Comment) UnmarshalJSON(data []byte) error {
	type plain Comment
	var aux struct {
		plain
		ParentRef *Ref `json:"parentComment"`
		ParentAlt *Ref `json:"parentCommentId"`
		PostRef   *Ref `json:"post"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Comment(aux.plain)
	c.ParentID = nil
	for _, ref := range []*Ref{aux.ParentRef, aux.ParentAlt} {
		if ref != nil && *ref != "" {
			id := string(*ref)
			c.ParentID = &id
			break
		}
	}
	if c.PostID == "" && aux.PostRef != nil {
		c.PostID = string(*aux.PostRef)
	}
	return nil
}

// IsReply сообщает, является ли комментарий ответом
func (c Comment) IsReply() bool {
	return c.ParentID != nil && *c.ParentID != ""
}

// Clone возвращает независимую копию комментария
func (c Comment) Clone() Comment {
	out := c
	out.Files = cloneStrings(c.Files)
	out.User.SavedPosts = cloneStrings(c.User.SavedPosts)
	if c.ParentID != nil {
		id := *c.ParentID
		out.ParentID = &id
	}
	return out
}

// CanDelete - удалить комментарий может автор или администратор
func (c Comment) CanDelete(u User) bool {
	if u.ID != "" && u.ID == c.User.ID {
		return true
	}
	return u.IsAdmin()
}

// PostPatch - частичное обновление поста. nil означает "поле не передано",
// пустой срез (не nil) означает "очистить".
type PostPatch struct {
	Title         *string    `json:"title,omitempty"`
	Content       *string    `json:"content,omitempty"`
	Categories    Categories `json:"category,omitempty"`
	Images        []string   `json:"images,omitempty"`
	Likes         RefList    `json:"likes,omitempty"`
	LikesCount    *int       `json:"likesCount,omitempty"`
	CommentsCount *int       `json:"commentsCount,omitempty"`
	Comments      []Comment  `json:"comments,omitempty"`
	User          *User      `json:"user,omitempty"`
}

// Empty сообщает, что патч ничего не меняет
func (p PostPatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.Categories == nil && p.Images == nil &&
		p.Likes == nil && p.LikesCount == nil && p.CommentsCount == nil && p.Comments == nil && p.User == nil
}

// ApplyTo поверхностно сливает переданные поля в пост. id и createdAt неизменяемы.
func (p PostPatch) ApplyTo(post *Post) {
	if p.Title != nil {
		post.Title = *p.Title
	}
	if p.Content != nil {
		post.Content = *p.Content
	}
	if p.Categories != nil {
		post.Categories = cloneStrings(p.Categories)
	}
	if p.Images != nil {
		post.Images = cloneStrings(p.Images)
	}
	if p.Likes != nil {
		post.Likes = cloneStrings(p.Likes)
	}
	if p.LikesCount != nil {
		post.LikesCount = IntPtr(*p.LikesCount)
	}
	if p.CommentsCount != nil {
		post.CommentsCount = IntPtr(*p.CommentsCount)
	}
	if p.Comments != nil {
		post.Comments = make([]Comment, len(p.Comments))
		for i, c := range p.Comments {
			post.Comments[i] = c.Clone()
		}
	}
	if p.User != nil {
		post.User = *p.User
	}
}

// PatchFromPost строит патч, переносящий все изменяемые поля поста
func PatchFromPost(p Post) PostPatch {
	title, content := p.Title, p.Content
	patch := PostPatch{
		Title:      &title,
		Content:    &content,
		Categories: cloneStrings(p.Categories),
		Images:     cloneStrings(p.Images),
		User:       &p.User,
	}
	if patch.Images == nil {
		patch.Images = []string{}
	}
	return patch
}

// Upload - файл, прикладываемый к посту или комментарию
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// PostInput - данные формы создания/редактирования поста
type PostInput struct {
	Title      string   `validate:"required"`
	Content    string   `validate:"required"`
	Categories []string `validate:"min=1,dive,required"`
	Images     []Upload
	// ExistingImages - уже загруженные пути, которые нужно сохранить при редактировании
	ExistingImages []string
}

// CommentInput - данные нового комментария
type CommentInput struct {
	PostID   string
	Content  string
	ParentID *string
	Files    []Upload
}

// LikeResult - ответ PUT /posts/like/{id}
type LikeResult struct {
	IsLiked    bool `json:"isLiked"`
	LikesCount int  `json:"likesCount"`
}

// SaveResult - ответ PUT /posts/save/{id}
type SaveResult struct {
	IsSaved *bool  `json:"isSaved,omitempty"`
	Message string `json:"message,omitempty"`
}

// CommentResult - ответ POST /comments; счетчик передается не всеми версиями бэкенда
type CommentResult struct {
	Comment      Comment
	CommentCount *int
}

// UnmarshalJSON разбирает комментарий и счетчик из post.commentCount или commentCount
func (r *CommentResult) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &r.Comment); err != nil {
		return err
	}
	var aux struct {
		CommentCount  *int            `json:"commentCount"`
		CommentsCount *int            `json:"commentsCount"`
		Post          json.RawMessage `json:"post"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.CommentCount = nil
	if len(aux.Post) > 0 && aux.Post[0] == '{' {
		var p struct {
			CommentCount  *int `json:"commentCount"`
			CommentsCount *int `json:"commentsCount"`
		}
		if err := json.Unmarshal(aux.Post, &p); err == nil {
			r.CommentCount = firstInt(p.CommentCount, p.CommentsCount)
		}
	}
	if r.CommentCount == nil {
		r.CommentCount = firstInt(aux.CommentCount, aux.CommentsCount)
	}
	return nil
}

// Notification - уведомление о лайке или комментарии
type Notification struct {
	ID        string    `json:"_id"`
	Type      string    `json:"type"`
	FromUser  User      `json:"fromUser"`
	Post      *Ref      `json:"post,omitempty"`
	Comment   *Ref      `json:"comment,omitempty"`
	Message   string    `json:"message,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostID возвращает идентификатор поста или пустую строку, если пост удален
func (n Notification) PostID() string {
	if n.Post == nil {
		return ""
	}
	return string(*n.Post)
}

// CommentID возвращает идентификатор комментария или пустую строку
func (n Notification) CommentID() string {
	if n.Comment == nil {
		return ""
	}
	return string(*n.Comment)
}

// IntPtr - вспомогательная функция для опциональных счетчиков
func IntPtr(v int) *int {
	return &v
}

// StringPtr - вспомогательная функция для опциональных строк
func StringPtr(s string) *string {
	return &s
}

func firstInt(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return IntPtr(*v)
		}
	}
	return nil
}

func cloneStrings[S ~[]string](in S) S {
	if in == nil {
		return nil
	}
	out := make(S, len(in))
	copy(out, in)
	return out
}
