package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostDecoding(t *testing.T) {
	t.Run("populated refs and legacy count", func(t *testing.T) {
		raw := `{
			"_id": "p1",
			"user": {"_id": "u1", "fullname": "Dr. House", "role": "Admin"},
			"title": "Кейс",
			"content": "Описание",
			"category": "Cardiology",
			"likes": ["u2", {"_id": "u3", "fullname": "Wilson"}],
			"commentCount": 4,
			"createdAt": "2025-01-02T10:00:00Z"
		}`
		var p Post
		require.NoError(t, json.Unmarshal([]byte(raw), &p))

		assert.Equal(t, "p1", p.ID)
		assert.Equal(t, "u1", p.User.ID)
		assert.True(t, p.User.IsAdmin())
		assert.Equal(t, Categories{"Cardiology"}, p.Categories)
		assert.Equal(t, RefList{"u2", "u3"}, p.Likes)
		require.NotNil(t, p.CommentsCount)
		assert.Equal(t, 4, *p.CommentsCount)
		assert.Nil(t, p.LikesCount)
		assert.Equal(t, 2, p.LikeTotal())
		assert.True(t, p.LikedBy("u3"))
		assert.False(t, p.LikedBy(""))
	})

	t.Run("user as bare id", func(t *testing.T) {
		var p Post
		require.NoError(t, json.Unmarshal([]byte(`{"_id":"p2","user":"u9","category":["A","B"],"commentsCount":0}`), &p))
		assert.Equal(t, "u9", p.User.ID)
		assert.Equal(t, Categories{"A", "B"}, p.Categories)
		assert.True(t, p.Categories.Contains("b"))
		assert.Equal(t, 0, p.CommentTotal())
	})
}

func TestCommentDecoding(t *testing.T) {
	var c Comment
	raw := `{"_id":"c2","post":{"_id":"p1"},"parentComment":{"_id":"c1","content":"x"},"content":"ответ","files":["uploads/a.png"]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &c))

	assert.Equal(t, "p1", c.PostID)
	require.NotNil(t, c.ParentID)
	assert.Equal(t, "c1", *c.ParentID)
	assert.True(t, c.IsReply())

	var top Comment
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"c1","postId":"p1","parentComment":null}`), &top))
	assert.False(t, top.IsReply())
}

func TestCommentResultCount(t *testing.T) {
	var nested CommentResult
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"c1","postId":"p1","post":{"_id":"p1","commentCount":7}}`), &nested))
	require.NotNil(t, nested.CommentCount)
	assert.Equal(t, 7, *nested.CommentCount)
	assert.Equal(t, "c1", nested.Comment.ID)

	var flat CommentResult
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"c1","post":"p1","commentCount":3}`), &flat))
	require.NotNil(t, flat.CommentCount)
	assert.Equal(t, 3, *flat.CommentCount)

	var none CommentResult
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"c1","postId":"p1"}`), &none))
	assert.Nil(t, none.CommentCount)
}

func TestPostPatch(t *testing.T) {
	post := Post{ID: "p1", Title: "old", Images: []string{"a.png"}, Likes: RefList{"u1"}}

	t.Run("absent fields are untouched", func(t *testing.T) {
		p := post.Clone()
		PostPatch{Title: StringPtr("new")}.ApplyTo(&p)
		assert.Equal(t, "new", p.Title)
		assert.Equal(t, []string{"a.png"}, p.Images)
		assert.Equal(t, RefList{"u1"}, p.Likes)
	})

	t.Run("empty slice clears", func(t *testing.T) {
		p := post.Clone()
		PostPatch{Images: []string{}}.ApplyTo(&p)
		assert.Empty(t, p.Images)
		assert.NotNil(t, p.Images)
	})

	t.Run("decoded patch keeps presence", func(t *testing.T) {
		var patch PostPatch
		require.NoError(t, json.Unmarshal([]byte(`{"title":"t","likes":[]}`), &patch))
		assert.NotNil(t, patch.Title)
		assert.NotNil(t, patch.Likes)
		assert.Nil(t, patch.Images)
		assert.False(t, patch.Empty())
	})
}

func TestCommentCanDelete(t *testing.T) {
	c := Comment{ID: "c1", User: User{ID: "u1"}}
	assert.True(t, c.CanDelete(User{ID: "u1"}))
	assert.False(t, c.CanDelete(User{ID: "u2"}))
	assert.True(t, c.CanDelete(User{ID: "u2", Role: "superadmin"}))
	assert.False(t, c.CanDelete(User{}))
}
