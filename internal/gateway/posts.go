package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ButyrinIA/casefeed/internal/models"
)

// ListPosts - GET /posts
func (c *Client) ListPosts(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	if err := c.getJSON(ctx, "/posts", &posts); err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return posts, nil
}

// GetPost - GET /posts/{id}
func (c *Client) GetPost(ctx context.Context, id string) (models.Post, error) {
	var post models.Post
	if err := c.getJSON(ctx, "/posts/"+url.PathEscape(id), &post); err != nil {
		return models.Post{}, fmt.Errorf("failed to get post: %w", err)
	}
	return post, nil
}

// CreatePost - POST /posts (multipart: title, content, category[], images[])
func (c *Client) CreatePost(ctx context.Context, in models.PostInput) (models.Post, error) {
	body, contentType, err := buildMultipart(postFields(in), "images", in.Images)
	if err != nil {
		return models.Post{}, err
	}
	var post models.Post
	if err := c.do(ctx, http.MethodPost, "/posts", body, contentType, &post); err != nil {
		return models.Post{}, fmt.Errorf("failed to create post: %w", err)
	}
	return post, nil
}

// UpdatePost - PUT /posts/{id}; existingImages уходит одной JSON-строкой
func (c *Client) UpdatePost(ctx context.Context, id string, in models.PostInput) (models.Post, error) {
	existing := in.ExistingImages
	if existing == nil {
		existing = []string{}
	}
	encoded, err := json.Marshal(existing)
	if err != nil {
		return models.Post{}, fmt.Errorf("failed to encode existing images: %w", err)
	}
	fields := append(postFields(in), formField{name: "existingImages", value: string(encoded)})

	body, contentType, err := buildMultipart(fields, "images", in.Images)
	if err != nil {
		return models.Post{}, err
	}
	var post models.Post
	if err := c.do(ctx, http.MethodPut, "/posts/"+url.PathEscape(id), body, contentType, &post); err != nil {
		return models.Post{}, fmt.Errorf("failed to update post: %w", err)
	}
	return post, nil
}

// DeletePost - DELETE /posts/{id}
func (c *Client) DeletePost(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/posts/"+url.PathEscape(id), nil, "", nil); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

// ToggleLike - PUT /posts/like/{id}
func (c *Client) ToggleLike(ctx context.Context, id string) (models.LikeResult, error) {
	var res models.LikeResult
	if err := c.do(ctx, http.MethodPut, "/posts/like/"+url.PathEscape(id), nil, "", &res); err != nil {
		return models.LikeResult{}, fmt.Errorf("failed to toggle like: %w", err)
	}
	return res, nil
}

// ToggleSave - PUT /posts/save/{id}
func (c *Client) ToggleSave(ctx context.Context, id string) (models.SaveResult, error) {
	var res models.SaveResult
	if err := c.do(ctx, http.MethodPut, "/posts/save/"+url.PathEscape(id), nil, "", &res); err != nil {
		return models.SaveResult{}, fmt.Errorf("failed to toggle save: %w", err)
	}
	return res, nil
}

// SavedPosts - GET /posts/saved/all
func (c *Client) SavedPosts(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	if err := c.getJSON(ctx, "/posts/saved/all", &posts); err != nil {
		return nil, fmt.Errorf("failed to list saved posts: %w", err)
	}
	return posts, nil
}

func postFields(in models.PostInput) []formField {
	fields := []formField{
		{name: "title", value: in.Title},
		{name: "content", value: in.Content},
	}
	for _, cat := range in.Categories {
		fields = append(fields, formField{name: "category", value: cat})
	}
	return fields
}
