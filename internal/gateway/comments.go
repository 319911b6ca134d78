package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ButyrinIA/casefeed/internal/models"
)

// ListComments - GET /comments/{postId}
func (c *Client) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	var comments []models.Comment
	if err := c.getJSON(ctx, "/comments/"+url.PathEscape(postID), &comments); err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	for i := range comments {
		if comments[i].PostID == "" {
			comments[i].PostID = postID
		}
	}
	return comments, nil
}

// AddComment - POST /comments (multipart: content, postId, parentCommentId?, files[])
func (c *Client) AddComment(ctx context.Context, in models.CommentInput) (models.CommentResult, error) {
	fields := []formField{
		{name: "content", value: in.Content},
		{name: "postId", value: in.PostID},
	}
	if in.ParentID != nil && *in.ParentID != "" {
		fields = append(fields, formField{name: "parentCommentId", value: *in.ParentID})
	}

	body, contentType, err := buildMultipart(fields, "files", in.Files)
	if err != nil {
		return models.CommentResult{}, err
	}
	var res models.CommentResult
	if err := c.do(ctx, http.MethodPost, "/comments", body, contentType, &res); err != nil {
		return models.CommentResult{}, fmt.Errorf("failed to add comment: %w", err)
	}
	if res.Comment.PostID == "" {
		res.Comment.PostID = in.PostID
	}
	return res, nil
}

// DeleteComment - DELETE /comments/{id}
func (c *Client) DeleteComment(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/comments/"+url.PathEscape(id), nil, "", nil); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}

// UserComments - GET /comments/user/all
func (c *Client) UserComments(ctx context.Context) ([]models.Comment, error) {
	var comments []models.Comment
	if err := c.getJSON(ctx, "/comments/user/all", &comments); err != nil {
		return nil, fmt.Errorf("failed to list user comments: %w", err)
	}
	return comments, nil
}
