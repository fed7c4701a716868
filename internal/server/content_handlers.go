package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/folio/internal/blog"
	"github.com/MarcoPoloResearchLab/folio/internal/comments"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type postSummaryPayload struct {
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Published bool   `json:"published"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type postDetailPayload struct {
	postSummaryPayload
	HTML     string `json:"html"`
	Markdown string `json:"markdown,omitempty"`
}

type commentPayload struct {
	CommentID  string  `json:"comment_id"`
	PostSlug   string  `json:"post_slug"`
	AuthorName string  `json:"author_name"`
	Body       string  `json:"body"`
	ParentID   *string `json:"parent_id"`
	CreatedAt  string  `json:"created_at"`
}

type threadPayload struct {
	Comment commentPayload   `json:"comment"`
	Replies []commentPayload `json:"replies"`
}

type discussionPayload struct {
	PostSlug string          `json:"post_slug"`
	Threads  []threadPayload `json:"threads"`
	Total    int             `json:"total"`
}

type createCommentPayload struct {
	AuthorName       string  `json:"author_name"`
	Body             string  `json:"body"`
	ParentID         *string `json:"parent_id"`
	CaptchaSessionID string  `json:"captcha_session_id"`
}

func (h *httpHandler) handleListPosts(c *gin.Context) {
	h.listPosts(c, false)
}

func (h *httpHandler) listPosts(c *gin.Context, includeDrafts bool) {
	posts, err := h.blog.ListPosts(c.Request.Context(), includeDrafts)
	if err != nil {
		h.logger.Error("failed to list posts", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "posts_unavailable", err)
		return
	}
	response := make([]postSummaryPayload, 0, len(posts))
	for _, post := range posts {
		response = append(response, newPostSummaryPayload(post))
	}
	c.JSON(http.StatusOK, gin.H{"posts": response})
}

func (h *httpHandler) handleGetPost(c *gin.Context) {
	slug, err := blog.NewSlug(c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post_slug"})
		return
	}
	post, err := h.blog.GetPost(c.Request.Context(), slug, false)
	if err != nil {
		if errors.Is(err, blog.ErrPostNotFound) {
			respondError(c, http.StatusNotFound, "post_not_found", err)
			return
		}
		h.logger.Error("failed to load post", zap.String("post_slug", slug.String()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "post_unavailable", err)
		return
	}
	c.JSON(http.StatusOK, postDetailPayload{
		postSummaryPayload: newPostSummaryPayload(post.Post),
		HTML:               post.HTML,
	})
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	slug, ok := h.resolveDiscussionSlug(c)
	if !ok {
		return
	}
	discussion, err := h.comments.ListDiscussion(c.Request.Context(), slug)
	if err != nil {
		h.logger.Error("failed to list comments", zap.String("post_slug", slug.String()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "comments_unavailable", err)
		return
	}
	c.JSON(http.StatusOK, newDiscussionPayload(discussion))
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	slug, ok := h.resolveDiscussionSlug(c)
	if !ok {
		return
	}

	var request createCommentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	authorName, err := comments.NewAuthorName(request.AuthorName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_author_name"})
		return
	}
	body, err := comments.NewBody(request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}
	newComment := comments.NewComment{PostSlug: slug, AuthorName: authorName, Body: body}
	if request.ParentID != nil && strings.TrimSpace(*request.ParentID) != "" {
		parentID, err := comments.NewCommentID(*request.ParentID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_parent_id"})
			return
		}
		if _, err := h.comments.ResolveParent(c.Request.Context(), slug, parentID); err != nil {
			h.respondCommentError(c, slug, err)
			return
		}
		newComment.ParentID = &parentID
	}

	releaseCaptcha, ok := h.claimVerifiedCaptcha(c, strings.TrimSpace(request.CaptchaSessionID))
	if !ok {
		return
	}

	created, err := h.comments.AddComment(c.Request.Context(), newComment)
	if err != nil {
		releaseCaptcha()
		h.respondCommentError(c, slug, err)
		return
	}

	h.publishCommentsChanged(created.PostSlug, created.CommentID)
	c.JSON(http.StatusCreated, newCommentPayload(created))
}

func (h *httpHandler) respondCommentError(c *gin.Context, slug comments.PostSlug, err error) {
	if errors.Is(err, comments.ErrParentNotFound) {
		respondError(c, http.StatusNotFound, "parent_not_found", err)
		return
	}
	h.logger.Error("failed to add comment", zap.String("post_slug", slug.String()), zap.Error(err))
	respondError(c, http.StatusInternalServerError, "comment_failed", err)
}

// resolveDiscussionSlug accepts only slugs of published posts.
func (h *httpHandler) resolveDiscussionSlug(c *gin.Context) (comments.PostSlug, bool) {
	postSlug, err := blog.NewSlug(c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post_slug"})
		return "", false
	}
	exists, err := h.blog.PostExists(c.Request.Context(), postSlug)
	if err != nil {
		h.logger.Error("failed to check post", zap.String("post_slug", postSlug.String()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "post_unavailable", err)
		return "", false
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "post_not_found"})
		return "", false
	}
	slug, err := comments.NewPostSlug(postSlug.String())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post_slug"})
		return "", false
	}
	return slug, true
}

func newPostSummaryPayload(post blog.Post) postSummaryPayload {
	return postSummaryPayload{
		Slug:      post.Slug,
		Title:     post.Title,
		Summary:   post.Summary,
		Published: post.Published,
		CreatedAt: post.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: post.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func newCommentPayload(comment comments.Comment) commentPayload {
	return commentPayload{
		CommentID:  comment.CommentID,
		PostSlug:   comment.PostSlug,
		AuthorName: comment.AuthorName,
		Body:       comment.Body,
		ParentID:   comment.ParentID,
		CreatedAt:  comment.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func newDiscussionPayload(discussion comments.Discussion) discussionPayload {
	threads := make([]threadPayload, 0, len(discussion.Threads))
	for _, thread := range discussion.Threads {
		replies := make([]commentPayload, 0, len(thread.Replies))
		for _, reply := range thread.Replies {
			replies = append(replies, newCommentPayload(reply))
		}
		threads = append(threads, threadPayload{
			Comment: newCommentPayload(thread.Root),
			Replies: replies,
		})
	}
	return discussionPayload{
		PostSlug: discussion.PostSlug.String(),
		Threads:  threads,
		Total:    discussion.Total,
	}
}
