package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/folio/internal/admins"
	"github.com/MarcoPoloResearchLab/folio/internal/blog"
	"github.com/MarcoPoloResearchLab/folio/internal/comments"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type upsertPostPayload struct {
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Markdown  string `json:"markdown"`
	Published bool   `json:"published"`
}

type contactMessagePayload struct {
	MessageID string `json:"message_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

func (h *httpHandler) handleAdminLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Username == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	admin, err := h.admins.Authenticate(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		if errors.Is(err, admins.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		h.logger.Error("admin authentication failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueAdminToken(c.Request.Context(), admin.Username)
	if err != nil {
		h.logger.Error("failed to issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) handleAdminListPosts(c *gin.Context) {
	h.listPosts(c, true)
}

func (h *httpHandler) handleAdminUpsertPost(c *gin.Context) {
	slug, err := blog.NewSlug(c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post_slug"})
		return
	}
	var request upsertPostPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	post, err := h.blog.UpsertPost(c.Request.Context(), blog.PostInput{
		Slug:      slug,
		Title:     request.Title,
		Summary:   request.Summary,
		Markdown:  request.Markdown,
		Published: request.Published,
	})
	if err != nil {
		if errors.Is(err, blog.ErrInvalidTitle) || errors.Is(err, blog.ErrInvalidSummary) {
			respondError(c, http.StatusBadRequest, "invalid_post", err)
			return
		}
		h.logger.Error("failed to save post", zap.String("post_slug", slug.String()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "post_save_failed", err)
		return
	}

	rendered, err := h.blog.GetPost(c.Request.Context(), slug, true)
	if err != nil {
		h.logger.Error("failed to render saved post", zap.String("post_slug", slug.String()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "post_unavailable", err)
		return
	}
	h.logger.Info("post saved",
		zap.String("post_slug", post.Slug),
		zap.Bool("published", post.Published),
		zap.String("admin", c.GetString(adminContextKey)),
	)
	c.JSON(http.StatusOK, postDetailPayload{
		postSummaryPayload: newPostSummaryPayload(rendered.Post),
		HTML:               rendered.HTML,
		Markdown:           rendered.Markdown,
	})
}

func (h *httpHandler) handleAdminDeletePost(c *gin.Context) {
	slug, err := blog.NewSlug(c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post_slug"})
		return
	}
	if err := h.blog.DeletePost(c.Request.Context(), slug); err != nil {
		if errors.Is(err, blog.ErrPostNotFound) {
			respondError(c, http.StatusNotFound, "post_not_found", err)
			return
		}
		h.logger.Error("failed to delete post", zap.String("post_slug", slug.String()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "post_delete_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleAdminDeleteComment(c *gin.Context) {
	commentID, err := comments.NewCommentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_comment_id"})
		return
	}
	deleted, err := h.comments.DeleteComment(c.Request.Context(), commentID)
	if err != nil {
		if errors.Is(err, comments.ErrCommentNotFound) {
			respondError(c, http.StatusNotFound, "comment_not_found", err)
			return
		}
		h.logger.Error("failed to delete comment", zap.String("comment_id", commentID.String()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "comment_delete_failed", err)
		return
	}
	h.publishCommentsChanged(deleted.PostSlug, deleted.CommentID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleAdminListContactMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = parsed
	}
	messages, err := h.contact.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list contact messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "contact_messages_unavailable"})
		return
	}
	response := make([]contactMessagePayload, 0, len(messages))
	for _, message := range messages {
		response = append(response, contactMessagePayload{
			MessageID: message.MessageID,
			Name:      message.Name,
			Email:     message.Email,
			Message:   message.Body,
			CreatedAt: message.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": response})
}
