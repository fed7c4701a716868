package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/folio/internal/assistant"
	"github.com/MarcoPoloResearchLab/folio/internal/contact"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type contactRequestPayload struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Message          string `json:"message"`
	CaptchaSessionID string `json:"captcha_session_id"`
}

type chatRequestPayload struct {
	Message string `json:"message"`
}

func (h *httpHandler) handleContactSubmit(c *gin.Context) {
	var request contactRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	submission, err := contact.Submission{
		Name:    request.Name,
		Email:   request.Email,
		Message: request.Message,
	}.Validate()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_contact_message"})
		return
	}
	releaseCaptcha, ok := h.claimVerifiedCaptcha(c, strings.TrimSpace(request.CaptchaSessionID))
	if !ok {
		return
	}

	message, err := h.contact.Submit(c.Request.Context(), submission)
	if err != nil {
		releaseCaptcha()
		h.logger.Error("failed to store contact message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "contact_failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message_id": message.MessageID})
}

func (h *httpHandler) handleAssistantChat(c *gin.Context) {
	var request chatRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	reply, err := h.assistant.Reply(c.Request.Context(), request.Message)
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyMessage) || errors.Is(err, assistant.ErrMessageTooLong) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_message"})
			return
		}
		h.logger.Error("assistant reply failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "assistant_unavailable"})
		return
	}
	c.JSON(http.StatusOK, reply)
}
