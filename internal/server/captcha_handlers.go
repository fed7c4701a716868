package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"net/http"

	"github.com/MarcoPoloResearchLab/folio/internal/captcha"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const pngDataURLPrefix = "data:image/png;base64,"

type captchaResponsePayload struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Verified  bool   `json:"verified"`
	Image     string `json:"image,omitempty"`
}

type captchaAttemptPayload struct {
	Input string `json:"input"`
}

func (h *httpHandler) handleCaptchaOpen(c *gin.Context) {
	snapshot, err := h.captchaStore.Open()
	if err != nil {
		h.logger.Error("captcha session open failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "captcha_unavailable"})
		return
	}
	h.respondCaptcha(c, http.StatusCreated, snapshot)
}

func (h *httpHandler) handleCaptchaGet(c *gin.Context) {
	h.captchaOperation(c, h.captchaStore.Get)
}

func (h *httpHandler) handleCaptchaBegin(c *gin.Context) {
	h.captchaOperation(c, h.captchaStore.Begin)
}

func (h *httpHandler) handleCaptchaRefresh(c *gin.Context) {
	h.captchaOperation(c, h.captchaStore.Refresh)
}

func (h *httpHandler) handleCaptchaReset(c *gin.Context) {
	h.captchaOperation(c, h.captchaStore.Reset)
}

func (h *httpHandler) handleCaptchaAttempt(c *gin.Context) {
	var request captchaAttemptPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.captchaOperation(c, func(id string) (captcha.Snapshot, error) {
		return h.captchaStore.Attempt(id, request.Input)
	})
}

func (h *httpHandler) handleCaptchaImage(c *gin.Context) {
	snapshot, err := h.captchaStore.Get(c.Param("id"))
	if err != nil {
		h.respondCaptchaError(c, err)
		return
	}
	if snapshot.Image == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "captcha_image_unavailable"})
		return
	}
	encoded, err := encodePNG(snapshot.Image)
	if err != nil {
		h.logger.Error("captcha image encoding failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "captcha_unavailable"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", encoded)
}

func (h *httpHandler) captchaOperation(c *gin.Context, operation func(id string) (captcha.Snapshot, error)) {
	snapshot, err := operation(c.Param("id"))
	if err != nil {
		h.respondCaptchaError(c, err)
		return
	}
	h.respondCaptcha(c, http.StatusOK, snapshot)
}

func (h *httpHandler) respondCaptcha(c *gin.Context, status int, snapshot captcha.Snapshot) {
	payload := captchaResponsePayload{
		SessionID: snapshot.SessionID,
		State:     snapshot.State.String(),
		Verified:  snapshot.Verified,
	}
	if snapshot.Image != nil {
		encoded, err := encodePNG(snapshot.Image)
		if err != nil {
			h.logger.Error("captcha image encoding failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "captcha_unavailable"})
			return
		}
		payload.Image = pngDataURLPrefix + base64.StdEncoding.EncodeToString(encoded)
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(status, payload)
}

func (h *httpHandler) respondCaptchaError(c *gin.Context, err error) {
	if errors.Is(err, captcha.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "captcha_session_not_found"})
		return
	}
	h.logger.Error("captcha operation failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "captcha_unavailable"})
}

// claimVerifiedCaptcha takes the verified session for one submission. The
// returned release puts it back when the submission fails afterwards.
func (h *httpHandler) claimVerifiedCaptcha(c *gin.Context, sessionID string) (func(), bool) {
	if sessionID == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "captcha_required"})
		return nil, false
	}
	release, ok := h.captchaStore.Claim(sessionID)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "captcha_required"})
		return nil, false
	}
	return release, true
}

func encodePNG(img image.Image) ([]byte, error) {
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, img); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
