package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/folio/internal/admins"
	"github.com/MarcoPoloResearchLab/folio/internal/assistant"
	"github.com/MarcoPoloResearchLab/folio/internal/blog"
	"github.com/MarcoPoloResearchLab/folio/internal/captcha"
	"github.com/MarcoPoloResearchLab/folio/internal/comments"
	"github.com/MarcoPoloResearchLab/folio/internal/contact"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const adminContextKey = "folio_admin_username"

var (
	errMissingCaptchaStore    = errors.New("captcha session store dependency required")
	errMissingAttemptLimiter  = errors.New("attempt limiter dependency required")
	errMissingCommentsService = errors.New("comments service dependency required")
	errMissingBlogService     = errors.New("blog service dependency required")
	errMissingContactService  = errors.New("contact service dependency required")
	errMissingResponder       = errors.New("assistant responder dependency required")
	errMissingAuthenticator   = errors.New("admin authenticator dependency required")
	errMissingTokenManager    = errors.New("token manager dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

// AdminAuthenticator checks admin credentials.
type AdminAuthenticator interface {
	Authenticate(ctx context.Context, username string, password string) (admins.Admin, error)
}

// AdminTokenManager issues and validates admin bearer tokens.
type AdminTokenManager interface {
	IssueAdminToken(ctx context.Context, subject string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

type Dependencies struct {
	CaptchaStore   *captcha.SessionStore
	AttemptLimiter *captcha.AttemptLimiter
	Comments       *comments.Service
	Blog           *blog.Service
	Contact        *contact.Service
	Assistant      assistant.Responder
	Admins         AdminAuthenticator
	TokenManager   AdminTokenManager
	Realtime       *RealtimeDispatcher
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.CaptchaStore == nil:
		return nil, errMissingCaptchaStore
	case deps.AttemptLimiter == nil:
		return nil, errMissingAttemptLimiter
	case deps.Comments == nil:
		return nil, errMissingCommentsService
	case deps.Blog == nil:
		return nil, errMissingBlogService
	case deps.Contact == nil:
		return nil, errMissingContactService
	case deps.Assistant == nil:
		return nil, errMissingResponder
	case deps.Admins == nil:
		return nil, errMissingAuthenticator
	case deps.TokenManager == nil:
		return nil, errMissingTokenManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		captchaStore:      deps.CaptchaStore,
		limiter:           deps.AttemptLimiter,
		comments:          deps.Comments,
		blog:              deps.Blog,
		contact:           deps.Contact,
		assistant:         deps.Assistant,
		admins:            deps.Admins,
		tokens:            deps.TokenManager,
		realtime:          realtime,
		heartbeatInterval: realtimeHeartbeatInterval,
		logger:            logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	captchaGroup := router.Group("/captcha")
	captchaGroup.POST("", handler.throttle("captcha"), handler.handleCaptchaOpen)
	captchaGroup.GET("/:id", handler.handleCaptchaGet)
	captchaGroup.GET("/:id/image.png", handler.handleCaptchaImage)
	captchaGroup.POST("/:id/begin", handler.handleCaptchaBegin)
	captchaGroup.POST("/:id/refresh", handler.throttle("captcha"), handler.handleCaptchaRefresh)
	captchaGroup.POST("/:id/attempt", handler.throttle("captcha"), handler.handleCaptchaAttempt)
	captchaGroup.POST("/:id/reset", handler.handleCaptchaReset)

	router.GET("/posts", handler.handleListPosts)
	router.GET("/posts/:slug", handler.handleGetPost)
	router.GET("/posts/:slug/comments", handler.handleListComments)
	router.POST("/posts/:slug/comments", handler.handleCreateComment)
	router.GET("/posts/:slug/comments/stream", handler.throttle("stream"), handler.handleCommentStream)

	router.POST("/contact", handler.handleContactSubmit)
	router.POST("/assistant/chat", handler.throttle("assistant"), handler.handleAssistantChat)
	router.POST("/admin/login", handler.throttle("login"), handler.handleAdminLogin)

	protected := router.Group("/admin")
	protected.Use(handler.authorizeRequest)
	protected.GET("/posts", handler.handleAdminListPosts)
	protected.PUT("/posts/:slug", handler.handleAdminUpsertPost)
	protected.DELETE("/posts/:slug", handler.handleAdminDeletePost)
	protected.DELETE("/comments/:id", handler.handleAdminDeleteComment)
	protected.GET("/contact-messages", handler.handleAdminListContactMessages)

	return router, nil
}

type httpHandler struct {
	captchaStore      *captcha.SessionStore
	limiter           *captcha.AttemptLimiter
	comments          *comments.Service
	blog              *blog.Service
	contact           *contact.Service
	assistant         assistant.Responder
	admins            AdminAuthenticator
	tokens            AdminTokenManager
	realtime          *RealtimeDispatcher
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

func corsMiddleware(allowedOrigins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

// throttle rejects callers that exceed the per-client attempt budget of scope.
func (h *httpHandler) throttle(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.limiter.Allow(scope + ":" + c.ClientIP()) {
			h.logger.Info("request throttled", zap.String("scope", scope), zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too_many_attempts"})
			return
		}
		c.Next()
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(adminContextKey, subject)
	c.Next()
}

type codedError interface {
	Code() string
}

// respondError writes errorKey and, when the cause carries one, the service error code.
func respondError(c *gin.Context, status int, errorKey string, err error) {
	body := gin.H{"error": errorKey}
	var coded codedError
	if errors.As(err, &coded) {
		body["code"] = coded.Code()
	}
	c.JSON(status, body)
}
