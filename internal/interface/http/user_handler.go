package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sitereply/sitereply/config"
	"github.com/sitereply/sitereply/internal/application"
	repo "github.com/sitereply/sitereply/internal/domain/repository"
	"github.com/sitereply/sitereply/internal/interface/middleware"
	"github.com/sitereply/sitereply/pkg/helpers"
	"github.com/sitereply/sitereply/pkg/mailer"
	"github.com/sitereply/sitereply/pkg/response"
	"github.com/sitereply/sitereply/pkg/validation"
)

type UserHandler struct {
	Svc     *application.UserService
	Audit   repo.AuditLogger
	Logger  *logrus.Logger
	Cfg     *config.Config
	Pub     *helpers.RabbitPublisher
	Cookies *helpers.CookieManager
}

func NewUserHandler(svc *application.UserService, audit repo.AuditLogger, logger *logrus.Logger, cfg *config.Config, pub *helpers.RabbitPublisher) *UserHandler {
	return &UserHandler{
		Svc:     svc,
		Audit:   audit,
		Logger:  logger,
		Cfg:     cfg,
		Pub:     pub,
		Cookies: helpers.NewCookie(cfg.CookieDomain, cfg.CookieSecure),
	}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Username string `json:"username" binding:"required,username"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,pwd"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,pwd"`
}

func (h *UserHandler) audit(c *gin.Context, userID int64, email, action string, metadata map[string]any) {
	if h.Audit == nil {
		return
	}
	h.Audit.Record(c.Request.Context(), userID, email, action, middleware.IPFromCtx(c), c.GetHeader("User-Agent"), metadata)
}

// Register POST /api/register
func (h *UserHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	u, err := h.Svc.Register(c.Request.Context(), application.RegisterInput{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, application.ErrDuplicateUser) {
			h.audit(c, 0, req.Email, "register_duplicate", nil)
			response.Error[any](c, http.StatusConflict, "username, name, or email already taken", nil)
			return
		}
		h.Logger.WithError(err).Error("register failed")
		response.Error[any](c, http.StatusInternalServerError, "registration failed", nil)
		return
	}

	h.audit(c, u.ID, u.Email, "register", nil)
	if h.Pub != nil && h.Cfg.MailSendEnabled {
		job := mailer.EmailJob{
			To:       u.Email,
			Template: mailer.TemplateWelcome,
			Data:     map[string]any{"Name": u.Name},
		}
		_ = h.Pub.PublishJSON(c.Request.Context(), job)
	}

	response.Success(c, http.StatusCreated, gin.H{
		"id":       strconv.FormatInt(u.ID, 10),
		"username": u.Username,
		"name":     u.Name,
		"email":    u.Email,
	}, "account created", nil)
}

// Login POST /api/login
func (h *UserHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	res, pair, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.audit(c, 0, req.Email, "login_failed", nil)
		response.Error[any](c, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}
	h.audit(c, 0, req.Email, "login", nil)
	h.Cookies.SetPair(c, pair.AccessToken, pair.AccessTokenExpiry, pair.RefreshToken, pair.RefreshTokenExpiry)
	response.Success(c, http.StatusOK, res, "login successful", map[string]any{
		"access_expires_at":  pair.AccessTokenExpiry,
		"refresh_expires_at": pair.RefreshTokenExpiry,
	})
}

// Refresh POST /api/refresh
func (h *UserHandler) Refresh(c *gin.Context) {
	refresh, err := c.Cookie("refresh_token")
	if err != nil || refresh == "" {
		response.Error[any](c, http.StatusUnauthorized, "missing refresh token", nil)
		return
	}
	pair, _, err := h.Svc.Refresh(c.Request.Context(), refresh)
	if err != nil {
		response.Error[any](c, http.StatusUnauthorized, "invalid refresh token", nil)
		return
	}
	h.Cookies.SetPair(c, pair.AccessToken, pair.AccessTokenExpiry, pair.RefreshToken, pair.RefreshTokenExpiry)
	response.Success[any](c, http.StatusOK, map[string]any{"refreshed": true}, "token refreshed", map[string]any{
		"access_expires_at":  pair.AccessTokenExpiry,
		"refresh_expires_at": pair.RefreshTokenExpiry,
	})
}

// Logout POST /api/logout (auth required)
func (h *UserHandler) Logout(c *gin.Context) {
	uid := c.GetString("userID")
	h.Svc.Logout(c.Request.Context(), uid)
	h.Cookies.Clear(c)
	response.Success[any](c, http.StatusOK, map[string]any{"logged_out": true}, "logged out", nil)
}

// GetProfile GET /api/profile (auth required)
func (h *UserHandler) GetProfile(c *gin.Context) {
	uid := c.GetString("userID")
	u, err := h.Svc.GetProfile(c.Request.Context(), uid)
	if err != nil {
		response.Error[any](c, http.StatusNotFound, "user not found", nil)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"id":         strconv.FormatInt(u.ID, 10),
		"username":   u.Username,
		"name":       u.Name,
		"email":      u.Email,
		"created_at": u.CreatedAt,
	}, "profile", nil)
}
