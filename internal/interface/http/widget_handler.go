package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sitereply/sitereply/config"
	"github.com/sitereply/sitereply/internal/application"
	"github.com/sitereply/sitereply/internal/domain/entity"
	repo "github.com/sitereply/sitereply/internal/domain/repository"
	"github.com/sitereply/sitereply/internal/interface/middleware"
	"github.com/sitereply/sitereply/pkg/helpers"
	"github.com/sitereply/sitereply/pkg/mailer"
	"github.com/sitereply/sitereply/pkg/response"
	"github.com/sitereply/sitereply/pkg/validation"
)

// maxLogoBytes caps logo uploads.
const maxLogoBytes = 2 << 20

type WidgetHandler struct {
	Svc    *application.WidgetService
	Audit  repo.AuditLogger
	Logger *logrus.Logger
	Cfg    *config.Config
	Pub    *helpers.RabbitPublisher
}

func NewWidgetHandler(svc *application.WidgetService, audit repo.AuditLogger, logger *logrus.Logger, cfg *config.Config, pub *helpers.RabbitPublisher) *WidgetHandler {
	return &WidgetHandler{Svc: svc, Audit: audit, Logger: logger, Cfg: cfg, Pub: pub}
}

type createWidgetRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Summary string `json:"summary" binding:"required"`
}

// callerID parses the authenticated user id injected by the Auth middleware.
func callerID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.GetString("userID"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// scriptURL renders the embed snippet. Only the opaque public key appears in
// it; the numeric widget id never leaves the service.
func (h *WidgetHandler) scriptURL(key string) string {
	return fmt.Sprintf(`<script src="%s/widget.js" data-key="%s"></script>`, h.Cfg.BaseURL, key)
}

// Create POST /api/widgets (auth required)
func (h *WidgetHandler) Create(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		response.Error[any](c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var req createWidgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	w, err := h.Svc.Create(c.Request.Context(), uid, application.CreateWidgetInput{
		Name:    req.Name,
		Email:   req.Email,
		Summary: req.Summary,
	})
	if err != nil {
		if errors.Is(err, application.ErrDuplicateWidget) {
			response.Error[any](c, http.StatusConflict, "business name or contact email already taken", nil)
			return
		}
		h.Logger.WithError(err).Error("widget create failed")
		response.Error[any](c, http.StatusInternalServerError, "widget creation failed", nil)
		return
	}

	if h.Audit != nil {
		h.Audit.Record(c.Request.Context(), uid, "", "widget_create", middleware.IPFromCtx(c), c.GetHeader("User-Agent"), map[string]any{"widget_id": w.ID})
	}
	if h.Pub != nil && h.Cfg.MailSendEnabled {
		job := mailer.EmailJob{
			To:       w.Email,
			Template: mailer.TemplateWidgetCreated,
			Data: map[string]any{
				"Name":         c.GetString("userName"),
				"WidgetName":   w.Name,
				"ScriptURL":    h.scriptURL(w.PublicKey),
				"ContactEmail": w.Email,
			},
		}
		_ = h.Pub.PublishJSON(c.Request.Context(), job)
	}

	response.Success(c, http.StatusCreated, gin.H{
		"widget_key": w.PublicKey,
		"script_url": h.scriptURL(w.PublicKey),
	}, "widget created", nil)
}

func widgetView(w *entity.Widget, scriptURL string) gin.H {
	return gin.H{
		"widget_key":       w.PublicKey,
		"name":             w.Name,
		"email":            w.Email,
		"summary":          w.Summary,
		"plan":             string(w.Plan),
		"has_subscription": w.SubscriptionID != "",
		"logo_url":         w.LogoURL,
		"script_url":       scriptURL,
		"created_at":       w.CreatedAt,
	}
}

// List GET /api/widgets (auth required)
func (h *WidgetHandler) List(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		response.Error[any](c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	widgets, err := h.Svc.ListForUser(c.Request.Context(), uid)
	if err != nil {
		h.Logger.WithError(err).Error("widget list failed")
		response.Error[any](c, http.StatusInternalServerError, "failed to list widgets", nil)
		return
	}
	out := make([]gin.H, 0, len(widgets))
	for _, w := range widgets {
		out = append(out, widgetView(w, h.scriptURL(w.PublicKey)))
	}
	response.Success(c, http.StatusOK, out, "widgets", map[string]any{"count": len(out)})
}

// Search GET /api/widgets/search?q= (auth required)
func (h *WidgetHandler) Search(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		response.Error[any](c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	q := c.Query("q")
	if q == "" {
		response.Error[any](c, http.StatusBadRequest, "q is required", nil)
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	hits, err := h.Svc.Search(c.Request.Context(), uid, q, size)
	if err != nil {
		h.Logger.WithError(err).Error("widget search failed")
		response.Error[any](c, http.StatusInternalServerError, "search failed", nil)
		return
	}
	response.Success(c, http.StatusOK, hits, "search results", map[string]any{"count": len(hits)})
}

// UploadLogo POST /api/widgets/:id/logo (auth required, multipart)
func (h *WidgetHandler) UploadLogo(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		response.Error[any](c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	widgetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid widget id", nil)
		return
	}
	file, header, err := c.Request.FormFile("logo")
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "logo file is required", nil)
		return
	}
	defer func() { _ = file.Close() }()
	if header.Size > maxLogoBytes {
		response.Error[any](c, http.StatusBadRequest, "logo too large", nil)
		return
	}

	url, err := h.Svc.UploadLogo(c.Request.Context(), uid, widgetID, file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		switch {
		case errors.Is(err, application.ErrWidgetNotFound):
			response.Error[any](c, http.StatusNotFound, "widget not found", nil)
		case errors.Is(err, application.ErrNotOwner):
			response.Error[any](c, http.StatusForbidden, "not your widget", nil)
		default:
			h.Logger.WithError(err).Error("logo upload failed")
			response.Error[any](c, http.StatusInternalServerError, "upload failed", nil)
		}
		return
	}
	response.Success(c, http.StatusOK, gin.H{"logo_url": url}, "logo uploaded", nil)
}
