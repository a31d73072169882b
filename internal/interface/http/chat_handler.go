package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sitereply/sitereply/internal/application"
	"github.com/sitereply/sitereply/internal/domain/entity"
	"github.com/sitereply/sitereply/internal/interface/middleware"
	"github.com/sitereply/sitereply/internal/ratelimit"
	"github.com/sitereply/sitereply/pkg/response"
	"github.com/sitereply/sitereply/pkg/validation"
)

// ChatHandler serves the public chat endpoint hit by embedded widgets.
// Quota is enforced per widget public key, so all visitors of one site share
// that widget's budget.
type ChatHandler struct {
	Widgets *application.WidgetService
	Answers *application.AnswerService
	Limiter ratelimit.Limiter
	Logger  *logrus.Logger
}

func NewChatHandler(widgets *application.WidgetService, answers *application.AnswerService, limiter ratelimit.Limiter, logger *logrus.Logger) *ChatHandler {
	return &ChatHandler{Widgets: widgets, Answers: answers, Limiter: limiter, Logger: logger}
}

type chatRequest struct {
	Question string `json:"question" binding:"required"`
}

// Chat POST /api/chat?key=<public_key>
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		response.Error[any](c, http.StatusBadRequest, "question must not be empty", nil)
		return
	}

	key := c.Query("key")
	if key == "" {
		// no key: meter by caller IP at the most restrictive tier, then reject
		q := entity.AnonymousQuota()
		if !h.allow(c, "rl:chat:ip:"+middleware.IPFromCtx(c), q) {
			return
		}
		response.Error[any](c, http.StatusNotFound, "unknown widget key", nil)
		return
	}

	w, err := h.Widgets.GetByPublicKey(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, application.ErrWidgetNotFound) {
			response.Error[any](c, http.StatusNotFound, "unknown widget key", nil)
			return
		}
		h.Logger.WithError(err).WithField("widget_key", key).Error("widget lookup failed")
		response.Error[any](c, http.StatusInternalServerError, "lookup failed", nil)
		return
	}

	if !h.allow(c, "rl:chat:key:"+w.PublicKey, entity.QuotaFor(w.Plan)) {
		return
	}

	answer, err := h.Answers.Answer(c.Request.Context(), w, req.Question)
	if err != nil {
		if errors.Is(err, application.ErrEmptyQuestion) {
			response.Error[any](c, http.StatusBadRequest, "question must not be empty", nil)
			return
		}
		h.Logger.WithError(err).WithField("widget_key", w.PublicKey).Error("answer failed")
		response.Error[any](c, http.StatusBadGateway, "answer service unavailable", nil)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"query":  req.Question,
		"answer": answer,
	}, "answer", nil)
}

// allow counts the request against quota q and writes the 429 when exhausted.
func (h *ChatHandler) allow(c *gin.Context, key string, q entity.Quota) bool {
	res, err := h.Limiter.Allow(c.Request.Context(), key, q.Max, q.Window)
	if err != nil {
		// fail-open on counter backend errors
		if h.Logger != nil {
			h.Logger.WithError(err).Warn("rate limit check failed")
		}
		return true
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	if !res.Allowed {
		if res.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
		}
		response.Error[any](c, http.StatusTooManyRequests, "rate limit exceeded", nil)
		return false
	}
	return true
}
