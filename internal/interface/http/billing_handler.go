package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/sitereply/sitereply/internal/application"
	"github.com/sitereply/sitereply/internal/domain/entity"
	repo "github.com/sitereply/sitereply/internal/domain/repository"
	"github.com/sitereply/sitereply/internal/interface/middleware"
	"github.com/sitereply/sitereply/pkg/response"
	"github.com/sitereply/sitereply/pkg/validation"
)

// webhookBodyLimit caps inbound webhook payloads.
const webhookBodyLimit = 1 << 20

type BillingHandler struct {
	Widgets       *application.WidgetService
	Billing       *application.BillingService
	Audit         repo.AuditLogger
	Logger        *logrus.Logger
	WebhookSecret string
}

func NewBillingHandler(widgets *application.WidgetService, billing *application.BillingService, audit repo.AuditLogger, logger *logrus.Logger, webhookSecret string) *BillingHandler {
	return &BillingHandler{
		Widgets:       widgets,
		Billing:       billing,
		Audit:         audit,
		Logger:        logger,
		WebhookSecret: webhookSecret,
	}
}

type upgradeRequest struct {
	Plan string `json:"plan" binding:"required,plan"`
}

// Upgrade POST /api/widgets/:id/upgrade (auth required)
// Returns the hosted checkout URL; the plan itself changes only when the
// provider's completed-checkout event arrives at the webhook.
func (h *BillingHandler) Upgrade(c *gin.Context) {
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
	var req upgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	w, err := h.Widgets.GetOwned(c.Request.Context(), uid, widgetID)
	if err != nil {
		switch {
		case errors.Is(err, application.ErrWidgetNotFound):
			response.Error[any](c, http.StatusNotFound, "widget not found", nil)
		case errors.Is(err, application.ErrNotOwner):
			response.Error[any](c, http.StatusForbidden, "not your widget", nil)
		default:
			h.Logger.WithError(err).Error("widget lookup failed")
			response.Error[any](c, http.StatusInternalServerError, "lookup failed", nil)
		}
		return
	}

	plan := entity.ParsePlan(req.Plan)
	url, err := h.Billing.CreateCheckoutSession(w, plan)
	if err != nil {
		if errors.Is(err, application.ErrPlanNotPurchasable) {
			response.Error[any](c, http.StatusBadRequest, "plan cannot be purchased", nil)
			return
		}
		response.Error[any](c, http.StatusBadGateway, "unable to create checkout session", nil)
		return
	}

	if h.Audit != nil {
		h.Audit.Record(c.Request.Context(), uid, "", "upgrade_checkout", middleware.IPFromCtx(c), c.GetHeader("User-Agent"), map[string]any{
			"widget_id": w.ID,
			"plan":      string(plan),
		})
	}
	response.Success(c, http.StatusOK, gin.H{"checkout_url": url}, "checkout session created", nil)
}

// Webhook POST /api/billing/webhook
// Authenticity failures are permanent (400, never redelivered); processing
// failures are transient (500, provider retries).
func (h *BillingHandler) Webhook(c *gin.Context) {
	if strings.TrimSpace(h.WebhookSecret) == "" {
		response.Error[any](c, http.StatusServiceUnavailable, "webhook secret not configured", nil)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, webhookBodyLimit)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "failed to read request body", nil)
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		response.Error[any](c, http.StatusBadRequest, "missing signature", nil)
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.Logger.WithError(err).Warn("webhook signature verification failed")
		response.Error[any](c, http.StatusBadRequest, "invalid signature", nil)
		return
	}

	if err := h.Billing.ProcessEvent(c.Request.Context(), &event); err != nil {
		h.Logger.WithError(err).WithFields(logrus.Fields{
			"event_id": event.ID,
			"type":     string(event.Type),
		}).Error("webhook processing failed")
		response.Error[any](c, http.StatusInternalServerError, "processing failed", nil)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"received": true}, "ok", nil)
}

// Success GET /api/billing/success
func (h *BillingHandler) Success(c *gin.Context) {
	response.Success[any](c, http.StatusOK, gin.H{"checkout": "complete"}, "payment received; your plan activates as soon as the provider confirms", nil)
}

// Cancel GET /api/billing/cancel
func (h *BillingHandler) Cancel(c *gin.Context) {
	response.Success[any](c, http.StatusOK, gin.H{"checkout": "cancelled"}, "checkout cancelled; no changes were made", nil)
}
