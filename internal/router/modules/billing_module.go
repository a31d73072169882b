package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sitereply/sitereply/internal/container"
	handlers "github.com/sitereply/sitereply/internal/interface/http"
	"github.com/sitereply/sitereply/internal/interface/middleware"
	"github.com/sitereply/sitereply/internal/ratelimit"
	"github.com/sitereply/sitereply/pkg/helpers"
)

// BillingModule wires checkout and webhook routes.
// Public: POST /api/billing/webhook (Stripe signs requests, no session),
// GET /api/billing/success, GET /api/billing/cancel
// Protected: POST /api/widgets/:id/upgrade

type BillingModule struct {
	Handler *handlers.BillingHandler
	JWT     *helpers.JWTManager
	Limiter ratelimit.Limiter
}

func NewBillingModule(h *handlers.BillingHandler, jwt *helpers.JWTManager, limiter ratelimit.Limiter) *BillingModule {
	return &BillingModule{Handler: h, JWT: jwt, Limiter: limiter}
}

func (m *BillingModule) Register(rg *gin.RouterGroup) {
	rg.POST("/billing/webhook", m.Handler.Webhook)
	rg.GET("/billing/success", m.Handler.Success)
	rg.GET("/billing/cancel", m.Handler.Cancel)

	auth := rg.Group("/")
	auth.Use(middleware.Auth(container.GetRedis(), m.JWT))
	auth.Use(middleware.RateLimit(m.Limiter, 30, time.Minute, middleware.KeyByUserID(), nil))
	{
		auth.POST("/widgets/:id/upgrade", m.Handler.Upgrade)
	}
}
