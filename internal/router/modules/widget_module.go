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

// WidgetModule wires widget management routes. Everything here requires a
// logged-in dashboard session.
// Protected: POST /api/widgets, GET /api/widgets, GET /api/widgets/search,
// POST /api/widgets/:id/logo

type WidgetModule struct {
	Handler *handlers.WidgetHandler
	JWT     *helpers.JWTManager
	Limiter ratelimit.Limiter
}

func NewWidgetModule(h *handlers.WidgetHandler, jwt *helpers.JWTManager, limiter ratelimit.Limiter) *WidgetModule {
	return &WidgetModule{Handler: h, JWT: jwt, Limiter: limiter}
}

func (m *WidgetModule) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/")
	auth.Use(middleware.Auth(container.GetRedis(), m.JWT))
	auth.Use(middleware.RateLimit(m.Limiter, 120, time.Minute, middleware.KeyByUserID(), nil))
	{
		auth.POST("/widgets", m.Handler.Create)
		auth.GET("/widgets", m.Handler.List)
		auth.GET("/widgets/search", m.Handler.Search)
		auth.POST("/widgets/:id/logo", m.Handler.UploadLogo)
	}
}
