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

// UserModule wires account HTTP handlers and JWT middleware into routes
// Public: POST /api/register, POST /api/login, POST /api/refresh
// Protected: POST /api/logout, GET /api/profile

type UserModule struct {
	Handler *handlers.UserHandler
	JWT     *helpers.JWTManager
	Limiter ratelimit.Limiter
}

func NewUserModule(h *handlers.UserHandler, jwt *helpers.JWTManager, limiter ratelimit.Limiter) *UserModule {
	return &UserModule{Handler: h, JWT: jwt, Limiter: limiter}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	// Public with rate limiting
	registerLimiter := middleware.RateLimit(m.Limiter, 5, time.Minute, middleware.KeyByIPAndPath(), middleware.AllowPrivateIP())
	loginLimiter := middleware.RateLimit(m.Limiter, 10, time.Minute, middleware.KeyByIP(), nil)   // 10 req/min per IP
	refreshLimiter := middleware.RateLimit(m.Limiter, 60, time.Minute, middleware.KeyByIP(), nil) // 60 req/min per IP

	rg.POST("/register", registerLimiter, m.Handler.Register)
	rg.POST("/login", loginLimiter, m.Handler.Login)
	rg.POST("/refresh", refreshLimiter, m.Handler.Refresh)

	// Protected
	auth := rg.Group("/")
	auth.Use(middleware.Auth(container.GetRedis(), m.JWT))
	auth.Use(middleware.RateLimit(m.Limiter, 120, time.Minute, middleware.KeyByUserID(), nil))
	{
		auth.POST("/logout", m.Handler.Logout)
		auth.GET("/profile", m.Handler.GetProfile)
	}
}
