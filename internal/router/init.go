package router

import (
	"github.com/sitereply/sitereply/internal/application"
	"github.com/sitereply/sitereply/internal/container"
	pginfra "github.com/sitereply/sitereply/internal/infrastructure/postgres"
	handlers "github.com/sitereply/sitereply/internal/interface/http"
	"github.com/sitereply/sitereply/internal/ratelimit"
	"github.com/sitereply/sitereply/internal/router/modules"
)

type Deps struct {
	Limiter ratelimit.Limiter

	UserHandler    *handlers.UserHandler
	WidgetHandler  *handlers.WidgetHandler
	ChatHandler    *handlers.ChatHandler
	BillingHandler *handlers.BillingHandler
}

func buildDeps() Deps {
	cfg := container.GetConfig()
	logger := container.GetLogger()
	pool := container.GetPGPool()
	rdb := container.GetRedis()

	limiter := ratelimit.NewRedisLimiter(rdb)
	audit := pginfra.NewAuditLog(pool, logger)

	userRepo := pginfra.NewUserRepository(pool)
	widgetRepo := pginfra.NewWidgetRepository(pool)

	userSvc := application.NewUserService(userRepo, container.GetJWT(), rdb, logger)
	widgetSvc := application.NewWidgetService(widgetRepo, logger, container.GetGCS(), cfg.GCSBucket, container.GetES(), cfg.ESWidgetsIndex)
	answerSvc := application.NewAnswerService(container.GetOpenAI(), cfg.OpenAIModel, cfg.OpenAITimeout, logger)
	billingSvc := application.NewBillingService(
		widgetRepo,
		application.NewRedisDeduper(rdb),
		logger,
		container.GetRabbitPub(),
		cfg.BaseURL,
		cfg.StripePriceProID,
		cfg.StripePriceFlexID,
		cfg.MailSendEnabled,
	)

	return Deps{
		Limiter:        limiter,
		UserHandler:    handlers.NewUserHandler(userSvc, audit, logger, cfg, container.GetRabbitPub()),
		WidgetHandler:  handlers.NewWidgetHandler(widgetSvc, audit, logger, cfg, container.GetRabbitPub()),
		ChatHandler:    handlers.NewChatHandler(widgetSvc, answerSvc, limiter, logger),
		BillingHandler: handlers.NewBillingHandler(widgetSvc, billingSvc, audit, logger, cfg.StripeWebhookSecret),
	}
}

// InitModules initializes all application modules and registers them with the router registry
// This function should be called once during application startup to wire up all modules
func InitModules(r *Registry) {
	deps := buildDeps()
	jwt := container.GetJWT()

	r.Add(modules.NewUserModule(deps.UserHandler, jwt, deps.Limiter))
	r.Add(modules.NewWidgetModule(deps.WidgetHandler, jwt, deps.Limiter))
	r.Add(modules.NewChatModule(deps.ChatHandler))
	r.Add(modules.NewBillingModule(deps.BillingHandler, jwt, deps.Limiter))
}
