package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/sitereply/sitereply/internal/interface/http"
)

// ChatModule wires the public chat endpoint hit by embedded widgets.
// No session auth: the widget key in the query string identifies the tenant,
// and the handler enforces per-key quotas itself so the limit can follow the
// widget's plan.

type ChatModule struct {
	Handler *handlers.ChatHandler
}

func NewChatModule(h *handlers.ChatHandler) *ChatModule {
	return &ChatModule{Handler: h}
}

func (m *ChatModule) Register(rg *gin.RouterGroup) {
	rg.POST("/chat", m.Handler.Chat)
}
