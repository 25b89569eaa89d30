package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pocketllm/pocketchat/internal/auth"
	"github.com/pocketllm/pocketchat/internal/common"
	"github.com/pocketllm/pocketchat/internal/httpapi/handlers"
	"github.com/pocketllm/pocketchat/internal/httpapi/middleware"
	"github.com/pocketllm/pocketchat/internal/session"
)

func NewRouter(h *handlers.Handler, sessions session.Store, authSvc *auth.Service) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	api := r.Group("/api")

	api.POST("/auth/signup", h.SignUp)
	api.POST("/auth/login", h.Login)

	// API-key surface, no session involved.
	api.POST("/playground/chat", h.PlaygroundChat)

	sessioned := api.Group("/")
	sessioned.Use(middleware.SessionRequired())
	sessioned.POST("/auth/logout", h.Logout)

	sessioned.POST("/chat/create", h.CreateChat)
	sessioned.POST("/chat/message", h.SendMessage)
	sessioned.POST("/chat/message/async", h.SendMessageAsync)
	sessioned.GET("/chat/jobs/:job_id", h.GetJob)
	sessioned.GET("/chat/list", h.ListChats)
	sessioned.GET("/chat/history/:chat_id", h.History)
	sessioned.DELETE("/chat/:chat_id", h.DeleteChat)

	sessioned.POST("/keys", h.CreateKey)
	sessioned.GET("/keys", h.ListKeys)
	sessioned.DELETE("/keys/:key_id", h.RevokeKey)

	adminGroup := api.Group("/admin")
	adminGroup.Use(middleware.AdminRequired(sessions, authSvc))
	adminGroup.GET("/stats", h.AdminStats)
	adminGroup.DELETE("/cache", h.AdminClearCache)
	adminGroup.DELETE("/chats/:chat_id", h.AdminDeleteChat)

	return r
}
