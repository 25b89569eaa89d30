// Package handlers maps HTTP requests onto the service layer. Every
// response uses the {code, message, data} envelope.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/pocketllm/pocketchat/internal/admin"
	"github.com/pocketllm/pocketchat/internal/apikey"
	"github.com/pocketllm/pocketchat/internal/auth"
	"github.com/pocketllm/pocketchat/internal/chat"
	"github.com/pocketllm/pocketchat/internal/common"
	"github.com/pocketllm/pocketchat/internal/store/rabbitmq"
)

type Handler struct {
	Auth   *auth.Service
	Chat   *chat.Service
	Keys   *apikey.Service
	Admin  *admin.Service
	Rabbit *rabbitmq.Publisher // nil disables the async path
}

func NewHandler(authSvc *auth.Service, chatSvc *chat.Service, keySvc *apikey.Service, adminSvc *admin.Service, pub *rabbitmq.Publisher) *Handler {
	return &Handler{
		Auth:   authSvc,
		Chat:   chatSvc,
		Keys:   keySvc,
		Admin:  adminSvc,
		Rabbit: pub,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"message": "pong"})
}
