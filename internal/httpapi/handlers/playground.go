package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pocketllm/pocketchat/internal/apikey"
	"github.com/pocketllm/pocketchat/internal/common"
	"github.com/pocketllm/pocketchat/internal/logger"
)

type playgroundReq struct {
	Message string `json:"message" binding:"required"`
}

// PlaygroundChat serves API-key callers. It shares the response cache with
// the session-based pipeline but never touches any chat transcript.
func (h *Handler) PlaygroundChat(c *gin.Context) {
	secret := bearerToken(c)
	key, err := h.Keys.Authenticate(c.Request.Context(), secret)
	if err != nil {
		if errors.Is(err, apikey.ErrNotFound) {
			common.Fail(c, http.StatusUnauthorized, 40104, "invalid api key")
			return
		}
		logger.Errorw("api key lookup failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	var req playgroundReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	answer, cached, err := h.Chat.Answer(c.Request.Context(), req.Message)
	if err != nil {
		logger.Errorw("playground answer failed", "key_id", key.UUID, "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"answer": answer, "cached": cached})
}

func bearerToken(c *gin.Context) string {
	v := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(v, prefix) {
		return ""
	}
	return strings.TrimSpace(v[len(prefix):])
}
