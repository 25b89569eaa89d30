package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pocketllm/pocketchat/internal/chat"
	"github.com/pocketllm/pocketchat/internal/common"
	"github.com/pocketllm/pocketchat/internal/logger"
)

func (h *Handler) AdminStats(c *gin.Context) {
	stats, err := h.Admin.Stats(c.Request.Context())
	if err != nil {
		logger.Errorw("stats failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, stats)
}

func (h *Handler) AdminClearCache(c *gin.Context) {
	removed, err := h.Admin.ClearCache(c.Request.Context())
	if err != nil {
		logger.Errorw("cache clear failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"removed": removed})
}

func (h *Handler) AdminDeleteChat(c *gin.Context) {
	chatID := c.Param("chat_id")
	if err := h.Admin.DeleteChat(c.Request.Context(), chatID); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "not found")
			return
		}
		logger.Errorw("admin delete chat failed", "chat_id", chatID, "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"message": "chat deleted"})
}
