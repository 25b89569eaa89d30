package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pocketllm/pocketchat/internal/apikey"
	"github.com/pocketllm/pocketchat/internal/common"
	"github.com/pocketllm/pocketchat/internal/httpapi/middleware"
	"github.com/pocketllm/pocketchat/internal/logger"
)

// ownerUUID resolves the session to the user's public id. Key management
// needs the owner, not just the session.
func (h *Handler) ownerUUID(c *gin.Context) (string, bool) {
	sid := middleware.SessionID(c)
	user, err := h.Auth.UserBySession(c.Request.Context(), sid)
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid session")
		return "", false
	}
	return user.UUID, true
}

type createKeyReq struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) CreateKey(c *gin.Context) {
	owner, ok := h.ownerUUID(c)
	if !ok {
		return
	}

	var req createKeyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 128 {
		common.Fail(c, http.StatusBadRequest, 10006, "name must be 1-128 characters")
		return
	}

	k, err := h.Keys.Create(c.Request.Context(), owner, req.Name)
	if err != nil {
		logger.Errorw("create api key failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, k)
}

func (h *Handler) ListKeys(c *gin.Context) {
	owner, ok := h.ownerUUID(c)
	if !ok {
		return
	}
	keys, err := h.Keys.List(c.Request.Context(), owner)
	if err != nil {
		logger.Errorw("list api keys failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"keys": keys})
}

func (h *Handler) RevokeKey(c *gin.Context) {
	owner, ok := h.ownerUUID(c)
	if !ok {
		return
	}
	keyID := c.Param("key_id")
	if err := h.Keys.Revoke(c.Request.Context(), owner, keyID); err != nil {
		if errors.Is(err, apikey.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "not found")
			return
		}
		logger.Errorw("revoke api key failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"message": "key revoked"})
}
