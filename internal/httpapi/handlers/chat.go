package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pocketllm/pocketchat/internal/chat"
	"github.com/pocketllm/pocketchat/internal/common"
	"github.com/pocketllm/pocketchat/internal/httpapi/middleware"
	"github.com/pocketllm/pocketchat/internal/logger"
)

// failChat maps the service's sentinel errors onto the envelope; anything
// else is a 500.
func failChat(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrUnauthenticated):
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid session")
	case errors.Is(err, chat.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "not found")
	default:
		logger.Errorw("chat request failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

type createChatReq struct {
	Title string `json:"title"`
}

func (h *Handler) CreateChat(c *gin.Context) {
	var req createChatReq
	_ = c.ShouldBindJSON(&req) // empty body means untitled

	ch, err := h.Chat.CreateChat(c.Request.Context(), middleware.SessionID(c), req.Title)
	if err != nil {
		failChat(c, err)
		return
	}
	common.OK(c, gin.H{
		"chat_id":    ch.ChatID,
		"title":      ch.Title,
		"created_at": ch.CreatedAt,
	})
}

type sendMessageReq struct {
	ChatID  string `json:"chat_id" binding:"required"`
	Message string `json:"message" binding:"required"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	res, err := h.Chat.HandleMessage(c.Request.Context(), middleware.SessionID(c), req.ChatID, req.Message)
	if err != nil {
		failChat(c, err)
		return
	}
	common.OK(c, res)
}

func (h *Handler) SendMessageAsync(c *gin.Context) {
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async processing disabled")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10004, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	sub, err := h.Chat.SubmitAsync(c.Request.Context(), middleware.SessionID(c), req.ChatID, req.Message, idempoKeyPtr)
	if err != nil {
		failChat(c, err)
		return
	}

	// Only freshly created jobs get enqueued; a replayed idempotency key
	// returns the existing job untouched.
	if sub.Created {
		if err := h.Rabbit.PublishJob(c.Request.Context(), sub.Job.ID); err != nil {
			logger.Errorw("enqueue failed", "job_id", sub.Job.ID, "err", err)
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}
	common.OK(c, gin.H{"job_id": sub.Job.ID, "status": sub.Job.Status})
}

func (h *Handler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10005, "job_id required")
		return
	}

	j, err := h.Chat.GetJob(c.Request.Context(), middleware.SessionID(c), jobID)
	if err != nil {
		failChat(c, err)
		return
	}
	common.OK(c, gin.H{
		"job": gin.H{
			"id":                j.ID,
			"chat_id":           j.ChatID,
			"status":            j.Status,
			"result_message_id": j.ResultMessageID,
			"error":             j.Error,
			"created_at":        j.CreatedAt,
			"updated_at":        j.UpdatedAt,
		},
	})
}

func (h *Handler) ListChats(c *gin.Context) {
	chats, err := h.Chat.ListChats(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		failChat(c, err)
		return
	}
	common.OK(c, gin.H{"chats": chats})
}

func (h *Handler) History(c *gin.Context) {
	chatID := c.Param("chat_id")
	msgs, err := h.Chat.History(c.Request.Context(), middleware.SessionID(c), chatID)
	if err != nil {
		failChat(c, err)
		return
	}
	common.OK(c, gin.H{"chat_id": chatID, "messages": msgs})
}

func (h *Handler) DeleteChat(c *gin.Context) {
	chatID := c.Param("chat_id")
	if err := h.Chat.DeleteChat(c.Request.Context(), middleware.SessionID(c), chatID); err != nil {
		failChat(c, err)
		return
	}
	common.OK(c, gin.H{"message": "chat deleted"})
}
