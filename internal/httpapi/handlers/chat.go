package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/meditech-nic/backend/internal/chat"
	"github.com/meditech-nic/backend/internal/common"
)

type startConversationReq struct {
	Reason string `json:"reason"`
}

func (h *Handler) StartConversation(c *gin.Context) {
	uid, okk := h.localUser(c)
	if !okk {
		return
	}

	var req startConversationReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	conv, err := h.ChatSvc.StartConversation(c.Request.Context(), uid, strings.TrimSpace(req.Reason))
	if err != nil {
		h.Log.Error("start conversation failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"conversation_id": conv.ID, "reason": conv.Reason})
}

func (h *Handler) ListConversations(c *gin.Context) {
	uid, okk := h.localUser(c)
	if !okk {
		return
	}
	convs, err := h.ChatSvc.ListConversations(c.Request.Context(), uid)
	if err != nil {
		h.Log.Error("list conversations failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"conversations": convs})
}

type sendMessageReq struct {
	ConversationID uint64 `json:"conversation_id"`
	Message        string `json:"message" binding:"required"`
}

// SendMessage is the synchronous chat turn. A zero conversation_id starts a
// new conversation.
func (h *Handler) SendMessage(c *gin.Context) {
	uid, okk := h.localUser(c)
	if !okk {
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	result, err := h.ChatSvc.SendMessage(c.Request.Context(), uid, req.ConversationID, req.Message)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "conversation not found")
			return
		}
		h.Log.Error("send message failed", "conversation_id", req.ConversationID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, result)
}

func (h *Handler) ListMessages(c *gin.Context) {
	uid, okk := h.localUser(c)
	if !okk {
		return
	}
	conversationID, err := strconv.ParseUint(c.Param("conversation_id"), 10, 64)
	if err != nil || conversationID == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid conversation id")
		return
	}
	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "conversation not found")
			return
		}
		h.Log.Error("list messages failed", "conversation_id", conversationID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"messages": msgs})
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	uid, okk := h.localUser(c)
	if !okk {
		return
	}
	conversationID, err := strconv.ParseUint(c.Param("conversation_id"), 10, 64)
	if err != nil || conversationID == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid conversation id")
		return
	}
	if err := h.ChatSvc.DeleteConversation(c.Request.Context(), uid, conversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "conversation not found")
			return
		}
		h.Log.Error("delete conversation failed", "conversation_id", conversationID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, nil)
}

func (h *Handler) ListRecommendations(c *gin.Context) {
	uid, okk := h.localUser(c)
	if !okk {
		return
	}
	conversationID, err := strconv.ParseUint(c.Param("conversation_id"), 10, 64)
	if err != nil || conversationID == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid conversation id")
		return
	}
	// Ownership check rides on ListMessages' validation path.
	if _, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, conversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "conversation not found")
			return
		}
		h.Log.Error("validate conversation failed", "conversation_id", conversationID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	recs, err := h.Screening.ListByConversation(c.Request.Context(), conversationID)
	if err != nil {
		h.Log.Error("list recommendations failed", "conversation_id", conversationID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"recommendations": recs})
}

type sendMessageAsyncReq struct {
	ConversationID uint64 `json:"conversation_id" binding:"required"`
	Message        string `json:"message" binding:"required"`
}

// SendMessageAsync stores the user message, enqueues an assistant job, and
// returns the job id immediately. Requires the queue to be configured.
func (h *Handler) SendMessageAsync(c *gin.Context) {
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async chat not configured")
		return
	}

	uid, okk := h.localUser(c)
	if !okk {
		return
	}

	var req sendMessageAsyncReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	if _, err := h.ChatSvc.AddUserMessage(c.Request.Context(), uid, req.ConversationID, req.Message); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "conversation not found")
			return
		}
		h.Log.Error("store user message failed", "conversation_id", req.ConversationID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		h.Log.Error("ulid generation failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	j := &chat.Job{
		ID:             jobID,
		UserID:         uid,
		ConversationID: req.ConversationID,
		IdempotencyKey: idempoKeyPtr,
		Status:         chat.JobQueued,
	}
	j, created, err := h.ChatSvc.CreateJobOrGetExisting(c.Request.Context(), j)
	if err != nil {
		h.Log.Error("create job failed", "conversation_id", req.ConversationID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	if created {
		if err := h.Rabbit.PublishJob(c.Request.Context(), j.ID); err != nil {
			h.Log.Error("enqueue job failed", "job_id", j.ID, "error", err)
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	uid, okk := h.localUser(c)
	if !okk {
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.ChatSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		h.Log.Error("get job failed", "job_id", jobID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if j.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":                j.ID,
			"conversation_id":   j.ConversationID,
			"status":            j.Status,
			"result_message_id": j.ResultMessageID,
			"error":             j.Error,
			"created_at":        j.CreatedAt,
			"updated_at":        j.UpdatedAt,
		},
	})
}
