package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"Forumus/internal/db"
	"Forumus/internal/repo"
	"Forumus/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxObjectIDHex sorts after every real message id, so a missing cursor
// means "newest page".
const maxObjectIDHex = "ffffffffffffffffffffffff"

type ChatHandler interface {
	CreateThread(c *gin.Context)
	SendMessage(c *gin.Context)
	LoadOlder(c *gin.Context)
	MarkRead(c *gin.Context)
	DeleteThread(c *gin.Context)
	DeleteMessage(c *gin.Context)
}

type chatHandler struct {
	threads  repo.ThreadRepository
	messages repo.MessageRepository
	pipeline *service.SendPipeline
	cursor   *service.PaginationCursor
	pageSize int64
	logger   *zap.Logger
}

func NewChatHandler(threads repo.ThreadRepository, messages repo.MessageRepository, pipeline *service.SendPipeline, cursor *service.PaginationCursor, pageSize int64, logger *zap.Logger) ChatHandler {
	return &chatHandler{
		threads:  threads,
		messages: messages,
		pipeline: pipeline,
		cursor:   cursor,
		pageSize: pageSize,
		logger:   logger,
	}
}

// caller extracts the authenticated user id. Session management lives
// upstream; by the time a request gets here the id rides a header.
func caller(c *gin.Context) (string, bool) {
	uid := c.GetHeader("X-User-ID")
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": service.ErrUnauthenticated.Error()})
		return "", false
	}
	return uid, true
}

type createThreadRequest struct {
	PeerID string `json:"peerId" binding:"required"`
}

func (h *chatHandler) CreateThread(c *gin.Context) {
	uid, ok := caller(c)
	if !ok {
		return
	}

	var req createThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "peerId is required"})
		return
	}

	thread, err := h.threads.GetOrCreate(c.Request.Context(), uid, req.PeerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread": thread})
}

type sendMessageRequest struct {
	Text        string   `json:"text"`
	Attachments []string `json:"attachments"`
}

func (h *chatHandler) SendMessage(c *gin.Context) {
	uid, ok := caller(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	msg, err := h.pipeline.Send(c.Request.Context(), c.Param("threadId"), uid, req.Text, req.Attachments)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *chatHandler) LoadOlder(c *gin.Context) {
	if _, ok := caller(c); !ok {
		return
	}

	before := service.PageBoundary{At: time.Now().UTC(), ID: maxObjectIDHex}
	if raw := c.Query("before"); raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "before must be RFC3339"})
			return
		}
		before.At = at
		before.ID = c.Query("beforeId")
	}

	limit := h.pageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	page, err := h.cursor.LoadOlder(c.Request.Context(), c.Param("threadId"), before, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": page,
		"hasMore":  int64(len(page)) == limit,
	})
}

func (h *chatHandler) MarkRead(c *gin.Context) {
	uid, ok := caller(c)
	if !ok {
		return
	}
	if err := h.threads.MarkRead(c.Request.Context(), c.Param("threadId"), uid); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *chatHandler) DeleteThread(c *gin.Context) {
	uid, ok := caller(c)
	if !ok {
		return
	}
	if err := h.threads.SoftDelete(c.Request.Context(), c.Param("threadId"), uid); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *chatHandler) DeleteMessage(c *gin.Context) {
	uid, ok := caller(c)
	if !ok {
		return
	}
	if err := h.messages.SoftDelete(c.Request.Context(), c.Param("messageId"), uid); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *chatHandler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, repo.ErrThreadNotFound),
		errors.Is(err, repo.ErrMessageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrTooManyAttachments),
		errors.Is(err, repo.ErrInvalidThreadID),
		errors.Is(err, repo.ErrInvalidUserID):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrAttachmentUploadFailed),
		errors.Is(err, service.ErrMessageWriteFailed):
		status = http.StatusBadGateway
	case errors.Is(err, service.ErrStoreUnavailable), db.Unavailable(err):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
