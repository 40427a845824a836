package handlers

import (
	"net/http"
	"strconv"

	"github.com/atelier-hq/atelier-backend/internal/middleware"
	"github.com/atelier-hq/atelier-backend/internal/models"
	"github.com/atelier-hq/atelier-backend/internal/services"
	apperrors "github.com/atelier-hq/atelier-backend/pkg/errors"
	"github.com/gin-gonic/gin"
)

// ChatHandler serves the request/response side of messaging. It is also the
// catch-up path for clients that missed live pushes.
type ChatHandler struct {
	m *services.Messaging
}

func NewChatHandler(m *services.Messaging) *ChatHandler {
	return &ChatHandler{m: m}
}

// caller returns the authenticated principal or records an auth error.
func caller(c *gin.Context) (models.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		_ = c.Error(apperrors.Unauthorized("Unauthorized"))
	}
	return p, ok
}

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
}

// ListConversations returns the caller's inbox
func (h *ChatHandler) ListConversations(c *gin.Context) {
	p, ok := caller(c)
	if !ok {
		return
	}

	summaries, err := h.m.Directory.ListFor(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// CreateConversation opens a conversation, or returns the existing direct one
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	p, ok := caller(c)
	if !ok {
		return
	}

	var req services.CreateConversationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.BadRequest("Invalid request"))
		return
	}

	conv, created, err := h.m.Directory.Create(c.Request.Context(), p, req)
	if err != nil {
		fail(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"conversation": conv, "created": created})
}

func (h *ChatHandler) GetConversation(c *gin.Context) {
	p, ok := caller(c)
	if !ok {
		return
	}

	conv, err := h.m.Directory.Get(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	p, ok := caller(c)
	if !ok {
		return
	}

	if err := h.m.Directory.Delete(c.Request.Context(), c.Param("id"), p); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ListMessages returns one page, oldest first. offset=0 is the newest page.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	p, ok := caller(c)
	if !ok {
		return
	}

	limit, err := queryInt(c, "limit", services.DefaultPageSize)
	if err != nil {
		fail(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		fail(c, err)
		return
	}

	msgs, err := h.m.Messages.List(c.Request.Context(), c.Param("id"), p, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "limit": limit, "offset": offset})
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	p, ok := caller(c)
	if !ok {
		return
	}

	var req services.Content
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.BadRequest("Invalid request"))
		return
	}

	msg, err := h.m.Messages.Send(c.Request.Context(), c.Param("id"), p, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	p, ok := caller(c)
	if !ok {
		return
	}

	msg, err := h.m.Messages.DeleteMessage(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// MessageSeen reports whether every other participant has read the message
func (h *ChatHandler) MessageSeen(c *gin.Context) {
	p, ok := caller(c)
	if !ok {
		return
	}

	msg, err := h.m.Messages.Get(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	seen, err := h.m.ReadState.SeenByAll(c.Request.Context(), msg)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messageId": msg.ID, "seenByAll": seen})
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	p, ok := caller(c)
	if !ok {
		return
	}

	at, err := h.m.ReadState.MarkRead(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversationId": c.Param("id"), "readAt": at})
}

func (h *ChatHandler) Receipts(c *gin.Context) {
	p, ok := caller(c)
	if !ok {
		return
	}

	receipts, err := h.m.ReadState.Receipts(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}

// ListAttachments returns shared files, ?kind=image|file|audio
func (h *ChatHandler) ListAttachments(c *gin.Context) {
	p, ok := caller(c)
	if !ok {
		return
	}

	kind := models.MessageKind(c.Query("kind"))
	msgs, err := h.m.Messages.ListAttachments(c.Request.Context(), c.Param("id"), p, kind)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attachments": msgs})
}

func (h *ChatHandler) ParticipantProfile(c *gin.Context) {
	p, ok := caller(c)
	if !ok {
		return
	}

	target := models.Principal{ID: c.Param("pid"), Kind: models.PrincipalKind(c.Param("kind"))}
	if !target.Valid() {
		fail(c, apperrors.BadRequest("Invalid participant"))
		return
	}

	profile, err := h.m.Directory.ParticipantProfile(c.Request.Context(), c.Param("id"), p, target)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

// Online returns the presence snapshot
func (h *ChatHandler) Online(c *gin.Context) {
	if _, ok := caller(c); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"online": h.m.Presence.Snapshot(c.Request.Context())})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.BadRequest(key + " must be an integer")
	}
	return v, nil
}
