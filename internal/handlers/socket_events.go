package handlers

import (
	"context"

	"github.com/atelier-hq/atelier-backend/internal/middleware"
	"github.com/atelier-hq/atelier-backend/internal/models"
	"github.com/atelier-hq/atelier-backend/internal/services"
	apperrors "github.com/atelier-hq/atelier-backend/pkg/errors"
	"github.com/atelier-hq/atelier-backend/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Client to server events.
const (
	EventJoinConversations  = "join_conversations"
	EventLeaveConversations = "leave_conversations"
	EventSendMessage        = "send_message"
	EventTyping             = "typing"
	EventMarkRead           = "mark_read"
	EventGetOnlineUsers     = "get_online_users"
)

type RoomsPayload struct {
	ConversationIDs []string `validate:"required,min=1,max=500,dive,required,max=64"`
}

type SendMessagePayload struct {
	ConversationID string               `json:"conversationId" validate:"required,max=64"`
	Kind           models.MessageKind   `json:"kind" validate:"omitempty,oneof=text image file audio"`
	Body           string               `json:"body"`
	Attachment     *services.Attachment `json:"attachment" validate:"omitempty"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId" validate:"required,max=64"`
	IsTyping       bool   `json:"isTyping"`
}

type MarkReadPayload struct {
	ConversationID string `json:"conversationId" validate:"required,max=64"`
}

// SocketEvents runs the live-channel events against the messaging core.
// Every payload is validated before it reaches a service, and failures go
// back to the sender as an "error" event; the connection stays usable.
type SocketEvents struct {
	m        *services.Messaging
	sends    *middleware.SendLimiter
	validate *validator.Validate
	log      zerolog.Logger
}

func NewSocketEvents(m *services.Messaging) *SocketEvents {
	return &SocketEvents{m: m, validate: validator.New(), log: logger.Component("socket")}
}

// WithSendLimiter puts send_message behind the same budget as the REST send
// routes.
func (e *SocketEvents) WithSendLimiter(l *middleware.SendLimiter) *SocketEvents {
	e.sends = l
	return e
}

// Connect authenticates conn and hands it the presence snapshot.
func (e *SocketEvents) Connect(ctx context.Context, conn services.Conn, credential string) error {
	c, err := e.m.Hub.Attach(ctx, credential, conn)
	if err != nil {
		return err
	}
	e.m.Presence.SendSnapshot(ctx, c)
	return nil
}

func (e *SocketEvents) Join(ctx context.Context, conn services.Conn, ids []string) {
	payload := RoomsPayload{ConversationIDs: ids}
	if !e.check(conn, EventJoinConversations, payload) {
		return
	}

	granted, err := e.m.Hub.Subscribe(ctx, conn.ID(), payload.ConversationIDs)
	if err != nil {
		e.fail(conn, EventJoinConversations, err)
		return
	}
	conn.Emit(services.EventJoined, granted)
}

func (e *SocketEvents) Leave(conn services.Conn, ids []string) {
	payload := RoomsPayload{ConversationIDs: ids}
	if !e.check(conn, EventLeaveConversations, payload) {
		return
	}
	e.m.Hub.Unsubscribe(conn.ID(), payload.ConversationIDs)
}

// SendMessage persists and broadcasts. The sender gets its own copy through
// the room when subscribed, like every other participant.
func (e *SocketEvents) SendMessage(ctx context.Context, conn services.Conn, payload SendMessagePayload) {
	if !e.check(conn, EventSendMessage, payload) {
		return
	}
	p, ok := e.principal(conn, EventSendMessage)
	if !ok {
		return
	}

	if !e.sends.Allow(ctx, p) {
		e.fail(conn, EventSendMessage, middleware.ErrSendRateLimited)
		return
	}

	content := services.Content{Kind: payload.Kind, Body: payload.Body, Attachment: payload.Attachment}
	if _, err := e.m.Messages.Send(ctx, payload.ConversationID, p, content); err != nil {
		e.fail(conn, EventSendMessage, err)
	}
}

func (e *SocketEvents) Typing(ctx context.Context, conn services.Conn, payload TypingPayload) {
	if !e.check(conn, EventTyping, payload) {
		return
	}
	p, ok := e.principal(conn, EventTyping)
	if !ok {
		return
	}

	if _, err := e.m.Presence.Typing(ctx, payload.ConversationID, p, payload.IsTyping); err != nil {
		e.fail(conn, EventTyping, err)
	}
}

// MarkRead persists the marker exactly like the REST endpoint.
func (e *SocketEvents) MarkRead(ctx context.Context, conn services.Conn, payload MarkReadPayload) {
	if !e.check(conn, EventMarkRead, payload) {
		return
	}
	p, ok := e.principal(conn, EventMarkRead)
	if !ok {
		return
	}

	if _, err := e.m.ReadState.MarkRead(ctx, payload.ConversationID, p); err != nil {
		e.fail(conn, EventMarkRead, err)
	}
}

func (e *SocketEvents) OnlineUsers(ctx context.Context, conn services.Conn) {
	c, ok := e.m.Hub.Connection(conn.ID())
	if !ok {
		e.fail(conn, EventGetOnlineUsers, apperrors.Unauthorized("connection is not attached"))
		return
	}
	e.m.Presence.SendSnapshot(ctx, c)
}

func (e *SocketEvents) Disconnect(conn services.Conn) {
	e.m.Hub.Detach(conn.ID())
}

func (e *SocketEvents) principal(conn services.Conn, event string) (models.Principal, bool) {
	c, ok := e.m.Hub.Connection(conn.ID())
	if !ok {
		e.fail(conn, event, apperrors.Unauthorized("connection is not attached"))
		return models.Principal{}, false
	}
	return c.Principal, true
}

func (e *SocketEvents) check(conn services.Conn, event string, payload interface{}) bool {
	if err := e.validate.Struct(payload); err != nil {
		e.fail(conn, event, apperrors.BadRequest("invalid payload: "+err.Error()))
		return false
	}
	return true
}

func (e *SocketEvents) fail(conn services.Conn, event string, err error) {
	notice := services.ErrorNotice{Event: event, Message: "Internal Server Error", Kind: string(apperrors.KindInternal)}
	if appErr, ok := apperrors.As(err); ok {
		notice.Message = appErr.Message
		notice.Kind = string(appErr.Kind)
	}
	if notice.Kind == string(apperrors.KindInternal) || notice.Kind == string(apperrors.KindPersistence) {
		e.log.Error().Err(err).Str("conn", conn.ID()).Str("event", event).Msg("socket event failed")
	} else {
		e.log.Debug().Err(err).Str("conn", conn.ID()).Str("event", event).Msg("socket event refused")
	}
	conn.Emit(services.EventError, notice)
}
