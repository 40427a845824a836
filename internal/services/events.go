package services

import (
	"time"

	"github.com/atelier-hq/atelier-backend/internal/models"
)

// Server to client events.
const (
	EventNewMessage          = "new_message"
	EventUserTyping          = "user_typing"
	EventMessagesRead        = "messages_read"
	EventOnlineUsers         = "online_users"
	EventUserOffline         = "user_offline"
	EventMessageDeleted      = "message_deleted"
	EventConversationDeleted = "conversation_deleted"
	EventJoined              = "joined"
	EventError               = "error"
)

type TypingNotice struct {
	ConversationID string           `json:"conversationId"`
	Principal      models.Principal `json:"principal"`
	IsTyping       bool             `json:"isTyping"`
	ExpiresAt      int64            `json:"expiresAt"`
}

type ReadNotice struct {
	ConversationID string           `json:"conversationId"`
	Principal      models.Principal `json:"principal"`
	ReadAt         time.Time        `json:"readAt"`
}

type OfflineNotice struct {
	Principal string `json:"principal"`
}

type MessageDeletedNotice struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type ConversationDeletedNotice struct {
	ConversationID string `json:"conversationId"`
	Reason         string `json:"reason"`
}

type ErrorNotice struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}
