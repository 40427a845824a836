package models

import "time"

type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
	MessageFile  MessageKind = "file"
	MessageAudio MessageKind = "audio"
)

// AttachmentKinds lists the kinds that carry a stored blob.
var AttachmentKinds = []MessageKind{MessageImage, MessageFile, MessageAudio}

func (k MessageKind) IsAttachment() bool {
	return k == MessageImage || k == MessageFile || k == MessageAudio
}

func (k MessageKind) Valid() bool {
	return k == MessageText || k.IsAttachment()
}

// Message is one entry of a conversation's append-only log. Order is
// (SentAt, ID); Kind selects whether Body or the Attachment* columns apply.
type Message struct {
	ID             string        `gorm:"primaryKey;type:text;index:idx_messages_order,priority:3" json:"id"`
	ConversationID string        `gorm:"type:text;not null;index:idx_messages_order,priority:1" json:"conversationId"`
	SenderID       string        `gorm:"type:text;not null" json:"senderId"`
	SenderKind     PrincipalKind `gorm:"type:varchar(20);not null" json:"senderKind"`
	Kind           MessageKind   `gorm:"type:varchar(20);not null;default:'text'" json:"kind"`

	Body string `gorm:"type:text" json:"body,omitempty"`

	AttachmentURL  string `gorm:"type:text" json:"attachmentUrl,omitempty"`
	AttachmentName string `gorm:"type:text" json:"attachmentName,omitempty"`
	AttachmentMime string `gorm:"type:text" json:"attachmentMime,omitempty"`
	AttachmentSize int64  `json:"attachmentSize,omitempty"`

	SentAt  time.Time `gorm:"not null;index:idx_messages_order,priority:2" json:"sentAt"`
	Deleted bool      `gorm:"not null;default:false" json:"deleted"`
}

func (m Message) Sender() Principal {
	return Principal{ID: m.SenderID, Kind: m.SenderKind}
}

// Before reports whether m sorts strictly before o in the conversation log.
func (m Message) Before(o Message) bool {
	if !m.SentAt.Equal(o.SentAt) {
		return m.SentAt.Before(o.SentAt)
	}
	return m.ID < o.ID
}
