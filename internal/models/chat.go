package models

import (
	"time"
)

type ConversationType string

const (
	ConversationDirect       ConversationType = "direct"
	ConversationGroupProject ConversationType = "group_project"
)

func (t ConversationType) Valid() bool {
	return t == ConversationDirect || t == ConversationGroupProject
}

// Conversation is a chat context: a direct pair or a project group.
type Conversation struct {
	ID   string           `gorm:"primaryKey;type:text" json:"id"`
	Type ConversationType `gorm:"type:varchar(20);not null;index" json:"type"`
	Name string           `gorm:"type:text" json:"name,omitempty"`

	// ProjectRef ties a group conversation to its project. Unique, NULL for direct.
	ProjectRef *string `gorm:"type:text;uniqueIndex" json:"projectRef"`

	// DirectKey is the sorted participant pair of a direct conversation.
	DirectKey *string `gorm:"type:text;uniqueIndex" json:"-"`

	// Set once, when the linked project completes.
	ScheduledDeletion *time.Time `gorm:"index" json:"scheduledDeletion"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Relations
	Participants []Participant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

// Participant is the membership edge between a principal and a conversation.
type Participant struct {
	ConversationID string        `gorm:"primaryKey;type:text" json:"conversationId"`
	PrincipalID    string        `gorm:"primaryKey;type:text" json:"principalId"`
	PrincipalKind  PrincipalKind `gorm:"primaryKey;type:varchar(20)" json:"principalKind"`
	JoinedAt       time.Time     `gorm:"not null" json:"joinedAt"`
	LastRead       *time.Time    `json:"lastRead"`
}

func (Participant) TableName() string {
	return "conversation_participants"
}

func (p Participant) Principal() Principal {
	return Principal{ID: p.PrincipalID, Kind: p.PrincipalKind}
}

// HasParticipant reports whether p is among the loaded participants.
func (c *Conversation) HasParticipant(p Principal) bool {
	for _, part := range c.Participants {
		if part.PrincipalID == p.ID && part.PrincipalKind == p.Kind {
			return true
		}
	}
	return false
}
