package services

import (
	"context"
	"io"
	"time"

	"github.com/atelier-hq/atelier-backend/internal/models"
)

// IdentityGate turns a bearer credential into a Principal.
type IdentityGate interface {
	Verify(ctx context.Context, credential string) (models.Principal, error)
}

// MembershipChecker answers whether a principal belongs to a conversation.
type MembershipChecker interface {
	IsParticipant(ctx context.Context, conversationID string, p models.Principal) (bool, error)
}

// Broadcaster fans events out to live connections. Delivery is best effort.
type Broadcaster interface {
	EmitToRoom(room, event string, payload interface{}, exclude *models.Principal) int
	EmitAll(event string, payload interface{}) int
	CloseRoom(room string)
	RemoveFromRoom(room string, p models.Principal)
}

// BlobStore persists uploaded attachments and returns a retrievable URL.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// PresenceMirror shares connected principal keys between server instances.
type PresenceMirror interface {
	Touch(ctx context.Context, keys []string, at time.Time) error
	Remove(ctx context.Context, key string) error
	Online(ctx context.Context, now time.Time) ([]string, error)
}

// Clock returns the current time as stored: UTC, microsecond precision.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

type nopBroadcaster struct{}

func (nopBroadcaster) EmitToRoom(string, string, interface{}, *models.Principal) int { return 0 }
func (nopBroadcaster) EmitAll(string, interface{}) int                               { return 0 }
func (nopBroadcaster) CloseRoom(string)                                              {}
func (nopBroadcaster) RemoveFromRoom(string, models.Principal)                       {}
