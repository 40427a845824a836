package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/atelier-hq/atelier-backend/internal/models"
	apperrors "github.com/atelier-hq/atelier-backend/pkg/errors"
	"github.com/atelier-hq/atelier-backend/pkg/logger"
	"github.com/atelier-hq/atelier-backend/pkg/utils"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Content is the body of a message to send: text, or an attachment that
// already lives in blob storage.
type Content struct {
	Kind       models.MessageKind `json:"kind"`
	Body       string             `json:"body"`
	Attachment *Attachment        `json:"attachment"`
}

type Attachment struct {
	URL  string             `json:"url" validate:"required,url"`
	Name string             `json:"name" validate:"required"`
	Mime string             `json:"mime"`
	Kind models.MessageKind `json:"kind" validate:"omitempty,oneof=image file audio"`
	Size int64              `json:"size" validate:"gte=0"`
}

func TextContent(body string) Content {
	return Content{Kind: models.MessageText, Body: body}
}

func AttachmentContent(a Attachment) Content {
	return Content{Kind: a.Kind, Attachment: &a}
}

// normalize validates c and returns its canonical form.
func (c Content) normalize() (Content, error) {
	kind := c.Kind
	if kind == "" {
		kind = models.MessageText
		if c.Attachment != nil {
			kind = c.Attachment.Kind
			if kind == "" {
				kind = models.MessageFile
			}
		}
	}

	switch {
	case kind == models.MessageText:
		if c.Attachment != nil {
			return Content{}, apperrors.BadRequest("a text message cannot carry an attachment")
		}
		body, err := utils.SanitizeMessageText(c.Body)
		if err != nil {
			return Content{}, apperrors.BadRequest(err.Error())
		}
		return Content{Kind: kind, Body: body}, nil

	case kind.IsAttachment():
		if c.Attachment == nil {
			return Content{}, apperrors.BadRequest("attachment is required")
		}
		a := *c.Attachment
		if a.Kind != "" && a.Kind != kind {
			return Content{}, apperrors.BadRequest("attachment kind does not match message kind")
		}
		a.Kind = kind

		u, err := url.Parse(strings.TrimSpace(a.URL))
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return Content{}, apperrors.BadRequest("attachment url must be an absolute http(s) URL")
		}
		a.URL = u.String()

		a.Name = utils.TruncateString(strings.TrimSpace(a.Name), utils.MaxFilenameLength)
		if a.Name == "" {
			return Content{}, apperrors.BadRequest("attachment name is required")
		}
		if a.Mime == "" {
			a.Mime = "application/octet-stream"
		}
		if a.Size < 0 {
			return Content{}, apperrors.BadRequest("attachment size cannot be negative")
		}
		return Content{Kind: kind, Attachment: &a}, nil

	default:
		return Content{}, apperrors.BadRequest("unknown message kind")
	}
}

// UploadInput is a file received from a client.
type UploadInput struct {
	Filename string
	Size     int64
	Body     io.ReadSeeker
}

// Messages is the durable per-conversation log. A message is broadcast to
// its room only after its insert committed.
type Messages struct {
	db        *gorm.DB
	members   *Membership
	bus       Broadcaster
	blobs     BlobStore
	now       Clock
	maxUpload int64
	log       zerolog.Logger
}

func NewMessages(db *gorm.DB, members *Membership, bus Broadcaster, blobs BlobStore, now Clock, maxUpload int64) *Messages {
	if bus == nil {
		bus = nopBroadcaster{}
	}
	if now == nil {
		now = SystemClock
	}
	return &Messages{
		db:        db,
		members:   members,
		bus:       bus,
		blobs:     blobs,
		now:       now,
		maxUpload: maxUpload,
		log:       logger.Component("messages"),
	}
}

// MaxUpload is the largest attachment accepted, in bytes. Zero means no cap.
func (m *Messages) MaxUpload() int64 {
	return m.maxUpload
}

// Send persists a message from sender and then pushes it to the room.
func (m *Messages) Send(ctx context.Context, conversationID string, sender models.Principal, content Content) (*models.Message, error) {
	content, err := content.normalize()
	if err != nil {
		return nil, err
	}
	if err := m.members.Require(ctx, conversationID, sender); err != nil {
		return nil, err
	}

	msg := models.Message{
		ID:             utils.GenerateOrderedID(),
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderKind:     sender.Kind,
		Kind:           content.Kind,
		Body:           content.Body,
		SentAt:         m.now(),
	}
	if a := content.Attachment; a != nil {
		msg.AttachmentURL = a.URL
		msg.AttachmentName = a.Name
		msg.AttachmentMime = a.Mime
		msg.AttachmentSize = a.Size
	}

	// Touching the conversation first holds its row until commit, so a purge
	// either waits for this message or leaves nothing to write into.
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Conversation{}).Where("id = ?", conversationID).Update("updated_at", msg.SentAt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Create(&msg).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("conversation not found")
	}
	if err != nil {
		m.log.Error().Err(err).Str("conversation", conversationID).Str("sender", sender.Key()).Msg("failed to persist message")
		return nil, apperrors.Persistence("failed to send message", err)
	}

	m.bus.EmitToRoom(conversationID, EventNewMessage, msg, nil)
	return &msg, nil
}

// List returns one page of the log in ascending (sent_at, id) order.
// Offset counts back from the newest message, so offset 0 is the latest page.
func (m *Messages) List(ctx context.Context, conversationID string, caller models.Principal, limit, offset int) ([]models.Message, error) {
	if offset < 0 {
		return nil, apperrors.BadRequest("offset cannot be negative")
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if err := m.members.Require(ctx, conversationID, caller); err != nil {
		return nil, err
	}

	var msgs []models.Message
	err := m.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&msgs).Error
	if err != nil {
		return nil, apperrors.Persistence("failed to fetch messages", err)
	}
	return lo.Reverse(msgs), nil
}

// Get returns one message. Caller must participate in its conversation.
func (m *Messages) Get(ctx context.Context, messageID string, caller models.Principal) (*models.Message, error) {
	var msg models.Message
	err := m.db.WithContext(ctx).First(&msg, "id = ?", messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("message not found")
	}
	if err != nil {
		return nil, apperrors.Persistence("message lookup failed", err)
	}
	if err := m.members.Require(ctx, msg.ConversationID, caller); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage soft-deletes a message. Only its sender may delete it; the entry
// keeps its place in the log with the content cleared.
func (m *Messages) DeleteMessage(ctx context.Context, messageID string, caller models.Principal) (*models.Message, error) {
	msg, err := m.Get(ctx, messageID, caller)
	if err != nil {
		return nil, err
	}
	if msg.Sender() != caller {
		return nil, apperrors.Forbidden("only the sender can delete a message")
	}
	if msg.Deleted {
		return msg, nil
	}

	err = m.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", msg.ID).Updates(map[string]interface{}{
		"deleted":         true,
		"body":            "",
		"attachment_url":  "",
		"attachment_name": "",
		"attachment_mime": "",
		"attachment_size": 0,
	}).Error
	if err != nil {
		return nil, apperrors.Persistence("failed to delete message", err)
	}

	msg.Deleted = true
	msg.Body, msg.AttachmentURL, msg.AttachmentName, msg.AttachmentMime, msg.AttachmentSize = "", "", "", "", 0

	m.bus.EmitToRoom(msg.ConversationID, EventMessageDeleted, MessageDeletedNotice{ConversationID: msg.ConversationID, MessageID: msg.ID}, nil)
	return msg, nil
}

// Upload stores a file in blob storage and sends it as an attachment
// message. Nothing is sent when storage fails.
func (m *Messages) Upload(ctx context.Context, conversationID string, sender models.Principal, in UploadInput) (*models.Message, error) {
	if m.blobs == nil {
		return nil, apperrors.Internal("attachment storage is not configured")
	}
	if err := m.members.Require(ctx, conversationID, sender); err != nil {
		return nil, err
	}
	if in.Body == nil || in.Size <= 0 {
		return nil, apperrors.BadRequest("file is empty")
	}
	if m.maxUpload > 0 && in.Size > m.maxUpload {
		return nil, apperrors.BadRequest(fmt.Sprintf("file exceeds the %d byte upload limit", m.maxUpload))
	}

	mt, err := mimetype.DetectReader(in.Body)
	if err != nil {
		return nil, apperrors.BadRequest("file could not be read")
	}
	if _, err := in.Body.Seek(0, io.SeekStart); err != nil {
		return nil, apperrors.Internal("file could not be rewound")
	}

	name := utils.SafeFilename(in.Filename)
	ext := filepath.Ext(name)
	if ext == "" {
		ext = mt.Extension()
	}
	key := fmt.Sprintf("chat/%s/%s%s", conversationID, utils.GenerateID(), ext)

	location, err := m.blobs.Put(ctx, key, in.Body, in.Size, mt.String())
	if err != nil {
		m.log.Error().Err(err).Str("conversation", conversationID).Str("key", key).Msg("attachment upload failed")
		return nil, apperrors.Persistence("failed to store attachment", err)
	}

	return m.Send(ctx, conversationID, sender, AttachmentContent(Attachment{
		URL:  location,
		Name: name,
		Mime: mt.String(),
		Kind: KindForMime(mt.String()),
		Size: in.Size,
	}))
}

// ListAttachments returns shared attachments newest first, optionally
// filtered to one kind.
func (m *Messages) ListAttachments(ctx context.Context, conversationID string, caller models.Principal, kind models.MessageKind) ([]models.Message, error) {
	if kind != "" && !kind.IsAttachment() {
		return nil, apperrors.BadRequest("kind must be image, file or audio")
	}
	if err := m.members.Require(ctx, conversationID, caller); err != nil {
		return nil, err
	}

	q := m.db.WithContext(ctx).Where("conversation_id = ? AND deleted = ?", conversationID, false)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	} else {
		q = q.Where("kind IN ?", models.AttachmentKinds)
	}

	var msgs []models.Message
	if err := q.Order("sent_at DESC, id DESC").Find(&msgs).Error; err != nil {
		return nil, apperrors.Persistence("failed to fetch attachments", err)
	}
	return msgs, nil
}

// KindForMime maps a detected MIME type to an attachment kind.
func KindForMime(mime string) models.MessageKind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.MessageImage
	case strings.HasPrefix(mime, "audio/"):
		return models.MessageAudio
	default:
		return models.MessageFile
	}
}
