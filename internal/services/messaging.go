package services

import (
	"time"

	"github.com/atelier-hq/atelier-backend/internal/config"
	"gorm.io/gorm"
)

// Options tunes the messaging core. Zero values fall back to the defaults
// in config.Default.
type Options struct {
	Grace            time.Duration
	PresenceInterval time.Duration
	TypingTTL        time.Duration
	MaxUpload        int64

	Blobs  BlobStore
	Mirror PresenceMirror
	People PeopleDirectory
	Clock  Clock
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Grace:            cfg.DeletionGrace,
		PresenceInterval: cfg.PresenceInterval,
		TypingTTL:        cfg.TypingTTL,
		MaxUpload:        cfg.MaxUploadBytes,
	}
}

// Messaging wires the components sharing one store and one Hub.
type Messaging struct {
	Members   *Membership
	Hub       *Hub
	Directory *Directory
	Messages  *Messages
	ReadState *ReadState
	Presence  *Presence
	Lifecycle *Lifecycle
}

func NewMessaging(db *gorm.DB, gate IdentityGate, opts Options) *Messaging {
	d := config.Default()
	if opts.Grace <= 0 {
		opts.Grace = d.DeletionGrace
	}
	if opts.PresenceInterval <= 0 {
		opts.PresenceInterval = d.PresenceInterval
	}
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = d.TypingTTL
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = d.MaxUploadBytes
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.People == nil {
		opts.People = NewGormPeople(db)
	}

	members := NewMembership(db)
	var hubOpts []HubOption
	if opts.Mirror != nil {
		hubOpts = append(hubOpts, WithPresenceMirror(opts.Mirror))
	}
	hub := NewHub(gate, members, hubOpts...)

	return &Messaging{
		Members:   members,
		Hub:       hub,
		Directory: NewDirectory(db, members, opts.People, hub, opts.Clock),
		Messages:  NewMessages(db, members, hub, opts.Blobs, opts.Clock, opts.MaxUpload),
		ReadState: NewReadState(db, members, hub, opts.Clock),
		Presence:  NewPresence(hub, members, opts.Mirror, opts.PresenceInterval, opts.TypingTTL, opts.Clock),
		Lifecycle: NewLifecycle(db, hub, opts.Grace, opts.Clock),
	}
}
