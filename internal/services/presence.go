package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atelier-hq/atelier-backend/internal/models"
	"github.com/atelier-hq/atelier-backend/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Presence carries the ephemeral signals: typing notices and the periodic
// online snapshot. Nothing here is persisted.
type Presence struct {
	hub       *Hub
	members   *Membership
	mirror    PresenceMirror
	interval  time.Duration
	typingTTL time.Duration
	now       Clock
	log       zerolog.Logger

	mu         sync.Mutex
	lastTyping map[string]time.Time // conversation|principal -> last forwarded start
}

func NewPresence(hub *Hub, members *Membership, mirror PresenceMirror, interval, typingTTL time.Duration, now Clock) *Presence {
	if now == nil {
		now = SystemClock
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if typingTTL <= 0 {
		typingTTL = 3 * time.Second
	}
	return &Presence{
		hub:        hub,
		members:    members,
		mirror:     mirror,
		interval:   interval,
		typingTTL:  typingTTL,
		now:        now,
		log:        logger.Component("presence"),
		lastTyping: make(map[string]time.Time),
	}
}

// Typing forwards a typing notice to the conversation room, excluding the
// sender. Repeated starts within half the expiry window are dropped; the
// returned bool reports whether the notice went out.
func (p *Presence) Typing(ctx context.Context, conversationID string, who models.Principal, isTyping bool) (bool, error) {
	if err := p.members.Require(ctx, conversationID, who); err != nil {
		return false, err
	}

	now := p.now()
	key := conversationID + "|" + who.Key()

	p.mu.Lock()
	if isTyping {
		if last, ok := p.lastTyping[key]; ok && now.Sub(last) < p.typingTTL/2 {
			p.mu.Unlock()
			return false, nil
		}
		p.lastTyping[key] = now
	} else {
		delete(p.lastTyping, key)
	}
	p.mu.Unlock()

	p.hub.EmitToRoom(conversationID, EventUserTyping, TypingNotice{
		ConversationID: conversationID,
		Principal:      who,
		IsTyping:       isTyping,
		ExpiresAt:      now.Add(p.typingTTL).UnixMilli(),
	}, &who)
	return true, nil
}

// Snapshot returns the sorted keys of connected principals. With a mirror it
// also includes principals other instances reported recently.
func (p *Presence) Snapshot(ctx context.Context) []string {
	local := p.hub.Online()
	if p.mirror == nil {
		return local
	}

	remote, err := p.mirror.Online(ctx, p.now())
	if err != nil {
		p.log.Warn().Err(err).Msg("presence mirror read failed, using local snapshot")
		return local
	}
	keys := lo.Union(local, remote)
	sort.Strings(keys)
	return keys
}

// SendSnapshot gives one connection the current snapshot.
func (p *Presence) SendSnapshot(ctx context.Context, c *Connection) {
	c.conn.Emit(EventOnlineUsers, p.Snapshot(ctx))
}

// Broadcast sends the snapshot to every connection.
func (p *Presence) Broadcast(ctx context.Context) int {
	return p.hub.EmitAll(EventOnlineUsers, p.Snapshot(ctx))
}

// Run refreshes the mirror and broadcasts the snapshot every interval until
// ctx is done.
func (p *Presence) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info().Dur("interval", p.interval).Msg("presence broadcaster started")
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("presence broadcaster stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Presence) tick(ctx context.Context) {
	now := p.now()
	if p.mirror != nil {
		if keys := p.hub.Online(); len(keys) > 0 {
			if err := p.mirror.Touch(ctx, keys, now); err != nil {
				p.log.Warn().Err(err).Msg("presence mirror refresh failed")
			}
		}
	}
	p.pruneTyping(now)
	p.Broadcast(ctx)
}

func (p *Presence) pruneTyping(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, at := range p.lastTyping {
		if now.Sub(at) >= p.typingTTL {
			delete(p.lastTyping, key)
		}
	}
}
