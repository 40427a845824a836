package services

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/atelier-hq/atelier-backend/internal/models"
	apperrors "github.com/atelier-hq/atelier-backend/pkg/errors"
	"github.com/atelier-hq/atelier-backend/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Conn is the transport side of a live channel. socketio.Conn satisfies it.
type Conn interface {
	ID() string
	Emit(event string, v ...interface{})
}

// Connection is an attached, authenticated live channel.
type Connection struct {
	conn      Conn
	Principal models.Principal
	rooms     map[string]struct{}
}

func (c *Connection) ID() string {
	return c.conn.ID()
}

// Hub is the connection registry: principal -> live connections, and
// conversation room -> subscribed connections. It is the only in-memory
// shared mutable state of the messaging core; one RWMutex guards it and
// emits happen outside the lock.
type Hub struct {
	gate    IdentityGate
	members MembershipChecker
	mirror  PresenceMirror
	log     zerolog.Logger

	mu          sync.RWMutex
	connections map[string]*Connection            // conn id -> connection
	principals  map[string]map[string]*Connection // principal key -> conn id -> connection
	rooms       map[string]map[string]*Connection // conversation id -> conn id -> connection
	revoked     map[string]uint64                 // conversation id -> removals seen so far
}

type HubOption func(*Hub)

// WithPresenceMirror publishes attach/detach to a shared presence set.
func WithPresenceMirror(m PresenceMirror) HubOption {
	return func(h *Hub) {
		h.mirror = m
	}
}

func NewHub(gate IdentityGate, members MembershipChecker, opts ...HubOption) *Hub {
	h := &Hub{
		gate:        gate,
		members:     members,
		log:         logger.Component("hub"),
		connections: make(map[string]*Connection),
		principals:  make(map[string]map[string]*Connection),
		rooms:       make(map[string]map[string]*Connection),
		revoked:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach authenticates conn and registers it. Nothing is registered when the
// credential is missing or rejected.
func (h *Hub) Attach(ctx context.Context, credential string, conn Conn) (*Connection, error) {
	if strings.TrimSpace(credential) == "" {
		h.log.Warn().Str("conn", conn.ID()).Msg("Socket connection rejected: no credential")
		return nil, apperrors.Unauthorized("authentication required")
	}

	p, err := h.gate.Verify(ctx, credential)
	if err != nil {
		h.log.Warn().Err(err).Str("conn", conn.ID()).Msg("Socket connection rejected: invalid credential")
		return nil, apperrors.Unauthorized("invalid credential")
	}

	c := &Connection{conn: conn, Principal: p, rooms: make(map[string]struct{})}

	h.mu.Lock()
	if previous, ok := h.connections[conn.ID()]; ok {
		h.detachLocked(previous)
	}
	h.connections[conn.ID()] = c
	set := h.principals[p.Key()]
	if set == nil {
		set = make(map[string]*Connection)
		h.principals[p.Key()] = set
	}
	set[conn.ID()] = c
	h.mu.Unlock()

	if h.mirror != nil {
		if err := h.mirror.Touch(ctx, []string{p.Key()}, SystemClock()); err != nil {
			h.log.Warn().Err(err).Msg("presence mirror touch failed")
		}
	}

	h.log.Info().Str("conn", conn.ID()).Str("principal", p.Key()).Msg("Socket authenticated")
	return c, nil
}

// Connection returns the attached connection with the given id.
func (h *Hub) Connection(connID string) (*Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.connections[connID]
	return c, ok
}

// Subscribe joins the connection to each conversation room its principal
// participates in. Ids the principal is not a member of are skipped, not
// failed. Returns the granted ids.
func (h *Hub) Subscribe(ctx context.Context, connID string, conversationIDs []string) ([]string, error) {
	c, ok := h.Connection(connID)
	if !ok {
		return nil, apperrors.Unauthorized("connection is not attached")
	}

	pending := lo.Filter(lo.Uniq(conversationIDs), func(id string, _ int) bool { return id != "" })
	granted := make([]string, 0, len(pending))
	for attempt := 0; len(pending) > 0 && attempt < subscribeAttempts; attempt++ {
		seen := h.revocations(pending)
		allowed := h.allowed(ctx, c.Principal, pending)

		h.mu.Lock()
		if h.connections[connID] != c {
			// detached while membership was being checked
			h.mu.Unlock()
			return nil, apperrors.Unauthorized("connection is closed")
		}
		pending = pending[:0]
		for _, id := range allowed {
			if h.revoked[id] != seen[id] {
				// someone left the room during the check; look again
				pending = append(pending, id)
				continue
			}
			h.joinLocked(id, c)
			granted = append(granted, id)
		}
		h.mu.Unlock()
	}
	if len(pending) > 0 {
		h.log.Warn().Strs("conversations", pending).Str("principal", c.Principal.Key()).Msg("subscription dropped: membership kept changing")
	}
	return granted, nil
}

const subscribeAttempts = 3

func (h *Hub) revocations(ids []string) map[string]uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]uint64, len(ids))
	for _, id := range ids {
		out[id] = h.revoked[id]
	}
	return out
}

func (h *Hub) allowed(ctx context.Context, p models.Principal, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		member, err := h.members.IsParticipant(ctx, id, p)
		if err != nil {
			h.log.Warn().Err(err).Str("conversation", id).Str("principal", p.Key()).Msg("membership check failed")
			continue
		}
		if !member {
			h.log.Debug().Str("conversation", id).Str("principal", p.Key()).Msg("subscription refused: not a participant")
			continue
		}
		out = append(out, id)
	}
	return out
}

// Unsubscribe leaves the given rooms.
func (h *Hub) Unsubscribe(connID string, conversationIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.connections[connID]
	if !ok {
		return
	}
	for _, id := range conversationIDs {
		h.leaveLocked(id, c)
	}
}

// Detach removes the connection and its subscriptions. When it was the
// principal's last connection an offline notice goes to everyone and true is
// returned.
func (h *Hub) Detach(connID string) bool {
	h.mu.Lock()
	c, ok := h.connections[connID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	offline := h.detachLocked(c)
	h.mu.Unlock()

	h.log.Info().Str("conn", connID).Str("principal", c.Principal.Key()).Bool("offline", offline).Msg("Socket detached")

	if offline {
		if h.mirror != nil {
			if err := h.mirror.Remove(context.Background(), c.Principal.Key()); err != nil {
				h.log.Warn().Err(err).Msg("presence mirror remove failed")
			}
		}
		h.EmitAll(EventUserOffline, OfflineNotice{Principal: c.Principal.Key()})
	}
	return offline
}

// Online returns the sorted keys of principals with at least one connection.
func (h *Hub) Online() []string {
	h.mu.RLock()
	keys := lo.Keys(h.principals)
	h.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

func (h *Hub) IsOnline(p models.Principal) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.principals[p.Key()]) > 0
}

// Rooms lists the conversations a connection is subscribed to.
func (h *Hub) Rooms(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.connections[connID]
	if !ok {
		return nil
	}
	rooms := lo.Keys(c.rooms)
	sort.Strings(rooms)
	return rooms
}

func (h *Hub) EmitToRoom(room, event string, payload interface{}, exclude *models.Principal) int {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		if exclude != nil && c.Principal == *exclude {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	return emit(targets, event, payload)
}

func (h *Hub) EmitToPrincipal(p models.Principal, event string, payload interface{}) int {
	h.mu.RLock()
	targets := lo.Values(h.principals[p.Key()])
	h.mu.RUnlock()

	return emit(targets, event, payload)
}

func (h *Hub) EmitAll(event string, payload interface{}) int {
	h.mu.RLock()
	targets := lo.Values(h.connections)
	h.mu.RUnlock()

	return emit(targets, event, payload)
}

// CloseRoom drops every subscription to room.
func (h *Hub) CloseRoom(room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.revoked[room]++
	for _, c := range h.rooms[room] {
		delete(c.rooms, room)
	}
	delete(h.rooms, room)
}

// RemoveFromRoom unsubscribes all of p's connections from room.
func (h *Hub) RemoveFromRoom(room string, p models.Principal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.revoked[room]++
	for _, c := range h.principals[p.Key()] {
		h.leaveLocked(room, c)
	}
}

func (h *Hub) joinLocked(room string, c *Connection) {
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]*Connection)
		h.rooms[room] = members
	}
	members[c.ID()] = c
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(room string, c *Connection) {
	delete(c.rooms, room)
	members := h.rooms[room]
	if members == nil {
		return
	}
	delete(members, c.ID())
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) detachLocked(c *Connection) bool {
	delete(h.connections, c.ID())
	for room := range c.rooms {
		h.leaveLocked(room, c)
	}
	key := c.Principal.Key()
	set := h.principals[key]
	delete(set, c.ID())
	if len(set) == 0 {
		delete(h.principals, key)
		return true
	}
	return false
}

func emit(targets []*Connection, event string, payload interface{}) int {
	for _, c := range targets {
		c.conn.Emit(event, payload)
	}
	return len(targets)
}
