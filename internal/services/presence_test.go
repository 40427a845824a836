package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	apperrors "github.com/atelier-hq/atelier-backend/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypingReachesRoomExceptSender(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.direct(t, employeeE, clientK)

	e := env.attach(t, "c-e", "tok-e")
	k := env.attach(t, "c-k", "tok-k")
	for _, id := range []string{"c-e", "c-k"} {
		_, err := env.m.Hub.Subscribe(ctx, id, []string{conv.ID})
		require.NoError(t, err)
	}

	sent, err := env.m.Presence.Typing(ctx, conv.ID, employeeE, true)
	require.NoError(t, err)
	assert.True(t, sent)

	assert.Empty(t, e.Events(EventUserTyping))
	got := k.Events(EventUserTyping)
	require.Len(t, got, 1)
	assert.Equal(t, TypingNotice{
		ConversationID: conv.ID,
		Principal:      employeeE,
		IsTyping:       true,
		ExpiresAt:      t0.Add(3 * time.Second).UnixMilli(),
	}, got[0])
}

func TestTypingThrottlesRepeatedStarts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.direct(t, employeeE, clientK)

	k := env.attach(t, "c-k", "tok-k")
	_, err := env.m.Hub.Subscribe(ctx, "c-k", []string{conv.ID})
	require.NoError(t, err)

	sent, err := env.m.Presence.Typing(ctx, conv.ID, employeeE, true)
	require.NoError(t, err)
	assert.True(t, sent)

	env.clock.Advance(time.Second)
	sent, err = env.m.Presence.Typing(ctx, conv.ID, employeeE, true)
	require.NoError(t, err)
	assert.False(t, sent, "inside half the expiry window")

	env.clock.Advance(time.Second)
	sent, err = env.m.Presence.Typing(ctx, conv.ID, employeeE, true)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = env.m.Presence.Typing(ctx, conv.ID, employeeE, false)
	require.NoError(t, err)
	assert.True(t, sent, "stop is never throttled")

	sent, err = env.m.Presence.Typing(ctx, conv.ID, employeeE, true)
	require.NoError(t, err)
	assert.True(t, sent, "a stop resets the throttle")

	assert.Len(t, k.Events(EventUserTyping), 4)
}

func TestTypingRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	conv := env.direct(t, employeeE, clientK)

	sent, err := env.m.Presence.Typing(context.Background(), conv.ID, clientL, true)
	assert.False(t, sent)
	assert.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))
}

func TestTickPrunesTypingAndBroadcasts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.direct(t, employeeE, clientK)

	k := env.attach(t, "c-k", "tok-k")
	env.attach(t, "c-e", "tok-e")

	_, err := env.m.Presence.Typing(ctx, conv.ID, employeeE, true)
	require.NoError(t, err)

	env.clock.Advance(5 * time.Second)
	env.m.Presence.tick(ctx)

	env.m.Presence.mu.Lock()
	assert.Empty(t, env.m.Presence.lastTyping)
	env.m.Presence.mu.Unlock()

	snapshots := k.Events(EventOnlineUsers)
	require.Len(t, snapshots, 1)
	assert.Equal(t, []string{clientK.Key(), employeeE.Key()}, snapshots[0])
}

func TestSendSnapshotOnConnect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.attach(t, "c-e", "tok-e")
	conn := newFakeConn("c-k")
	c, err := env.m.Hub.Attach(ctx, "tok-k", conn)
	require.NoError(t, err)

	env.m.Presence.SendSnapshot(ctx, c)
	require.Len(t, conn.Events(EventOnlineUsers), 1)
	assert.Equal(t, []string{clientK.Key(), employeeE.Key()}, conn.Events(EventOnlineUsers)[0])
}

func TestSnapshotMergesMirror(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db := newTestDB(t)
	clock := newFakeClock(t0)
	mirror := NewRedisPresence(client, time.Minute)
	m := NewMessaging(db, testGate, Options{Clock: clock.Now, Mirror: mirror})
	ctx := context.Background()

	// Another instance reported clientL recently.
	require.NoError(t, mirror.Touch(ctx, []string{clientL.Key()}, t0))

	_, err := m.Hub.Attach(ctx, "tok-e", newFakeConn("c-e"))
	require.NoError(t, err)

	assert.Equal(t, []string{clientL.Key(), employeeE.Key()}, m.Presence.Snapshot(ctx))

	mr.Close()
	assert.Equal(t, []string{employeeE.Key()}, m.Presence.Snapshot(ctx), "mirror errors fall back to local")
}
