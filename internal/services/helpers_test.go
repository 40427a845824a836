package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atelier-hq/atelier-backend/internal/migrations"
	"github.com/atelier-hq/atelier-backend/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// newTestDB opens a private in-memory database with the messaging schema
// and the profile tables.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := fmt.Sprintf("%s_%d", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrations.NewMigrator(db).Run())
	require.NoError(t, db.AutoMigrate(&models.EmployeeProfile{}, &models.ClientProfile{}))
	return db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start.UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

type emitted struct {
	Event   string
	Payload interface{}
}

// fakeConn records everything emitted to it.
type fakeConn struct {
	id string

	mu    sync.Mutex
	emits []emitted
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Emit(event string, v ...interface{}) {
	var payload interface{}
	if len(v) > 0 {
		payload = v[0]
	}
	f.mu.Lock()
	f.emits = append(f.emits, emitted{Event: event, Payload: payload})
	f.mu.Unlock()
}

// Events returns the payloads emitted under event, oldest first.
func (f *fakeConn) Events(event string) []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []interface{}
	for _, e := range f.emits {
		if e.Event == event {
			out = append(out, e.Payload)
		}
	}
	return out
}

func (f *fakeConn) Reset() {
	f.mu.Lock()
	f.emits = nil
	f.mu.Unlock()
}

// staticGate accepts a fixed set of tokens.
type staticGate map[string]models.Principal

func (g staticGate) Verify(_ context.Context, credential string) (models.Principal, error) {
	p, ok := g[strings.TrimPrefix(credential, "Bearer ")]
	if !ok {
		return models.Principal{}, errors.New("unknown token")
	}
	return p, nil
}

var (
	employeeE = models.Employee("emp-1")
	employeeF = models.Employee("emp-2")
	clientK   = models.Client("cli-1")
	clientL   = models.Client("cli-2")

	testGate = staticGate{
		"tok-e": employeeE,
		"tok-f": employeeF,
		"tok-k": clientK,
		"tok-l": clientL,
	}

	t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
)

type testEnv struct {
	db    *gorm.DB
	clock *fakeClock
	m     *Messaging
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	clock := newFakeClock(t0)
	m := NewMessaging(db, testGate, Options{
		Grace:     72 * time.Hour,
		TypingTTL: 3 * time.Second,
		Clock:     clock.Now,
	})
	return &testEnv{db: db, clock: clock, m: m}
}

// attach connects a fake connection for the principal behind token.
func (e *testEnv) attach(t *testing.T, connID, token string) *fakeConn {
	t.Helper()
	conn := newFakeConn(connID)
	_, err := e.m.Hub.Attach(context.Background(), token, conn)
	require.NoError(t, err)
	return conn
}

func (e *testEnv) direct(t *testing.T, a, b models.Principal) *models.Conversation {
	t.Helper()
	conv, _, err := e.m.Directory.CreateDirect(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}

func (e *testEnv) project(t *testing.T, ref string, client models.Principal, staff ...models.Principal) *models.Conversation {
	t.Helper()
	ids := make([]string, len(staff))
	for i, s := range staff {
		ids[i] = s.ID
	}
	conv, _, err := e.m.Directory.CreateProjectConversation(context.Background(), ProjectSeed{
		ProjectRef: ref,
		Name:       "Project " + ref,
		ClientID:   client.ID,
		StaffIDs:   ids,
	})
	require.NoError(t, err)
	return conv
}

func (e *testEnv) send(t *testing.T, convID string, from models.Principal, body string) *models.Message {
	t.Helper()
	msg, err := e.m.Messages.Send(context.Background(), convID, from, TextContent(body))
	require.NoError(t, err)
	return msg
}

func (e *testEnv) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}
