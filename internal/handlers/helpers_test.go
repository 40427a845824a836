package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/atelier-hq/atelier-backend/internal/middleware"
	"github.com/atelier-hq/atelier-backend/internal/migrations"
	"github.com/atelier-hq/atelier-backend/internal/models"
	"github.com/atelier-hq/atelier-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// SetupTestDB opens a private in-memory database with the messaging schema.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := fmt.Sprintf("handlers_%s_%d", strings.ReplaceAll(t.Name(), "/", "_"), dbSeq.Add(1))
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

type staticGate map[string]models.Principal

func (g staticGate) Verify(_ context.Context, credential string) (models.Principal, error) {
	p, ok := g[strings.TrimPrefix(credential, "Bearer ")]
	if !ok {
		return models.Principal{}, errors.New("unknown token")
	}
	return p, nil
}

var (
	staffE  = models.Employee("emp-1")
	clientK = models.Client("cli-1")
	clientL = models.Client("cli-2")

	gate = staticGate{"tok-e": staffE, "tok-k": clientK, "tok-l": clientL}
)

type fakeConn struct {
	id    string
	mu    sync.Mutex
	emits map[string][]interface{}
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, emits: make(map[string][]interface{})}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Emit(event string, v ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var payload interface{}
	if len(v) > 0 {
		payload = v[0]
	}
	f.emits[event] = append(f.emits[event], payload)
}

func (f *fakeConn) Events(event string) []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.emits[event]...)
}

type chatFixture struct {
	db     *gorm.DB
	m      *services.Messaging
	router *gin.Engine
}

// newChatFixture mounts the chat handlers behind the same middleware the
// server uses.
func newChatFixture(t *testing.T, blobs services.BlobStore) *chatFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := SetupTestDB(t)
	m := services.NewMessaging(db, gate, services.Options{Blobs: blobs, MaxUpload: 1 << 20})
	h := NewChatHandler(m)

	r := gin.New()
	r.Use(middleware.ErrorHandlerMiddleware())
	api := r.Group("/api/chat", middleware.AuthMiddleware(gate))
	api.GET("/conversations", h.ListConversations)
	api.POST("/conversations", h.CreateConversation)
	api.GET("/conversations/:id", h.GetConversation)
	api.DELETE("/conversations/:id", h.DeleteConversation)
	api.GET("/conversations/:id/messages", h.ListMessages)
	api.POST("/conversations/:id/messages", h.SendMessage)
	api.POST("/conversations/:id/attachments", h.UploadAttachment)
	api.GET("/conversations/:id/attachments", h.ListAttachments)
	api.POST("/conversations/:id/read", h.MarkRead)
	api.GET("/conversations/:id/receipts", h.Receipts)
	api.GET("/conversations/:id/participants/:kind/:pid/profile", h.ParticipantProfile)
	api.DELETE("/messages/:id", h.DeleteMessage)
	api.GET("/messages/:id/seen", h.MessageSeen)
	api.GET("/online", h.Online)

	projects := api.Group("/projects", middleware.EmployeeOnly())
	projects.POST("", h.CreateProjectConversation)
	projects.POST("/:ref/staff", h.AddProjectStaff)
	projects.DELETE("/:ref/staff/:employeeId", h.RemoveProjectStaff)
	projects.POST("/:ref/completed", h.CompleteProject)

	return &chatFixture{db: db, m: m, router: r}
}

func (f *chatFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *chatFixture) direct(t *testing.T, a, b models.Principal) *models.Conversation {
	t.Helper()
	conv, _, err := f.m.Directory.CreateDirect(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
