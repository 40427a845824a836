package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/atelier-hq/atelier-backend/internal/database"
	"github.com/atelier-hq/atelier-backend/internal/middleware"
	"github.com/atelier-hq/atelier-backend/internal/migrations"
	"github.com/atelier-hq/atelier-backend/internal/models"
	"github.com/atelier-hq/atelier-backend/internal/routes"
	"github.com/atelier-hq/atelier-backend/internal/services"
	"github.com/atelier-hq/atelier-backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test_secret_key_12345"

var dbSeq atomic.Int64

type clock struct{ now atomic.Int64 }

func (c *clock) Now() time.Time          { return time.UnixMicro(c.now.Load()).UTC() }
func (c *clock) Set(t time.Time)         { c.now.Store(t.UnixMicro()) }
func (c *clock) Advance(d time.Duration) { c.now.Add(d.Microseconds()) }

type testApp struct {
	db     *gorm.DB
	m      *services.Messaging
	clock  *clock
	redis  *miniredis.Miniredis
	router *gin.Engine
}

// setupTestApp builds the full router on an in-memory database, with shared
// send limits in miniredis.
func setupTestApp(t *testing.T, sendPerMinute int) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := fmt.Sprintf("integration_%s_%d", strings.ReplaceAll(t.Name(), "/", "_"), dbSeq.Add(1))
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

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := &clock{}
	c.Set(time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC))

	gate := utils.NewJWTVerifier(testSecret)
	m := services.NewMessaging(db, gate, services.Options{Clock: c.Now})

	r := routes.NewRouter(routes.Deps{
		Messaging:   m,
		Gate:        gate,
		SendLimit:   middleware.SendRateLimit(database.NewRateLimiter(rdb), sendPerMinute),
		FrontendURL: "http://localhost:3000",
		Ready:       func() error { return database.Ping(db) },
	})

	return &testApp{db: db, m: m, clock: c, redis: mr, router: r}
}

func token(t *testing.T, p models.Principal) string {
	t.Helper()
	tok, err := utils.GenerateToken(testSecret, p, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testApp) request(t *testing.T, method, path string, as *models.Principal, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, *as))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	require.Equal(t, code, w.Code, "%s", w.Body.String())
}
