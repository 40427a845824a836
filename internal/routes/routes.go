package routes

import (
	"net/http"

	"github.com/atelier-hq/atelier-backend/internal/handlers"
	"github.com/atelier-hq/atelier-backend/internal/middleware"
	"github.com/atelier-hq/atelier-backend/internal/services"
	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
)

// Deps are the pieces the router needs.
type Deps struct {
	Messaging   *services.Messaging
	Gate        services.IdentityGate
	Socket      *socketio.Server
	SendLimit   gin.HandlerFunc
	IPLimiter   *middleware.KeyedRateLimiter
	FrontendURL string
	Ready       func() error
}

// NewRouter builds the gin engine with the global middleware chain, health
// checks, the REST API and the Socket.IO endpoint.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ErrorHandlerMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORSMiddleware(d.FrontendURL))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if d.Ready != nil {
			if err := d.Ready(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if d.Socket != nil {
		r.GET("/socket.io/*any", handlers.SocketHandler(d.Socket))
		r.POST("/socket.io/*any", handlers.SocketHandler(d.Socket))
	}

	sendLimit := d.SendLimit
	if sendLimit == nil {
		sendLimit = func(c *gin.Context) { c.Next() }
	}

	api := r.Group("/api")
	if d.IPLimiter != nil {
		api.Use(middleware.IPRateLimit(d.IPLimiter))
	}
	RegisterChatRoutes(api, handlers.NewChatHandler(d.Messaging), d.Gate, sendLimit)
	return r
}
