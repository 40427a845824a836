package handlers

import (
	"context"
	"net/http"

	"github.com/atelier-hq/atelier-backend/pkg/logger"
	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
)

// InitSocketServer builds the Socket.IO server and binds its events to ev.
// The caller runs Serve and Close.
func InitSocketServer(ev *SocketEvents, allowOrigin func(r *http.Request) bool) *socketio.Server {
	if allowOrigin == nil {
		allowOrigin = func(r *http.Request) bool { return true }
	}
	server := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&websocket.Transport{CheckOrigin: allowOrigin},
			&polling.Transport{CheckOrigin: allowOrigin},
		},
	})

	server.OnConnect("/", func(s socketio.Conn) error {
		// Query param first, it survives the websocket handshake in browsers.
		url := s.URL()
		token := url.Query().Get("token")
		if token == "" {
			token = s.RemoteHeader().Get("Authorization")
		}

		return ev.Connect(context.Background(), s, token)
	})

	server.OnEvent("/", EventJoinConversations, func(s socketio.Conn, ids []string) {
		ev.Join(context.Background(), s, ids)
	})

	server.OnEvent("/", EventLeaveConversations, func(s socketio.Conn, ids []string) {
		ev.Leave(s, ids)
	})

	server.OnEvent("/", EventSendMessage, func(s socketio.Conn, payload SendMessagePayload) {
		ev.SendMessage(context.Background(), s, payload)
	})

	server.OnEvent("/", EventTyping, func(s socketio.Conn, payload TypingPayload) {
		ev.Typing(context.Background(), s, payload)
	})

	server.OnEvent("/", EventMarkRead, func(s socketio.Conn, payload MarkReadPayload) {
		ev.MarkRead(context.Background(), s, payload)
	})

	server.OnEvent("/", EventGetOnlineUsers, func(s socketio.Conn, _ string) {
		ev.OnlineUsers(context.Background(), s)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		logger.Debug().Str("conn", s.ID()).Str("reason", reason).Msg("Socket closed")
		ev.Disconnect(s)
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		if s == nil {
			logger.Warn().Err(e).Msg("Socket error")
			return
		}
		logger.Warn().Err(e).Str("conn", s.ID()).Msg("Socket error")
	})

	return server
}

// SocketHandler mounts the Socket.IO server on gin.
func SocketHandler(server *socketio.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		server.ServeHTTP(c.Writer, c.Request)
	}
}
