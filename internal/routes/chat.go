package routes

import (
	"github.com/atelier-hq/atelier-backend/internal/handlers"
	"github.com/atelier-hq/atelier-backend/internal/middleware"
	"github.com/atelier-hq/atelier-backend/internal/services"
	"github.com/gin-gonic/gin"
)

func RegisterChatRoutes(r gin.IRouter, h *handlers.ChatHandler, gate services.IdentityGate, sendLimit gin.HandlerFunc) {
	chat := r.Group("/chat")
	chat.Use(middleware.AuthMiddleware(gate))
	{
		chat.GET("/conversations", h.ListConversations)
		chat.POST("/conversations", h.CreateConversation)
		chat.GET("/conversations/:id", h.GetConversation)
		chat.DELETE("/conversations/:id", h.DeleteConversation)

		chat.GET("/conversations/:id/messages", h.ListMessages) // ?limit=&offset=
		chat.POST("/conversations/:id/messages", sendLimit, h.SendMessage)
		chat.POST("/conversations/:id/attachments", sendLimit, h.UploadAttachment)
		chat.GET("/conversations/:id/attachments", h.ListAttachments) // ?kind=

		chat.POST("/conversations/:id/read", h.MarkRead)
		chat.GET("/conversations/:id/receipts", h.Receipts)
		chat.GET("/conversations/:id/participants/:kind/:pid/profile", h.ParticipantProfile)

		chat.DELETE("/messages/:id", h.DeleteMessage)
		chat.GET("/messages/:id/seen", h.MessageSeen)

		chat.GET("/online", h.Online)
	}

	projects := chat.Group("/projects")
	projects.Use(middleware.EmployeeOnly())
	{
		projects.POST("", h.CreateProjectConversation)
		projects.POST("/:ref/staff", h.AddProjectStaff)
		projects.DELETE("/:ref/staff/:employeeId", h.RemoveProjectStaff)
		projects.POST("/:ref/completed", h.CompleteProject)
	}
}
