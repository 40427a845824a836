package handlers

import (
	"net/http"

	"github.com/atelier-hq/atelier-backend/internal/services"
	apperrors "github.com/atelier-hq/atelier-backend/pkg/errors"
	"github.com/gin-gonic/gin"
)

// Project lifecycle intake. The project domain calls these (employee
// credentials) when a project is created, staffed or completed.

func (h *ChatHandler) CreateProjectConversation(c *gin.Context) {
	var req services.ProjectSeed
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.BadRequest("Invalid request"))
		return
	}

	conv, created, err := h.m.Directory.CreateProjectConversation(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"conversation": conv, "created": created})
}

func (h *ChatHandler) AddProjectStaff(c *gin.Context) {
	var req struct {
		EmployeeID string `json:"employeeId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.BadRequest("Invalid request"))
		return
	}

	conv, err := h.m.Directory.AddStaff(c.Request.Context(), c.Param("ref"), req.EmployeeID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

func (h *ChatHandler) RemoveProjectStaff(c *gin.Context) {
	conv, err := h.m.Directory.RemoveStaff(c.Request.Context(), c.Param("ref"), c.Param("employeeId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

// CompleteProject schedules the project conversation for deletion after the
// grace window. Repeated calls keep the first schedule.
func (h *ChatHandler) CompleteProject(c *gin.Context) {
	conv, err := h.m.Lifecycle.OnProjectCompleted(c.Request.Context(), c.Param("ref"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv, "scheduledDeletion": conv.ScheduledDeletion})
}
