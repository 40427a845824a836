package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/atelier-hq/atelier-backend/internal/services"
	apperrors "github.com/atelier-hq/atelier-backend/pkg/errors"
	"github.com/gin-gonic/gin"
)

// multipartOverhead leaves room for boundaries and part headers on top of
// the file itself.
const multipartOverhead = 64 << 10

// UploadAttachment stores a multipart "file" and sends it to the
// conversation as an attachment message.
func (h *ChatHandler) UploadAttachment(c *gin.Context) {
	p, ok := caller(c)
	if !ok {
		return
	}

	limit := h.m.Messages.MaxUpload()
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, apperrors.BadRequest(fmt.Sprintf("file exceeds the %d byte upload limit", limit)))
			return
		}
		fail(c, apperrors.BadRequest("No valid file field found"))
		return
	}
	defer file.Close()

	msg, err := h.m.Messages.Upload(c.Request.Context(), c.Param("id"), p, services.UploadInput{
		Filename: header.Filename,
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}
