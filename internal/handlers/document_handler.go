package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ops-management-api/internal/auth"
	"github.com/ops-management-api/internal/pipeline"
	"github.com/ops-management-api/internal/services"
)

// maxUploadBytes caps a single document upload at 50 MB.
const maxUploadBytes = 50 << 20

type DocumentHandler struct {
	exec *pipeline.Executor
}

func NewDocumentHandler(exec *pipeline.Executor) *DocumentHandler {
	return &DocumentHandler{exec: exec}
}

// Upload accepts a multipart form with a "file" field and an optional
// "inspection_id" field linking the document to an inspection.
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the 50MB upload limit"})
		return
	}

	var inspectionID *uuid.UUID
	if raw := c.PostForm("inspection_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid inspection id"})
			return
		}
		inspectionID = &id
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	principal := auth.PrincipalFromContext(c.Request.Context())
	cmd := services.NewUploadDocumentCommand(inspectionID, fileHeader.Filename, contentType, content)

	result, err := h.exec.Dispatch(c.Request.Context(), principal, cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Download streams the stored file. Downloads run as commands so they are
// audited like any other sensitive operation.
func (h *DocumentHandler) Download(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	principal := auth.PrincipalFromContext(c.Request.Context())
	result, err := h.exec.Dispatch(c.Request.Context(), principal, services.DownloadDocumentCommand{DocumentID: id})
	if err != nil {
		writeError(c, err)
		return
	}

	content, ok := result.(*services.DocumentContent)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	defer content.Body.Close()

	c.Header("Content-Disposition", `attachment; filename="`+content.Document.FileName+`"`)
	c.DataFromReader(http.StatusOK, content.Document.SizeBytes, content.Document.ContentType, content.Body, nil)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	principal := auth.PrincipalFromContext(c.Request.Context())
	if _, err := h.exec.Dispatch(c.Request.Context(), principal, services.DeleteDocumentCommand{DocumentID: id}); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
