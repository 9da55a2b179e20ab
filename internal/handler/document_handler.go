package handler

import (
	"fmt"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/awraqsoft/munaqasat/internal/service"
)

// DocumentHandler serves file upload, download and the document trash.
type DocumentHandler struct {
	svc *service.DocumentService
}

func NewDocumentHandler(svc *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Upload POST /api/v1/documents (multipart form)
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "file is required")
		return
	}
	defer file.Close()

	req := &service.UploadRequest{
		RelatedType: c.PostForm("related_type"),
		RelatedID:   c.PostForm("related_id"),
	}
	doc, err := h.svc.Upload(c.Request.Context(), GetActor(c), req,
		file, header.Filename, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, gin.H{"document": doc})
}

// List GET /api/v1/documents?related_type=&related_id=
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.svc.List(c.Request.Context(), GetActor(c),
		c.Query("related_type"), c.Query("related_id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": docs})
}

// Get GET /api/v1/documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.svc.Get(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	if doc == nil {
		NotFound(c, "document not found")
		return
	}
	Success(c, gin.H{"document": doc})
}

// Download GET /api/v1/documents/:id/download
func (h *DocumentHandler) Download(c *gin.Context) {
	reader, doc, err := h.svc.Download(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	c.Header("Content-Type", doc.ContentType)
	if doc.FileSize > 0 {
		c.Header("Content-Length", fmt.Sprintf("%d", doc.FileSize))
	}
	if _, err := io.Copy(c.Writer, reader); err != nil {
		// Headers are out; nothing left to do but log through gin's writer.
		_ = c.Error(err)
	}
}

// Delete DELETE /api/v1/documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.svc.MoveToTrash(c.Request.Context(), GetActor(c), c.Param("id")); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// Restore POST /api/v1/trash/documents/:trashId/restore
func (h *DocumentHandler) Restore(c *gin.Context) {
	doc, err := h.svc.RestoreFromTrash(c.Request.Context(), GetActor(c), c.Param("trashId"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"document": doc})
}

// Purge DELETE /api/v1/trash/documents/:trashId
func (h *DocumentHandler) Purge(c *gin.Context) {
	if err := h.svc.Purge(c.Request.Context(), GetActor(c), c.Param("trashId")); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}
