package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docrag-go/internal/middleware"
	"docrag-go/internal/service"
	"docrag-go/pkg/log"
)

// DocumentHandler serves the caller's document list and deletion.
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler creates a DocumentHandler.
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// List returns the caller's documents, newest first.
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docService.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		log.Error("[DocumentHandler] list documents", err)
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "documents listed", docs)
}

// Delete removes every chunk of ?fileName= owned by the caller.
func (h *DocumentHandler) Delete(c *gin.Context) {
	fileName := c.Query("fileName")
	if fileName == "" {
		respond(c, http.StatusBadRequest, "fileName is required", nil)
		return
	}
	deleted, err := h.docService.Delete(c.Request.Context(), fileName, middleware.UserID(c))
	if err != nil {
		log.Error("[DocumentHandler] delete document", err)
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "delete finished", gin.H{"deleted": deleted})
}

// Download returns a temporary link to the stored original of ?fileName=.
func (h *DocumentHandler) Download(c *gin.Context) {
	fileName := c.Query("fileName")
	if fileName == "" {
		respond(c, http.StatusBadRequest, "fileName is required", nil)
		return
	}
	info, err := h.docService.DownloadURL(c.Request.Context(), fileName, middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "download link created", info)
}
