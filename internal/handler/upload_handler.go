package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docrag-go/internal/middleware"
	"docrag-go/internal/pipeline"
	"docrag-go/internal/service"
	"docrag-go/pkg/log"
)

// UploadHandler serves document uploads and pasted text.
type UploadHandler struct {
	uploadService  service.UploadService
	maxUploadBytes int64
}

// NewUploadHandler creates an UploadHandler. maxUploadBytes <= 0 disables the size check.
func NewUploadHandler(uploadService service.UploadService, maxUploadBytes int64) *UploadHandler {
	return &UploadHandler{uploadService: uploadService, maxUploadBytes: maxUploadBytes}
}

// Upload ingests a multipart "file" field. Optional form fields: fileType,
// section, category and async.
func (h *UploadHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		respond(c, http.StatusBadRequest, "missing file field", nil)
		return
	}
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		respond(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes), nil)
		return
	}
	f, err := header.Open()
	if err != nil {
		log.Error("[UploadHandler] open upload", err)
		respond(c, http.StatusBadRequest, "cannot read file", nil)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		log.Error("[UploadHandler] read upload", err)
		respond(c, http.StatusBadRequest, "cannot read file", nil)
		return
	}

	async, _ := strconv.ParseBool(c.DefaultPostForm("async", "false"))
	req := service.UploadRequest{
		Data:     data,
		FileName: header.Filename,
		FileType: c.PostForm("fileType"),
		UserID:   middleware.UserID(c),
		Section:  c.PostForm("section"),
		Category: c.PostForm("category"),
		Async:    async,
	}
	log.Infof("[UploadHandler] upload %s (%d bytes) async=%t user=%s", req.FileName, len(data), async, req.UserID)

	res, err := h.uploadService.Upload(c.Request.Context(), req)
	respondIngest(c, res, err)
}

// PasteRequest is the body of POST /documents/text.
type PasteRequest struct {
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content" binding:"required"`
	Section  string `json:"section"`
	Category string `json:"category"`
}

// Paste ingests raw text under a title.
func (h *UploadHandler) Paste(c *gin.Context) {
	var req PasteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "title and content are required", nil)
		return
	}
	res, err := h.uploadService.Paste(c.Request.Context(), pipeline.TextInput{
		Title:    req.Title,
		Content:  req.Content,
		UserID:   middleware.UserID(c),
		Section:  req.Section,
		Category: req.Category,
	})
	respondIngest(c, res, err)
}

// SupportedTypes lists the accepted file types.
func (h *UploadHandler) SupportedTypes(c *gin.Context) {
	respond(c, http.StatusOK, "supported file types", h.uploadService.SupportedFileTypes())
}
