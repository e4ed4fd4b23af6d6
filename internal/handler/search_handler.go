package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docrag-go/internal/middleware"
	"docrag-go/internal/service"
	"docrag-go/pkg/log"
)

// SearchHandler serves semantic search.
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler creates a SearchHandler.
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

func (h *SearchHandler) request(c *gin.Context) (service.SearchRequest, bool) {
	req := service.SearchRequest{
		Query:  c.Query("query"),
		UserID: middleware.UserID(c),
	}
	if req.Query == "" {
		respond(c, http.StatusBadRequest, "query is required", nil)
		return req, false
	}
	if s := c.Query("threshold"); s != "" {
		t, err := strconv.ParseFloat(s, 64)
		if err != nil || t < 0 || t > 1 {
			respond(c, http.StatusBadRequest, "threshold must be between 0 and 1", nil)
			return req, false
		}
		req.Threshold = &t
	}
	if s := c.Query("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respond(c, http.StatusBadRequest, "count must be a positive integer", nil)
			return req, false
		}
		req.Count = n
	}
	return req, true
}

// Search returns ranked chunks for ?query=.
func (h *SearchHandler) Search(c *gin.Context) {
	req, ok := h.request(c)
	if !ok {
		return
	}
	results, err := h.searchService.Search(c.Request.Context(), req)
	if err != nil {
		log.Error("[SearchHandler] search", err)
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "search finished", results)
}

// Context returns the ranked chunks as plain-text source blocks.
func (h *SearchHandler) Context(c *gin.Context) {
	req, ok := h.request(c)
	if !ok {
		return
	}
	text, err := h.searchService.Context(c.Request.Context(), req)
	if err != nil {
		log.Error("[SearchHandler] search context", err)
		fail(c, err)
		return
	}
	c.String(http.StatusOK, text)
}
