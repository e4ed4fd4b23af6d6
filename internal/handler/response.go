// Package handler contains the HTTP controllers.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docrag-go/internal/model"
)

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    data,
	})
}

func fail(c *gin.Context, err error) {
	respond(c, statusFor(err), err.Error(), nil)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidationFailed),
		errors.Is(err, model.ErrUnsupportedFileType),
		errors.Is(err, model.ErrNoValidText):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrEmbeddingAuth):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrEmbeddingTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondIngest writes an ingestion outcome. Rejected documents are 422 and
// carry the result so callers can see the failed stage.
func respondIngest(c *gin.Context, res model.IngestResult, err error) {
	switch {
	case err != nil:
		respond(c, statusFor(err), err.Error(), res)
	case !res.Success:
		respond(c, http.StatusUnprocessableEntity, res.Error, res)
	case res.Queued:
		respond(c, http.StatusAccepted, "document queued for ingestion", res)
	default:
		respond(c, http.StatusOK, "document ingested", res)
	}
}
