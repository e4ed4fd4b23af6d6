package handler

import (
	"github.com/gin-gonic/gin"

	"docrag-go/internal/middleware"
	"docrag-go/internal/service"
	"docrag-go/pkg/token"
)

// Services are the dependencies of the HTTP API.
type Services struct {
	Upload         service.UploadService
	Documents      service.DocumentService
	Search         service.SearchService
	JWT            *token.JWTManager
	MaxUploadBytes int64
}

// NewRouter builds the gin engine with every /api/v1 route.
func NewRouter(s Services) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	uploads := NewUploadHandler(s.Upload, s.MaxUploadBytes)
	docs := NewDocumentHandler(s.Documents)
	search := NewSearchHandler(s.Search)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(s.JWT))
	{
		documents := apiV1.Group("/documents")
		{
			documents.POST("/upload", uploads.Upload)
			documents.POST("/text", uploads.Paste)
			documents.GET("/supported-types", uploads.SupportedTypes)
			documents.GET("", docs.List)
			documents.DELETE("", docs.Delete)
			documents.GET("/download", docs.Download)
		}

		searchGroup := apiV1.Group("/search")
		{
			searchGroup.GET("", search.Search)
			searchGroup.GET("/context", search.Context)
		}
	}
	return r
}
