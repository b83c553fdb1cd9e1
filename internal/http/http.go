package http

import (
	"github.com/gin-gonic/gin"
	"github.com/kerem-kaynak/tablecat/internal/appcontext"
	"github.com/kerem-kaynak/tablecat/internal/http/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIService struct {
	engine  *gin.Engine
	context *appcontext.Context
}

func NewHTTPService(ctx *appcontext.Context) *APIService {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORSMiddleware(ctx.Production, ctx.AllowedOrigins))

	service := &APIService{
		engine:  engine,
		context: ctx,
	}
	service.setupRoutes()
	return service
}

func (h *APIService) Engine() *gin.Engine {
	return h.engine
}

func (h *APIService) setupRoutes() {
	if h.context.Metrics != nil {
		h.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.context.Metrics, promhttp.HandlerOpts{})))
	}

	v1 := h.engine.Group("/api/v1")
	v1.Use(middleware.JWTAuthMiddleware(h.context.JWTSecret))
	h.setupAuthRoutes(v1)
	h.setupDatasetRoutes(v1)
	h.setupDataRoutes(v1)
	h.setupSearchRoutes(v1)
	h.setupTaskRoutes(v1)
	h.setupUploadRoutes(v1)
}

func (h *APIService) setupAuthRoutes(group *gin.RouterGroup) {
	auth := group.Group("/auth")

	auth.GET("/me", GetUserInfo(h.context))
}

func (h *APIService) setupDatasetRoutes(group *gin.RouterGroup) {
	datasets := group.Group("/datasets")

	datasets.POST("", CreateDataset(h.context))
	datasets.GET("/:slug", GetDataset(h.context))
	datasets.PATCH("/:slug", UpdateDataset(h.context))
	datasets.DELETE("/:slug", DeleteDataset(h.context))
	datasets.POST("/:slug/import/:uploadID", ImportData(h.context))
	datasets.POST("/:slug/reindex", ReindexData(h.context))
	datasets.POST("/:slug/export", ExportData(h.context))
	datasets.POST("/:slug/related", UploadRelated(h.context))
}

func (h *APIService) setupDataRoutes(group *gin.RouterGroup) {
	group.GET("/data", SearchAllRows(h.context))

	data := group.Group("/datasets/:slug/data")

	data.GET("", SearchRows(h.context))
	data.POST("", AddRow(h.context))
	data.PUT("", AddManyRows(h.context))
	data.DELETE("", DeleteAllRows(h.context))
	data.GET("/:externalID", GetRow(h.context))
	data.PUT("/:externalID", PutRow(h.context))
	data.DELETE("/:externalID", DeleteRow(h.context))
}

func (h *APIService) setupSearchRoutes(group *gin.RouterGroup) {
	group.GET("/search", SearchCatalog(h.context))
}

func (h *APIService) setupTaskRoutes(group *gin.RouterGroup) {
	tasks := group.Group("/tasks")

	tasks.GET("/:taskID", GetTask(h.context))
	tasks.POST("/:taskID/abort", AbortTask(h.context))
}

func (h *APIService) setupUploadRoutes(group *gin.RouterGroup) {
	group.POST("/uploads", UploadData(h.context))
}
