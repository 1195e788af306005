package http

import (
	"github.com/gin-gonic/gin"

	"ragworkbench/internal/bootstrap"
	"ragworkbench/internal/transport/http/handler"
	"ragworkbench/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Logger.Named("http")), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	workbenchHandler := handler.NewWorkbenchHandler(app.Registry, app.History, handler.WorkbenchOptions{
		HistoryLimit:   app.Config.Workbench.HistoryLimit,
		DefaultLocale:  app.Config.App.Locale,
		MaxUploadBytes: int64(app.Config.Ingest.MaxUploadMB) << 20,
	})
	RegisterWorkbenchRoutes(router, workbenchHandler, middleware.Identity(app.Config.Auth.JWTSecret, app.Config.Ingest.UserID))

	return router
}

// RegisterWorkbenchRoutes mounts the workbench API under /api/v1/workbench.
func RegisterWorkbenchRoutes(router gin.IRouter, h *handler.WorkbenchHandler, identity gin.HandlerFunc) {
	group := router.Group("/api/v1/workbench")
	group.Use(identity)
	group.POST("/upload", h.Upload)
	group.GET("/ingestion", h.Ingestion)
	group.PUT("/persona", h.SetPersona)
	group.POST("/questions", h.Ask)
	group.GET("/turns", h.Turns)
	group.PUT("/citation", h.SelectCitation)
	group.DELETE("/citation", h.ClearCitation)
	group.GET("/state", h.State)
	group.GET("/history", h.History)
	group.POST("/reset", h.Reset)
}
