package server

import (
	"github.com/vellum-graph/vellum/internal/server/middleware"
	"github.com/vellum-graph/vellum/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Query routes
	apiRoutes.POST("/groups/:id/query", routes.PostQueryHandler, middleware.RequirePermission("group.query"))

	// Document routes
	apiRoutes.GET("/groups/:id/documents", routes.GetDocumentsHandler, middleware.RequirePermission("document.view"))
	apiRoutes.GET("/groups/:id/documents/:documentId/link", routes.GetDocumentDownloadLinkHandler, middleware.RequirePermission("document.download"))

	// Group routes
	apiRoutes.DELETE("/groups/:id", routes.DeleteGroupHandler, middleware.RequirePermission("group.delete"))
}
