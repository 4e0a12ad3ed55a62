package server

import (
	"github.com/AgenticFinLab/FinMycelium/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Document routes
	apiRoutes.POST("/documents", routes.CreateDocumentHandler)
	apiRoutes.GET("/documents/:id", routes.GetDocumentHandler)
	apiRoutes.DELETE("/documents/:id", routes.DeleteDocumentHandler)

	// Reconstruction routes
	apiRoutes.POST("/reconstructions", routes.CreateReconstructionHandler)
	apiRoutes.GET("/reconstructions", routes.ListReconstructionsHandler)
	apiRoutes.GET("/reconstructions/:id", routes.GetReconstructionHandler)
	apiRoutes.GET("/reconstructions/:id/cascade", routes.GetCascadeHandler)
}
