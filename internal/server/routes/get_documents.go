package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/AgenticFinLab/FinMycelium/internal/server/middleware"
	"github.com/AgenticFinLab/FinMycelium/internal/storage"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
)

// GetDocumentHandler returns the stored text of one document.
func GetDocumentHandler(c echo.Context) error {
	type getDocumentResponse struct {
		Message string `json:"message,omitempty"`
		ID      string `json:"id,omitempty"`
		Text    string `json:"text,omitempty"`
	}

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, getDocumentResponse{
			Message: "Missing document id",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	text, err := app.Documents.GetDocument(ctx, storage.Key(id))
	if err != nil {
		logger.Warn("Failed to fetch document", "id", id, "err", err)
		return c.JSON(http.StatusNotFound, getDocumentResponse{
			Message: "Document not found",
		})
	}

	return c.JSON(http.StatusOK, getDocumentResponse{
		ID:   id,
		Text: text,
	})
}

// DeleteDocumentHandler removes one document from object storage.
func DeleteDocumentHandler(c echo.Context) error {
	type deleteDocumentResponse struct {
		Message string `json:"message"`
	}

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, deleteDocumentResponse{
			Message: "Missing document id",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	if err := app.Documents.DeleteDocument(ctx, storage.Key(id)); err != nil {
		logger.Error("Failed to delete document", "id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, deleteDocumentResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, deleteDocumentResponse{
		Message: "Document deleted",
	})
}
