package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/AgenticFinLab/FinMycelium/internal/server/middleware"
	"github.com/AgenticFinLab/FinMycelium/pkg/document"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
)

// CreateDocumentHandler uploads one source document as plain text.
func CreateDocumentHandler(c echo.Context) error {
	type createDocumentBody struct {
		ID   string `json:"id"`
		Text string `json:"text" validate:"required"`
	}

	type createDocumentResponse struct {
		Message    string `json:"message"`
		ID         string `json:"id,omitempty"`
		Key        string `json:"key,omitempty"`
		Paragraphs int    `json:"paragraphs,omitempty"`
	}

	data := new(createDocumentBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createDocumentResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createDocumentResponse{
			Message: "Invalid request body",
		})
	}

	if data.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, createDocumentResponse{
				Message: "Internal server error",
			})
		}
		data.ID = id
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	key, err := app.Documents.PutDocument(ctx, data.ID, data.Text)
	if err != nil {
		logger.Error("Failed to store document", "id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, createDocumentResponse{
			Message: "Internal server error",
		})
	}

	doc := document.Segment(data.ID, data.Text)

	return c.JSON(http.StatusCreated, createDocumentResponse{
		Message:    "Document stored",
		ID:         data.ID,
		Key:        key,
		Paragraphs: len(doc.Paragraphs),
	})
}
