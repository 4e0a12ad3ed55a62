package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/AgenticFinLab/FinMycelium/internal/queue"
	"github.com/AgenticFinLab/FinMycelium/internal/server/middleware"
	"github.com/AgenticFinLab/FinMycelium/internal/storage"
	"github.com/AgenticFinLab/FinMycelium/pkg/cascade"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
	"github.com/AgenticFinLab/FinMycelium/pkg/store"
)

// CreateReconstructionHandler accepts a reconstruction request and enqueues
// it for a worker. The build is created in its initial state so its progress
// can be polled immediately.
func CreateReconstructionHandler(c echo.Context) error {
	type createReconstructionBody struct {
		Query       string   `json:"query" validate:"required"`
		Keywords    []string `json:"keywords"`
		DocumentIDs []string `json:"document_ids" validate:"required,min=1"`
	}

	type createReconstructionResponse struct {
		Message string `json:"message"`
		BuildID string `json:"build_id,omitempty"`
		State   string `json:"state,omitempty"`
	}

	data := new(createReconstructionBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createReconstructionResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createReconstructionResponse{
			Message: "Invalid request body",
		})
	}

	buildID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createReconstructionResponse{
			Message: "Internal server error",
		})
	}

	keys := make([]string, len(data.DocumentIDs))
	for i, id := range data.DocumentIDs {
		keys[i] = storage.Key(id)
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	err = app.Store.CreateBuild(ctx, store.Build{
		ID:           buildID,
		Query:        data.Query,
		Keywords:     data.Keywords,
		DocumentKeys: keys,
		State:        cascade.StateCollecting,
	})
	if err != nil {
		logger.Error("Failed to create build", "err", err)
		return c.JSON(http.StatusInternalServerError, createReconstructionResponse{
			Message: "Internal server error",
		})
	}

	msg, err := json.Marshal(queue.ReconstructMsg{
		BuildID:      buildID,
		Query:        data.Query,
		Keywords:     data.Keywords,
		DocumentKeys: keys,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createReconstructionResponse{
			Message: "Internal server error",
		})
	}

	if err := queue.PublishFIFO(app.Queue, queue.ReconstructQueue, msg); err != nil {
		logger.Error("Failed to enqueue build", "build", buildID, "err", err)
		return c.JSON(http.StatusInternalServerError, createReconstructionResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, createReconstructionResponse{
		Message: "Reconstruction queued",
		BuildID: buildID,
		State:   string(cascade.StateCollecting),
	})
}
