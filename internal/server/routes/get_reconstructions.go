package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/AgenticFinLab/FinMycelium/internal/server/middleware"
	"github.com/AgenticFinLab/FinMycelium/pkg/cascade"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
	"github.com/AgenticFinLab/FinMycelium/pkg/store"
)

// GetReconstructionHandler returns the state of one build.
func GetReconstructionHandler(c echo.Context) error {
	type getReconstructionResponse struct {
		Message string       `json:"message,omitempty"`
		Build   *store.Build `json:"build,omitempty"`
	}

	id := c.Param("id")
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	build, err := app.Store.GetBuild(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, getReconstructionResponse{
				Message: "Build not found",
			})
		}
		logger.Error("Failed to load build", "build", id, "err", err)
		return c.JSON(http.StatusInternalServerError, getReconstructionResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getReconstructionResponse{
		Build: &build,
	})
}

// GetCascadeHandler returns the frozen cascade of a finished build.
func GetCascadeHandler(c echo.Context) error {
	type getCascadeResponse struct {
		Message string           `json:"message,omitempty"`
		Cascade *cascade.Cascade `json:"cascade,omitempty"`
	}

	id := c.Param("id")
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	result, err := app.Store.GetCascade(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, getCascadeResponse{
				Message: "Cascade not available",
			})
		}
		logger.Error("Failed to load cascade", "build", id, "err", err)
		return c.JSON(http.StatusInternalServerError, getCascadeResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getCascadeResponse{
		Cascade: result,
	})
}

// ListReconstructionsHandler returns recent builds, newest first.
func ListReconstructionsHandler(c echo.Context) error {
	type listReconstructionsResponse struct {
		Message string        `json:"message,omitempty"`
		Builds  []store.Build `json:"builds"`
	}

	limit := int64(50)
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, listReconstructionsResponse{
				Message: "Invalid limit",
			})
		}
		limit = parsed
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	builds, err := app.Store.ListBuilds(ctx, int32(limit))
	if err != nil {
		logger.Error("Failed to list builds", "err", err)
		return c.JSON(http.StatusInternalServerError, listReconstructionsResponse{
			Message: "Internal server error",
		})
	}
	if builds == nil {
		builds = []store.Build{}
	}

	return c.JSON(http.StatusOK, listReconstructionsResponse{
		Builds: builds,
	})
}
