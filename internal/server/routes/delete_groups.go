package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vellum-graph/vellum/internal/queue"
	"github.com/vellum-graph/vellum/internal/server/middleware"
	"github.com/vellum-graph/vellum/pkg/logger"
)

// DeleteGroupHandler enqueues an async cascade delete. The worker removes
// the group's graph under a lease lock plus its uploaded source files.
func DeleteGroupHandler(c echo.Context) error {
	type deleteGroupParams struct {
		GroupID string `param:"id" validate:"required"`
	}

	type deleteGroupResponse struct {
		Message string `json:"message"`
	}

	params := new(deleteGroupParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, deleteGroupResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, deleteGroupResponse{
			Message: "Invalid request params",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	app := c.(*middleware.AppContext).App

	msg, err := json.Marshal(queue.GroupDeleteMsg{GroupID: params.GroupID})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, deleteGroupResponse{
			Message: "Internal server error",
		})
	}

	if err := queue.PublishFIFO(app.Queue, queue.GroupDeleteQueue, msg); err != nil {
		logger.Error("[Server] Failed to enqueue group delete", "group", params.GroupID, "err", err)
		return c.JSON(http.StatusInternalServerError, deleteGroupResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, deleteGroupResponse{
		Message: "Group delete scheduled",
	})
}
