package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/appcontext"
)

func taskIDFromPath(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("taskID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task ID"})
		return uuid.Nil, false
	}
	return id, true
}

func GetTask(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := taskIDFromPath(c)
		if !ok {
			return
		}

		task, err := ctx.Tasks.Get(c.Request.Context(), id)
		if err != nil {
			respondError(ctx, c, "Failed to get task", err)
			return
		}

		c.JSON(http.StatusOK, task)
	}
}

func AbortTask(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := taskIDFromPath(c)
		if !ok {
			return
		}

		if err := ctx.Runner.RequestAbort(c.Request.Context(), id); err != nil {
			respondError(ctx, c, "Failed to abort task", err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"message": "Abort requested"})
	}
}
