package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kerem-kaynak/tablecat/internal/appcontext"
	"github.com/kerem-kaynak/tablecat/internal/dataset"
	"github.com/kerem-kaynak/tablecat/internal/lock"
	"github.com/kerem-kaynak/tablecat/internal/tasks"
	"github.com/kerem-kaynak/tablecat/internal/upload"
	"go.uber.org/zap"
)

var badRequestErrors = []error{
	dataset.ErrInvalidRow,
	dataset.ErrInvalidOverride,
	dataset.ErrSchemaMismatch,
	dataset.ErrAlreadyImported,
	dataset.ErrUnsupportedFileType,
	dataset.ErrInvalidExternalIDField,
	dataset.ErrSlugTaken,
	dataset.ErrInvalidSlug,
	dataset.ErrUnknownCategory,
}

var notFoundErrors = []error{
	dataset.ErrNotFound,
	dataset.ErrRowNotFound,
	lock.ErrNotFound,
	upload.ErrNotFound,
	tasks.ErrNotFound,
}

func statusFor(err error) int {
	if errors.Is(err, dataset.ErrDatasetLocked) {
		return http.StatusConflict
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	return http.StatusInternalServerError
}

// respondError logs err and replies with the status its kind maps to. Server
// errors get the generic message, caller errors get the error text.
func respondError(ctx *appcontext.Context, c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		ctx.Logger.Error(message, zap.Error(err))
		c.JSON(status, gin.H{"error": message})
		return
	}
	ctx.Logger.Info(message, zap.Error(err), zap.Int("status", status))
	c.JSON(status, gin.H{"error": err.Error()})
}
