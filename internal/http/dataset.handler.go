package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/appcontext"
	"github.com/kerem-kaynak/tablecat/internal/dataset"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"go.uber.org/zap"
)

type createDatasetRequest struct {
	Name        string      `json:"name" binding:"required"`
	Description string      `json:"description"`
	Slug        string      `json:"slug"`
	CategoryIDs []uuid.UUID `json:"category_ids"`
}

type updateDatasetRequest struct {
	Name        *string      `json:"name"`
	Description *string      `json:"description"`
	CategoryIDs *[]uuid.UUID `json:"category_ids"`
}

type importRequest struct {
	ExternalIDField *int `json:"external_id_field"`
}

type reindexRequest struct {
	Indexed []*bool   `json:"indexed"`
	Types   []*string `json:"types"`
}

type exportRequest struct {
	Filename string `json:"filename"`
}

// datasetFromPath loads the dataset named by the :slug parameter, replying
// with the error itself when it cannot.
func datasetFromPath(ctx *appcontext.Context, c *gin.Context) *entity.Dataset {
	ds, err := ctx.Datasets.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(ctx, c, "Failed to get dataset", err)
		return nil
	}
	return ds
}

func CreateDataset(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(ctx, c)
		if user == nil {
			return
		}

		var request createDatasetRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			ctx.Logger.Info("Failed to bind request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to bind request"})
			return
		}

		ds, err := ctx.Datasets.Create(c.Request.Context(), user, dataset.CreateInput{
			Name:        request.Name,
			Description: request.Description,
			Slug:        request.Slug,
			CategoryIDs: request.CategoryIDs,
		})
		if err != nil {
			respondError(ctx, c, "Failed to create dataset", err)
			return
		}

		c.JSON(http.StatusCreated, ds)
	}
}

func GetDataset(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		ds := datasetFromPath(ctx, c)
		if ds == nil {
			return
		}

		c.JSON(http.StatusOK, ds)
	}
}

func UpdateDataset(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		ds := datasetFromPath(ctx, c)
		if ds == nil {
			return
		}

		var request updateDatasetRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			ctx.Logger.Info("Failed to bind request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to bind request"})
			return
		}

		updated, err := ctx.Datasets.UpdateMetadata(c.Request.Context(), ds.ID, dataset.MetadataInput{
			Name:        request.Name,
			Description: request.Description,
			CategoryIDs: request.CategoryIDs,
		})
		if err != nil {
			respondError(ctx, c, "Failed to update dataset", err)
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

func DeleteDataset(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		ds := datasetFromPath(ctx, c)
		if ds == nil {
			return
		}

		if err := ctx.Datasets.Delete(c.Request.Context(), ds.ID); err != nil {
			respondError(ctx, c, "Failed to delete dataset", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Dataset deleted"})
	}
}

func ImportData(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(ctx, c)
		if user == nil {
			return
		}
		ds := datasetFromPath(ctx, c)
		if ds == nil {
			return
		}

		uploadID, err := uuid.Parse(c.Param("uploadID"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid upload ID"})
			return
		}

		var request importRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&request); err != nil {
				ctx.Logger.Info("Failed to bind request", zap.Error(err))
				c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to bind request"})
				return
			}
		}

		up, err := ctx.Uploads.Get(c.Request.Context(), uploadID)
		if err != nil {
			respondError(ctx, c, "Failed to get upload", err)
			return
		}

		ds, err = ctx.Datasets.ImportData(c.Request.Context(), ds.ID, user, up, request.ExternalIDField)
		if err != nil {
			respondError(ctx, c, "Failed to start import", err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"dataset": ds, "task_id": ds.CurrentTaskID})
	}
}

func ReindexData(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(ctx, c)
		if user == nil {
			return
		}
		ds := datasetFromPath(ctx, c)
		if ds == nil {
			return
		}

		var request reindexRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&request); err != nil {
				ctx.Logger.Info("Failed to bind request", zap.Error(err))
				c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to bind request"})
				return
			}
		}

		ds, err := ctx.Datasets.ReindexData(c.Request.Context(), ds.ID, user, request.Indexed, request.Types)
		if err != nil {
			respondError(ctx, c, "Failed to start reindex", err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"dataset": ds, "task_id": ds.CurrentTaskID})
	}
}

func ExportData(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(ctx, c)
		if user == nil {
			return
		}
		ds := datasetFromPath(ctx, c)
		if ds == nil {
			return
		}

		var request exportRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&request); err != nil {
				ctx.Logger.Info("Failed to bind request", zap.Error(err))
				c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to bind request"})
				return
			}
		}

		ds, err := ctx.Datasets.ExportData(c.Request.Context(), ds.ID, user, request.Filename)
		if err != nil {
			respondError(ctx, c, "Failed to start export", err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"dataset": ds, "task_id": ds.CurrentTaskID})
	}
}
