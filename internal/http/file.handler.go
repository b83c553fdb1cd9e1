package http

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/appcontext"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"github.com/kerem-kaynak/tablecat/internal/upload"
	"go.uber.org/zap"
)

// formFile returns the "file" part of a multipart request within the size
// limit, replying with the error itself when there is none.
func formFile(ctx *appcontext.Context, c *gin.Context) *multipart.FileHeader {
	if ctx.MaxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, ctx.MaxUploadSize)
	}

	file, err := c.FormFile("file")
	if err != nil {
		ctx.Logger.Info("Failed to get file from request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to get file from request"})
		return nil
	}
	return file
}

// storeFile copies the file to object storage under a fresh prefix and
// returns the object path.
func storeFile(ctx *appcontext.Context, c *gin.Context, file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	objectPath := "uploads/" + uuid.NewString() + "/" + filepath.Base(file.Filename)
	if _, err := ctx.Storage.Put(c.Request.Context(), objectPath, src); err != nil {
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	return objectPath, nil
}

func UploadData(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(ctx, c)
		if user == nil {
			return
		}
		file := formFile(ctx, c)
		if file == nil {
			return
		}

		u := &entity.DataUpload{
			OriginalFilename: filepath.Base(file.Filename),
			Size:             file.Size,
			CreatorID:        user.ID,
		}
		if _, ok := ctx.Registry.TaskTypeFor(u); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported file type"})
			return
		}

		src, err := file.Open()
		if err != nil {
			ctx.Logger.Error("Failed to open file", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open file"})
			return
		}
		inspection, err := upload.Inspect(src)
		src.Close()
		if err != nil {
			ctx.Logger.Info("Failed to inspect file", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file: " + err.Error()})
			return
		}

		objectPath, err := storeFile(ctx, c, file)
		if err != nil {
			ctx.Logger.Error("Failed to upload file", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload file"})
			return
		}

		sample := inspection.SampleData
		if len(sample) > entity.SampleSize {
			sample = sample[:entity.SampleSize]
		}
		u.Filename = objectPath
		u.Columns = inspection.Columns
		u.GuessedTypes = inspection.GuessedTypes
		u.SampleData = sample

		if err := ctx.Uploads.Create(c.Request.Context(), u); err != nil {
			ctx.Logger.Error("Failed to store upload in database", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload in database"})
			return
		}

		c.JSON(http.StatusCreated, u)
	}
}

func UploadRelated(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(ctx, c)
		if user == nil {
			return
		}
		ds := datasetFromPath(ctx, c)
		if ds == nil {
			return
		}
		file := formFile(ctx, c)
		if file == nil {
			return
		}

		objectPath, err := storeFile(ctx, c, file)
		if err != nil {
			ctx.Logger.Error("Failed to upload file", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload file"})
			return
		}

		related := &entity.RelatedUpload{
			Filename:         objectPath,
			OriginalFilename: filepath.Base(file.Filename),
			Size:             file.Size,
			DatasetID:        ds.ID,
			CreatorID:        user.ID,
		}
		if err := ctx.Uploads.CreateRelated(c.Request.Context(), related); err != nil {
			ctx.Logger.Error("Failed to store upload in database", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload in database"})
			return
		}

		if err := ctx.Datasets.UpdateFullTextIndex(c.Request.Context(), ds.ID, true); err != nil {
			respondError(ctx, c, "Failed to update catalog entry", err)
			return
		}

		c.JSON(http.StatusCreated, related)
	}
}
