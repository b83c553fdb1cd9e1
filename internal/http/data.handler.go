package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kerem-kaynak/tablecat/internal/appcontext"
	"github.com/kerem-kaynak/tablecat/internal/dataset"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"github.com/kerem-kaynak/tablecat/internal/search"
	"go.uber.org/zap"
)

const (
	defaultPageSize  = 20
	maxPageSize      = 1000
	defaultGroupSize = 10
	defaultGroupRows = 5
)

type rowRequest struct {
	Data []string `json:"data" binding:"required"`
}

type rowsRequest struct {
	Rows []struct {
		Data       []string `json:"data"`
		ExternalID string   `json:"external_id"`
	} `json:"rows" binding:"required"`
}

type rowResponse struct {
	ExternalID string   `json:"external_id"`
	Data       []string `json:"data"`
}

func toRow(doc search.Document) rowResponse {
	return rowResponse{ExternalID: doc.ExternalID(), Data: doc.Data()}
}

// pagination reads limit and offset query parameters.
func pagination(c *gin.Context) (limit, offset int, ok bool) {
	return page(c, "limit", "offset", defaultPageSize)
}

func page(c *gin.Context, limitKey, offsetKey string, defaultLimit int) (limit, offset int, ok bool) {
	limit, offset = defaultLimit, 0
	var err error
	if v := c.Query(limitKey); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 || limit > maxPageSize {
			return 0, 0, false
		}
	}
	if v := c.Query(offsetKey); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, false
		}
	}
	return limit, offset, true
}

type rowGroupResponse struct {
	Slug    string          `json:"dataset_slug"`
	Dataset *entity.Dataset `json:"dataset"`
	Rows    []rowResponse   `json:"rows"`
	Total   int64           `json:"total"`
}

// SearchAllRows searches the rows of every dataset and groups hits by
// dataset. limit and offset page through datasets, group_limit and
// group_offset through the rows of each.
func SearchAllRows(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, ok := page(c, "limit", "offset", defaultGroupSize)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit or offset"})
			return
		}
		rowLimit, rowOffset, ok := page(c, "group_limit", "group_offset", defaultGroupRows)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group_limit or group_offset"})
			return
		}

		res, err := ctx.Datasets.SearchAllRows(c.Request.Context(), c.Query("q"), limit, offset, rowLimit, rowOffset)
		if err != nil {
			respondError(ctx, c, "Failed to search rows", err)
			return
		}

		groups := make([]rowGroupResponse, len(res.Groups))
		for i, g := range res.Groups {
			rows := make([]rowResponse, len(g.Rows))
			for j, doc := range g.Rows {
				rows[j] = toRow(doc)
			}
			groups[i] = rowGroupResponse{Slug: g.Slug, Dataset: g.Dataset, Rows: rows, Total: g.NumFound}
		}
		c.JSON(http.StatusOK, gin.H{"groups": groups, "total": res.NumGroups})
	}
}

func SearchRows(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		ds := datasetFromPath(ctx, c)
		if ds == nil {
			return
		}

		limit, offset, ok := pagination(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit or offset"})
			return
		}

		res, err := ctx.Datasets.SearchRows(c.Request.Context(), ds, c.Query("q"), limit, offset)
		if err != nil {
			respondError(ctx, c, "Failed to search rows", err)
			return
		}

		rows := make([]rowResponse, len(res.Docs))
		for i, doc := range res.Docs {
			rows[i] = toRow(doc)
		}
		c.JSON(http.StatusOK, gin.H{"rows": rows, "total": res.NumFound})
	}
}

func GetRow(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		ds := datasetFromPath(ctx, c)
		if ds == nil {
			return
		}

		doc, err := ctx.Datasets.GetRow(c.Request.Context(), ds, c.Param("externalID"))
		if err != nil {
			respondError(ctx, c, "Failed to get row", err)
			return
		}

		c.JSON(http.StatusOK, toRow(doc))
	}
}

func PutRow(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(ctx, c)
		if user == nil {
			return
		}
		ds := datasetFromPath(ctx, c)
		if ds == nil {
			return
		}

		var request rowRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			ctx.Logger.Info("Failed to bind request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to bind request"})
			return
		}

		externalID, err := ctx.Datasets.AddRow(c.Request.Context(), ds, user, request.Data, c.Param("externalID"))
		if err != nil {
			respondError(ctx, c, "Failed to write row", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"external_id": externalID, "message": ds.LastModification})
	}
}

func AddRow(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(ctx, c)
		if user == nil {
			return
		}
		ds := datasetFromPath(ctx, c)
		if ds == nil {
			return
		}

		var request rowRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			ctx.Logger.Info("Failed to bind request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to bind request"})
			return
		}

		externalID, err := ctx.Datasets.AddRow(c.Request.Context(), ds, user, request.Data, "")
		if err != nil {
			respondError(ctx, c, "Failed to write row", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"external_id": externalID, "message": ds.LastModification})
	}
}

func AddManyRows(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(ctx, c)
		if user == nil {
			return
		}
		ds := datasetFromPath(ctx, c)
		if ds == nil {
			return
		}

		var request rowsRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			ctx.Logger.Info("Failed to bind request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to bind request"})
			return
		}

		rows := make([]dataset.Row, len(request.Rows))
		for i, r := range request.Rows {
			rows[i] = dataset.Row{Data: r.Data, ExternalID: r.ExternalID}
		}
		if err := ctx.Datasets.AddManyRows(c.Request.Context(), ds, user, rows); err != nil {
			respondError(ctx, c, "Failed to write rows", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": ds.LastModification, "row_count": ds.RowCount})
	}
}

func DeleteRow(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(ctx, c)
		if user == nil {
			return
		}
		ds := datasetFromPath(ctx, c)
		if ds == nil {
			return
		}

		if err := ctx.Datasets.DeleteRow(c.Request.Context(), ds, user, c.Param("externalID")); err != nil {
			respondError(ctx, c, "Failed to delete row", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": ds.LastModification, "row_count": ds.RowCount})
	}
}

func DeleteAllRows(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(ctx, c)
		if user == nil {
			return
		}
		ds := datasetFromPath(ctx, c)
		if ds == nil {
			return
		}

		if err := ctx.Datasets.DeleteAllRows(c.Request.Context(), ds, user); err != nil {
			respondError(ctx, c, "Failed to delete rows", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": ds.LastModification, "row_count": ds.RowCount})
	}
}
