package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kerem-kaynak/tablecat/internal/appcontext"
	"github.com/kerem-kaynak/tablecat/internal/search"
)

// SearchCatalog runs a text query over dataset catalog entries, optionally
// narrowed to one category key.
func SearchCatalog(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, ok := pagination(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit or offset"})
			return
		}

		q := search.Query{Text: c.Query("q"), Limit: limit, Offset: offset}
		if category := c.Query("category"); category != "" {
			q.Filter = search.Eq(search.FieldCategories, category)
		}

		res, err := ctx.Engine.Query(c.Request.Context(), ctx.CatalogIndex, q)
		if err != nil {
			respondError(ctx, c, "Failed to perform search", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"results": res.Docs, "total": res.NumFound})
	}
}
