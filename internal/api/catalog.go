package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/iancossa/attendance-fullstack/internal/catalog"
)

const maxRecordBytes = 64 << 10

func registerCatalogRoutes(r *gin.RouterGroup, d Deps) {
	r.POST("/:kind", createRecord(d))
	r.GET("/:kind", listRecords(d))
}

// createRecord decodes the body as the tagged record for :kind and stores it.
func createRecord(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, err := catalog.ParseKind(c.Param("kind"))
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRecordBytes+1))
		if err != nil {
			badRequest(c, "could not read body")
			return
		}
		if len(body) > maxRecordBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "record too large"})
			return
		}
		rec, err := catalog.Decode(kind, body)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		rec, err = d.Catalog.Create(c.Request.Context(), rec)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"kind": kind, "record": rec})
	}
}

func listRecords(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, err := catalog.ParseKind(c.Param("kind"))
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		recs, err := d.Catalog.List(c.Request.Context(), kind, queryInt(c, "limit", 100), queryInt(c, "offset", 0))
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		if recs == nil {
			recs = []catalog.Record{}
		}
		c.JSON(http.StatusOK, gin.H{"kind": kind, "records": recs})
	}
}
