package api

import (
	"github.com/gin-gonic/gin"

	"roster/internal/query"
	"roster/internal/service"
	"roster/internal/store"
)

// recordInput is a validated payload that knows its store fields.
type recordInput interface {
	ToRecord() store.Record
}

// GET /api/v1/:entities
func ListHandler(svc *service.Service, plural string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.GetAll(c.Request.Context(), query.ParseValues(c.Request.URL.Query()))
		if err != nil {
			fail(c, err)
			return
		}
		sendList(c, gin.H{plural: res.Data}, res.Pagination)
	}
}

// GET /api/v1/:entities/:id
func GetOneHandler(svc *service.Service, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		rec, err := svc.GetOne(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		sendSuccess(c, gin.H{key: rec})
	}
}

// POST /api/v1/:entities
func CreateHandler[T recordInput](svc *service.Service, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in T
		if err := bindJSON(c, &in); err != nil {
			fail(c, err)
			return
		}
		rec, err := svc.CreateOne(c.Request.Context(), in.ToRecord())
		if err != nil {
			fail(c, err)
			return
		}
		sendCreated(c, gin.H{key: rec})
	}
}

// PATCH /api/v1/:entities/:id
func UpdateHandler[T recordInput](svc *service.Service, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		var in T
		if err := bindJSON(c, &in); err != nil {
			fail(c, err)
			return
		}
		rec, err := svc.UpdateOne(c.Request.Context(), id, in.ToRecord())
		if err != nil {
			fail(c, err)
			return
		}
		sendSuccess(c, gin.H{key: rec})
	}
}

// DELETE /api/v1/:entities/:id
func DeleteHandler(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		if _, err := svc.DeleteOne(c.Request.Context(), id); err != nil {
			fail(c, err)
			return
		}
		sendNoContent(c)
	}
}
