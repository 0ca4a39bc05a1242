package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/progRizvi/MarketMate/internal/jobs"
)

// RegisterJobAdminRoutes registers the job admin surface consumed by
// operations tooling: inspect dead-lettered jobs and put them back.
func RegisterJobAdminRoutes(r *gin.Engine, queue *jobs.Queue) {
	r.GET("/admin/jobs/dead-lettered", func(c *gin.Context) {
		list, err := queue.ListDeadLettered(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": list})
	})

	r.GET("/admin/jobs/:id", func(c *gin.Context) {
		job, err := queue.Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job_not_found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, job)
	})

	r.POST("/admin/jobs/:id/requeue", func(c *gin.Context) {
		err := queue.Requeue(c.Request.Context(), c.Param("id"))
		if errors.Is(err, jobs.ErrNotDeadLettered) {
			c.JSON(http.StatusConflict, gin.H{"error": "not_dead_lettered"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"requeued": true})
	})
}
