package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/progRizvi/MarketMate/internal/jobs"
	"github.com/progRizvi/MarketMate/internal/validation"
)

// RegisterMediaRoutes registers the media pipeline entry point. Variant
// generation runs as background jobs; the endpoint only enqueues and
// acknowledges. Rendering the same asset at the same width twice is absorbed
// by the handler's idempotency key.
func RegisterMediaRoutes(r *gin.Engine, queue *jobs.Queue) {
	v := validation.New()

	r.POST("/media/:asset_id/variants", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.ResizeMediaRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		jobIDs := make([]string, 0, len(req.Widths))
		for _, width := range req.Widths {
			payload, err := json.Marshal(jobs.MediaPayload{
				AssetID: c.Param("asset_id"),
				Width:   width,
			})
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "msg": err.Error()})
				return
			}
			jobID, err := queue.Enqueue(ctx, jobs.TypeMediaResize, string(payload), nil)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "msg": err.Error()})
				return
			}
			jobIDs = append(jobIDs, jobID)
		}
		c.JSON(http.StatusAccepted, gin.H{"job_ids": jobIDs})
	})
}
