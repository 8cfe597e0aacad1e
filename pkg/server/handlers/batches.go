package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/casegraph/pkg/checkpoint"
	"github.com/soundprediction/casegraph/pkg/server/dto"
)

// BatchHandler reports batch checkpoint state.
type BatchHandler struct {
	checkpoints *checkpoint.Manager
}

// NewBatchHandler creates a handler over checkpoints, which may be nil.
func NewBatchHandler(checkpoints *checkpoint.Manager) *BatchHandler {
	return &BatchHandler{checkpoints: checkpoints}
}

// ListBatches handles GET /api/v1/batches. An optional state query parameter filters
// the listed batches; statistics always cover every batch.
func (h *BatchHandler) ListBatches(c *gin.Context) {
	if h.checkpoints == nil {
		c.JSON(http.StatusOK, dto.BatchesResponse{
			Statistics: &checkpoint.Statistics{ByState: map[checkpoint.State]int{}},
			Batches:    []*checkpoint.BatchCheckpoint{},
		})
		return
	}

	ctx := c.Request.Context()
	all, err := h.checkpoints.List(ctx)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "checkpoints_unavailable", err.Error())
		return
	}
	stats, err := h.checkpoints.GetStatistics(ctx)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "checkpoints_unavailable", err.Error())
		return
	}

	batches := make([]*checkpoint.BatchCheckpoint, 0, len(all))
	state := checkpoint.State(c.Query("state"))
	for _, cp := range all {
		if state == "" || cp.State == state {
			batches = append(batches, cp)
		}
	}
	c.JSON(http.StatusOK, dto.BatchesResponse{Statistics: stats, Batches: batches})
}

// GetBatch handles GET /api/v1/batches/:id.
func (h *BatchHandler) GetBatch(c *gin.Context) {
	if h.checkpoints == nil {
		writeError(c, http.StatusNotFound, "not_found", "no checkpoints configured")
		return
	}
	cp, err := h.checkpoints.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if cp == nil {
		writeError(c, http.StatusNotFound, "not_found", "batch "+c.Param("id")+" has no checkpoint")
		return
	}
	c.JSON(http.StatusOK, cp)
}
