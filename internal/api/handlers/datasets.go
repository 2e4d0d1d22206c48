package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/whynot231455/mmm-sol-dashboard/internal/logging"
	"github.com/whynot231455/mmm-sol-dashboard/internal/middleware"
	"github.com/whynot231455/mmm-sol-dashboard/internal/utils"
	"github.com/whynot231455/mmm-sol-dashboard/internal/workspace"
)

// DatasetHandler serves the archive of previously imported datasets
type DatasetHandler struct {
	workspace *workspace.Service
	logger    *logging.StandardLogger
}

func NewDatasetHandler(ws *workspace.Service, logger *logging.StandardLogger) *DatasetHandler {
	if logger == nil {
		logger = logging.NewStandardLogger("info", "")
	}
	return &DatasetHandler{workspace: ws, logger: logger}
}

func (h *DatasetHandler) ListDatasets(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		respondError(c, utils.NewValidationError("limit must be a positive integer"))
		return
	}
	list, err := h.workspace.Datasets(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, list)
}

// LoadDataset makes an archived dataset the current one
func (h *DatasetHandler) LoadDataset(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	result, err := h.workspace.LoadDataset(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.logger.LogBusinessEvent("dataset_loaded", map[string]interface{}{
		"dataset_id": id.String(),
		"rows":       result.Dataset.RowCount,
		"request_id": middleware.GetRequestID(c),
	})
	respondData(c, result)
}

func (h *DatasetHandler) DeleteDataset(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.workspace.DeleteDataset(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.logger.LogBusinessEvent("dataset_deleted", map[string]interface{}{
		"dataset_id": id.String(),
		"request_id": middleware.GetRequestID(c),
	})
	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, utils.NewValidationError("invalid dataset id"))
		return uuid.Nil, false
	}
	return id, true
}
