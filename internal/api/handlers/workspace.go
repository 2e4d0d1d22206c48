package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/whynot231455/mmm-sol-dashboard/internal/logging"
	"github.com/whynot231455/mmm-sol-dashboard/internal/middleware"
	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
	"github.com/whynot231455/mmm-sol-dashboard/internal/state"
	"github.com/whynot231455/mmm-sol-dashboard/internal/utils"
	"github.com/whynot231455/mmm-sol-dashboard/internal/workspace"
)

// WorkspaceHandler serves imports and every state mutation
type WorkspaceHandler struct {
	workspace *workspace.Service
	logger    *logging.StandardLogger
}

// StateResponse is the client view of the workspace. Rows are never sent.
type StateResponse struct {
	Dataset    *models.DatasetSummary   `json:"dataset"`
	Headers    []string                 `json:"headers"`
	Mapping    models.ColumnMapping     `json:"mapping"`
	Filters    models.Filters           `json:"filters"`
	Transform  models.TransformSettings `json:"transform"`
	ActivePage state.Page               `json:"active_page"`
	IsLoaded   bool                     `json:"is_loaded"`
	Version    uint64                   `json:"version"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

type pageRequest struct {
	Page state.Page `json:"page" binding:"required"`
}

func NewWorkspaceHandler(ws *workspace.Service, logger *logging.StandardLogger) *WorkspaceHandler {
	if logger == nil {
		logger = logging.NewStandardLogger("info", "")
	}
	return &WorkspaceHandler{workspace: ws, logger: logger}
}

func newStateResponse(s state.AppState) StateResponse {
	resp := StateResponse{
		Headers:    s.Headers,
		Mapping:    s.Mapping,
		Filters:    s.Filters,
		Transform:  s.Transform,
		ActivePage: s.ActivePage,
		IsLoaded:   s.IsLoaded,
		Version:    s.Version,
		UpdatedAt:  s.UpdatedAt,
	}
	if s.Dataset != nil {
		summary := s.Dataset.Summary()
		resp.Dataset = &summary
	}
	return resp
}

// Import parses the multipart "file" field and makes it the current dataset
func (h *WorkspaceHandler) Import(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if !errors.As(err, &tooLarge) {
			err = utils.NewValidationError("file is required")
		}
		respondError(c, err)
		return
	}
	file, err := header.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer func() { _ = file.Close() }()

	ctx, span := middleware.StartSpan(c, "import.upload")
	defer span.End()
	middleware.AddSpanAttribute(c, "upload.size_bytes", header.Size)

	result, err := h.workspace.Import(ctx, file, header.Filename)
	if err != nil {
		respondError(c, err)
		return
	}
	middleware.AddSpanAttribute(c, "dataset.rows", result.Dataset.RowCount)
	h.logger.LogBusinessEvent("dataset_imported", map[string]interface{}{
		"dataset_id": result.Dataset.ID.String(),
		"name":       result.Dataset.Name,
		"rows":       result.Dataset.RowCount,
		"detected":   result.Detected,
		"archived":   result.Archived,
		"request_id": middleware.GetRequestID(c),
	})
	respondData(c, result)
}

func (h *WorkspaceHandler) GetState(c *gin.Context) {
	respondData(c, newStateResponse(h.workspace.Snapshot()))
}

// ResetState clears the workspace
func (h *WorkspaceHandler) ResetState(c *gin.Context) {
	next, err := h.workspace.Reset(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	h.logger.LogBusinessEvent("workspace_reset", map[string]interface{}{
		"version":    next.Version,
		"request_id": middleware.GetRequestID(c),
	})
	respondData(c, newStateResponse(next))
}

func (h *WorkspaceHandler) SetMapping(c *gin.Context) {
	var mapping models.ColumnMapping
	if !bindJSON(c, &mapping, "mapping") {
		return
	}
	h.dispatch(c, state.SetMapping{Mapping: mapping})
}

func (h *WorkspaceHandler) SetFilters(c *gin.Context) {
	var filters models.Filters
	if !bindJSON(c, &filters, "filters") {
		return
	}
	h.dispatch(c, state.SetFilter{Filters: filters})
}

func (h *WorkspaceHandler) SetPage(c *gin.Context) {
	var req pageRequest
	if !bindJSON(c, &req, "page") {
		return
	}
	h.dispatch(c, state.SetActivePage{Page: req.Page})
}

// UpdateSettings merges a partial settings document into the current settings
func (h *WorkspaceHandler) UpdateSettings(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	next, err := h.workspace.UpdateSettings(c.Request.Context(), body)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, next.Transform)
}

func (h *WorkspaceHandler) dispatch(c *gin.Context, action state.Action) {
	next, err := h.workspace.Dispatch(c.Request.Context(), action)
	if err != nil {
		respondError(c, err)
		return
	}
	middleware.AddSpanAttribute(c, "workspace.action", action.Name())
	c.JSON(http.StatusOK, gin.H{"data": newStateResponse(next)})
}
