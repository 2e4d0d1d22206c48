package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/whynot231455/mmm-sol-dashboard/internal/database"
	"github.com/whynot231455/mmm-sol-dashboard/internal/middleware"
	"github.com/whynot231455/mmm-sol-dashboard/internal/utils"
	"github.com/whynot231455/mmm-sol-dashboard/internal/workspace"
)

// respondData writes the standard {"data": ...} envelope. A nil payload is the
// empty state of a view, not an error.
func respondData(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// bindJSON decodes the request body into dst and writes the error response on failure
func bindJSON(c *gin.Context, dst interface{}, what string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, err)
			return false
		}
		respondError(c, utils.NewValidationErrorf("invalid %s payload: %v", what, err))
		return false
	}
	return true
}

// respondError maps domain errors to status codes and writes {"error": message}
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var importErr *workspace.ImportError
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &tooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.As(err, &importErr), utils.IsValidationError(err):
		status = http.StatusBadRequest
	case errors.Is(err, database.ErrDatasetNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workspace.ErrArchiveDisabled):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		middleware.RecordError(c, err, "request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
