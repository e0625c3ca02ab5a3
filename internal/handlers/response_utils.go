package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"compliance-ingestion-service/internal/models"
	"compliance-ingestion-service/internal/pipeline"
)

// RespondWithError sends a standardized JSON error response.
func RespondWithError(c *gin.Context, httpStatus int, appErrorCode string, message string, details interface{}) {
	errResp := models.APIError{
		Code:    appErrorCode,
		Message: message,
		Details: details,
	}
	c.JSON(httpStatus, errResp)
}

// RespondWithSuccess sends a standardized JSON success response.
// For 204 No Content pass nil data.
func RespondWithSuccess(c *gin.Context, httpStatus int, data interface{}) {
	if data != nil {
		c.JSON(httpStatus, data)
	} else {
		c.Status(httpStatus)
	}
}

// tenantFromHeader extracts and validates the X-Tenant-ID header. Every
// resource in the API is tenant-scoped, so a missing or malformed header
// fails the request before any query runs.
func tenantFromHeader(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetHeader("X-Tenant-ID")
	if raw == "" {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeMissingTenant, "X-Tenant-ID header is required", nil)
		return uuid.Nil, false
	}
	tenantID, err := uuid.Parse(raw)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeMissingTenant, "X-Tenant-ID header must be a UUID", gin.H{"value": raw})
		return uuid.Nil, false
	}
	return tenantID, true
}

// respondPipelineError translates pipeline sentinel errors into the API's
// error taxonomy. notFoundCode lets each handler keep its resource-specific
// not-found code.
func respondPipelineError(c *gin.Context, err error, notFoundCode string) {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		RespondWithError(c, http.StatusNotFound, notFoundCode, err.Error(), nil)
	case errors.Is(err, pipeline.ErrReasonRequired):
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeReasonRequired, err.Error(), nil)
	case errors.Is(err, pipeline.ErrSuggestionClosed):
		RespondWithError(c, http.StatusConflict, models.ErrorCodeSuggestionClosed, err.Error(), nil)
	case errors.Is(err, pipeline.ErrInvalidAction):
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidAction, err.Error(), nil)
	case errors.Is(err, pipeline.ErrRecordNotProcessable):
		RespondWithError(c, http.StatusConflict, models.ErrorCodeNotProcessable, err.Error(), nil)
	case errors.Is(err, pipeline.ErrInvalidEntityType), errors.Is(err, pipeline.ErrInvalidSource):
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidEnumValue, err.Error(), nil)
	default:
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Internal server error", nil)
	}
}
