package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"compliance-ingestion-service/internal/models"
)

// IngestRecord godoc
// @Summary Ingest one external payload
// @Description Durably stores the payload as a SourceRecord before any matching happens. Replaying the same (source, external_id) returns the original record with a 200 instead of creating a duplicate.
// @Tags ingestion
// @Accept  json
// @Produce  json
// @Param   X-Tenant-ID  header  string  true  "Tenant ID (UUID)"
// @Param   ingest_request  body  models.IngestRequestBody  true  "Payload with source and routing metadata"
// @Success 201 {object} models.SourceRecord "Payload stored as a new source record"
// @Success 200 {object} models.SourceRecord "Replay of an already ingested payload"
// @Failure 400 {object} models.APIError "Bad Request (see 'code' for specifics like VALIDATION_ERROR, INVALID_ENUM_VALUE, MISSING_TENANT)"
// @Failure 500 {object} models.APIError "Internal Server Error"
// @Router /ingest [post]
func IngestRecord(c *gin.Context) {
	tenantID, ok := tenantFromHeader(c)
	if !ok {
		return
	}

	var req models.IngestRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	rec, created, err := gateway.Ingest(tenantID, req)
	if err != nil {
		respondPipelineError(c, err, models.ErrorCodeRecordNotFound)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	RespondWithSuccess(c, status, rec)
}
