package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"compliance-ingestion-service/internal/database"
	"compliance-ingestion-service/internal/models"
)

// Constants for source record list pagination.
const (
	DefaultRecordLimit = 20
	MaxRecordLimit     = 100
)

// ListSourceRecords godoc
// @Summary List source records
// @Description Get the tenant's source records, optionally filtered by status and entity type, newest first.
// @Tags source-records
// @Produce  json
// @Param   X-Tenant-ID  header  string  true  "Tenant ID (UUID)"
// @Param   status       query   string  false "Filter by record status"
// @Param   entity_type  query   string  false "Filter by entity type"
// @Param   limit        query   int     false "Page size (default 20, max 100)"
// @Param   offset       query   int     false "Page offset"
// @Success 200 {array} models.SourceRecord "Successfully retrieved list of source records"
// @Failure 400 {object} models.APIError "Bad Request"
// @Failure 500 {object} models.APIError "Internal Server Error"
// @Router /source-records [get]
func ListSourceRecords(c *gin.Context) {
	tenantID, ok := tenantFromHeader(c)
	if !ok {
		return
	}

	limitStr := c.DefaultQuery("limit", strconv.Itoa(DefaultRecordLimit))
	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid limit parameter: not a number.", gin.H{"limit": limitStr})
		return
	}
	if limit <= 0 {
		limit = DefaultRecordLimit
	} else if limit > MaxRecordLimit {
		limit = MaxRecordLimit
	}

	offsetStr := c.DefaultQuery("offset", "0")
	offset, err := strconv.Atoi(offsetStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid offset parameter: not a number.", gin.H{"offset": offsetStr})
		return
	}
	if offset < 0 {
		offset = 0
	}

	query := database.GetDB().Where("tenant_id = ?", tenantID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if entityType := c.Query("entity_type"); entityType != "" {
		if !models.ValidEntityTypes[models.EntityType(entityType)] {
			RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidEnumValue, "Invalid entity_type filter", gin.H{"entity_type": entityType})
			return
		}
		query = query.Where("entity_type = ?", entityType)
	}

	var records []models.SourceRecord
	if err := query.Order("ingested_at desc").Limit(limit).Offset(offset).Find(&records).Error; err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to list source records", nil)
		return
	}
	RespondWithSuccess(c, http.StatusOK, records)
}

// GetSourceRecord godoc
// @Summary Get a source record by ID
// @Description Get one source record including its status, validation errors and canonical link.
// @Tags source-records
// @Produce  json
// @Param   X-Tenant-ID  header  string  true  "Tenant ID (UUID)"
// @Param   id           path    string  true  "Source Record ID (UUID)"
// @Success 200 {object} models.SourceRecord "Successfully retrieved source record"
// @Failure 400 {object} models.APIError "Bad Request (e.g., invalid ID format)"
// @Failure 404 {object} models.APIError "Not Found"
// @Failure 500 {object} models.APIError "Internal Server Error"
// @Router /source-records/{id} [get]
func GetSourceRecord(c *gin.Context) {
	tenantID, ok := tenantFromHeader(c)
	if !ok {
		return
	}

	recordIDStr := c.Param("id")
	recordID, err := uuid.Parse(recordIDStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidIDFormat, "Invalid source record ID format", gin.H{"id": recordIDStr, "error": err.Error()})
		return
	}

	var rec models.SourceRecord
	if err := database.GetDB().First(&rec, "id = ? AND tenant_id = ?", recordID, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			RespondWithError(c, http.StatusNotFound, models.ErrorCodeRecordNotFound, "Source record not found", gin.H{"id": recordID})
		} else {
			RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to get source record", nil)
		}
		return
	}
	RespondWithSuccess(c, http.StatusOK, rec)
}

// ProcessRecord godoc
// @Summary Process a pending source record
// @Description Push a pending_review or errored record through matching. The outcome is a new canonical entity, an automatic link on a single strong-key match, or dedupe suggestions awaiting review.
// @Tags source-records
// @Produce  json
// @Param   X-Tenant-ID  header  string  true  "Tenant ID (UUID)"
// @Param   id           path    string  true  "Source Record ID (UUID)"
// @Success 200 {object} pipeline.ProcessResult "Record routed"
// @Failure 400 {object} models.APIError "Bad Request (e.g., invalid ID format)"
// @Failure 404 {object} models.APIError "Not Found"
// @Failure 409 {object} models.APIError "Record is not in a processable status"
// @Failure 500 {object} models.APIError "Internal Server Error"
// @Router /source-records/{id}/process [post]
func ProcessRecord(c *gin.Context) {
	tenantID, ok := tenantFromHeader(c)
	if !ok {
		return
	}

	recordIDStr := c.Param("id")
	recordID, err := uuid.Parse(recordIDStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidIDFormat, "Invalid source record ID format", gin.H{"id": recordIDStr, "error": err.Error()})
		return
	}

	result, err := gateway.ProcessSourceRecord(tenantID, recordID)
	if err != nil {
		respondPipelineError(c, err, models.ErrorCodeRecordNotFound)
		return
	}
	RespondWithSuccess(c, http.StatusOK, result)
}
