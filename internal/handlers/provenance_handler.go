package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"compliance-ingestion-service/internal/models"
)

// GetProvenance godoc
// @Summary Look up field provenance for a canonical entity
// @Description Answers which source record supplied a canonical field value. Returns the full history by default; pass live=true for only the current rows.
// @Tags provenance
// @Produce  json
// @Param   X-Tenant-ID  header  string  true  "Tenant ID (UUID)"
// @Param   entity_type  query   string  true  "Canonical entity type"
// @Param   entity_id    query   string  true  "Canonical entity ID (UUID)"
// @Param   field        query   string  false "Narrow to one field name"
// @Param   live         query   bool    false "Only live (non-superseded) rows"
// @Success 200 {array} models.FieldProvenance "Provenance rows, oldest first"
// @Failure 400 {object} models.APIError "Bad Request"
// @Failure 500 {object} models.APIError "Internal Server Error"
// @Router /provenance [get]
func GetProvenance(c *gin.Context) {
	tenantID, ok := tenantFromHeader(c)
	if !ok {
		return
	}

	entityType := models.EntityType(c.Query("entity_type"))
	if !models.ValidEntityTypes[entityType] {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidEnumValue, "Invalid or missing entity_type", gin.H{"entity_type": c.Query("entity_type")})
		return
	}

	entityIDStr := c.Query("entity_id")
	entityID, err := uuid.Parse(entityIDStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidIDFormat, "Invalid or missing entity_id", gin.H{"entity_id": entityIDStr})
		return
	}

	liveOnly := c.Query("live") == "true"
	rows, err := provenance.Lookup(tenantID, entityType, entityID, c.Query("field"), liveOnly)
	if err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to look up provenance", nil)
		return
	}
	RespondWithSuccess(c, http.StatusOK, rows)
}
