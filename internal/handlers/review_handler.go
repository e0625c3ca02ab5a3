package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"compliance-ingestion-service/internal/models"
)

// ListReviewEvents godoc
// @Summary List review events
// @Description Get the append-only decision audit trail for the tenant, newest first, optionally narrowed to one canonical entity.
// @Tags review
// @Produce  json
// @Param   X-Tenant-ID  header  string  true  "Tenant ID (UUID)"
// @Param   entity_type  query   string  false "Filter by canonical entity type"
// @Param   entity_id    query   string  false "Filter by canonical entity ID (UUID)"
// @Success 200 {array} models.ReviewEvent "Review events"
// @Failure 400 {object} models.APIError "Bad Request"
// @Failure 500 {object} models.APIError "Internal Server Error"
// @Router /review-events [get]
func ListReviewEvents(c *gin.Context) {
	tenantID, ok := tenantFromHeader(c)
	if !ok {
		return
	}

	entityType := models.EntityType(c.Query("entity_type"))
	if entityType != "" && !models.ValidEntityTypes[entityType] {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidEnumValue, "Invalid entity_type filter", gin.H{"entity_type": c.Query("entity_type")})
		return
	}

	var entityID *uuid.UUID
	if raw := c.Query("entity_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidIDFormat, "Invalid entity_id filter", gin.H{"entity_id": raw})
			return
		}
		entityID = &parsed
	}

	events, err := reviews.ListReviewEvents(tenantID, entityType, entityID)
	if err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to list review events", nil)
		return
	}
	RespondWithSuccess(c, http.StatusOK, events)
}
