package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"compliance-ingestion-service/internal/database"
	"compliance-ingestion-service/internal/models"
)

// ListDedupeSuggestions godoc
// @Summary List dedupe suggestions
// @Description Get identity-conflict suggestions for the tenant, highest confidence first. Defaults to pending ones.
// @Tags suggestions
// @Produce  json
// @Param   X-Tenant-ID  header  string  true  "Tenant ID (UUID)"
// @Param   status       query   string  false "Filter by suggestion status (default pending)"
// @Success 200 {array} models.DedupeSuggestion "Successfully retrieved list of dedupe suggestions"
// @Failure 400 {object} models.APIError "Bad Request"
// @Failure 500 {object} models.APIError "Internal Server Error"
// @Router /dedupe-suggestions [get]
func ListDedupeSuggestions(c *gin.Context) {
	tenantID, ok := tenantFromHeader(c)
	if !ok {
		return
	}

	status := c.DefaultQuery("status", models.SuggestionStatusPending)
	var suggestions []models.DedupeSuggestion
	err := database.GetDB().
		Where("tenant_id = ? AND status = ?", tenantID, status).
		Order("confidence desc, created_at asc").
		Find(&suggestions).Error
	if err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to list dedupe suggestions", nil)
		return
	}
	RespondWithSuccess(c, http.StatusOK, suggestions)
}

// DecideDedupeSuggestion godoc
// @Summary Decide a dedupe suggestion
// @Description Apply a human decision (merge, create_new or reject) to a pending identity-conflict suggestion. A reason code is mandatory; merge and create_new also close sibling suggestions for the same record.
// @Tags suggestions
// @Accept  json
// @Produce  json
// @Param   X-Tenant-ID  header  string  true  "Tenant ID (UUID)"
// @Param   id           path    string  true  "Dedupe Suggestion ID (UUID)"
// @Param   decision     body    models.DecisionRequest  true  "Decision with action and reason code"
// @Success 200 {object} models.DedupeSuggestion "Decided suggestion"
// @Failure 400 {object} models.APIError "Bad Request (see 'code' for specifics like REASON_CODE_REQUIRED, INVALID_ACTION)"
// @Failure 404 {object} models.APIError "Not Found"
// @Failure 409 {object} models.APIError "Suggestion already decided"
// @Failure 500 {object} models.APIError "Internal Server Error"
// @Router /dedupe-suggestions/{id}/decision [post]
func DecideDedupeSuggestion(c *gin.Context) {
	tenantID, ok := tenantFromHeader(c)
	if !ok {
		return
	}

	suggestionIDStr := c.Param("id")
	suggestionID, err := uuid.Parse(suggestionIDStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidIDFormat, "Invalid suggestion ID format", gin.H{"id": suggestionIDStr, "error": err.Error()})
		return
	}

	var req models.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	suggestion, err := reviews.ResolveIdentityConflict(tenantID, suggestionID, req)
	if err != nil {
		respondPipelineError(c, err, models.ErrorCodeSuggestionNotFound)
		return
	}
	RespondWithSuccess(c, http.StatusOK, suggestion)
}

// ListMappingSuggestions godoc
// @Summary List mapping suggestions
// @Description Get relationship proposals for the tenant, highest confidence first. Defaults to pending ones.
// @Tags suggestions
// @Produce  json
// @Param   X-Tenant-ID  header  string  true  "Tenant ID (UUID)"
// @Param   status       query   string  false "Filter by suggestion status (default pending)"
// @Success 200 {array} models.DataMappingSuggestion "Successfully retrieved list of mapping suggestions"
// @Failure 400 {object} models.APIError "Bad Request"
// @Failure 500 {object} models.APIError "Internal Server Error"
// @Router /mapping-suggestions [get]
func ListMappingSuggestions(c *gin.Context) {
	tenantID, ok := tenantFromHeader(c)
	if !ok {
		return
	}

	status := c.DefaultQuery("status", models.SuggestionStatusPending)
	var suggestions []models.DataMappingSuggestion
	err := database.GetDB().
		Where("tenant_id = ? AND status = ?", tenantID, status).
		Order("confidence desc, created_at asc").
		Find(&suggestions).Error
	if err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to list mapping suggestions", nil)
		return
	}
	RespondWithSuccess(c, http.StatusOK, suggestions)
}

// DecideMappingSuggestion godoc
// @Summary Decide a mapping suggestion
// @Description Apply a human decision (approve or reject) to a pending relationship proposal. Approval commits the EntityLink edge.
// @Tags suggestions
// @Accept  json
// @Produce  json
// @Param   X-Tenant-ID  header  string  true  "Tenant ID (UUID)"
// @Param   id           path    string  true  "Mapping Suggestion ID (UUID)"
// @Param   decision     body    models.DecisionRequest  true  "Decision with action and reason code"
// @Success 200 {object} models.DataMappingSuggestion "Decided suggestion"
// @Failure 400 {object} models.APIError "Bad Request (see 'code' for specifics like REASON_CODE_REQUIRED, INVALID_ACTION)"
// @Failure 404 {object} models.APIError "Not Found"
// @Failure 409 {object} models.APIError "Suggestion already decided"
// @Failure 500 {object} models.APIError "Internal Server Error"
// @Router /mapping-suggestions/{id}/decision [post]
func DecideMappingSuggestion(c *gin.Context) {
	tenantID, ok := tenantFromHeader(c)
	if !ok {
		return
	}

	suggestionIDStr := c.Param("id")
	suggestionID, err := uuid.Parse(suggestionIDStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidIDFormat, "Invalid suggestion ID format", gin.H{"id": suggestionIDStr, "error": err.Error()})
		return
	}

	var req models.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	suggestion, err := reviews.DecideMappingSuggestion(tenantID, suggestionID, req)
	if err != nil {
		respondPipelineError(c, err, models.ErrorCodeSuggestionNotFound)
		return
	}
	RespondWithSuccess(c, http.StatusOK, suggestion)
}
