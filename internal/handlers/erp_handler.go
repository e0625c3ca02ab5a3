package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"compliance-ingestion-service/internal/database"
	"compliance-ingestion-service/internal/models"
)

// CreateERPConnection godoc
// @Summary Register an ERP connection
// @Description Register an external ERP endpoint for batch synchronization. Connections start disabled unless is_enabled is set.
// @Tags erp-connections
// @Accept  json
// @Produce  json
// @Param   X-Tenant-ID  header  string  true  "Tenant ID (UUID)"
// @Param   connection   body    models.CreateERPConnectionRequest  true  "Connection settings"
// @Success 201 {object} models.ERPConnection "Successfully registered connection"
// @Failure 400 {object} models.APIError "Bad Request (see 'code' for specifics like VALIDATION_ERROR, INVALID_ENUM_VALUE)"
// @Failure 500 {object} models.APIError "Internal Server Error"
// @Router /erp-connections [post]
func CreateERPConnection(c *gin.Context) {
	tenantID, ok := tenantFromHeader(c)
	if !ok {
		return
	}

	var req models.CreateERPConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	for _, t := range req.EntityTypes {
		if !models.ValidEntityTypes[models.EntityType(t)] {
			RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidEnumValue, "Invalid entity type in entity_types", gin.H{"entity_type": t})
			return
		}
	}

	conn := models.ERPConnection{
		ID:             uuid.New(),
		TenantID:       tenantID,
		Name:           req.Name,
		BaseURL:        req.BaseURL,
		APIKey:         req.APIKey,
		EntityTypes:    entityTypesJSON(req.EntityTypes),
		Mode:           req.Mode,
		CronExpression: req.CronExpression,
	}
	if conn.Mode == "" {
		conn.Mode = "incremental"
	}
	if req.IsEnabled != nil {
		conn.IsEnabled = *req.IsEnabled
	}

	if err := database.GetDB().Create(&conn).Error; err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to create ERP connection", nil)
		return
	}
	RespondWithSuccess(c, http.StatusCreated, conn)
}

// ListERPConnections godoc
// @Summary List ERP connections
// @Description Get the tenant's registered ERP connections.
// @Tags erp-connections
// @Produce  json
// @Param   X-Tenant-ID  header  string  true  "Tenant ID (UUID)"
// @Success 200 {array} models.ERPConnection "Successfully retrieved list of connections"
// @Failure 400 {object} models.APIError "Bad Request"
// @Failure 500 {object} models.APIError "Internal Server Error"
// @Router /erp-connections [get]
func ListERPConnections(c *gin.Context) {
	tenantID, ok := tenantFromHeader(c)
	if !ok {
		return
	}

	var conns []models.ERPConnection
	if err := database.GetDB().Where("tenant_id = ?", tenantID).Order("created_at asc").Find(&conns).Error; err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to list ERP connections", nil)
		return
	}
	RespondWithSuccess(c, http.StatusOK, conns)
}

// TriggerERPSync godoc
// @Summary Trigger a batch sync for a connection
// @Description Starts a batch pull from the ERP endpoint. The run is created synchronously and executed in the background; poll the sync run for its outcome.
// @Tags erp-connections
// @Accept  json
// @Produce  json
// @Param   X-Tenant-ID  header  string  true  "Tenant ID (UUID)"
// @Param   id           path    string  true  "ERP Connection ID (UUID)"
// @Param   overrides    body    models.TriggerSyncRequest  false  "Optional entity type and mode overrides"
// @Success 202 {object} models.SyncRun "Sync run started"
// @Failure 400 {object} models.APIError "Bad Request"
// @Failure 404 {object} models.APIError "Connection not found"
// @Failure 500 {object} models.APIError "Internal Server Error"
// @Router /erp-connections/{id}/sync [post]
func TriggerERPSync(c *gin.Context) {
	tenantID, ok := tenantFromHeader(c)
	if !ok {
		return
	}

	connIDStr := c.Param("id")
	connID, err := uuid.Parse(connIDStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidIDFormat, "Invalid connection ID format", gin.H{"id": connIDStr, "error": err.Error()})
		return
	}

	var req models.TriggerSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
			return
		}
	}

	run, err := syncService.PrepareRun(tenantID, connID, req)
	if err != nil {
		respondPipelineError(c, err, models.ErrorCodeConnectionNotFound)
		return
	}

	// The request context dies with the response; the batch runs on its own.
	go func(run models.SyncRun) {
		if err := syncService.Execute(context.Background(), &run); err != nil {
			log.Printf("Sync run %s failed: %v", run.ID, err)
		}
	}(*run)

	RespondWithSuccess(c, http.StatusAccepted, run)
}

// GetSyncRun godoc
// @Summary Get a sync run by ID
// @Description Get the aggregated outcome of one batch synchronization.
// @Tags erp-connections
// @Produce  json
// @Param   X-Tenant-ID  header  string  true  "Tenant ID (UUID)"
// @Param   id           path    string  true  "Sync Run ID (UUID)"
// @Success 200 {object} models.SyncRun "Sync run"
// @Failure 400 {object} models.APIError "Bad Request"
// @Failure 404 {object} models.APIError "Not Found"
// @Failure 500 {object} models.APIError "Internal Server Error"
// @Router /sync-runs/{id} [get]
func GetSyncRun(c *gin.Context) {
	tenantID, ok := tenantFromHeader(c)
	if !ok {
		return
	}

	runIDStr := c.Param("id")
	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidIDFormat, "Invalid sync run ID format", gin.H{"id": runIDStr, "error": err.Error()})
		return
	}

	run, err := syncService.GetSyncRun(tenantID, runID)
	if err != nil {
		respondPipelineError(c, err, models.ErrorCodeSyncRunNotFound)
		return
	}
	RespondWithSuccess(c, http.StatusOK, run)
}

func entityTypesJSON(types []string) string {
	b, err := json.Marshal(types)
	if err != nil {
		return "[]"
	}
	return string(b)
}
