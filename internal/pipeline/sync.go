package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"compliance-ingestion-service/internal/models"
)

// SyncService pulls entity batches from configured ERP connections and feeds
// them through the ingestion gateway one record at a time. One bad record
// never fails the batch; each run aggregates its counters into a SyncRun.
type SyncService struct {
	db            *gorm.DB
	gateway       *Gateway
	clientFactory ERPClientFactory
}

func NewSyncService(db *gorm.DB, gateway *Gateway, clientFactory ERPClientFactory) *SyncService {
	if clientFactory == nil {
		clientFactory = DefaultERPClientFactory
	}
	return &SyncService{db: db, gateway: gateway, clientFactory: clientFactory}
}

// PrepareRun validates the connection and durably creates a running SyncRun,
// so callers can hand back the run id before execution finishes.
func (s *SyncService) PrepareRun(tenantID, connectionID uuid.UUID, overrides models.TriggerSyncRequest) (*models.SyncRun, error) {
	conn, err := s.loadConnection(tenantID, connectionID)
	if err != nil {
		return nil, err
	}

	entityTypes, err := resolveEntityTypes(conn, overrides.EntityTypes)
	if err != nil {
		return nil, err
	}
	mode := conn.Mode
	if overrides.Mode != "" {
		mode = overrides.Mode
	}
	if mode == "" {
		mode = "incremental"
	}

	run := models.SyncRun{
		ID:           uuid.New(),
		TenantID:     tenantID,
		ConnectionID: conn.ID,
		Mode:         mode,
		EntityTypes:  toJSON(entityTypes),
		Status:       models.SyncStatusRunning,
		StartedAt:    time.Now(),
	}
	if err := s.db.Create(&run).Error; err != nil {
		return nil, fmt.Errorf("failed to create sync run: %w", err)
	}
	log.Printf("Sync run %s started for connection %s (%s, mode %s)", run.ID, conn.Name, run.EntityTypes, mode)
	return &run, nil
}

// Execute performs the prepared run. Cancelling ctx aborts the batch between
// records; everything ingested before the abort stays durable.
func (s *SyncService) Execute(ctx context.Context, run *models.SyncRun) error {
	conn, err := s.loadConnection(run.TenantID, run.ConnectionID)
	if err != nil {
		return s.finishRun(run, models.SyncStatusFailed, err.Error())
	}
	client := s.clientFactory(conn)

	var entityTypes []models.EntityType
	if err := json.Unmarshal([]byte(run.EntityTypes), &entityTypes); err != nil {
		return s.finishRun(run, models.SyncStatusFailed, fmt.Sprintf("invalid entity type list: %v", err))
	}

	var lastErr string
	for _, entityType := range entityTypes {
		if ctx.Err() != nil {
			return s.finishRun(run, models.SyncStatusAborted, "sync aborted before "+string(entityType))
		}

		records, err := client.FetchEntities(ctx, entityType, run.Mode)
		if err != nil {
			if ctx.Err() != nil {
				return s.finishRun(run, models.SyncStatusAborted, err.Error())
			}
			log.Printf("Sync run %s: fetching %s from %s failed: %v", run.ID, entityType, conn.Name, err)
			run.ErrorsCount++
			lastErr = err.Error()
			continue
		}
		log.Printf("Sync run %s: fetched %d %s records from %s", run.ID, len(records), entityType, conn.Name)

		for _, erpRec := range records {
			if ctx.Err() != nil {
				return s.finishRun(run, models.SyncStatusAborted, fmt.Sprintf("sync aborted while ingesting %s records", entityType))
			}

			rec, created, err := s.gateway.Ingest(run.TenantID, models.IngestRequestBody{
				Source:  string(models.SourceERP),
				Payload: erpRec.Payload,
				Metadata: models.IngestMetadata{
					EntityType:  string(entityType),
					ExternalID:  erpRec.ExternalID,
					AutoProcess: true,
					Actor:       "erp-sync",
				},
			})
			if err != nil {
				log.Printf("Sync run %s: ingesting %s %q failed: %v", run.ID, entityType, erpRec.ExternalID, err)
				run.ErrorsCount++
				lastErr = err.Error()
				continue
			}
			if created && s.flagMalformedRecord(run, entityType, rec) {
				lastErr = rec.ErrorMessage
				continue
			}
			if created {
				run.RecordsCreated++
			} else {
				run.RecordsExisting++
			}
		}
	}

	status := models.SyncStatusCompleted
	if run.ErrorsCount > 0 {
		status = models.SyncStatusCompletedWithErrors
	}
	return s.finishRun(run, status, lastErr)
}

// TriggerSync prepares and executes a run synchronously. Used by the
// scheduler; the HTTP handler prepares and executes asynchronously instead.
func (s *SyncService) TriggerSync(ctx context.Context, tenantID, connectionID uuid.UUID, overrides models.TriggerSyncRequest) (*models.SyncRun, error) {
	run, err := s.PrepareRun(tenantID, connectionID, overrides)
	if err != nil {
		return nil, err
	}
	if err := s.Execute(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

// GetSyncRun returns one run scoped to its tenant.
func (s *SyncService) GetSyncRun(tenantID, runID uuid.UUID) (*models.SyncRun, error) {
	var run models.SyncRun
	err := s.db.First(&run, "id = ? AND tenant_id = ?", runID, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: sync run %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync run %s: %w", runID, err)
	}
	return &run, nil
}

// flagMalformedRecord moves a freshly ingested record that failed identity
// validation, or that auto-processing already parked at error, into the run's
// error count. A malformed batch item stays durable but never lingers at
// pending_review.
func (s *SyncService) flagMalformedRecord(run *models.SyncRun, entityType models.EntityType, rec *models.SourceRecord) bool {
	if rec.ValidationErrors != "" {
		msg := fmt.Sprintf("missing identity fields: %s", rec.ValidationErrors)
		updates := map[string]interface{}{
			"status":        models.RecordStatusError,
			"error_message": msg,
		}
		if err := s.db.Model(&models.SourceRecord{}).Where("id = ?", rec.ID).Updates(updates).Error; err != nil {
			log.Printf("Sync run %s: failed to flag malformed record %s: %v", run.ID, rec.ID, err)
		}
		rec.Status = models.RecordStatusError
		rec.ErrorMessage = msg
		log.Printf("Sync run %s: %s %q failed identity validation: %s", run.ID, entityType, rec.ExternalID, msg)
		run.ErrorsCount++
		return true
	}
	if rec.Status == models.RecordStatusError {
		log.Printf("Sync run %s: %s %q errored during processing: %s", run.ID, entityType, rec.ExternalID, rec.ErrorMessage)
		run.ErrorsCount++
		return true
	}
	return false
}

func (s *SyncService) loadConnection(tenantID, connectionID uuid.UUID) (*models.ERPConnection, error) {
	var conn models.ERPConnection
	err := s.db.First(&conn, "id = ? AND tenant_id = ?", connectionID, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: erp connection %s", ErrNotFound, connectionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load erp connection %s: %w", connectionID, err)
	}
	return &conn, nil
}

func (s *SyncService) finishRun(run *models.SyncRun, status, errorMessage string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":           status,
		"records_created":  run.RecordsCreated,
		"records_existing": run.RecordsExisting,
		"errors_count":     run.ErrorsCount,
		"error_message":    errorMessage,
		"finished_at":      &now,
	}
	if err := s.db.Model(&models.SyncRun{}).Where("id = ?", run.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to finalize sync run %s: %w", run.ID, err)
	}
	run.Status = status
	run.ErrorMessage = errorMessage
	run.FinishedAt = &now
	log.Printf("Sync run %s finished with status %s (%d created, %d existing, %d errors)",
		run.ID, status, run.RecordsCreated, run.RecordsExisting, run.ErrorsCount)

	if status == models.SyncStatusFailed {
		return errors.New(errorMessage)
	}
	return nil
}

// resolveEntityTypes intersects any override list with the connection's
// configured entity types and rejects unknown values.
func resolveEntityTypes(conn *models.ERPConnection, overrides []string) ([]models.EntityType, error) {
	var configured []string
	if conn.EntityTypes != "" {
		if err := json.Unmarshal([]byte(conn.EntityTypes), &configured); err != nil {
			return nil, fmt.Errorf("connection %s has an invalid entity type list: %w", conn.ID, err)
		}
	}

	selected := configured
	if len(overrides) > 0 {
		allowed := make(map[string]bool, len(configured))
		for _, t := range configured {
			allowed[t] = true
		}
		selected = make([]string, 0, len(overrides))
		for _, t := range overrides {
			if len(configured) == 0 || allowed[t] {
				selected = append(selected, t)
			}
		}
	}

	types := make([]models.EntityType, 0, len(selected))
	for _, t := range selected {
		entityType := models.EntityType(t)
		if !models.ValidEntityTypes[entityType] {
			return nil, fmt.Errorf("%w: %s", ErrInvalidEntityType, t)
		}
		types = append(types, entityType)
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("connection %s has no entity types to sync", conn.ID)
	}
	return types, nil
}
