package pipeline

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"compliance-ingestion-service/internal/models"
)

// ProvenanceTracker maintains the per-field pointers from canonical values
// back to the source records that supplied them. Rows are superseded in
// place, never deleted, so the full history stays queryable.
type ProvenanceTracker struct {
	db *gorm.DB
}

func NewProvenanceTracker(db *gorm.DB) *ProvenanceTracker {
	return &ProvenanceTracker{db: db}
}

// RecordFields writes one live provenance row per field value within tx. Any
// existing live row for the same (entity, field) is superseded first so the
// "exactly one live row per populated field" invariant holds.
func (t *ProvenanceTracker) RecordFields(tx *gorm.DB, tenantID uuid.UUID, entityType models.EntityType, entityID uuid.UUID, fields []string, values map[string]string, sourceRecordID uuid.UUID, confidence int) error {
	for _, field := range fields {
		value, ok := values[field]
		if !ok || value == "" {
			continue
		}

		err := tx.Model(&models.FieldProvenance{}).
			Where("entity_type = ? AND entity_id = ? AND field_name = ? AND superseded = ?", entityType, entityID, field, false).
			Update("superseded", true).Error
		if err != nil {
			return fmt.Errorf("failed to supersede provenance for field %s on %s %s: %w", field, entityType, entityID, err)
		}

		row := models.FieldProvenance{
			ID:             uuid.New(),
			TenantID:       tenantID,
			EntityType:     entityType,
			EntityID:       entityID,
			FieldName:      field,
			Value:          value,
			SourceRecordID: sourceRecordID,
			Confidence:     confidence,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to write provenance for field %s on %s %s: %w", field, entityType, entityID, err)
		}
	}
	return nil
}

// Lookup returns provenance rows for an entity, optionally narrowed to one
// field. liveOnly drops superseded history.
func (t *ProvenanceTracker) Lookup(tenantID uuid.UUID, entityType models.EntityType, entityID uuid.UUID, fieldName string, liveOnly bool) ([]models.FieldProvenance, error) {
	query := t.db.Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", tenantID, entityType, entityID)
	if fieldName != "" {
		query = query.Where("field_name = ?", fieldName)
	}
	if liveOnly {
		query = query.Where("superseded = ?", false)
	}

	var rows []models.FieldProvenance
	if err := query.Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to look up provenance for %s %s: %w", entityType, entityID, err)
	}
	return rows, nil
}
