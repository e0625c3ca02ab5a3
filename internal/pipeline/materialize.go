package pipeline

import (
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"compliance-ingestion-service/internal/models"
)

// Materialization actions.
const (
	ActionCreated = "created"
	ActionLinked  = "linked"
)

// MaterializeResult reports what the materializer did with a source record.
type MaterializeResult struct {
	Action   string    `json:"action"`
	EntityID uuid.UUID `json:"entity_id"`
}

// Materializer is the only component allowed to mutate canonical entities.
// Every path commits the source record's terminal status in the same
// transaction as the canonical change, so readers never observe a
// half-applied state.
type Materializer struct {
	db         *gorm.DB
	provenance *ProvenanceTracker
}

func NewMaterializer(db *gorm.DB, provenance *ProvenanceTracker) *Materializer {
	return &Materializer{db: db, provenance: provenance}
}

// Create maps the record's source data into a new canonical entity, persists
// it with tenant ownership and import defaults, and writes one provenance row
// per populated field at confidence 100.
func (m *Materializer) Create(rec *models.SourceRecord) (*MaterializeResult, error) {
	var result *MaterializeResult
	err := m.db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = m.createIn(tx, rec)
		return err
	})
	if err != nil {
		return nil, m.failRecord(rec, err)
	}
	log.Printf("Materialized source record %s into new canonical %s %s", rec.ID, rec.EntityType, result.EntityID)
	return result, nil
}

// createIn runs the create path inside a caller-owned transaction so review
// decisions can commit the canonical change together with their bookkeeping.
func (m *Materializer) createIn(tx *gorm.DB, rec *models.SourceRecord) (*MaterializeResult, error) {
	data := fromJSONMap(rec.SourceData)
	fields, err := canonicalFields(rec.EntityType)
	if err != nil {
		return nil, err
	}

	entity, entityID, err := buildEntity(rec.EntityType, rec.TenantID, data)
	if err != nil {
		return nil, err
	}

	if err := tx.Create(entity).Error; err != nil {
		return nil, fmt.Errorf("failed to persist canonical %s: %w", rec.EntityType, err)
	}
	if err := m.provenance.RecordFields(tx, rec.TenantID, rec.EntityType, entityID, fields, data, rec.ID, 100); err != nil {
		return nil, err
	}
	if err := m.closeRecord(tx, rec, models.RecordStatusCanonical, entityID); err != nil {
		return nil, err
	}
	return &MaterializeResult{Action: ActionCreated, EntityID: entityID}, nil
}

// Link attaches the record to an existing canonical entity instead of
// creating a new one. Field values the canonical entity previously lacked are
// merged in; when the record is flagged as a correction, differing values
// override the canonical ones and their provenance rows are superseded.
func (m *Materializer) Link(rec *models.SourceRecord, entityID uuid.UUID, terminalStatus string, correction bool) (*MaterializeResult, error) {
	var result *MaterializeResult
	err := m.db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = m.linkIn(tx, rec, entityID, terminalStatus, correction)
		return err
	})
	if err != nil {
		return nil, m.failRecord(rec, err)
	}
	log.Printf("Linked source record %s to existing canonical %s %s (status %s)", rec.ID, rec.EntityType, entityID, terminalStatus)
	return result, nil
}

// linkIn runs the link path inside a caller-owned transaction.
func (m *Materializer) linkIn(tx *gorm.DB, rec *models.SourceRecord, entityID uuid.UUID, terminalStatus string, correction bool) (*MaterializeResult, error) {
	data := fromJSONMap(rec.SourceData)
	fields, err := canonicalFields(rec.EntityType)
	if err != nil {
		return nil, err
	}

	ref, err := loadEntityRef(tx, rec.EntityType, entityID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	contributed := make(map[string]string)
	for _, field := range fields {
		incoming := strings.TrimSpace(data[field])
		if incoming == "" {
			continue
		}
		existing := strings.TrimSpace(ref.Snapshot[field])
		if existing == "" || (correction && existing != incoming) {
			updates[field] = incoming
			contributed[field] = incoming
		}
	}

	if len(updates) > 0 {
		model, err := entityModel(rec.EntityType)
		if err != nil {
			return nil, err
		}
		if err := tx.Model(model).Where("id = ?", entityID).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to merge fields into canonical %s %s: %w", rec.EntityType, entityID, err)
		}
		contributedFields := make([]string, 0, len(contributed))
		for _, field := range fields {
			if _, ok := contributed[field]; ok {
				contributedFields = append(contributedFields, field)
			}
		}
		if err := m.provenance.RecordFields(tx, rec.TenantID, rec.EntityType, entityID, contributedFields, contributed, rec.ID, 100); err != nil {
			return nil, err
		}
	}

	if err := m.closeRecord(tx, rec, terminalStatus, entityID); err != nil {
		return nil, err
	}
	return &MaterializeResult{Action: ActionLinked, EntityID: entityID}, nil
}

// closeRecord commits the terminal status together with the canonical link
// inside the caller's transaction.
func (m *Materializer) closeRecord(tx *gorm.DB, rec *models.SourceRecord, status string, entityID uuid.UUID) error {
	updates := map[string]interface{}{
		"status":              status,
		"canonical_entity_id": entityID,
		"error_message":       "",
	}
	if err := tx.Model(&models.SourceRecord{}).Where("id = ?", rec.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to close source record %s: %w", rec.ID, err)
	}
	rec.Status = status
	rec.CanonicalEntityID = &entityID
	return nil
}

// failRecord moves the record to the error status so it is never left at
// processing; the failure stays retryable via processSourceRecord.
func (m *Materializer) failRecord(rec *models.SourceRecord, cause error) error {
	updates := map[string]interface{}{
		"status":        models.RecordStatusError,
		"error_message": cause.Error(),
	}
	if err := m.db.Model(&models.SourceRecord{}).Where("id = ?", rec.ID).Updates(updates).Error; err != nil {
		log.Printf("Failed to mark source record %s as errored after %v: %v", rec.ID, cause, err)
	}
	rec.Status = models.RecordStatusError
	rec.ErrorMessage = cause.Error()
	return fmt.Errorf("materialization failed for source record %s: %w", rec.ID, cause)
}

// buildEntity constructs a typed canonical entity from normalized source
// data. The switch is exhaustive over the closed EntityType set.
func buildEntity(entityType models.EntityType, tenantID uuid.UUID, data map[string]string) (interface{}, uuid.UUID, error) {
	id := uuid.New()
	switch entityType {
	case models.EntityTypeSupplier:
		return &models.Supplier{
			ID:            id,
			TenantID:      tenantID,
			VATNumber:     data["vat_number"],
			EORINumber:    data["eori_number"],
			DUNSNumber:    data["duns_number"],
			LegalName:     data["legal_name"],
			ContactPerson: data["contact_person"],
			Email:         data["email"],
			Phone:         data["phone"],
			Address:       data["address"],
			City:          data["city"],
			Country:       data["country"],
			Status:        "active",
			Source:        "import",
		}, id, nil
	case models.EntityTypeMaterial:
		return &models.Material{
			ID:             id,
			TenantID:       tenantID,
			MaterialNumber: data["material_number"],
			CASNumber:      data["cas_number"],
			Name:           data["name"],
			Category:       data["category"],
			Unit:           data["unit"],
			SupplierName:   data["supplier_name"],
			Status:         "active",
			Source:         "import",
		}, id, nil
	case models.EntityTypeProduct:
		return &models.Product{
			ID:       id,
			TenantID: tenantID,
			SKU:      data["sku"],
			GTIN:     data["gtin"],
			Name:     data["name"],
			Category: data["category"],
			Status:   "active",
			Source:   "import",
		}, id, nil
	case models.EntityTypeBOM:
		return &models.BillOfMaterial{
			ID:         id,
			TenantID:   tenantID,
			BOMNumber:  data["bom_number"],
			Name:       data["name"],
			Version:    data["version"],
			ProductSKU: data["product_sku"],
			Status:     "active",
			Source:     "import",
		}, id, nil
	default:
		return nil, uuid.Nil, fmt.Errorf("%w: %s", ErrInvalidEntityType, entityType)
	}
}
