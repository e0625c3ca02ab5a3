package pipeline

import (
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"compliance-ingestion-service/internal/models"
)

// mappingRule describes one typed, directional relationship the engine may
// propose after an entity is materialized. TriggerField is the source-data key
// on the freshly materialized entity that references the counterpart.
type mappingRule struct {
	MappingType  models.MappingType
	TriggerType  models.EntityType
	TriggerField string
	OtherType    models.EntityType
	OtherField   IdentityField
	Confidence   int
	// Reversed means the freshly materialized entity is the TARGET of the
	// edge rather than the source.
	Reversed bool
}

// mappingRules is the closed directional relationship table. Edges always
// point downstream in the supply chain: supplier -> material -> product -> bom.
var mappingRules = []mappingRule{
	{
		MappingType:  models.MappingSupplierPart,
		TriggerType:  models.EntityTypeMaterial,
		TriggerField: "supplier_name",
		OtherType:    models.EntityTypeSupplier,
		OtherField:   IdentityField{Name: "legal_name", Weight: 70, Strong: false},
		Confidence:   70,
		Reversed:     true,
	},
	{
		MappingType:  models.MappingPartSKU,
		TriggerType:  models.EntityTypeProduct,
		TriggerField: "material_number",
		OtherType:    models.EntityTypeMaterial,
		OtherField:   IdentityField{Name: "material_number", Weight: 90, Strong: true},
		Confidence:   90,
		Reversed:     true,
	},
	{
		MappingType:  models.MappingSKUBOM,
		TriggerType:  models.EntityTypeBOM,
		TriggerField: "product_sku",
		OtherType:    models.EntityTypeProduct,
		OtherField:   IdentityField{Name: "sku", Weight: 90, Strong: true},
		Confidence:   90,
		Reversed:     true,
	},
}

// MappingEngine opportunistically proposes relationship edges between
// canonical entities when a payload references a counterpart it can resolve.
// Proposals never commit links; that requires an approval through the review
// workflow.
type MappingEngine struct {
	db *gorm.DB
}

func NewMappingEngine(db *gorm.DB) *MappingEngine {
	return &MappingEngine{db: db}
}

// ProposeMappings inspects the source data of a just-materialized entity and
// writes pending DataMappingSuggestions for every rule whose trigger field
// resolves to existing canonical counterparts. Failures here must never fail
// the pipeline, so the engine returns the suggestions it managed to write
// along with the first error.
func (e *MappingEngine) ProposeMappings(tenantID uuid.UUID, entityType models.EntityType, entityID uuid.UUID, sourceData map[string]string) ([]models.DataMappingSuggestion, error) {
	var created []models.DataMappingSuggestion
	for _, rule := range mappingRules {
		if rule.TriggerType != entityType {
			continue
		}
		value := strings.TrimSpace(sourceData[rule.TriggerField])
		if value == "" {
			continue
		}

		refs, err := findEntitiesByField(e.db, tenantID, rule.OtherType, rule.OtherField, value)
		if err != nil {
			return created, err
		}
		if len(refs) == 0 {
			continue
		}
		if len(refs) > 1 {
			log.Printf("Mapping engine: %s=%q resolves to %d %s entities in tenant %s; skipping ambiguous proposal",
				rule.TriggerField, value, len(refs), rule.OtherType, tenantID)
			continue
		}

		sourceType, sourceID := rule.OtherType, refs[0].ID
		targetType, targetID := entityType, entityID
		if !rule.Reversed {
			sourceType, sourceID = entityType, entityID
			targetType, targetID = rule.OtherType, refs[0].ID
		}

		exists, err := e.edgeExists(tenantID, rule.MappingType, sourceID, targetID)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		suggestion := models.DataMappingSuggestion{
			ID:               uuid.New(),
			TenantID:         tenantID,
			MappingType:      rule.MappingType,
			SourceEntityType: sourceType,
			SourceEntityID:   sourceID,
			TargetEntityType: targetType,
			TargetEntityID:   targetID,
			Confidence:       rule.Confidence,
			Rationale:        fmt.Sprintf("%s %q on the ingested %s resolved to an existing %s", rule.TriggerField, value, entityType, rule.OtherType),
			Status:           models.SuggestionStatusPending,
		}
		if err := e.db.Create(&suggestion).Error; err != nil {
			return created, fmt.Errorf("failed to write mapping suggestion %s: %w", rule.MappingType, err)
		}
		log.Printf("Proposed %s mapping %s -> %s in tenant %s", rule.MappingType, sourceID, targetID, tenantID)
		created = append(created, suggestion)
	}
	return created, nil
}

// edgeExists reports whether the edge is already committed or still awaiting
// a decision, so re-processing a record cannot pile up duplicate proposals.
func (e *MappingEngine) edgeExists(tenantID uuid.UUID, mappingType models.MappingType, sourceID, targetID uuid.UUID) (bool, error) {
	var count int64
	err := e.db.Model(&models.EntityLink{}).
		Where("tenant_id = ? AND mapping_type = ? AND source_entity_id = ? AND target_entity_id = ?", tenantID, mappingType, sourceID, targetID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check existing entity links: %w", err)
	}
	if count > 0 {
		return true, nil
	}

	err = e.db.Model(&models.DataMappingSuggestion{}).
		Where("tenant_id = ? AND mapping_type = ? AND source_entity_id = ? AND target_entity_id = ? AND status = ?",
			tenantID, mappingType, sourceID, targetID, models.SuggestionStatusPending).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check pending mapping suggestions: %w", err)
	}
	return count > 0, nil
}
