package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityType is the closed set of canonical business entity kinds the
// pipeline materializes. Dispatch on it with an exhaustive switch so a new
// entity type is a compile-time-visible change.
type EntityType string

const (
	EntityTypeSupplier EntityType = "supplier"
	EntityTypeMaterial EntityType = "material"
	EntityTypeProduct  EntityType = "product"
	EntityTypeBOM      EntityType = "bom"
)

// ValidEntityTypes defines the allowed entity types for ingestion payloads.
var ValidEntityTypes = map[EntityType]bool{
	EntityTypeSupplier: true,
	EntityTypeMaterial: true,
	EntityTypeProduct:  true,
	EntityTypeBOM:      true,
}

// SourceSystem identifies the channel a SourceRecord arrived through.
type SourceSystem string

const (
	SourceERP        SourceSystem = "ERP"
	SourceFileUpload SourceSystem = "FILE_UPLOAD"
	SourceWebhook    SourceSystem = "WEBHOOK"
	SourceManual     SourceSystem = "MANUAL"
	SourceBulkImport SourceSystem = "BULK_IMPORT"
)

// ValidSourceSystems defines the allowed source channels.
var ValidSourceSystems = map[SourceSystem]bool{
	SourceERP:        true,
	SourceFileUpload: true,
	SourceWebhook:    true,
	SourceManual:     true,
	SourceBulkImport: true,
}

// SourceRecord lifecycle statuses. Terminal statuses are never reopened; a
// correction re-ingests as a new SourceRecord pointing back at the superseded
// one via metadata.
const (
	RecordStatusPendingReview = "pending_review"
	RecordStatusProcessing    = "processing"
	RecordStatusCanonical     = "canonical"
	RecordStatusMerged        = "merged"
	RecordStatusError         = "error"
)

// Suggestion statuses shared by dedupe and mapping suggestions.
const (
	SuggestionStatusPending        = "pending"
	SuggestionStatusApprovedMerge  = "approved_merge"
	SuggestionStatusApprovedCreate = "approved_create_new"
	SuggestionStatusApproved       = "approved"
	SuggestionStatusRejected       = "rejected"
)

// SyncRun statuses.
const (
	SyncStatusRunning             = "running"
	SyncStatusCompleted           = "completed"
	SyncStatusCompletedWithErrors = "completed_with_errors"
	SyncStatusAborted             = "aborted"
	SyncStatusFailed              = "failed"
)

// MappingType is the closed set of typed, directional relationship kinds the
// mapping engine may propose.
type MappingType string

const (
	MappingSupplierPart MappingType = "supplier_part" // supplier -> material
	MappingPartSKU      MappingType = "part_sku"      // material -> product
	MappingSKUBOM       MappingType = "sku_bom"       // product -> bom
)

// ValidMappingTypes defines the allowed relationship mapping types.
var ValidMappingTypes = map[MappingType]bool{
	MappingSupplierPart: true,
	MappingPartSKU:      true,
	MappingSKUBOM:       true,
}

// SourceRecord is the immutable capture of one externally supplied payload,
// created exactly once per ingestion before any downstream decision.
// Only Status, CanonicalEntityID and ErrorMessage may change afterwards.
// @Description SourceRecord is the append-only evidence ledger entry for one ingested payload.
type SourceRecord struct {
	ID                uuid.UUID    `json:"id" gorm:"type:uuid;primary_key"`
	TenantID          uuid.UUID    `json:"tenant_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_tenant_source_external"`
	Source            SourceSystem `json:"source" gorm:"type:varchar(50);not null;uniqueIndex:idx_tenant_source_external"`
	EntityType        EntityType   `json:"entity_type" gorm:"type:varchar(50);not null;index"`
	ExternalID        string       `json:"external_id,omitempty" gorm:"type:varchar(255);uniqueIndex:idx_tenant_source_external,where:external_id <> '' AND status <> 'error'"`
	RawPayload        string       `json:"raw_payload" gorm:"type:text"`            // original payload as JSON
	SourceData        string       `json:"source_data" gorm:"type:text"`            // denormalized key/value view as JSON
	DocumentIDs       string       `json:"document_ids,omitempty" gorm:"type:text"` // JSON array of document evidence references
	Status            string       `json:"status" gorm:"type:varchar(50);not null;index"`
	CanonicalEntityID *uuid.UUID   `json:"canonical_entity_id,omitempty" gorm:"type:uuid"`
	ErrorMessage      string       `json:"error_message,omitempty" gorm:"type:text"`
	ValidationErrors  string       `json:"validation_errors,omitempty" gorm:"type:text"` // JSON array of missing identity fields
	IngestedAt        time.Time    `json:"ingested_at" gorm:"autoCreateTime"`
	IngestedBy        string       `json:"ingested_by,omitempty" gorm:"type:varchar(255)"`
	Metadata          string       `json:"metadata,omitempty" gorm:"type:text"` // free-form JSON
	UpdatedAt         time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}

// Supplier is the canonical supplier record downstream compliance modules rely on.
// The per-tenant unique index on vat_number is the hard backstop for the
// exactly-one-canonical invariant.
type Supplier struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	TenantID      uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_supplier_tenant_vat"`
	VATNumber     string    `json:"vat_number,omitempty" gorm:"type:varchar(50);uniqueIndex:idx_supplier_tenant_vat,where:vat_number <> ''"`
	EORINumber    string    `json:"eori_number,omitempty" gorm:"type:varchar(50);index"`
	DUNSNumber    string    `json:"duns_number,omitempty" gorm:"type:varchar(50);index"`
	LegalName     string    `json:"legal_name" gorm:"type:varchar(255);index"`
	ContactPerson string    `json:"contact_person,omitempty" gorm:"type:varchar(255)"`
	Email         string    `json:"email,omitempty" gorm:"type:varchar(255)"`
	Phone         string    `json:"phone,omitempty" gorm:"type:varchar(50)"`
	Address       string    `json:"address,omitempty" gorm:"type:text"`
	City          string    `json:"city,omitempty" gorm:"type:varchar(100)"`
	Country       string    `json:"country,omitempty" gorm:"type:varchar(100)"`
	Status        string    `json:"status" gorm:"type:varchar(50);default:active"`
	Source        string    `json:"source" gorm:"type:varchar(50);default:import"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Material is a canonical raw material or part.
type Material struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	TenantID       uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_material_tenant_number"`
	MaterialNumber string    `json:"material_number,omitempty" gorm:"type:varchar(100);uniqueIndex:idx_material_tenant_number,where:material_number <> ''"`
	CASNumber      string    `json:"cas_number,omitempty" gorm:"type:varchar(50);index"`
	Name           string    `json:"name" gorm:"type:varchar(255);index"`
	Category       string    `json:"category,omitempty" gorm:"type:varchar(100)"`
	Unit           string    `json:"unit,omitempty" gorm:"type:varchar(20)"`
	SupplierName   string    `json:"supplier_name,omitempty" gorm:"type:varchar(255)"`
	Status         string    `json:"status" gorm:"type:varchar(50);default:active"`
	Source         string    `json:"source" gorm:"type:varchar(50);default:import"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Product is a canonical sellable product at SKU level.
type Product struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	TenantID  uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_product_tenant_sku"`
	SKU       string    `json:"sku,omitempty" gorm:"type:varchar(100);uniqueIndex:idx_product_tenant_sku,where:sku <> ''"`
	GTIN      string    `json:"gtin,omitempty" gorm:"type:varchar(50);index"`
	Name      string    `json:"name" gorm:"type:varchar(255);index"`
	Category  string    `json:"category,omitempty" gorm:"type:varchar(100)"`
	Status    string    `json:"status" gorm:"type:varchar(50);default:active"`
	Source    string    `json:"source" gorm:"type:varchar(50);default:import"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// BillOfMaterial is a canonical bill-of-material header.
type BillOfMaterial struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	TenantID   uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_bom_tenant_number"`
	BOMNumber  string    `json:"bom_number,omitempty" gorm:"type:varchar(100);uniqueIndex:idx_bom_tenant_number,where:bom_number <> ''"`
	Name       string    `json:"name" gorm:"type:varchar(255);index"`
	Version    string    `json:"version,omitempty" gorm:"type:varchar(50)"`
	ProductSKU string    `json:"product_sku,omitempty" gorm:"type:varchar(100);index"`
	Status     string    `json:"status" gorm:"type:varchar(50);default:active"`
	Source     string    `json:"source" gorm:"type:varchar(50);default:import"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// FieldProvenance points one canonical field value back to the SourceRecord
// that supplied it. Stale rows are superseded, never deleted.
// @Description FieldProvenance is the per-field audit pointer from a canonical value to its source record.
type FieldProvenance struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	TenantID       uuid.UUID  `json:"tenant_id" gorm:"type:uuid;not null;index"`
	EntityType     EntityType `json:"entity_type" gorm:"type:varchar(50);not null;index:idx_prov_entity"`
	EntityID       uuid.UUID  `json:"entity_id" gorm:"type:uuid;not null;index:idx_prov_entity"`
	FieldName      string     `json:"field_name" gorm:"type:varchar(255);not null;index:idx_prov_entity"`
	Value          string     `json:"value" gorm:"type:text"`
	SourceRecordID uuid.UUID  `json:"source_record_id" gorm:"type:uuid;not null;index"`
	Confidence     int        `json:"confidence" gorm:"not null"`
	Superseded     bool       `json:"superseded" gorm:"default:false;index"`
	CreatedAt      time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

// DedupeSuggestion is a proposed identity link between a new SourceRecord and
// an existing canonical entity, awaiting a human decision.
type DedupeSuggestion struct {
	ID                 uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	TenantID           uuid.UUID  `json:"tenant_id" gorm:"type:uuid;not null;index"`
	EntityType         EntityType `json:"entity_type" gorm:"type:varchar(50);not null"`
	SourceRecordID     uuid.UUID  `json:"source_record_id" gorm:"type:uuid;not null;index"`
	CandidateEntityID  uuid.UUID  `json:"candidate_entity_id" gorm:"type:uuid;not null;index"`
	SourceSnapshot     string     `json:"source_snapshot" gorm:"type:text"` // JSON
	TargetSnapshot     string     `json:"target_snapshot" gorm:"type:text"` // JSON
	Confidence         int        `json:"confidence" gorm:"not null;index"`
	MatchingAttributes string     `json:"matching_attributes" gorm:"type:text"` // JSON array of field names
	Rationale          string     `json:"rationale" gorm:"type:text"`
	Status             string     `json:"status" gorm:"type:varchar(50);not null;index;default:pending"`
	ReasonCode         string     `json:"reason_code,omitempty" gorm:"type:varchar(100)"`
	Comment            string     `json:"comment,omitempty" gorm:"type:text"`
	DecidedBy          string     `json:"decided_by,omitempty" gorm:"type:varchar(255)"`
	DecidedAt          *time.Time `json:"decided_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

// DataMappingSuggestion is a proposed typed relationship edge between two
// canonical entities.
type DataMappingSuggestion struct {
	ID               uuid.UUID   `json:"id" gorm:"type:uuid;primary_key"`
	TenantID         uuid.UUID   `json:"tenant_id" gorm:"type:uuid;not null;index"`
	MappingType      MappingType `json:"mapping_type" gorm:"type:varchar(50);not null"`
	SourceEntityType EntityType  `json:"source_entity_type" gorm:"type:varchar(50);not null"`
	SourceEntityID   uuid.UUID   `json:"source_entity_id" gorm:"type:uuid;not null;index"`
	TargetEntityType EntityType  `json:"target_entity_type" gorm:"type:varchar(50);not null"`
	TargetEntityID   uuid.UUID   `json:"target_entity_id" gorm:"type:uuid;not null;index"`
	Confidence       int         `json:"confidence" gorm:"not null;index"`
	Rationale        string      `json:"rationale" gorm:"type:text"`
	Status           string      `json:"status" gorm:"type:varchar(50);not null;index;default:pending"`
	ReasonCode       string      `json:"reason_code,omitempty" gorm:"type:varchar(100)"`
	Comment          string      `json:"comment,omitempty" gorm:"type:text"`
	DecidedBy        string      `json:"decided_by,omitempty" gorm:"type:varchar(255)"`
	DecidedAt        *time.Time  `json:"decided_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at" gorm:"autoCreateTime"`
}

// EntityLink is a committed relationship edge. Written only when a
// DataMappingSuggestion is approved through the review workflow.
type EntityLink struct {
	ID               uuid.UUID   `json:"id" gorm:"type:uuid;primary_key"`
	TenantID         uuid.UUID   `json:"tenant_id" gorm:"type:uuid;not null;index"`
	MappingType      MappingType `json:"mapping_type" gorm:"type:varchar(50);not null"`
	SourceEntityType EntityType  `json:"source_entity_type" gorm:"type:varchar(50);not null"`
	SourceEntityID   uuid.UUID   `json:"source_entity_id" gorm:"type:uuid;not null;index"`
	TargetEntityType EntityType  `json:"target_entity_type" gorm:"type:varchar(50);not null"`
	TargetEntityID   uuid.UUID   `json:"target_entity_id" gorm:"type:uuid;not null;index"`
	SuggestionID     uuid.UUID   `json:"suggestion_id" gorm:"type:uuid;not null"`
	CreatedAt        time.Time   `json:"created_at" gorm:"autoCreateTime"`
}

// ReviewEvent is the append-only audit record of every pipeline decision.
// It is the sole source of truth for who approved what and why.
type ReviewEvent struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	TenantID       uuid.UUID  `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Actor          string     `json:"actor" gorm:"type:varchar(255);not null"`
	Action         string     `json:"action" gorm:"type:varchar(50);not null"`
	ReasonCode     string     `json:"reason_code" gorm:"type:varchar(100);not null"`
	Comment        string     `json:"comment,omitempty" gorm:"type:text"`
	SuggestionID   uuid.UUID  `json:"suggestion_id" gorm:"type:uuid;index"`
	SourceRecordID *uuid.UUID `json:"source_record_id,omitempty" gorm:"type:uuid;index"`
	EntityType     EntityType `json:"entity_type,omitempty" gorm:"type:varchar(50);index:idx_review_entity"`
	EntityID       *uuid.UUID `json:"entity_id,omitempty" gorm:"type:uuid;index:idx_review_entity"`
	EvidencePackID *uuid.UUID `json:"evidence_pack_id,omitempty" gorm:"type:uuid"`
	CreatedAt      time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

// EvidencePack bundles the compared snapshots and rationale behind a merge
// decision so it stays explainable after the fact.
type EvidencePack struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	TenantID       uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`
	SuggestionID   uuid.UUID `json:"suggestion_id" gorm:"type:uuid;not null;index"`
	SourceSnapshot string    `json:"source_snapshot" gorm:"type:text"` // JSON
	TargetSnapshot string    `json:"target_snapshot" gorm:"type:text"` // JSON
	Rationale      string    `json:"rationale" gorm:"type:text"`
	ReasonCode     string    `json:"reason_code" gorm:"type:varchar(100)"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// SyncRun aggregates the outcome of one batch ERP synchronization.
type SyncRun struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	TenantID        uuid.UUID  `json:"tenant_id" gorm:"type:uuid;not null;index"`
	ConnectionID    uuid.UUID  `json:"connection_id" gorm:"type:uuid;not null;index"`
	Mode            string     `json:"mode" gorm:"type:varchar(20);not null"`
	EntityTypes     string     `json:"entity_types" gorm:"type:text"` // JSON array
	Status          string     `json:"status" gorm:"type:varchar(50);not null;index"`
	RecordsCreated  int        `json:"records_created"`
	RecordsExisting int        `json:"records_existing"`
	ErrorsCount     int        `json:"errors_count"`
	ErrorMessage    string     `json:"error_message,omitempty" gorm:"type:text"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// ERPConnection configures one external ERP endpoint for batch synchronization.
type ERPConnection struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	TenantID       uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Name           string    `json:"name" gorm:"type:varchar(255);not null"`
	BaseURL        string    `json:"base_url" gorm:"type:varchar(1024);not null"`
	APIKey         string    `json:"api_key,omitempty" gorm:"type:varchar(512)"`
	EntityTypes    string    `json:"entity_types" gorm:"type:text"` // JSON array of entity types to sync
	Mode           string    `json:"mode" gorm:"type:varchar(20);default:incremental"`
	CronExpression string    `json:"cron_expression,omitempty" gorm:"type:varchar(100)"`
	IsEnabled      bool      `json:"is_enabled" gorm:"default:false"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName keeps gorm from splitting the ERP initialism when deriving the
// table name.
func (ERPConnection) TableName() string {
	return "erp_connections"
}
