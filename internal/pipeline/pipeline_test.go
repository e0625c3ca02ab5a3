package pipeline

import (
	"encoding/json"
	"log"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"compliance-ingestion-service/internal/database"
	"compliance-ingestion-service/internal/models"
)

var (
	testDB           *gorm.DB
	testProvenance   *ProvenanceTracker
	testMaterializer *Materializer
	testGateway      *Gateway
	testReviews      *ReviewService
	testMapper       *MappingEngine
)

// TestMain sets up the shared in-memory test database and the pipeline
// services, runs all tests, then tears down.
func TestMain(m *testing.M) {
	var err error
	testDB, err = gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := database.Migrate(testDB); err != nil {
		log.Fatalf("Failed to migrate test database schema: %v", err)
	}

	testProvenance = NewProvenanceTracker(testDB)
	testMaterializer = NewMaterializer(testDB, testProvenance)
	testMapper = NewMappingEngine(testDB)
	testGateway = NewGateway(testDB, NewMatchEngine(testDB), testMaterializer, testMapper, DefaultAutoProcessPolicy{})
	testReviews = NewReviewService(testDB, testMaterializer)

	exitCode := m.Run()

	sqlDB, err := testDB.DB()
	if err == nil {
		sqlDB.Close()
	}
	os.Exit(exitCode)
}

func clearTables(t *testing.T) {
	t.Helper()
	tables := []string{
		"source_records", "suppliers", "materials", "products", "bill_of_materials",
		"field_provenances", "dedupe_suggestions", "data_mapping_suggestions",
		"entity_links", "review_events", "evidence_packs", "sync_runs", "erp_connections",
	}
	for _, table := range tables {
		require.NoError(t, testDB.Exec("DELETE FROM "+table).Error)
	}
}

func supplierPayload(vat, name string) map[string]interface{} {
	return map[string]interface{}{
		"vat_number": vat,
		"legal_name": name,
		"country":    "DE",
	}
}

func ingestSupplier(t *testing.T, tenantID uuid.UUID, vat, name, externalID string, autoProcess bool) *models.SourceRecord {
	t.Helper()
	rec, _, err := testGateway.Ingest(tenantID, models.IngestRequestBody{
		Source:  string(models.SourceManual),
		Payload: supplierPayload(vat, name),
		Metadata: models.IngestMetadata{
			EntityType:  string(models.EntityTypeSupplier),
			ExternalID:  externalID,
			AutoProcess: autoProcess,
			Actor:       "tester",
		},
	})
	require.NoError(t, err)
	return rec
}

func TestIngestPersistsRecordBeforeProcessing(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	rec, created, err := testGateway.Ingest(tenantID, models.IngestRequestBody{
		Source:  "manual",
		Payload: supplierPayload("DE123456789", "Acme GmbH"),
		Metadata: models.IngestMetadata{
			EntityType: "supplier",
			Actor:      "tester",
		},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.RecordStatusPendingReview, rec.Status)
	assert.Equal(t, models.SourceManual, rec.Source)
	assert.Equal(t, "tester", rec.IngestedBy)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(rec.RawPayload), &raw))
	assert.Equal(t, "DE123456789", raw["vat_number"])

	var stored models.SourceRecord
	require.NoError(t, testDB.First(&stored, "id = ?", rec.ID).Error)
	assert.Equal(t, models.RecordStatusPendingReview, stored.Status)
}

func TestIngestRejectsUnknownSourceAndEntityType(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	_, _, err := testGateway.Ingest(tenantID, models.IngestRequestBody{
		Source:   "CARRIER_PIGEON",
		Payload:  supplierPayload("DE1", "Acme"),
		Metadata: models.IngestMetadata{EntityType: "supplier"},
	})
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, _, err = testGateway.Ingest(tenantID, models.IngestRequestBody{
		Source:   "manual",
		Payload:  supplierPayload("DE1", "Acme"),
		Metadata: models.IngestMetadata{EntityType: "invoice"},
	})
	assert.ErrorIs(t, err, ErrInvalidEntityType)

	var count int64
	testDB.Model(&models.SourceRecord{}).Count(&count)
	assert.Zero(t, count, "rejected payloads must not be stored")
}

func TestIngestIdempotentReplay(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	first := ingestSupplier(t, tenantID, "DE123456789", "Acme GmbH", "SAP-0001", false)

	replay, created, err := testGateway.Ingest(tenantID, models.IngestRequestBody{
		Source:  string(models.SourceManual),
		Payload: supplierPayload("DE123456789", "Acme GmbH Updated"),
		Metadata: models.IngestMetadata{
			EntityType: string(models.EntityTypeSupplier),
			ExternalID: "SAP-0001",
		},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, replay.ID)

	var count int64
	testDB.Model(&models.SourceRecord{}).Where("tenant_id = ?", tenantID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestIngestAfterErrorCreatesReplacementRecord(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	stale := ingestSupplier(t, tenantID, "DE123456789", "Acme GmbH", "SAP-0001", false)
	require.NoError(t, testDB.Model(&models.SourceRecord{}).Where("id = ?", stale.ID).
		Updates(map[string]interface{}{
			"status":        models.RecordStatusError,
			"error_message": "upstream payload rejected",
		}).Error)

	replacement, created, err := testGateway.Ingest(tenantID, models.IngestRequestBody{
		Source:  string(models.SourceManual),
		Payload: supplierPayload("DE987654321", "Acme GmbH"),
		Metadata: models.IngestMetadata{
			EntityType: string(models.EntityTypeSupplier),
			ExternalID: "SAP-0001",
		},
	})
	require.NoError(t, err)
	assert.True(t, created, "an errored record does not satisfy the idempotence check")
	assert.NotEqual(t, stale.ID, replacement.ID)

	data := fromJSONMap(replacement.SourceData)
	assert.Equal(t, "DE987654321", data["vat_number"], "the corrected payload is the one captured")

	var staleStored models.SourceRecord
	require.NoError(t, testDB.First(&staleStored, "id = ?", stale.ID).Error)
	assert.Equal(t, models.RecordStatusError, staleStored.Status, "the errored record stays in the ledger")
}

func TestIngestSameExternalIDDifferentTenants(t *testing.T) {
	clearTables(t)

	recA := ingestSupplier(t, uuid.New(), "DE1", "Acme", "SAP-0001", false)
	recB := ingestSupplier(t, uuid.New(), "DE1", "Acme", "SAP-0001", false)
	assert.NotEqual(t, recA.ID, recB.ID, "idempotence is scoped per tenant")
}

func TestIngestMissingIdentityFieldsParksRecord(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	rec, created, err := testGateway.Ingest(tenantID, models.IngestRequestBody{
		Source:  "manual",
		Payload: map[string]interface{}{"legal_name": "Acme GmbH"},
		Metadata: models.IngestMetadata{
			EntityType:  "supplier",
			AutoProcess: true,
		},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.RecordStatusPendingReview, rec.Status, "incomplete payloads never auto-process")

	var missing []string
	require.NoError(t, json.Unmarshal([]byte(rec.ValidationErrors), &missing))
	assert.Contains(t, missing, "vat_number")

	_, err = testGateway.ProcessSourceRecord(tenantID, rec.ID)
	assert.ErrorIs(t, err, ErrRecordNotProcessable)

	var supplierCount int64
	testDB.Model(&models.Supplier{}).Count(&supplierCount)
	assert.Zero(t, supplierCount)
}

func TestProcessCreatesCanonicalWithProvenance(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()
	rec := ingestSupplier(t, tenantID, "DE123456789", "Acme GmbH", "", false)

	result, err := testGateway.ProcessSourceRecord(tenantID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, result.Outcome)
	require.NotNil(t, result.Materialized)
	assert.Equal(t, ActionCreated, result.Materialized.Action)

	var supplier models.Supplier
	require.NoError(t, testDB.First(&supplier, "id = ?", result.Materialized.EntityID).Error)
	assert.Equal(t, "DE123456789", supplier.VATNumber)
	assert.Equal(t, "Acme GmbH", supplier.LegalName)
	assert.Equal(t, tenantID, supplier.TenantID)
	assert.Equal(t, "active", supplier.Status)

	var stored models.SourceRecord
	require.NoError(t, testDB.First(&stored, "id = ?", rec.ID).Error)
	assert.Equal(t, models.RecordStatusCanonical, stored.Status)
	require.NotNil(t, stored.CanonicalEntityID)
	assert.Equal(t, supplier.ID, *stored.CanonicalEntityID)

	rows, err := testProvenance.Lookup(tenantID, models.EntityTypeSupplier, supplier.ID, "", true)
	require.NoError(t, err)
	assert.Len(t, rows, 3, "vat_number, legal_name and country were populated")
	for _, row := range rows {
		assert.Equal(t, rec.ID, row.SourceRecordID)
		assert.Equal(t, 100, row.Confidence)
		assert.False(t, row.Superseded)
	}
}

func TestProcessAutoLinksOnSingleStrongMatch(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	seed := ingestSupplier(t, tenantID, "DE123456789", "Acme GmbH", "", true)
	var existing models.SourceRecord
	require.NoError(t, testDB.First(&existing, "id = ?", seed.ID).Error)
	require.Equal(t, models.RecordStatusCanonical, existing.Status)

	rec, _, err := testGateway.Ingest(tenantID, models.IngestRequestBody{
		Source: "erp",
		Payload: map[string]interface{}{
			"vat_number": "DE123456789",
			"legal_name": "ACME GmbH",
			"email":      "info@acme.example",
		},
		Metadata: models.IngestMetadata{EntityType: "supplier"},
	})
	require.NoError(t, err)

	result, err := testGateway.ProcessSourceRecord(tenantID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAutoLinked, result.Outcome)
	assert.Equal(t, *existing.CanonicalEntityID, result.Materialized.EntityID)

	var supplierCount int64
	testDB.Model(&models.Supplier{}).Where("tenant_id = ?", tenantID).Count(&supplierCount)
	assert.EqualValues(t, 1, supplierCount, "strong exact match must not create a second canonical entity")

	var supplier models.Supplier
	require.NoError(t, testDB.First(&supplier, "id = ?", result.Materialized.EntityID).Error)
	assert.Equal(t, "info@acme.example", supplier.Email, "gap field from the merged record is filled in")
	assert.Equal(t, "Acme GmbH", supplier.LegalName, "existing value is not overwritten by a non-correction")

	rows, err := testProvenance.Lookup(tenantID, models.EntityTypeSupplier, supplier.ID, "email", true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, rec.ID, rows[0].SourceRecordID)

	var stored models.SourceRecord
	require.NoError(t, testDB.First(&stored, "id = ?", rec.ID).Error)
	assert.Equal(t, models.RecordStatusMerged, stored.Status)
}

func TestWeakMatchRaisesSuggestionInsteadOfAutoMerge(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	ingestSupplier(t, tenantID, "DE111111111", "Acme GmbH", "", true)

	rec := ingestSupplier(t, tenantID, "DE222222222", "acme gmbh", "", false)
	result, err := testGateway.ProcessSourceRecord(tenantID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNeedsReview, result.Outcome)
	require.Len(t, result.Suggestions, 1)

	suggestion := result.Suggestions[0]
	assert.Equal(t, models.SuggestionStatusPending, suggestion.Status)
	assert.Equal(t, 60, suggestion.Confidence)

	var attrs []string
	require.NoError(t, json.Unmarshal([]byte(suggestion.MatchingAttributes), &attrs))
	assert.Equal(t, []string{"legal_name"}, attrs)

	var stored models.SourceRecord
	require.NoError(t, testDB.First(&stored, "id = ?", rec.ID).Error)
	assert.Equal(t, models.RecordStatusPendingReview, stored.Status)
	assert.Nil(t, stored.CanonicalEntityID)

	var supplierCount int64
	testDB.Model(&models.Supplier{}).Where("tenant_id = ?", tenantID).Count(&supplierCount)
	assert.EqualValues(t, 1, supplierCount, "a name match alone never merges or creates")
}

func TestMultiCandidateTieRaisesOneSuggestionPerCandidate(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	supplierA := models.Supplier{ID: uuid.New(), TenantID: tenantID, VATNumber: "DE111", EORINumber: "EORI-1", LegalName: "Alpha Metals"}
	supplierB := models.Supplier{ID: uuid.New(), TenantID: tenantID, VATNumber: "DE222", DUNSNumber: "DUNS-2", LegalName: "Alpha Metalworks"}
	require.NoError(t, testDB.Create(&supplierA).Error)
	require.NoError(t, testDB.Create(&supplierB).Error)

	rec, _, err := testGateway.Ingest(tenantID, models.IngestRequestBody{
		Source: "file_upload",
		Payload: map[string]interface{}{
			"vat_number":  "DE333",
			"legal_name":  "Alpha",
			"eori_number": "EORI-1",
			"duns_number": "DUNS-2",
		},
		Metadata: models.IngestMetadata{EntityType: "supplier"},
	})
	require.NoError(t, err)

	result, err := testGateway.ProcessSourceRecord(tenantID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNeedsReview, result.Outcome)
	require.Len(t, result.Suggestions, 2, "each tied candidate surfaces as its own suggestion")

	candidates := map[uuid.UUID]bool{}
	for _, s := range result.Suggestions {
		candidates[s.CandidateEntityID] = true
		assert.True(t, s.Confidence >= 88, "strong-field ties keep their field weight")
	}
	assert.True(t, candidates[supplierA.ID])
	assert.True(t, candidates[supplierB.ID])

	var supplierCount int64
	testDB.Model(&models.Supplier{}).Where("tenant_id = ?", tenantID).Count(&supplierCount)
	assert.EqualValues(t, 2, supplierCount, "ambiguity is never resolved silently")
}

func TestProcessRejectsNonProcessableStatuses(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	rec := ingestSupplier(t, tenantID, "DE123456789", "Acme GmbH", "", true)
	_, err := testGateway.ProcessSourceRecord(tenantID, rec.ID)
	assert.ErrorIs(t, err, ErrRecordNotProcessable, "canonical records cannot be re-processed")

	_, err = testGateway.ProcessSourceRecord(tenantID, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = testGateway.ProcessSourceRecord(uuid.New(), rec.ID)
	assert.ErrorIs(t, err, ErrNotFound, "records are invisible outside their tenant")
}

func TestProcessWithPendingSuggestionsIsBlocked(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	ingestSupplier(t, tenantID, "DE111111111", "Acme GmbH", "", true)
	rec := ingestSupplier(t, tenantID, "DE222222222", "Acme GmbH", "", false)
	_, err := testGateway.ProcessSourceRecord(tenantID, rec.ID)
	require.NoError(t, err)

	_, err = testGateway.ProcessSourceRecord(tenantID, rec.ID)
	assert.ErrorIs(t, err, ErrRecordNotProcessable, "undecided suggestions block re-processing")
}

func TestCorrectionSupersedesProvenance(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	seed := ingestSupplier(t, tenantID, "DE123456789", "Acme GmbH", "", true)
	var original models.SourceRecord
	require.NoError(t, testDB.First(&original, "id = ?", seed.ID).Error)
	supplierID := *original.CanonicalEntityID

	correction, _, err := testGateway.Ingest(tenantID, models.IngestRequestBody{
		Source: "manual",
		Payload: map[string]interface{}{
			"vat_number": "DE123456789",
			"legal_name": "Acme Group GmbH",
		},
		Metadata: models.IngestMetadata{
			EntityType:  "supplier",
			AutoProcess: true,
			Supersedes:  original.ID.String(),
		},
	})
	require.NoError(t, err)

	var supplier models.Supplier
	require.NoError(t, testDB.First(&supplier, "id = ?", supplierID).Error)
	assert.Equal(t, "Acme Group GmbH", supplier.LegalName, "a correction overrides the existing value")

	history, err := testProvenance.Lookup(tenantID, models.EntityTypeSupplier, supplierID, "legal_name", false)
	require.NoError(t, err)
	require.Len(t, history, 2, "superseded provenance is kept, not deleted")

	live, err := testProvenance.Lookup(tenantID, models.EntityTypeSupplier, supplierID, "legal_name", true)
	require.NoError(t, err)
	require.Len(t, live, 1, "exactly one live provenance row per field")
	assert.Equal(t, correction.ID, live[0].SourceRecordID)
}

func TestTwoRecordsSameIdentityYieldOneCanonical(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	recA := ingestSupplier(t, tenantID, "DE999999999", "Gamma AG", "", false)
	recB := ingestSupplier(t, tenantID, "DE999999999", "Gamma AG", "", false)

	resultA, err := testGateway.ProcessSourceRecord(tenantID, recA.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, resultA.Outcome)

	resultB, err := testGateway.ProcessSourceRecord(tenantID, recB.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAutoLinked, resultB.Outcome, "the second record links instead of creating a twin")
	assert.Equal(t, resultA.Materialized.EntityID, resultB.Materialized.EntityID)

	var supplierCount int64
	testDB.Model(&models.Supplier{}).Where("tenant_id = ? AND vat_number = ?", tenantID, "DE999999999").Count(&supplierCount)
	assert.EqualValues(t, 1, supplierCount, "exactly one canonical entity per identity key")
}

func TestNormalizeSourceData(t *testing.T) {
	data := normalizeSourceData(map[string]interface{}{
		"VAT Number": " DE123 ",
		"Legal Name": "Acme",
		"employees":  float64(250),
		"active":     true,
		"empty":      "",
		"missing":    nil,
	})
	assert.Equal(t, "DE123", data["vat_number"])
	assert.Equal(t, "Acme", data["legal_name"])
	assert.Equal(t, "250", data["employees"])
	assert.Equal(t, "true", data["active"])
	_, hasEmpty := data["empty"]
	assert.False(t, hasEmpty)
	_, hasMissing := data["missing"]
	assert.False(t, hasMissing)
}

func TestKeyedLockerSerializesSameKeyOnly(t *testing.T) {
	locker := newKeyedLocker()
	key := identityLockKey(uuid.New(), models.EntityTypeSupplier, "DE1")

	release := locker.Lock(key)
	otherDone := make(chan struct{})
	go func() {
		otherRelease := locker.Lock(identityLockKey(uuid.New(), models.EntityTypeSupplier, "DE1"))
		otherRelease()
		close(otherDone)
	}()
	<-otherDone // different tenant, different key, no contention

	sameDone := make(chan struct{})
	go func() {
		sameRelease := locker.Lock(key)
		sameRelease()
		close(sameDone)
	}()
	select {
	case <-sameDone:
		t.Fatal("second holder acquired the key while it was still held")
	default:
	}

	release()
	<-sameDone
}
