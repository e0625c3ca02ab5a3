package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-ingestion-service/internal/models"
)

// fakeERPClient serves canned batches per entity type.
type fakeERPClient struct {
	batches map[models.EntityType][]ERPRecord
	errs    map[models.EntityType]error
}

func (f *fakeERPClient) FetchEntities(ctx context.Context, entityType models.EntityType, mode string) ([]ERPRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.errs[entityType]; err != nil {
		return nil, err
	}
	return f.batches[entityType], nil
}

func newSyncFixture(t *testing.T, tenantID uuid.UUID, client ERPClient, entityTypes []string) (*SyncService, *models.ERPConnection) {
	t.Helper()
	conn := models.ERPConnection{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        "test-erp",
		BaseURL:     "http://erp.local",
		EntityTypes: toJSON(entityTypes),
		Mode:        "full",
		IsEnabled:   true,
	}
	require.NoError(t, testDB.Create(&conn).Error)

	service := NewSyncService(testDB, testGateway, func(*models.ERPConnection) ERPClient { return client })
	return service, &conn
}

func TestSyncRunIngestsAndCountsOutcomes(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	client := &fakeERPClient{batches: map[models.EntityType][]ERPRecord{
		models.EntityTypeSupplier: {
			{ExternalID: "S-1", Payload: map[string]interface{}{"vat_number": "DE111", "legal_name": "Alpha GmbH"}},
			{ExternalID: "S-2", Payload: map[string]interface{}{"vat_number": "DE222", "legal_name": "Beta GmbH"}},
		},
	}}
	service, conn := newSyncFixture(t, tenantID, client, []string{"supplier"})

	run, err := service.TriggerSync(context.Background(), tenantID, conn.ID, models.TriggerSyncRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompleted, run.Status)
	assert.Equal(t, 2, run.RecordsCreated)
	assert.Equal(t, 0, run.RecordsExisting)
	assert.Equal(t, 0, run.ErrorsCount)
	require.NotNil(t, run.FinishedAt)

	var supplierCount int64
	testDB.Model(&models.Supplier{}).Where("tenant_id = ?", tenantID).Count(&supplierCount)
	assert.EqualValues(t, 2, supplierCount, "synced records auto-process through the pipeline")

	// Replaying the same batch is idempotent on (source, external_id).
	rerun, err := service.TriggerSync(context.Background(), tenantID, conn.ID, models.TriggerSyncRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, rerun.RecordsCreated)
	assert.Equal(t, 2, rerun.RecordsExisting)

	var recordCount int64
	testDB.Model(&models.SourceRecord{}).Where("tenant_id = ?", tenantID).Count(&recordCount)
	assert.EqualValues(t, 2, recordCount)
}

func TestSyncRunFlagsMalformedBatchItems(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	client := &fakeERPClient{batches: map[models.EntityType][]ERPRecord{
		models.EntityTypeSupplier: {
			{ExternalID: "S-1", Payload: map[string]interface{}{"vat_number": "DE111", "legal_name": "Alpha GmbH"}},
			{ExternalID: "S-2", Payload: map[string]interface{}{"legal_name": "No Identity Ltd"}},
			{ExternalID: "S-3", Payload: map[string]interface{}{"vat_number": "DE333", "legal_name": "Gamma GmbH"}},
		},
	}}
	service, conn := newSyncFixture(t, tenantID, client, []string{"supplier"})

	run, err := service.TriggerSync(context.Background(), tenantID, conn.ID, models.TriggerSyncRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompletedWithErrors, run.Status)
	assert.Equal(t, 2, run.RecordsCreated)
	assert.Equal(t, 1, run.ErrorsCount)
	assert.Contains(t, run.ErrorMessage, "missing identity fields")

	var malformed models.SourceRecord
	require.NoError(t, testDB.First(&malformed, "tenant_id = ? AND external_id = ?", tenantID, "S-2").Error)
	assert.Equal(t, models.RecordStatusError, malformed.Status)
	assert.Contains(t, malformed.ErrorMessage, "vat_number")

	var supplierCount int64
	testDB.Model(&models.Supplier{}).Where("tenant_id = ?", tenantID).Count(&supplierCount)
	assert.EqualValues(t, 2, supplierCount, "the well-formed items still materialize")
}

func TestSyncRunToleratesPartialFailure(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	client := &fakeERPClient{
		batches: map[models.EntityType][]ERPRecord{
			models.EntityTypeSupplier: {
				{ExternalID: "S-1", Payload: map[string]interface{}{"vat_number": "DE111", "legal_name": "Alpha GmbH"}},
			},
		},
		errs: map[models.EntityType]error{
			models.EntityTypeMaterial: errors.New("erp endpoint unavailable"),
		},
	}
	service, conn := newSyncFixture(t, tenantID, client, []string{"material", "supplier"})

	run, err := service.TriggerSync(context.Background(), tenantID, conn.ID, models.TriggerSyncRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompletedWithErrors, run.Status)
	assert.Equal(t, 1, run.RecordsCreated)
	assert.Equal(t, 1, run.ErrorsCount)
	assert.Contains(t, run.ErrorMessage, "unavailable")

	var supplierCount int64
	testDB.Model(&models.Supplier{}).Where("tenant_id = ?", tenantID).Count(&supplierCount)
	assert.EqualValues(t, 1, supplierCount, "one failing entity type does not lose the others")
}

func TestSyncRunAbortsOnCancelledContext(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	client := &fakeERPClient{batches: map[models.EntityType][]ERPRecord{
		models.EntityTypeSupplier: {
			{ExternalID: "S-1", Payload: map[string]interface{}{"vat_number": "DE111", "legal_name": "Alpha GmbH"}},
		},
	}}
	service, conn := newSyncFixture(t, tenantID, client, []string{"supplier"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := service.TriggerSync(ctx, tenantID, conn.ID, models.TriggerSyncRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusAborted, run.Status)
	require.NotNil(t, run.FinishedAt)

	var recordCount int64
	testDB.Model(&models.SourceRecord{}).Where("tenant_id = ?", tenantID).Count(&recordCount)
	assert.Zero(t, recordCount)
}

func TestSyncEntityTypeOverridesAreValidated(t *testing.T) {
	clearTables(t)
	tenantID := uuid.New()

	client := &fakeERPClient{}
	service, conn := newSyncFixture(t, tenantID, client, []string{"supplier", "material"})

	_, err := service.PrepareRun(tenantID, conn.ID, models.TriggerSyncRequest{EntityTypes: []string{"product"}})
	require.Error(t, err, "overrides outside the configured entity types select nothing")

	run, err := service.PrepareRun(tenantID, conn.ID, models.TriggerSyncRequest{EntityTypes: []string{"material"}, Mode: "incremental"})
	require.NoError(t, err)
	assert.Equal(t, "incremental", run.Mode)
	assert.Equal(t, `["material"]`, run.EntityTypes)

	_, err = service.PrepareRun(tenantID, uuid.New(), models.TriggerSyncRequest{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = service.GetSyncRun(uuid.New(), run.ID)
	assert.ErrorIs(t, err, ErrNotFound, "sync runs are tenant scoped")
}
