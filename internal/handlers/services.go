package handlers

import (
	"gorm.io/gorm"

	"compliance-ingestion-service/internal/pipeline"
)

// Package-level services, wired once at startup. Handlers stay plain gin
// funcs the way the router expects them.
var (
	gateway     *pipeline.Gateway
	reviews     *pipeline.ReviewService
	provenance  *pipeline.ProvenanceTracker
	syncService *pipeline.SyncService
)

// InitServices wires the pipeline services the handlers dispatch to. Tests
// pass a fake ERP client factory; production passes nil to use the HTTP one.
func InitServices(db *gorm.DB, clientFactory pipeline.ERPClientFactory) {
	provenance = pipeline.NewProvenanceTracker(db)
	matcher := pipeline.NewMatchEngine(db)
	materializer := pipeline.NewMaterializer(db, provenance)
	mapper := pipeline.NewMappingEngine(db)
	gateway = pipeline.NewGateway(db, matcher, materializer, mapper, pipeline.DefaultAutoProcessPolicy{})
	reviews = pipeline.NewReviewService(db, materializer)
	syncService = pipeline.NewSyncService(db, gateway, clientFactory)
}

// SyncService exposes the wired sync service for the scheduler.
func SyncService() *pipeline.SyncService {
	return syncService
}
