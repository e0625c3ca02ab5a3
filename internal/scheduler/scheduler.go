package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"compliance-ingestion-service/internal/models"
	"compliance-ingestion-service/internal/pipeline"
)

// Scheduler drives recurring ERP synchronizations. Enabled connections with a
// cron expression get a job each; SkipIfStillRunning keeps a slow batch from
// piling up on itself.
type Scheduler struct {
	db         *gorm.DB
	syncer     *pipeline.SyncService
	cronRunner *cron.Cron
}

func New(db *gorm.DB, syncer *pipeline.SyncService) *Scheduler {
	log.Println("Initializing sync scheduler...")
	return &Scheduler{
		db:     db,
		syncer: syncer,
		cronRunner: cron.New(
			cron.WithSeconds(),
			cron.WithChain(
				cron.SkipIfStillRunning(cron.DefaultLogger),
				cron.Recover(cron.DefaultLogger),
			),
		),
	}
}

// Start loads scheduled connections and starts the cron runner. Non-blocking.
func (s *Scheduler) Start() error {
	var conns []models.ERPConnection
	err := s.db.Where("is_enabled = ? AND cron_expression <> ''", true).Find(&conns).Error
	if err != nil {
		return fmt.Errorf("failed to load scheduled erp connections: %w", err)
	}
	log.Printf("Found %d enabled ERP connections with a schedule.", len(conns))

	for _, conn := range conns {
		currentConn := conn
		entryID, err := s.cronRunner.AddFunc(currentConn.CronExpression, func() {
			s.runSync(currentConn)
		})
		if err != nil {
			log.Printf("Error adding sync job for connection %s (%s) with cron '%s': %v",
				currentConn.ID, currentConn.Name, currentConn.CronExpression, err)
			continue
		}
		log.Printf("Scheduled sync for connection %s (%s), EntryID: %d, Cron: '%s'",
			currentConn.ID, currentConn.Name, entryID, currentConn.CronExpression)
	}

	s.cronRunner.Start()
	log.Println("Sync scheduler started.")
	return nil
}

func (s *Scheduler) runSync(conn models.ERPConnection) {
	log.Printf("Executing scheduled sync for connection %s (%s)", conn.ID, conn.Name)
	run, err := s.syncer.TriggerSync(context.Background(), conn.TenantID, conn.ID, models.TriggerSyncRequest{})
	if err != nil {
		log.Printf("Scheduled sync for connection %s (%s) failed: %v", conn.ID, conn.Name, err)
		return
	}
	log.Printf("Scheduled sync for connection %s finished with status %s", conn.ID, run.Status)
}

// Stop gracefully shuts down the cron runner, waiting for running jobs.
func (s *Scheduler) Stop() {
	log.Println("Stopping sync scheduler... waiting for jobs to complete.")
	ctx := s.cronRunner.Stop()
	select {
	case <-ctx.Done():
		log.Println("Sync scheduler stopped gracefully.")
	case <-time.After(15 * time.Second):
		log.Println("Sync scheduler shutdown timed out.")
	}
}
