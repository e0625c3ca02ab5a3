package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"compliance-ingestion-service/internal/database"
	"compliance-ingestion-service/internal/handlers"
	"compliance-ingestion-service/internal/scheduler"
)

// @title Compliance Ingestion Service API
// @version 1.0
// @description Ingestion and identity-resolution pipeline for compliance master data. Every payload is durably captured as a source record before matching, materialization and review.
// @BasePath /api/v1
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	database.ConnectDatabase()
	handlers.InitServices(database.GetDB(), nil)

	router := gin.Default()
	registerRoutes(router)

	sched := scheduler.New(database.GetDB(), handlers.SyncService())
	if err := sched.Start(); err != nil {
		log.Printf("Sync scheduler did not start: %v", err)
	}
	defer sched.Stop()

	port := getEnv("PORT", "8080")
	log.Printf("Starting ingestion service on :%s...", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func registerRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/ingest", handlers.IngestRecord)

		v1.GET("/source-records", handlers.ListSourceRecords)
		v1.GET("/source-records/:id", handlers.GetSourceRecord)
		v1.POST("/source-records/:id/process", handlers.ProcessRecord)

		v1.GET("/dedupe-suggestions", handlers.ListDedupeSuggestions)
		v1.POST("/dedupe-suggestions/:id/decision", handlers.DecideDedupeSuggestion)
		v1.GET("/mapping-suggestions", handlers.ListMappingSuggestions)
		v1.POST("/mapping-suggestions/:id/decision", handlers.DecideMappingSuggestion)

		v1.GET("/provenance", handlers.GetProvenance)
		v1.GET("/review-events", handlers.ListReviewEvents)

		v1.POST("/erp-connections", handlers.CreateERPConnection)
		v1.GET("/erp-connections", handlers.ListERPConnections)
		v1.POST("/erp-connections/:id/sync", handlers.TriggerERPSync)
		v1.GET("/sync-runs/:id", handlers.GetSyncRun)
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
