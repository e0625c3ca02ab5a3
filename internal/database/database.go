package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"compliance-ingestion-service/internal/models"
)

var DB *gorm.DB

func ConnectDatabase() {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)

	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})

	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Database connection established")

	if err := Migrate(DB); err != nil {
		log.Fatalf("Failed to auto-migrate database schema: %v", err)
	}
	log.Println("Database schema migration completed.")
}

// Migrate creates or updates the schema for every pipeline table. It will NOT
// delete unneeded columns, to protect data.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.SourceRecord{},
		&models.Supplier{},
		&models.Material{},
		&models.Product{},
		&models.BillOfMaterial{},
		&models.FieldProvenance{},
		&models.DedupeSuggestion{},
		&models.DataMappingSuggestion{},
		&models.EntityLink{},
		&models.ReviewEvent{},
		&models.EvidencePack{},
		&models.SyncRun{},
		&models.ERPConnection{},
	)
}

// GetDB returns the gorm database instance
func GetDB() *gorm.DB {
	return DB
}
