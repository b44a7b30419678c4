package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/WailSalutem-Health-Care/prescription-service/internal/db"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/prescription"
)

func main() {
	log.Println("Prescription Cleanup Job - Starting")
	log.Println("Retention Policy: 10 years")

	// Connect to database
	database, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Create cleanup service
	cleanupService := prescription.NewCleanupService(database)

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Check how many records are eligible for cleanup
	count, err := cleanupService.GetExpiredRecordsCount(ctx)
	if err != nil {
		log.Fatalf("Failed to get expired records count: %v", err)
	}

	log.Printf("Found %d prescription records eligible for permanent deletion", count)

	if count == 0 {
		log.Println("No cleanup needed. Exiting.")
		os.Exit(0)
	}

	// Perform cleanup
	deletedCount, err := cleanupService.CleanupExpiredRecords(ctx)
	if err != nil {
		log.Fatalf("Cleanup failed: %v", err)
	}

	log.Printf("✓ Cleanup completed successfully: %d prescription records permanently deleted", deletedCount)
	log.Println("Cleanup Job - Finished")
}
