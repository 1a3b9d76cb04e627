package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gatewatch/backend/database"
	"github.com/gatewatch/backend/models"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Connect to database
	if err := database.Connect(); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	retentionDays := 30
	if d := os.Getenv("RETENTION_DAYS"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil && parsed > 0 {
			retentionDays = parsed
		}
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	fmt.Printf("Start cleanup (records older than %s)...\n", cutoff.Format("2006-01-02"))

	// Delete resolved alerts past retention
	result := database.DB.Where("status = ? AND updated_at < ?", models.AlertResolved, cutoff).
		Delete(&models.Alert{})
	if result.Error != nil {
		log.Fatalf("Failed to delete resolved alerts: %v", result.Error)
	}
	fmt.Printf("✅ Deleted %d resolved alerts\n", result.RowsAffected)

	// Delete declined attempts past retention
	result = database.DB.Where("status = ? AND updated_at < ?", models.AttemptRemoved, cutoff).
		Delete(&models.VehicleAttempt{})
	if result.Error != nil {
		log.Fatalf("Failed to delete removed attempts: %v", result.Error)
	}
	fmt.Printf("✅ Deleted %d removed attempts\n", result.RowsAffected)

	// Delete expired events and their vehicle registrations
	var expired []models.Event
	if err := database.DB.Where("status = ? AND updated_at < ?", models.EventExpired, cutoff).
		Find(&expired).Error; err != nil {
		log.Fatalf("Failed to fetch expired events: %v", err)
	}
	for _, event := range expired {
		if err := database.DB.Where("event_id = ?", event.ID).Delete(&models.EventVehicle{}).Error; err != nil {
			log.Fatalf("Failed to delete vehicles for event %d: %v", event.ID, err)
		}
		if err := database.DB.Delete(&event).Error; err != nil {
			log.Fatalf("Failed to delete event %d: %v", event.ID, err)
		}
	}
	fmt.Printf("✅ Deleted %d expired events\n", len(expired))

	fmt.Println("Cleanup finished successfully")
}
