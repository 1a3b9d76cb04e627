package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gatewatch/backend/database"
	"github.com/gatewatch/backend/models"
	"github.com/joho/godotenv"
)

var residentPlates = []struct {
	plate string
	owner string
}{
	{"KA01AB1234", "R. Sharma"},
	{"KA05CD5678", "A. Nair"},
	{"KA51EF9012", "S. Iyer"},
	{"KA03GH3456", "M. Reddy"},
	{"KA09JK7890", "P. Desai"},
}

var visitorPlates = []struct {
	plate   string
	visitor string
}{
	{"KA02XY1111", "Caterer"},
	{"KA04ZW2222", "DJ Crew"},
	{"KA06UV3333", "Decorator"},
}

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

	fmt.Println("🌱 Starting seed...")

	// Standing allow-list
	addedBy := "seed"
	created := 0
	for _, r := range residentPlates {
		vehicle := models.AuthorizedVehicle{
			Plate:     r.plate,
			OwnerName: r.owner,
			AddedBy:   &addedBy,
		}
		if err := database.DB.Where("plate = ?", r.plate).FirstOrCreate(&vehicle).Error; err != nil {
			log.Fatalf("Failed to seed authorized vehicle %s: %v", r.plate, err)
		}
		created++
	}
	fmt.Printf("✅ Seeded %d authorized vehicles\n", created)

	// A visitor event later today
	now := time.Now()
	event := models.Event{
		Name:      "Community Hall Booking",
		EventDate: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local),
		StartTime: "18:00",
		EndTime:   "23:00",
		Status:    models.EventScheduled,
	}
	if err := database.DB.Where("name = ?", event.Name).FirstOrCreate(&event).Error; err != nil {
		log.Fatalf("Failed to seed event: %v", err)
	}
	fmt.Printf("✅ Seeded event %d (%s)\n", event.ID, event.Name)

	for _, v := range visitorPlates {
		ev := models.EventVehicle{
			EventID:     event.ID,
			Plate:       v.plate,
			VisitorName: v.visitor,
			AddedBy:     addedBy,
		}
		if err := database.DB.Where("event_id = ? AND plate = ?", event.ID, v.plate).
			FirstOrCreate(&ev).Error; err != nil {
			log.Fatalf("Failed to seed event vehicle %s: %v", v.plate, err)
		}
	}
	fmt.Printf("✅ Seeded %d event vehicles\n", len(visitorPlates))

	fmt.Println("Seed finished successfully")
}
