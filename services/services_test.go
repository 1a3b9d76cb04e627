package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/gatewatch/backend/database"
	"github.com/gatewatch/backend/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a per-test in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func plateDetection(plate, location, sensorID string) Detection {
	return Detection{
		Kind:     models.DetectionPlate,
		Plate:    plate,
		Location: location,
		SensorID: sensorID,
	}
}

func seedStanding(t *testing.T, db *gorm.DB, plate string) {
	t.Helper()
	require.NoError(t, db.Create(&models.AuthorizedVehicle{
		Plate:     CanonicalPlate(plate),
		OwnerName: "Owner",
	}).Error)
}

// seedActiveEvent creates an active event whose window contains now.
func seedActiveEvent(t *testing.T, db *gorm.DB, name string, plates ...string) *models.Event {
	t.Helper()
	now := time.Now()
	event := models.Event{
		Name:      name,
		EventDate: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local),
		StartTime: "00:00",
		EndTime:   "23:59",
		Status:    models.EventActive,
	}
	require.NoError(t, db.Create(&event).Error)
	for _, p := range plates {
		require.NoError(t, db.Create(&models.EventVehicle{
			EventID:     event.ID,
			Plate:       CanonicalPlate(p),
			VisitorName: "Visitor",
			AddedBy:     "test",
		}).Error)
	}
	return &event
}
