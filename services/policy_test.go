package services

import (
	"testing"
	"time"

	"github.com/gatewatch/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAuthorizedStanding(t *testing.T) {
	db := newTestDB(t)
	policy := NewPolicyStore(db)
	seedStanding(t, db, "KA01AB1234")

	auth, err := policy.IsAuthorized("ka 01 ab 1234", time.Now())
	require.NoError(t, err)
	assert.True(t, auth.Allowed)
	require.NotNil(t, auth.Source)
	assert.Equal(t, models.AuthSourceStanding, *auth.Source)
	assert.Nil(t, auth.EventID)
}

func TestIsAuthorizedUnknownPlate(t *testing.T) {
	db := newTestDB(t)
	policy := NewPolicyStore(db)

	auth, err := policy.IsAuthorized("KA99ZZ9999", time.Now())
	require.NoError(t, err)
	assert.False(t, auth.Allowed)
	assert.Nil(t, auth.Source)
}

func TestIsAuthorizedEmptyPlate(t *testing.T) {
	db := newTestDB(t)
	policy := NewPolicyStore(db)

	_, err := policy.IsAuthorized("   ", time.Now())
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIsAuthorizedActiveEvent(t *testing.T) {
	db := newTestDB(t)
	policy := NewPolicyStore(db)
	event := seedActiveEvent(t, db, "Wedding", "KA02XY1111")

	auth, err := policy.IsAuthorized("KA02XY1111", time.Now())
	require.NoError(t, err)
	assert.True(t, auth.Allowed)
	require.NotNil(t, auth.Source)
	assert.Equal(t, models.AuthSourceEvent, *auth.Source)
	require.NotNil(t, auth.EventID)
	assert.Equal(t, event.ID, *auth.EventID)
}

func TestIsAuthorizedEventOutsideWindow(t *testing.T) {
	db := newTestDB(t)
	policy := NewPolicyStore(db)

	// Stored status says active but the window ended hours ago. The
	// window is authoritative, not the stored field.
	yesterday := time.Now().AddDate(0, 0, -1)
	event := models.Event{
		Name:      "Stale",
		EventDate: time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.Local),
		StartTime: "09:00",
		EndTime:   "11:00",
		Status:    models.EventActive,
	}
	require.NoError(t, db.Create(&event).Error)
	require.NoError(t, db.Create(&models.EventVehicle{
		EventID: event.ID, Plate: "KA02XY1111", VisitorName: "V", AddedBy: "test",
	}).Error)

	auth, err := policy.IsAuthorized("KA02XY1111", time.Now())
	require.NoError(t, err)
	assert.False(t, auth.Allowed)
}

func TestIsAuthorizedScheduledEventNeverAuthorizes(t *testing.T) {
	db := newTestDB(t)
	policy := NewPolicyStore(db)

	// Window contains now but the event was never started.
	event := seedActiveEvent(t, db, "NotStarted", "KA02XY1111")
	require.NoError(t, db.Model(event).Update("status", models.EventScheduled).Error)

	auth, err := policy.IsAuthorized("KA02XY1111", time.Now())
	require.NoError(t, err)
	assert.False(t, auth.Allowed)
}

func TestIsAuthorizedStandingWinsOverEvent(t *testing.T) {
	db := newTestDB(t)
	policy := NewPolicyStore(db)
	seedStanding(t, db, "KA01AB1234")
	seedActiveEvent(t, db, "Overlap", "KA01AB1234")

	auth, err := policy.IsAuthorized("KA01AB1234", time.Now())
	require.NoError(t, err)
	assert.True(t, auth.Allowed)
	require.NotNil(t, auth.Source)
	assert.Equal(t, models.AuthSourceStanding, *auth.Source)
	assert.Nil(t, auth.EventID)
}

func TestEventWindowBoundsInclusive(t *testing.T) {
	now := time.Now()
	event := models.Event{
		EventDate: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local),
		StartTime: "10:00",
		EndTime:   "12:00",
	}
	start, end, err := event.Window()
	require.NoError(t, err)

	assert.True(t, event.Contains(start))
	assert.True(t, event.Contains(end))
	assert.False(t, event.Contains(start.Add(-time.Second)))
	assert.False(t, event.Contains(end.Add(time.Second)))
}
