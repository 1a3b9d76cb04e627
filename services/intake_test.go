package services

import (
	"sync"
	"testing"
	"time"

	"github.com/gatewatch/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPublisher records published subjects for assertions.
type testPublisher struct {
	published []string
}

func (p *testPublisher) Publish(subject string, data []byte) error {
	p.published = append(p.published, subject)
	return nil
}

func TestIngestAuthorizedPlate(t *testing.T) {
	db := newTestDB(t)
	seedStanding(t, db, "KA01AB1234")
	pub := &testPublisher{}
	intake := NewIntake(db, NewAuthorizer(db, NewPolicyStore(db)), pub, DefaultDebounceWindow)

	result, err := intake.Ingest(plateDetection("KA01AB1234", "Main Gate", "SENSOR_1"))
	require.NoError(t, err)
	require.NotNil(t, result.Attempt)
	assert.Nil(t, result.Alert)
	assert.False(t, result.Debounced)

	assert.Equal(t, models.AttemptAuthorized, result.Attempt.Status)
	assert.True(t, result.Attempt.IsAuthorized)
	require.NotNil(t, result.Attempt.AuthSource)
	assert.Equal(t, models.AuthSourceStanding, *result.Attempt.AuthSource)
	require.NotNil(t, result.Attempt.DecidedAt)

	assert.Equal(t, []string{SubjectAttempts}, pub.published)
}

func TestIngestDeniedPlateCreatesCorrelatedPair(t *testing.T) {
	db := newTestDB(t)
	pub := &testPublisher{}
	intake := NewIntake(db, NewAuthorizer(db, NewPolicyStore(db)), pub, DefaultDebounceWindow)

	result, err := intake.Ingest(plateDetection("KA99ZZ9999", "Main Gate", "SENSOR_1"))
	require.NoError(t, err)
	require.NotNil(t, result.Attempt)
	require.NotNil(t, result.Alert)

	assert.Equal(t, models.AttemptPending, result.Attempt.Status)
	assert.False(t, result.Attempt.IsAuthorized)
	assert.Equal(t, models.AlertUnauthorizedVehicle, result.Alert.Type)
	assert.Equal(t, models.SeverityMedium, result.Alert.Severity)
	assert.Equal(t, models.AlertNew, result.Alert.Status)

	// Both projections share one correlation id and one plate
	require.NotNil(t, result.Attempt.CorrelationID)
	require.NotNil(t, result.Alert.CorrelationID)
	assert.Equal(t, *result.Attempt.CorrelationID, *result.Alert.CorrelationID)
	require.NotNil(t, result.Alert.Plate)
	assert.Equal(t, result.Attempt.Plate, *result.Alert.Plate)

	assert.ElementsMatch(t, []string{SubjectAttempts, SubjectAlerts}, pub.published)
}

func TestIngestDebouncesRepeatReads(t *testing.T) {
	db := newTestDB(t)
	seedStanding(t, db, "KA01AB1234")
	intake := NewIntake(db, NewAuthorizer(db, NewPolicyStore(db)), nil, DefaultDebounceWindow)

	first, err := intake.Ingest(plateDetection("KA01AB1234", "Main Gate", "SENSOR_1"))
	require.NoError(t, err)
	require.NotNil(t, first.Attempt)

	// Same plate, different formatting, within the window
	second, err := intake.Ingest(plateDetection("ka 01 ab 1234", "Main Gate", "SENSOR_1"))
	require.NoError(t, err)
	assert.True(t, second.Debounced)
	require.NotNil(t, second.Attempt)
	assert.Equal(t, first.Attempt.ID, second.Attempt.ID)

	var count int64
	db.Model(&models.VehicleAttempt{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestIngestRepeatDenialRefreshesPending(t *testing.T) {
	db := newTestDB(t)
	// Zero-ish window so the in-memory debounce does not absorb the repeat;
	// the pending row itself must hold the queue slot.
	intake := NewIntake(db, NewAuthorizer(db, NewPolicyStore(db)), nil, time.Nanosecond)

	first, err := intake.Ingest(plateDetection("KA99ZZ9999", "Main Gate", "SENSOR_1"))
	require.NoError(t, err)
	require.NotNil(t, first.Alert)

	second, err := intake.Ingest(plateDetection("KA99ZZ9999", "Main Gate", "SENSOR_1"))
	require.NoError(t, err)
	assert.Nil(t, second.Alert, "repeat denial must not raise a second alert")
	assert.True(t, second.Debounced)

	var alerts int64
	db.Model(&models.Alert{}).Count(&alerts)
	assert.Equal(t, int64(1), alerts)
	var attempts int64
	db.Model(&models.VehicleAttempt{}).Count(&attempts)
	assert.Equal(t, int64(1), attempts)
}

func TestConcurrentFirstDenialsCreateOnePair(t *testing.T) {
	db := newTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	// Tiny window so the in-memory debounce cannot absorb the burst;
	// the per-plate lock alone must prevent duplicate pairs.
	intake := NewIntake(db, NewAuthorizer(db, NewPolicyStore(db)), nil, time.Nanosecond)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := intake.Ingest(plateDetection("KA66PP6666", "Main Gate", "SENSOR_1"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var attempts, alerts int64
	db.Model(&models.VehicleAttempt{}).Where("plate = ?", "KA66PP6666").Count(&attempts)
	db.Model(&models.Alert{}).Count(&alerts)
	assert.Equal(t, int64(1), attempts)
	assert.Equal(t, int64(1), alerts)
}

func TestDebounceMapPrunesStaleEntries(t *testing.T) {
	db := newTestDB(t)
	intake := NewIntake(db, NewAuthorizer(db, NewPolicyStore(db)), nil, DefaultDebounceWindow)

	t0 := time.Now()
	first := plateDetection("KA01AB1234", "Main Gate", "SENSOR_1")
	first.Timestamp = &t0
	_, err := intake.Ingest(first)
	require.NoError(t, err)

	later := t0.Add(time.Minute)
	second := plateDetection("KA05CD5678", "Main Gate", "SENSOR_1")
	second.Timestamp = &later
	_, err = intake.Ingest(second)
	require.NoError(t, err)

	intake.mu.Lock()
	_, staleKept := intake.lastSeen["KA01AB1234"]
	_, freshKept := intake.lastSeen["KA05CD5678"]
	intake.mu.Unlock()
	assert.False(t, staleKept, "entries older than the window are dropped")
	assert.True(t, freshKept)
}

func TestIngestMotionDetection(t *testing.T) {
	db := newTestDB(t)
	pub := &testPublisher{}
	intake := NewIntake(db, NewAuthorizer(db, NewPolicyStore(db)), pub, DefaultDebounceWindow)

	result, err := intake.Ingest(Detection{
		Kind:     models.DetectionMotion,
		Location: "Perimeter North",
		SensorID: "SENSOR_2",
	})
	require.NoError(t, err)
	assert.Nil(t, result.Attempt)
	require.NotNil(t, result.Alert)
	assert.Equal(t, models.AlertMotion, result.Alert.Type)
	assert.Equal(t, models.SeverityHigh, result.Alert.Severity)
	assert.Equal(t, []string{SubjectAlerts}, pub.published)
}

func TestClassifyDetectionSeverity(t *testing.T) {
	cases := []struct {
		kind     models.DetectionKind
		alert    models.AlertType
		severity models.Severity
	}{
		{models.DetectionMotion, models.AlertMotion, models.SeverityHigh},
		{models.DetectionTailgating, models.AlertTailgating, models.SeverityMedium},
		{models.DetectionUnidentified, models.AlertUnidentifiedPerson, models.SeverityMedium},
		{models.DetectionFault, models.AlertCameraFault, models.SeverityLow},
	}
	for _, tc := range cases {
		alertType, severity := classifyDetection(tc.kind)
		assert.Equal(t, tc.alert, alertType)
		assert.Equal(t, tc.severity, severity)
	}
}

func TestIngestValidation(t *testing.T) {
	db := newTestDB(t)
	intake := NewIntake(db, NewAuthorizer(db, NewPolicyStore(db)), nil, DefaultDebounceWindow)

	cases := []Detection{
		{Kind: "", Location: "Gate", SensorID: "S1"},
		{Kind: "teleport", Location: "Gate", SensorID: "S1"},
		{Kind: models.DetectionPlate, Plate: "KA01AB1234", SensorID: "S1"},
		{Kind: models.DetectionPlate, Plate: "KA01AB1234", Location: "Gate"},
		{Kind: models.DetectionPlate, Plate: "---", Location: "Gate", SensorID: "S1"},
	}
	for _, det := range cases {
		_, err := intake.Ingest(det)
		assert.ErrorIs(t, err, ErrValidation, "detection %+v", det)
	}
}
