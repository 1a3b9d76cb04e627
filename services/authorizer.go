package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gatewatch/backend/models"
	"gorm.io/gorm"
)

// Authorizer turns intake detections into VehicleAttempt and Alert
// records by consulting the policy store. It only creates initial
// records; all later mutation goes through the Lifecycle manager.
type Authorizer struct {
	db     *gorm.DB
	policy *PolicyStore
	locks  *keyedLocks
}

func NewAuthorizer(db *gorm.DB, policy *PolicyStore) *Authorizer {
	return &Authorizer{db: db, policy: policy, locks: newKeyedLocks()}
}

// DecidePlate evaluates a plate read at event time. Allowed plates get an
// already-authorized attempt. Denied plates get a pending attempt plus an
// unauthorized-vehicle alert sharing one correlation id: a denial is both
// a pending-approval item and a security alert, surfaced from a single
// underlying record pair.
func (a *Authorizer) DecidePlate(det Detection, plate string, at time.Time) (*IntakeResult, error) {
	auth, err := a.policy.IsAuthorized(plate, at)
	if err != nil {
		return nil, err
	}

	if auth.Allowed {
		now := time.Now()
		attempt := models.VehicleAttempt{
			Plate:        plate,
			Status:       models.AttemptAuthorized,
			IsAuthorized: true,
			AuthSource:   auth.Source,
			EventID:      auth.EventID,
			Location:     det.Location,
			SensorID:     det.SensorID,
			Confidence:   det.Confidence,
			SnapshotRef:  det.SnapshotRef,
			Timestamp:    at,
			DecidedAt:    &now,
		}
		if err := a.db.Create(&attempt).Error; err != nil {
			return nil, transientf("failed to create attempt: %v", err)
		}
		return &IntakeResult{Attempt: &attempt}, nil
	}

	// Near-simultaneous first reads of the same plate from different
	// sensors can miss both the debounce map and the uncommitted row;
	// the plate lock serializes the lookup and create below so exactly
	// one pending/alert pair exists per plate.
	unlock := a.locks.Lock("plate:" + plate)
	defer unlock()

	// A pending attempt for this plate already holds the operator queue
	// slot; a repeat read refreshes it rather than raising a second alert.
	var existing models.VehicleAttempt
	err = a.db.Where("plate = ? AND status = ?", plate, models.AttemptPending).First(&existing).Error
	if err == nil {
		updates := map[string]interface{}{"timestamp": at}
		if det.SnapshotRef != nil {
			updates["snapshot_ref"] = *det.SnapshotRef
		}
		if uerr := a.db.Model(&existing).Updates(updates).Error; uerr != nil {
			return nil, transientf("failed to refresh pending attempt: %v", uerr)
		}
		return &IntakeResult{Attempt: &existing, Debounced: true}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, transientf("pending lookup failed: %v", err)
	}

	correlationID := newCorrelationID()
	attempt := models.VehicleAttempt{
		Plate:         plate,
		Status:        models.AttemptPending,
		IsAuthorized:  false,
		CorrelationID: &correlationID,
		Location:      det.Location,
		SensorID:      det.SensorID,
		Confidence:    det.Confidence,
		SnapshotRef:   det.SnapshotRef,
		Timestamp:     at,
	}
	description := fmt.Sprintf("Vehicle %s denied entry at %s", plate, det.Location)
	alert := models.Alert{
		Type:          models.AlertUnauthorizedVehicle,
		Severity:      models.SeverityMedium,
		Confidence:    det.Confidence,
		Location:      det.Location,
		SensorID:      det.SensorID,
		Description:   &description,
		SnapshotRef:   det.SnapshotRef,
		CorrelationID: &correlationID,
		Plate:         &plate,
		Timestamp:     at,
		Status:        models.AlertNew,
	}

	// Both records or neither; they must never diverge in plate/time/location.
	err = a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&attempt).Error; err != nil {
			return err
		}
		return tx.Create(&alert).Error
	})
	if err != nil {
		return nil, transientf("failed to create denial records: %v", err)
	}

	return &IntakeResult{Attempt: &attempt, Alert: &alert}, nil
}

// CreateDetectionAlert handles non-vehicle detections (motion, tailgating,
// unidentified person, camera fault). Severity is derived from the kind.
func (a *Authorizer) CreateDetectionAlert(det Detection, at time.Time) (*models.Alert, error) {
	alertType, severity := classifyDetection(det.Kind)
	alert := models.Alert{
		Type:        alertType,
		Severity:    severity,
		Confidence:  det.Confidence,
		Location:    det.Location,
		SensorID:    det.SensorID,
		SnapshotRef: det.SnapshotRef,
		Timestamp:   at,
		Status:      models.AlertNew,
	}
	if err := a.db.Create(&alert).Error; err != nil {
		return nil, transientf("failed to create alert: %v", err)
	}
	return &alert, nil
}

func classifyDetection(kind models.DetectionKind) (models.AlertType, models.Severity) {
	switch kind {
	case models.DetectionMotion:
		return models.AlertMotion, models.SeverityHigh
	case models.DetectionTailgating:
		return models.AlertTailgating, models.SeverityMedium
	case models.DetectionUnidentified:
		return models.AlertUnidentifiedPerson, models.SeverityMedium
	case models.DetectionFault:
		return models.AlertCameraFault, models.SeverityLow
	default:
		return models.AlertMotion, models.SeverityMedium
	}
}

func newCorrelationID() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
