package services

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gatewatch/backend/models"
	"gorm.io/gorm"
)

// Detection is a raw sensor event submitted over HTTP or NATS.
type Detection struct {
	Kind        models.DetectionKind `json:"kind"`
	Plate       string               `json:"plate,omitempty"`
	Location    string               `json:"location"`
	SensorID    string               `json:"sensorId"`
	Timestamp   *time.Time           `json:"timestamp,omitempty"`
	Confidence  *float64             `json:"confidence,omitempty"`
	SnapshotRef *string              `json:"snapshotRef,omitempty"`
}

// IntakeResult reports what a detection produced.
type IntakeResult struct {
	Attempt   *models.VehicleAttempt `json:"attempt,omitempty"`
	Alert     *models.Alert          `json:"alert,omitempty"`
	Debounced bool                   `json:"debounced"`
}

// Publisher pushes engine output onto the message bus. *nats.Conn
// satisfies this; tests pass nil and publishing is skipped.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS subjects for dashboard push
const (
	SubjectAlerts   = "dashboard.alerts"
	SubjectAttempts = "dashboard.attempts"
)

const DefaultDebounceWindow = 5 * time.Second

// Intake accepts detections from sensors: it normalizes plate text,
// de-bounces repeated reads of the same plate, and hands the event to
// the authorizer. Safe for concurrent use.
type Intake struct {
	db         *gorm.DB
	authorizer *Authorizer
	pub        Publisher
	window     time.Duration

	mu        sync.Mutex
	lastSeen  map[string]time.Time // canonical plate -> last read time
	lastPrune time.Time
}

func NewIntake(db *gorm.DB, authorizer *Authorizer, pub Publisher, window time.Duration) *Intake {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Intake{
		db:         db,
		authorizer: authorizer,
		pub:        pub,
		window:     window,
		lastSeen:   make(map[string]time.Time),
	}
}

// Ingest processes one sensor detection. Validation failures reject the
// event before any state is written.
func (in *Intake) Ingest(det Detection) (*IntakeResult, error) {
	if err := validateDetection(&det); err != nil {
		return nil, err
	}

	at := time.Now()
	if det.Timestamp != nil {
		at = *det.Timestamp
	}

	if det.Kind != models.DetectionPlate {
		alert, err := in.authorizer.CreateDetectionAlert(det, at)
		if err != nil {
			return nil, err
		}
		in.publish(SubjectAlerts, alert)
		log.Printf("🚨 [INTAKE] Alert created - Type: %s, Severity: %s, Sensor: %s",
			alert.Type, alert.Severity, det.SensorID)
		return &IntakeResult{Alert: alert}, nil
	}

	plate := CanonicalPlate(det.Plate)

	// Consecutive video frames produce bursts of identical reads. Within
	// the window only the first read creates a record; the rest refresh
	// the latest record for that plate.
	if in.debounced(plate, at) {
		attempt, err := in.refreshLatestAttempt(plate, det, at)
		if err != nil {
			return nil, err
		}
		return &IntakeResult{Attempt: attempt, Debounced: true}, nil
	}

	result, err := in.authorizer.DecidePlate(det, plate, at)
	if err != nil {
		return nil, err
	}

	if result.Attempt != nil {
		in.publish(SubjectAttempts, result.Attempt)
	}
	if result.Alert != nil {
		in.publish(SubjectAlerts, result.Alert)
		log.Printf("🚨 [INTAKE] Unauthorized vehicle - Plate: %s, Sensor: %s", plate, det.SensorID)
	}
	return result, nil
}

func validateDetection(det *Detection) error {
	switch det.Kind {
	case models.DetectionPlate, models.DetectionMotion, models.DetectionTailgating,
		models.DetectionUnidentified, models.DetectionFault:
	case "":
		return validationf("missing detection kind")
	default:
		return validationf("unknown detection kind %q", det.Kind)
	}
	if det.SensorID == "" {
		return validationf("missing sensorId")
	}
	if det.Location == "" {
		return validationf("missing location")
	}
	if det.Kind == models.DetectionPlate && CanonicalPlate(det.Plate) == "" {
		return validationf("plate detection without a readable plate")
	}
	return nil
}

// debounced records the read time for plate and reports whether a prior
// read fell within the window.
func (in *Intake) debounced(plate string, at time.Time) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	// Entries older than the window can never debounce again; dropping
	// them at most once per window keeps the map bounded to plates read
	// recently instead of every plate ever seen.
	if at.Sub(in.lastPrune) >= in.window {
		for p, seen := range in.lastSeen {
			if at.Sub(seen) >= in.window {
				delete(in.lastSeen, p)
			}
		}
		in.lastPrune = at
	}

	last, ok := in.lastSeen[plate]
	in.lastSeen[plate] = at
	return ok && at.Sub(last) < in.window && at.Sub(last) >= 0
}

// refreshLatestAttempt updates snapshot/timestamp on the newest attempt
// for the plate instead of creating a duplicate row.
func (in *Intake) refreshLatestAttempt(plate string, det Detection, at time.Time) (*models.VehicleAttempt, error) {
	var attempt models.VehicleAttempt
	err := in.db.Where("plate = ?", plate).Order("created_at DESC").First(&attempt).Error
	if err != nil {
		// Debounce map says recent but no row exists (e.g. declined and
		// purged); fall through to a fresh decision.
		result, derr := in.authorizer.DecidePlate(det, plate, at)
		if derr != nil {
			return nil, derr
		}
		return result.Attempt, nil
	}

	updates := map[string]interface{}{"timestamp": at}
	if det.SnapshotRef != nil {
		updates["snapshot_ref"] = *det.SnapshotRef
	}
	if det.Confidence != nil {
		updates["confidence"] = *det.Confidence
	}
	if err := in.db.Model(&attempt).Updates(updates).Error; err != nil {
		return nil, transientf("failed to refresh attempt: %v", err)
	}
	return &attempt, nil
}

func (in *Intake) publish(subject string, v interface{}) {
	if in.pub == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := in.pub.Publish(subject, data); err != nil {
		log.Printf("⚠️ [INTAKE] Publish failed - Subject: %s, Error: %v", subject, err)
	}
}
