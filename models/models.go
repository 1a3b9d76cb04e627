package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DetectionKind enum - wire values used by sensors
type DetectionKind string

const (
	DetectionPlate        DetectionKind = "plate"
	DetectionMotion       DetectionKind = "motion"
	DetectionTailgating   DetectionKind = "tailgating"
	DetectionUnidentified DetectionKind = "unidentified"
	DetectionFault        DetectionKind = "fault"
)

// AlertType enum
type AlertType string

const (
	AlertUnauthorizedVehicle AlertType = "UNAUTHORIZED_VEHICLE"
	AlertMotion              AlertType = "MOTION"
	AlertTailgating          AlertType = "TAILGATING"
	AlertUnidentifiedPerson  AlertType = "UNIDENTIFIED_PERSON"
	AlertCameraFault         AlertType = "CAMERA_FAULT"
)

// Severity enum
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// AlertStatus enum
type AlertStatus string

const (
	AlertNew           AlertStatus = "new"
	AlertInvestigating AlertStatus = "investigating"
	AlertAcknowledged  AlertStatus = "acknowledged"
	AlertResolved      AlertStatus = "resolved"
)

// AttemptStatus enum
type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "pending"
	AttemptAuthorized AttemptStatus = "authorized"
	AttemptRemoved    AttemptStatus = "removed"
)

// AuthSource enum - where an authorization decision came from
type AuthSource string

const (
	AuthSourceStanding AuthSource = "standing"
	AuthSourceEvent    AuthSource = "event"
	AuthSourceManual   AuthSource = "manual"
)

// EventStatus enum
type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventActive    EventStatus = "active"
	EventExpired   EventStatus = "expired"
)

// SensorKind enum
type SensorKind string

const (
	SensorCamera SensorKind = "CAMERA"
	SensorGate   SensorKind = "GATE"
	SensorMotion SensorKind = "MOTION"
)

// JSONB type for GORM - can handle both objects and arrays
type JSONB struct {
	Data interface{} `json:"-"`
}

// NewJSONB creates a new JSONB from any value
func NewJSONB(v interface{}) JSONB {
	return JSONB{Data: v}
}

// UnmarshalJSON implements json.Unmarshaler
func (j *JSONB) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &j.Data)
}

// MarshalJSON implements json.Marshaler
func (j JSONB) MarshalJSON() ([]byte, error) {
	if j.Data == nil {
		return []byte("null"), nil
	}
	return json.Marshal(j.Data)
}

func (j JSONB) Value() (driver.Value, error) {
	if j.Data == nil {
		return nil, nil
	}
	return json.Marshal(j.Data)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		j.Data = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, &j.Data)
}

// Sensor model - Registered detection producer (camera, gate unit, motion sensor)
type Sensor struct {
	ID       string     `gorm:"primaryKey;column:id" json:"id"`
	Name     string     `gorm:"column:name" json:"name"`
	Location string     `gorm:"column:location" json:"location"`
	Kind     SensorKind `gorm:"column:kind;default:CAMERA" json:"kind"`

	// Authentication
	TokenHash string `gorm:"column:token_hash" json:"-"` // bcrypt hash of the token secret
	IsRevoked bool   `gorm:"column:is_revoked;default:false;index" json:"isRevoked"`

	LastSeen  time.Time `gorm:"column:last_seen;index" json:"lastSeen"`
	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
}

func (Sensor) TableName() string {
	return "sensors"
}

// AuthorizedVehicle model - Standing allow-list entry, not time-boxed
type AuthorizedVehicle struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Plate     string    `gorm:"column:plate;uniqueIndex" json:"plate"` // canonical form
	OwnerName string    `gorm:"column:owner_name" json:"ownerName"`
	Contact   *string   `gorm:"column:contact" json:"contact,omitempty"`
	AddedBy   *string   `gorm:"column:added_by" json:"addedBy,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
}

func (AuthorizedVehicle) TableName() string {
	return "authorized_vehicles"
}

// Event model - Time-boxed visitor pre-authorization window
type Event struct {
	ID        int64       `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Name      string      `gorm:"column:name" json:"name"`
	EventDate time.Time   `gorm:"column:event_date;index" json:"eventDate"`
	StartTime string      `gorm:"column:start_time" json:"startTime"` // "15:04"
	EndTime   string      `gorm:"column:end_time" json:"endTime"`     // "15:04"
	Status    EventStatus `gorm:"column:status;default:scheduled;index" json:"status"`

	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`

	Vehicles []EventVehicle `gorm:"foreignKey:EventID" json:"vehicles,omitempty"`

	// Derived in list queries, never stored
	VehicleCount *int64 `gorm:"-" json:"vehicleCount,omitempty"`
}

func (Event) TableName() string {
	return "events"
}

// Window returns the absolute [start, end] instants of the event.
// Authorization decisions evaluate this, never the stored status.
func (e *Event) Window() (time.Time, time.Time, error) {
	start, err := combineDateTime(e.EventDate, e.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time %q: %w", e.StartTime, err)
	}
	end, err := combineDateTime(e.EventDate, e.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time %q: %w", e.EndTime, err)
	}
	return start, end, nil
}

// Contains reports whether at falls within the event's time window.
func (e *Event) Contains(at time.Time) bool {
	start, end, err := e.Window()
	if err != nil {
		return false
	}
	return !at.Before(start) && !at.After(end)
}

func combineDateTime(date time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		// Tolerate seconds, some clients send them
		t, err = time.Parse("15:04:05", clock)
		if err != nil {
			return time.Time{}, err
		}
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, date.Location()), nil
}

// EventVehicle model - A plate allowed for the duration of one event
type EventVehicle struct {
	ID      int64  `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	EventID int64  `gorm:"column:event_id;index;uniqueIndex:idx_event_plate" json:"eventId"`
	Event   *Event `gorm:"foreignKey:EventID" json:"event,omitempty"`

	Plate       string  `gorm:"column:plate;uniqueIndex:idx_event_plate" json:"plate"` // canonical form
	VisitorName string  `gorm:"column:visitor_name" json:"visitorName"`
	Reason      *string `gorm:"column:reason" json:"reason,omitempty"`
	AddedBy     string  `gorm:"column:added_by" json:"addedBy"`

	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
}

func (EventVehicle) TableName() string {
	return "event_vehicles"
}

// VehicleAttempt model - One plate read at the gate and its authorization outcome
type VehicleAttempt struct {
	ID           int64         `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Plate        string        `gorm:"column:plate;index" json:"plateNumber"` // canonical form
	Status       AttemptStatus `gorm:"column:status;default:pending;index" json:"status"`
	IsAuthorized bool          `gorm:"column:is_authorized;default:false" json:"isAuthorized"`

	// Where the authorization came from, when authorized
	AuthSource *AuthSource `gorm:"column:auth_source" json:"authSource,omitempty"`
	EventID    *int64      `gorm:"column:event_id" json:"eventId,omitempty"`

	// Shared with the denial Alert so the two projections cannot diverge
	CorrelationID *string `gorm:"column:correlation_id;index" json:"correlationId,omitempty"`

	Location    string   `gorm:"column:location" json:"location"`
	SensorID    string   `gorm:"column:sensor_id;index" json:"sensorId"`
	Confidence  *float64 `gorm:"column:confidence" json:"confidence,omitempty"`
	SnapshotRef *string  `gorm:"column:snapshot_ref" json:"snapshotRef,omitempty"`

	Timestamp time.Time  `gorm:"column:timestamp;index" json:"timestamp"` // time of the read
	DecidedAt *time.Time `gorm:"column:decided_at" json:"decidedAt,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (VehicleAttempt) TableName() string {
	return "vehicle_attempts"
}

// Alert model - Security incident requiring operator attention
type Alert struct {
	ID       int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Type     AlertType `gorm:"column:type;index" json:"type"`
	Severity Severity  `gorm:"column:severity" json:"severity"`

	Confidence  *float64 `gorm:"column:confidence" json:"confidence,omitempty"`
	Location    string   `gorm:"column:location" json:"location"`
	SensorID    string   `gorm:"column:sensor_id;index" json:"sensorId"`
	Description *string  `gorm:"column:description" json:"description,omitempty"`
	SnapshotRef *string  `gorm:"column:snapshot_ref" json:"snapshotRef,omitempty"`

	// Links a denial alert to its VehicleAttempt
	CorrelationID *string `gorm:"column:correlation_id;index" json:"correlationId,omitempty"`
	Plate         *string `gorm:"column:plate;index" json:"plateNumber,omitempty"`

	Timestamp time.Time   `gorm:"column:timestamp;index" json:"timestamp"`
	Status    AlertStatus `gorm:"column:status;default:new;index" json:"status"`

	// Stamped once on first entry into their states, immutable afterwards
	TeamDispatched   bool       `gorm:"column:team_dispatched;default:false" json:"teamDispatched"`
	TeamDispatchTime *time.Time `gorm:"column:team_dispatch_time" json:"teamDispatchTime,omitempty"`
	AcknowledgedAt   *time.Time `gorm:"column:acknowledged_at" json:"acknowledgedAt,omitempty"`
	ResolutionTime   *time.Time `gorm:"column:resolution_time" json:"resolutionTime,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Alert) TableName() string {
	return "alerts"
}
