package services

import (
	"errors"
	"time"

	"github.com/gatewatch/backend/models"
	"gorm.io/gorm"
)

// Authorization is the outcome of a policy lookup. Allowed=false is a
// normal decision, not an error.
type Authorization struct {
	Allowed bool               `json:"allowed"`
	Source  *models.AuthSource `json:"source,omitempty"`
	EventID *int64             `json:"eventId,omitempty"`
}

// PolicyStore answers authorization queries against the standing
// allow-list and active event allow-lists. Read-only, no side effects.
type PolicyStore struct {
	db *gorm.DB
}

func NewPolicyStore(db *gorm.DB) *PolicyStore {
	return &PolicyStore{db: db}
}

// IsAuthorized checks the standing table first, then active events whose
// time window contains at. Standing grants win when both exist since they
// are not time-limited. The stored event status may lag the sweep; the
// window is always re-evaluated here.
func (p *PolicyStore) IsAuthorized(plate string, at time.Time) (Authorization, error) {
	plate = CanonicalPlate(plate)
	if plate == "" {
		return Authorization{}, validationf("empty plate")
	}

	var standing models.AuthorizedVehicle
	err := p.db.Where("plate = ?", plate).First(&standing).Error
	if err == nil {
		source := models.AuthSourceStanding
		return Authorization{Allowed: true, Source: &source}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Authorization{}, transientf("standing lookup failed: %v", err)
	}

	// Active events only; expired/scheduled windows can never authorize.
	var events []models.Event
	if err := p.db.Where("status = ?", models.EventActive).Find(&events).Error; err != nil {
		return Authorization{}, transientf("event lookup failed: %v", err)
	}

	for i := range events {
		if !events[i].Contains(at) {
			continue
		}
		var ev models.EventVehicle
		err := p.db.Where("event_id = ? AND plate = ?", events[i].ID, plate).First(&ev).Error
		if err == nil {
			source := models.AuthSourceEvent
			eventID := events[i].ID
			return Authorization{Allowed: true, Source: &source, EventID: &eventID}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return Authorization{}, transientf("event vehicle lookup failed: %v", err)
		}
	}

	return Authorization{Allowed: false}, nil
}
