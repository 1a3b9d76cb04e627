package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gatewatch/backend/models"
	"gorm.io/gorm"
)

// Lifecycle owns all post-creation mutation of Alert, VehicleAttempt and
// Event records. Every transition takes the entity's keyed lock so
// concurrent operator actions resolve deterministically: the second
// caller sees the post-transition state and gets the idempotent no-op or
// conflict outcome, never a lost update.
type Lifecycle struct {
	db    *gorm.DB
	locks *keyedLocks
}

func NewLifecycle(db *gorm.DB) *Lifecycle {
	return &Lifecycle{db: db, locks: newKeyedLocks()}
}

// ==================== Alerts ====================

func (l *Lifecycle) getAlert(id int64) (*models.Alert, error) {
	var alert models.Alert
	if err := l.db.First(&alert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf("alert %d", id)
		}
		return nil, transientf("failed to load alert %d: %v", id, err)
	}
	return &alert, nil
}

// DispatchAlert moves an alert to investigating and marks the response
// team dispatched. The dispatch time is stamped exactly once; re-issuing
// dispatch on an already-dispatched alert is a no-op success because
// concurrent dashboard clients double-submit.
func (l *Lifecycle) DispatchAlert(id int64) (*models.Alert, error) {
	unlock := l.locks.Lock(fmt.Sprintf("alert:%d", id))
	defer unlock()

	alert, err := l.getAlert(id)
	if err != nil {
		return nil, err
	}
	if alert.Status == models.AlertResolved {
		return nil, conflictf("alert %d already resolved", id)
	}
	if alert.TeamDispatched && alert.Status == models.AlertInvestigating {
		return alert, nil
	}

	updates := map[string]interface{}{
		"status":          models.AlertInvestigating,
		"team_dispatched": true,
	}
	if alert.TeamDispatchTime == nil {
		updates["team_dispatch_time"] = time.Now()
	}
	if err := l.db.Model(alert).Updates(updates).Error; err != nil {
		return nil, transientf("failed to dispatch alert %d: %v", id, err)
	}
	log.Printf("🚓 [LIFECYCLE] Alert dispatched - ID: %d, Type: %s", id, alert.Type)
	return l.getAlert(id)
}

// AcknowledgeAlert records an optional operator note state. It is
// reachable from new or investigating and does not block resolve.
func (l *Lifecycle) AcknowledgeAlert(id int64) (*models.Alert, error) {
	unlock := l.locks.Lock(fmt.Sprintf("alert:%d", id))
	defer unlock()

	alert, err := l.getAlert(id)
	if err != nil {
		return nil, err
	}
	if alert.Status == models.AlertResolved {
		return nil, conflictf("alert %d already resolved", id)
	}
	if alert.Status == models.AlertAcknowledged {
		return alert, nil
	}

	updates := map[string]interface{}{"status": models.AlertAcknowledged}
	if alert.AcknowledgedAt == nil {
		updates["acknowledged_at"] = time.Now()
	}
	if err := l.db.Model(alert).Updates(updates).Error; err != nil {
		return nil, transientf("failed to acknowledge alert %d: %v", id, err)
	}
	return l.getAlert(id)
}

// ResolveAlert is permitted from any non-resolved state; an alert can be
// resolved without ever being dispatched. Resolving twice is a no-op
// success and never overwrites the original resolution time.
func (l *Lifecycle) ResolveAlert(id int64) (*models.Alert, error) {
	unlock := l.locks.Lock(fmt.Sprintf("alert:%d", id))
	defer unlock()

	alert, err := l.getAlert(id)
	if err != nil {
		return nil, err
	}
	if alert.Status == models.AlertResolved {
		return alert, nil
	}

	updates := map[string]interface{}{"status": models.AlertResolved}
	if alert.ResolutionTime == nil {
		updates["resolution_time"] = time.Now()
	}
	if err := l.db.Model(alert).Updates(updates).Error; err != nil {
		return nil, transientf("failed to resolve alert %d: %v", id, err)
	}
	log.Printf("✅ [LIFECYCLE] Alert resolved - ID: %d, Type: %s", id, alert.Type)
	return l.getAlert(id)
}

// ==================== Vehicle attempts ====================

// latestAttempt returns the newest attempt for a canonical plate.
func (l *Lifecycle) latestAttempt(plate string) (*models.VehicleAttempt, error) {
	var attempt models.VehicleAttempt
	err := l.db.Where("plate = ?", plate).Order("created_at DESC").First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf("no attempt for plate %s", plate)
		}
		return nil, transientf("failed to load attempt for %s: %v", plate, err)
	}
	return &attempt, nil
}

// pendingAttempt returns the plate's open queue item. Approve, decline
// and correction all target this row: authorized passes keep appending
// newer rows for the same plate, and those must never shadow a pending
// attempt still waiting on an operator.
func (l *Lifecycle) pendingAttempt(plate string) (*models.VehicleAttempt, error) {
	var attempt models.VehicleAttempt
	err := l.db.Where("plate = ? AND status = ?", plate, models.AttemptPending).
		Order("created_at DESC").First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf("no pending attempt for plate %s", plate)
		}
		return nil, transientf("failed to load attempt for %s: %v", plate, err)
	}
	return &attempt, nil
}

func (l *Lifecycle) getAttempt(id int64) (*models.VehicleAttempt, error) {
	var attempt models.VehicleAttempt
	if err := l.db.First(&attempt, id).Error; err != nil {
		return nil, transientf("failed to load attempt %d: %v", id, err)
	}
	return &attempt, nil
}

// ApproveAttempt grants a pending attempt as a one-off manual
// authorization. Approving an already-authorized attempt returns the same
// result without error; approving a declined attempt is a conflict so the
// UI can distinguish "already handled" from "never existed".
func (l *Lifecycle) ApproveAttempt(plate string) (*models.VehicleAttempt, error) {
	plate = CanonicalPlate(plate)
	if plate == "" {
		return nil, validationf("empty plate")
	}
	unlock := l.locks.Lock("plate:" + plate)
	defer unlock()

	attempt, err := l.pendingAttempt(plate)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		// Nothing pending; the newest row decides the outcome.
		latest, lerr := l.latestAttempt(plate)
		if lerr != nil {
			return nil, lerr
		}
		if latest.Status == models.AttemptAuthorized {
			return latest, nil
		}
		return nil, conflictf("attempt for plate %s already declined", plate)
	}

	source := models.AuthSourceManual
	now := time.Now()
	updates := map[string]interface{}{
		"status":        models.AttemptAuthorized,
		"is_authorized": true,
		"auth_source":   source,
		"decided_at":    now,
	}
	if err := l.db.Model(attempt).Updates(updates).Error; err != nil {
		return nil, transientf("failed to approve attempt for %s: %v", plate, err)
	}
	log.Printf("✅ [LIFECYCLE] Attempt approved - Plate: %s", plate)
	return l.getAttempt(attempt.ID)
}

// DeclineAttempt removes a pending attempt from the approval queue. The
// row is kept with status removed so a later decline or approve reports
// a conflict instead of not-found.
func (l *Lifecycle) DeclineAttempt(plate string) (*models.VehicleAttempt, error) {
	plate = CanonicalPlate(plate)
	if plate == "" {
		return nil, validationf("empty plate")
	}
	unlock := l.locks.Lock("plate:" + plate)
	defer unlock()

	attempt, err := l.pendingAttempt(plate)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		latest, lerr := l.latestAttempt(plate)
		if lerr != nil {
			return nil, lerr
		}
		return nil, conflictf("attempt for plate %s already handled (%s)", plate, latest.Status)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":     models.AttemptRemoved,
		"decided_at": now,
	}
	if err := l.db.Model(attempt).Updates(updates).Error; err != nil {
		return nil, transientf("failed to decline attempt for %s: %v", plate, err)
	}
	log.Printf("🚫 [LIFECYCLE] Attempt declined - Plate: %s", plate)
	return l.getAttempt(attempt.ID)
}

// CorrectPlate re-keys a pending attempt whose plate was misread. Legal
// only while pending, and only if the new plate has no distinct pending
// attempt of its own. The correlated denial alert is rewritten in the
// same transaction so the two projections stay identical.
func (l *Lifecycle) CorrectPlate(oldPlate, newPlate string) (*models.VehicleAttempt, error) {
	oldPlate = CanonicalPlate(oldPlate)
	newPlate = CanonicalPlate(newPlate)
	if oldPlate == "" || newPlate == "" {
		return nil, validationf("empty plate")
	}
	if oldPlate == newPlate {
		return nil, validationf("plate unchanged")
	}

	// Deterministic lock order prevents deadlock between two concurrent
	// corrections touching the same pair.
	first, second := oldPlate, newPlate
	if second < first {
		first, second = second, first
	}
	unlockFirst := l.locks.Lock("plate:" + first)
	defer unlockFirst()
	unlockSecond := l.locks.Lock("plate:" + second)
	defer unlockSecond()

	attempt, err := l.pendingAttempt(oldPlate)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		latest, lerr := l.latestAttempt(oldPlate)
		if lerr != nil {
			return nil, lerr
		}
		return nil, conflictf("attempt for plate %s already handled (%s)", oldPlate, latest.Status)
	}

	var count int64
	if err := l.db.Model(&models.VehicleAttempt{}).
		Where("plate = ? AND status = ?", newPlate, models.AttemptPending).
		Count(&count).Error; err != nil {
		return nil, transientf("failed to check plate %s: %v", newPlate, err)
	}
	if count > 0 {
		return nil, conflictf("plate %s already has a pending attempt", newPlate)
	}

	err = l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(attempt).Update("plate", newPlate).Error; err != nil {
			return err
		}
		if attempt.CorrelationID != nil {
			description := fmt.Sprintf("Vehicle %s denied entry at %s", newPlate, attempt.Location)
			return tx.Model(&models.Alert{}).
				Where("correlation_id = ?", *attempt.CorrelationID).
				Updates(map[string]interface{}{
					"plate":       newPlate,
					"description": description,
				}).Error
		}
		return nil
	})
	if err != nil {
		return nil, transientf("failed to correct plate %s -> %s: %v", oldPlate, newPlate, err)
	}
	log.Printf("✏️ [LIFECYCLE] Plate corrected - %s -> %s", oldPlate, newPlate)
	return l.getAttempt(attempt.ID)
}

// ==================== Events ====================

func (l *Lifecycle) getEvent(id int64) (*models.Event, error) {
	var event models.Event
	if err := l.db.First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf("event %d", id)
		}
		return nil, transientf("failed to load event %d: %v", id, err)
	}
	return &event, nil
}

// CreateEvent schedules a visitor pre-authorization window.
func (l *Lifecycle) CreateEvent(name, date, startTime, endTime string) (*models.Event, error) {
	if name == "" {
		return nil, validationf("missing event name")
	}
	eventDate, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return nil, validationf("invalid event date %q", date)
	}
	event := models.Event{
		Name:      name,
		EventDate: eventDate,
		StartTime: startTime,
		EndTime:   endTime,
		Status:    models.EventScheduled,
	}
	start, end, err := event.Window()
	if err != nil {
		return nil, validationf("invalid event times: %v", err)
	}
	if !end.After(start) {
		return nil, validationf("event end must be after start")
	}
	if err := l.db.Create(&event).Error; err != nil {
		return nil, transientf("failed to create event: %v", err)
	}
	return &event, nil
}

// eventRank orders statuses for the forward-only state machine.
func eventRank(s models.EventStatus) int {
	switch s {
	case models.EventScheduled:
		return 0
	case models.EventActive:
		return 1
	case models.EventExpired:
		return 2
	}
	return -1
}

// SetEventStatus applies an operator start/end. Transitions are monotonic
// forward-only; an expired event cannot return to active - a new event
// must be created instead.
func (l *Lifecycle) SetEventStatus(id int64, status models.EventStatus) (*models.Event, error) {
	if eventRank(status) < 0 {
		return nil, validationf("unknown event status %q", status)
	}
	unlock := l.locks.Lock(fmt.Sprintf("event:%d", id))
	defer unlock()

	event, err := l.getEvent(id)
	if err != nil {
		return nil, err
	}
	if event.Status == status {
		return event, nil
	}
	if eventRank(status) < eventRank(event.Status) {
		return nil, conflictf("event %d cannot go back from %s to %s", id, event.Status, status)
	}
	if err := l.db.Model(event).Update("status", status).Error; err != nil {
		return nil, transientf("failed to update event %d: %v", id, err)
	}
	log.Printf("📅 [LIFECYCLE] Event status - ID: %d, %s -> %s", id, event.Status, status)
	return l.getEvent(id)
}

// SweepEvents advances stored event statuses toward their time-derived
// values. The sweep is advisory: authorization decisions always
// re-evaluate the window and never rely on the stored field.
func (l *Lifecycle) SweepEvents(now time.Time) (int, error) {
	var events []models.Event
	if err := l.db.Where("status <> ?", models.EventExpired).Find(&events).Error; err != nil {
		return 0, transientf("sweep query failed: %v", err)
	}

	advanced := 0
	for i := range events {
		start, end, err := events[i].Window()
		if err != nil {
			continue
		}
		var next models.EventStatus
		switch {
		case now.After(end):
			next = models.EventExpired
		case events[i].Status == models.EventScheduled && !now.Before(start):
			next = models.EventActive
		default:
			continue
		}
		if _, err := l.SetEventStatus(events[i].ID, next); err != nil {
			log.Printf("⚠️ [SWEEP] Failed to advance event %d: %v", events[i].ID, err)
			continue
		}
		advanced++
	}
	return advanced, nil
}

// AddEventVehicle registers a visitor plate for an event. A plate may
// appear in many events but at most once per event.
func (l *Lifecycle) AddEventVehicle(eventID int64, plate, visitorName string, reason *string, addedBy string) (*models.EventVehicle, error) {
	plate = CanonicalPlate(plate)
	if plate == "" {
		return nil, validationf("empty plate")
	}
	if visitorName == "" {
		return nil, validationf("missing visitor name")
	}
	unlock := l.locks.Lock(fmt.Sprintf("event:%d", eventID))
	defer unlock()

	event, err := l.getEvent(eventID)
	if err != nil {
		return nil, err
	}
	if event.Status == models.EventExpired {
		return nil, conflictf("event %d has expired", eventID)
	}

	var count int64
	if err := l.db.Model(&models.EventVehicle{}).
		Where("event_id = ? AND plate = ?", eventID, plate).
		Count(&count).Error; err != nil {
		return nil, transientf("failed to check event vehicle: %v", err)
	}
	if count > 0 {
		return nil, conflictf("plate %s already registered for event %d", plate, eventID)
	}

	ev := models.EventVehicle{
		EventID:     eventID,
		Plate:       plate,
		VisitorName: visitorName,
		Reason:      reason,
		AddedBy:     addedBy,
	}
	if err := l.db.Create(&ev).Error; err != nil {
		return nil, transientf("failed to add event vehicle: %v", err)
	}
	return &ev, nil
}

// RemoveEventVehicle deletes a visitor plate from an event.
func (l *Lifecycle) RemoveEventVehicle(eventID int64, plate string) error {
	plate = CanonicalPlate(plate)
	unlock := l.locks.Lock(fmt.Sprintf("event:%d", eventID))
	defer unlock()

	result := l.db.Where("event_id = ? AND plate = ?", eventID, plate).Delete(&models.EventVehicle{})
	if result.Error != nil {
		return transientf("failed to remove event vehicle: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFoundf("plate %s not registered for event %d", plate, eventID)
	}
	return nil
}

// ==================== Standing authorizations ====================

// AddAuthorizedVehicle creates a standing allow-list entry.
func (l *Lifecycle) AddAuthorizedVehicle(plate, ownerName string, contact, addedBy *string) (*models.AuthorizedVehicle, error) {
	plate = CanonicalPlate(plate)
	if plate == "" {
		return nil, validationf("empty plate")
	}
	if ownerName == "" {
		return nil, validationf("missing owner name")
	}
	unlock := l.locks.Lock("plate:" + plate)
	defer unlock()

	var count int64
	if err := l.db.Model(&models.AuthorizedVehicle{}).Where("plate = ?", plate).Count(&count).Error; err != nil {
		return nil, transientf("failed to check plate %s: %v", plate, err)
	}
	if count > 0 {
		return nil, conflictf("plate %s already authorized", plate)
	}

	vehicle := models.AuthorizedVehicle{
		Plate:     plate,
		OwnerName: ownerName,
		Contact:   contact,
		AddedBy:   addedBy,
	}
	if err := l.db.Create(&vehicle).Error; err != nil {
		return nil, transientf("failed to create authorized vehicle: %v", err)
	}
	return &vehicle, nil
}

// RemoveAuthorizedVehicle drops a standing allow-list entry.
func (l *Lifecycle) RemoveAuthorizedVehicle(plate string) error {
	plate = CanonicalPlate(plate)
	unlock := l.locks.Lock("plate:" + plate)
	defer unlock()

	result := l.db.Where("plate = ?", plate).Delete(&models.AuthorizedVehicle{})
	if result.Error != nil {
		return transientf("failed to remove authorized vehicle: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFoundf("plate %s not authorized", plate)
	}
	return nil
}
