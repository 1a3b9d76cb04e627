package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gatewatch/backend/database"
	"github.com/gatewatch/backend/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CreateEvent handles POST /api/events - Schedule a visitor pre-authorization window
func CreateEvent(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		Date      string `json:"date" binding:"required"`      // "2006-01-02"
		StartTime string `json:"startTime" binding:"required"` // "15:04"
		EndTime   string `json:"endTime" binding:"required"`   // "15:04"
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, date, startTime and endTime are required"})
		return
	}

	event, err := lifecycleSvc.CreateEvent(req.Name, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// GetEvents handles GET /api/events - List events with derived vehicle counts
func GetEvents(c *gin.Context) {
	query := database.DB.Model(&models.Event{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var events []models.Event
	if err := query.Order("event_date DESC, created_at DESC").Find(&events).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch events"})
		return
	}

	// Vehicle count is derived per event, never stored
	for i := range events {
		var count int64
		database.DB.Model(&models.EventVehicle{}).Where("event_id = ?", events[i].ID).Count(&count)
		events[i].VehicleCount = &count
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
}

// GetEvent handles GET /api/events/:id
func GetEvent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
		return
	}

	var event models.Event
	if err := database.DB.Preload("Vehicles").First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch event"})
		return
	}

	count := int64(len(event.Vehicles))
	event.VehicleCount = &count

	c.JSON(http.StatusOK, event)
}

// SetEventStatus handles PATCH /api/events/:id/status - Operator start/end
func SetEventStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
		return
	}

	var req struct {
		Status models.EventStatus `json:"status" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	event, err := lifecycleSvc.SetEventStatus(id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// AddEventVehicle handles POST /api/events/:id/vehicles - Register a visitor plate
func AddEventVehicle(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
		return
	}

	var req struct {
		Plate       string  `json:"plate" binding:"required"`
		VisitorName string  `json:"visitorName" binding:"required"`
		Reason      *string `json:"reason"`
		AddedBy     string  `json:"addedBy" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plate, visitorName and addedBy are required"})
		return
	}

	vehicle, err := lifecycleSvc.AddEventVehicle(id, req.Plate, req.VisitorName, req.Reason, req.AddedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, vehicle)
}

// GetEventVehicles handles GET /api/events/:id/vehicles
func GetEventVehicles(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
		return
	}

	var event models.Event
	if err := database.DB.First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch event"})
		return
	}

	var vehicles []models.EventVehicle
	if err := database.DB.Where("event_id = ?", id).
		Order("created_at DESC").Find(&vehicles).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch event vehicles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"vehicles": vehicles, "total": len(vehicles)})
}

// RemoveEventVehicle handles DELETE /api/events/:id/vehicles/:plate
func RemoveEventVehicle(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
		return
	}

	if err := lifecycleSvc.RemoveEventVehicle(id, c.Param("plate")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
