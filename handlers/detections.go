package handlers

import (
	"net/http"
	"time"

	"github.com/gatewatch/backend/models"
	"github.com/gatewatch/backend/services"
	"github.com/gin-gonic/gin"
)

// PostDetection handles POST /api/detections - Ingest a detection from a sensor
func PostDetection(c *gin.Context) {
	var req struct {
		Kind        models.DetectionKind `json:"kind" binding:"required"`
		Plate       string               `json:"plate"`
		Location    string               `json:"location" binding:"required"`
		SensorID    string               `json:"sensorId"`
		Timestamp   *string              `json:"timestamp"`
		Confidence  *float64             `json:"confidence"`
		SnapshotRef *string              `json:"snapshotRef"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	// The authenticated sensor ID wins over whatever the payload claims
	sensorID := req.SensorID
	if id, ok := c.Get("sensorID"); ok {
		sensorID = id.(string)
	}

	det := services.Detection{
		Kind:        req.Kind,
		Plate:       req.Plate,
		Location:    req.Location,
		SensorID:    sensorID,
		Confidence:  req.Confidence,
		SnapshotRef: req.SnapshotRef,
	}
	if req.Timestamp != nil {
		if parsed, err := time.Parse(time.RFC3339, *req.Timestamp); err == nil {
			det.Timestamp = &parsed
		}
	}

	result, err := intakeSvc.Ingest(det)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// CheckAuthorization handles GET /api/authorization/check?plate=... - Dry-run policy lookup
func CheckAuthorization(c *gin.Context) {
	plate := c.Query("plate")
	if plate == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plate query parameter is required"})
		return
	}

	at := time.Now()
	if atStr := c.Query("at"); atStr != "" {
		if parsed, err := time.Parse(time.RFC3339, atStr); err == nil {
			at = parsed
		}
	}

	auth, err := policySvc.IsAuthorized(plate, at)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, auth)
}
