package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gatewatch/backend/database"
	"github.com/gatewatch/backend/models"
	"github.com/gatewatch/backend/services"
	"github.com/gin-gonic/gin"
)

// GetPendingAttempts handles GET /api/attempts/pending - The manual approval queue
func GetPendingAttempts(c *gin.Context) {
	var attempts []models.VehicleAttempt
	if err := database.DB.Where("status = ?", models.AttemptPending).
		Order("created_at DESC").Find(&attempts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch pending attempts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts, "total": len(attempts)})
}

// GetAttempts handles GET /api/attempts - Search/list attempts
func GetAttempts(c *gin.Context) {
	query := database.DB.Model(&models.VehicleAttempt{})

	// Substring search on the canonical plate; canonicalizing the input
	// makes plain LIKE case-insensitive.
	if plate := c.Query("plate"); plate != "" {
		query = query.Where("plate LIKE ?", "%"+services.CanonicalPlate(plate)+"%")
	}

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	if location := c.Query("location"); location != "" {
		query = query.Where("LOWER(location) LIKE LOWER(?)", "%"+location+"%")
	}

	// Filter by date range
	if startTime := c.Query("startTime"); startTime != "" {
		if parsed, err := time.Parse(time.RFC3339, startTime); err == nil {
			query = query.Where("timestamp >= ?", parsed)
		}
	}
	if endTime := c.Query("endTime"); endTime != "" {
		if parsed, err := time.Parse(time.RFC3339, endTime); err == nil {
			query = query.Where("timestamp <= ?", parsed)
		}
	}

	// Pagination
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	var attempts []models.VehicleAttempt
	var total int64

	query.Model(&models.VehicleAttempt{}).Count(&total)

	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&attempts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch attempts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempts": attempts,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// ApproveAttempt handles POST /api/attempts/:plate/approve
func ApproveAttempt(c *gin.Context) {
	attempt, err := lifecycleSvc.ApproveAttempt(c.Param("plate"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

// DeclineAttempt handles POST /api/attempts/:plate/decline
func DeclineAttempt(c *gin.Context) {
	attempt, err := lifecycleSvc.DeclineAttempt(c.Param("plate"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

// CorrectAttemptPlate handles PATCH /api/attempts/:plate/plate - Fix a misread plate
func CorrectAttemptPlate(c *gin.Context) {
	var req struct {
		PlateNumber string `json:"plateNumber" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plateNumber is required"})
		return
	}

	attempt, err := lifecycleSvc.CorrectPlate(c.Param("plate"), req.PlateNumber)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

// GetAttemptStats handles GET /api/attempts/stats
func GetAttemptStats(c *gin.Context) {
	var stats struct {
		Total      int64 `json:"total"`
		Pending    int64 `json:"pending"`
		Authorized int64 `json:"authorized"`
		Removed    int64 `json:"removed"`
		Today      int64 `json:"today"`
	}

	database.DB.Model(&models.VehicleAttempt{}).Count(&stats.Total)
	database.DB.Model(&models.VehicleAttempt{}).Where("status = ?", models.AttemptPending).Count(&stats.Pending)
	database.DB.Model(&models.VehicleAttempt{}).Where("status = ?", models.AttemptAuthorized).Count(&stats.Authorized)
	database.DB.Model(&models.VehicleAttempt{}).Where("status = ?", models.AttemptRemoved).Count(&stats.Removed)

	today := time.Now().Truncate(24 * time.Hour)
	database.DB.Model(&models.VehicleAttempt{}).Where("timestamp >= ?", today).Count(&stats.Today)

	c.JSON(http.StatusOK, stats)
}
