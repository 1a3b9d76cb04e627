package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gatewatch/backend/database"
	"github.com/gatewatch/backend/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// GetAlerts handles GET /api/alerts - List alerts with filters
func GetAlerts(c *gin.Context) {
	query := database.DB.Model(&models.Alert{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	if alertType := c.Query("type"); alertType != "" {
		query = query.Where("type = ?", alertType)
	}

	if severity := c.Query("severity"); severity != "" {
		query = query.Where("severity = ?", severity)
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

	var alerts []models.Alert
	var total int64

	query.Model(&models.Alert{}).Count(&total)

	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&alerts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetAlert handles GET /api/alerts/:id - Get single alert
func GetAlert(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID"})
		return
	}

	var alert models.Alert
	if err := database.DB.First(&alert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alert"})
		return
	}

	c.JSON(http.StatusOK, alert)
}

// DispatchAlert handles PATCH /api/alerts/:id/dispatch - Send the response team
func DispatchAlert(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID"})
		return
	}

	alert, err := lifecycleSvc.DispatchAlert(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// AcknowledgeAlert handles PATCH /api/alerts/:id/acknowledge
func AcknowledgeAlert(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID"})
		return
	}

	alert, err := lifecycleSvc.AcknowledgeAlert(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// ResolveAlert handles PATCH /api/alerts/:id/resolve
func ResolveAlert(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID"})
		return
	}

	alert, err := lifecycleSvc.ResolveAlert(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// GetAlertStats handles GET /api/alerts/stats - Counts for the dashboard banner
func GetAlertStats(c *gin.Context) {
	var stats struct {
		Total         int64            `json:"total"`
		New           int64            `json:"new"`
		Investigating int64            `json:"investigating"`
		Acknowledged  int64            `json:"acknowledged"`
		Resolved      int64            `json:"resolved"`
		ByType        map[string]int64 `json:"byType"`
		BySeverity    map[string]int64 `json:"bySeverity"`
	}

	stats.ByType = make(map[string]int64)
	stats.BySeverity = make(map[string]int64)

	database.DB.Model(&models.Alert{}).Count(&stats.Total)
	database.DB.Model(&models.Alert{}).Where("status = ?", models.AlertNew).Count(&stats.New)
	database.DB.Model(&models.Alert{}).Where("status = ?", models.AlertInvestigating).Count(&stats.Investigating)
	database.DB.Model(&models.Alert{}).Where("status = ?", models.AlertAcknowledged).Count(&stats.Acknowledged)
	database.DB.Model(&models.Alert{}).Where("status = ?", models.AlertResolved).Count(&stats.Resolved)

	var typeCounts []struct {
		Type  string
		Count int64
	}
	database.DB.Model(&models.Alert{}).
		Select("type, COUNT(*) as count").
		Group("type").
		Scan(&typeCounts)
	for _, tc := range typeCounts {
		stats.ByType[tc.Type] = tc.Count
	}

	var severityCounts []struct {
		Severity string
		Count    int64
	}
	database.DB.Model(&models.Alert{}).
		Select("severity, COUNT(*) as count").
		Group("severity").
		Scan(&severityCounts)
	for _, sc := range severityCounts {
		stats.BySeverity[sc.Severity] = sc.Count
	}

	c.JSON(http.StatusOK, stats)
}
