package handlers

import (
	"net/http"

	"github.com/gatewatch/backend/database"
	"github.com/gatewatch/backend/models"
	"github.com/gatewatch/backend/services"
	"github.com/gin-gonic/gin"
)

// AddAuthorizedVehicle handles POST /api/authorized-vehicles - Standing allow-list entry
func AddAuthorizedVehicle(c *gin.Context) {
	var req struct {
		Plate     string  `json:"plate" binding:"required"`
		OwnerName string  `json:"ownerName" binding:"required"`
		Contact   *string `json:"contact"`
		AddedBy   *string `json:"addedBy"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plate and ownerName are required"})
		return
	}

	vehicle, err := lifecycleSvc.AddAuthorizedVehicle(req.Plate, req.OwnerName, req.Contact, req.AddedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, vehicle)
}

// GetAuthorizedVehicles handles GET /api/authorized-vehicles
func GetAuthorizedVehicles(c *gin.Context) {
	query := database.DB.Model(&models.AuthorizedVehicle{})

	if plate := c.Query("plate"); plate != "" {
		query = query.Where("plate LIKE ?", "%"+services.CanonicalPlate(plate)+"%")
	}

	var vehicles []models.AuthorizedVehicle
	if err := query.Order("created_at DESC").Find(&vehicles).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch authorized vehicles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"vehicles": vehicles, "total": len(vehicles)})
}

// RemoveAuthorizedVehicle handles DELETE /api/authorized-vehicles/:plate
func RemoveAuthorizedVehicle(c *gin.Context) {
	if err := lifecycleSvc.RemoveAuthorizedVehicle(c.Param("plate")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
