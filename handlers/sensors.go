package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gatewatch/backend/database"
	"github.com/gatewatch/backend/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var jwtSecret = []byte(os.Getenv("JWT_SECRET"))

func init() {
	if len(jwtSecret) == 0 {
		jwtSecret = []byte("default-dev-secret-change-me")
	}
}

// Helper function to generate random ID
func generateID(prefix string) string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return prefix + "_" + hex.EncodeToString(bytes)[:16]
}

// Helper function to generate a token secret
func generateTokenSecret() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// RegisterSensor handles POST /api/sensors/register - Register a detection producer
// Returns the bearer token once; only its bcrypt hash is stored.
func RegisterSensor(c *gin.Context) {
	var req struct {
		Name     string            `json:"name" binding:"required"`
		Location string            `json:"location" binding:"required"`
		Kind     models.SensorKind `json:"kind"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and location are required"})
		return
	}

	kind := req.Kind
	if kind == "" {
		kind = models.SensorCamera
	}

	secret := generateTokenSecret()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate credentials"})
		return
	}

	sensor := models.Sensor{
		ID:        generateID("SENSOR"),
		Name:      req.Name,
		Location:  req.Location,
		Kind:      kind,
		TokenHash: string(hash),
		LastSeen:  time.Now(),
	}

	if err := database.DB.Create(&sensor).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register sensor"})
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sensor.ID,
		"tok": secret,
		"iat": time.Now().Unix(),
	})
	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign token"})
		return
	}

	log.Printf("📷 [SENSORS] Registered - ID: %s, Name: %s, Location: %s",
		sensor.ID, sensor.Name, sensor.Location)

	c.JSON(http.StatusCreated, gin.H{
		"sensor": sensor,
		"token":  tokenString,
	})
}

// GetSensors handles GET /api/sensors
func GetSensors(c *gin.Context) {
	var sensors []models.Sensor
	if err := database.DB.Order("created_at DESC").Find(&sensors).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sensors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sensors": sensors, "total": len(sensors)})
}

// RevokeSensor handles POST /api/sensors/:id/revoke - Stop accepting a sensor's detections
func RevokeSensor(c *gin.Context) {
	id := c.Param("id")

	var sensor models.Sensor
	if err := database.DB.First(&sensor, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Sensor not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sensor"})
		return
	}

	if err := database.DB.Model(&sensor).Update("is_revoked", true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke sensor"})
		return
	}

	log.Printf("🚫 [SENSORS] Revoked - ID: %s", id)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SensorAuth verifies the bearer token minted at registration and tags
// the request with the sensor ID. Revoked sensors are rejected.
func SensorAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}

		token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}
		sensorID, _ := claims["sub"].(string)
		secret, _ := claims["tok"].(string)

		var sensor models.Sensor
		if err := database.DB.First(&sensor, "id = ?", sensorID).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown sensor"})
			return
		}
		if sensor.IsRevoked {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Sensor has been revoked"})
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(sensor.TokenHash), []byte(secret)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		// Best-effort liveness tracking
		database.DB.Model(&sensor).Update("last_seen", time.Now())

		c.Set("sensorID", sensor.ID)
		c.Next()
	}
}
