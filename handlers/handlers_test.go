package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gatewatch/backend/database"
	"github.com/gatewatch/backend/models"
	"github.com/gatewatch/backend/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupRouter wires the API against a per-test in-memory database.
func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	database.DB = db

	policy := services.NewPolicyStore(db)
	intake := services.NewIntake(db, services.NewAuthorizer(db, policy), nil, services.DefaultDebounceWindow)
	SetServices(intake, services.NewLifecycle(db), policy)

	router := gin.New()
	api := router.Group("/api")
	{
		api.GET("/authorization/check", CheckAuthorization)
		api.GET("/attempts/pending", GetPendingAttempts)
		api.POST("/attempts/:plate/approve", ApproveAttempt)
		api.POST("/attempts/:plate/decline", DeclineAttempt)
		api.PATCH("/attempts/:plate/plate", CorrectAttemptPlate)
		api.GET("/alerts", GetAlerts)
		api.PATCH("/alerts/:id/resolve", ResolveAlert)
		api.POST("/events", CreateEvent)
		api.POST("/authorized-vehicles", AddAuthorizedVehicle)
	}
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedPendingAttempt(t *testing.T, plate string) {
	t.Helper()
	require.NoError(t, database.DB.Create(&models.VehicleAttempt{
		Plate:     plate,
		Status:    models.AttemptPending,
		Location:  "Main Gate",
		SensorID:  "SENSOR_1",
		Timestamp: time.Now(),
	}).Error)
}

func TestApproveEndpoint(t *testing.T) {
	router := setupRouter(t)
	seedPendingAttempt(t, "KA99ZZ9999")

	w := doJSON(router, http.MethodPost, "/api/attempts/KA99ZZ9999/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var attempt models.VehicleAttempt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &attempt))
	assert.Equal(t, models.AttemptAuthorized, attempt.Status)

	// Idempotent repeat
	w = doJSON(router, http.MethodPost, "/api/attempts/KA99ZZ9999/approve", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestErrorTaxonomyStatuses(t *testing.T) {
	router := setupRouter(t)
	seedPendingAttempt(t, "KA99ZZ9999")

	// Unknown plate -> 404
	w := doJSON(router, http.MethodPost, "/api/attempts/KA00NO0000/approve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Decline then decline again -> 409
	w = doJSON(router, http.MethodPost, "/api/attempts/KA99ZZ9999/decline", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(router, http.MethodPost, "/api/attempts/KA99ZZ9999/decline", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Malformed event payload -> 400
	w = doJSON(router, http.MethodPost, "/api/events", gin.H{
		"name": "Party", "date": "nope", "startTime": "18:00", "endTime": "23:00",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCorrectPlateEndpoint(t *testing.T) {
	router := setupRouter(t)
	seedPendingAttempt(t, "KA01AB1239")

	w := doJSON(router, http.MethodPatch, "/api/attempts/KA01AB1239/plate",
		gin.H{"plateNumber": "KA01AB1234"})
	require.Equal(t, http.StatusOK, w.Code)

	var attempt models.VehicleAttempt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &attempt))
	assert.Equal(t, "KA01AB1234", attempt.Plate)

	// Missing body -> 400
	w = doJSON(router, http.MethodPatch, "/api/attempts/KA01AB1234/plate", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPendingQueueEndpoint(t *testing.T) {
	router := setupRouter(t)
	seedPendingAttempt(t, "KA99ZZ9999")
	seedPendingAttempt(t, "KA88YY8888")

	w := doJSON(router, http.MethodGet, "/api/attempts/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Attempts []models.VehicleAttempt `json:"attempts"`
		Total    int                     `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
}

func TestAuthorizationCheckEndpoint(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/authorized-vehicles",
		gin.H{"plate": "KA01AB1234", "ownerName": "R. Sharma"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodGet, "/api/authorization/check?plate=ka+01+ab+1234", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var auth services.Authorization
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &auth))
	assert.True(t, auth.Allowed)

	// Missing plate -> 400
	w = doJSON(router, http.MethodGet, "/api/authorization/check", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
