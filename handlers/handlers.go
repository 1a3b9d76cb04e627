// Package handlers exposes the engine to sensors and polling dashboards
// over HTTP.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gatewatch/backend/services"
	"github.com/gin-gonic/gin"
)

var (
	intakeSvc    *services.Intake
	lifecycleSvc *services.Lifecycle
	policySvc    *services.PolicyStore
	alertHub     *services.AlertHub
)

// SetServices wires the engine services into the handler package.
func SetServices(intake *services.Intake, lifecycle *services.Lifecycle, policy *services.PolicyStore) {
	intakeSvc = intake
	lifecycleSvc = lifecycle
	policySvc = policy
}

// SetAlertHub wires the WebSocket hub into the handler package.
func SetAlertHub(hub *services.AlertHub) {
	alertHub = hub
}

// respondError maps the engine's error taxonomy to HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, services.ErrTransient):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
