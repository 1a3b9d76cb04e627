package handlers

import (
	"log"
	"net/http"

	"github.com/gatewatch/backend/services"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// HandleStreamWebSocket handles GET /ws/stream - Live alert/attempt feed for dashboards
func HandleStreamWebSocket(c *gin.Context) {
	if alertHub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Alert hub not initialized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket upgrade failed: %v", err)
		return
	}

	client := services.NewStreamClient(alertHub, conn, c.Request.RemoteAddr)
	alertHub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// GetStreamStats handles GET /api/stream/stats - Hub connection counts
func GetStreamStats(c *gin.Context) {
	if alertHub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Alert hub not initialized"})
		return
	}
	c.JSON(http.StatusOK, alertHub.Stats())
}
