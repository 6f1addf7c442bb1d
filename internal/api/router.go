// Package api serves the alert management HTTP API.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter sets up the routes. health, when non-nil, backs /api/v1/health
// with the dependency snapshot; otherwise the route is a plain liveness probe.
func NewRouter(h *Handler, health http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if health != nil {
		r.GET("/api/v1/health", gin.WrapH(health))
	} else {
		r.GET("/api/v1/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	api := r.Group("/api")
	api.POST("/create-alert", h.CreateAlert)
	api.POST("/alerts", h.CreateAlertForm)
	api.GET("/my-alerts/:user_id", h.ListAlerts)
	api.POST("/delete-alert", h.DeleteAlert)
	api.POST("/users", h.CreateUser)
	if h.signals != nil {
		api.GET("/signals", h.RecentSignals)
	}

	return r
}
