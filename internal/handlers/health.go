package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/larkticket/internal/services"
	"gorm.io/gorm"
)

// HealthHandler answers load balancer probes.
type HealthHandler struct {
	db        *gorm.DB
	taskQueue services.TaskQueue
}

func NewHealthHandler(db *gorm.DB, taskQueue services.TaskQueue) *HealthHandler {
	return &HealthHandler{db: db, taskQueue: taskQueue}
}

// Healthcheck is the liveness probe.
func (h *HealthHandler) Healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness reports the state of the database and the task queue.
func (h *HealthHandler) Readiness(c *gin.Context) {
	status := http.StatusOK
	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil {
		dbStatus = "error: " + err.Error()
		status = http.StatusServiceUnavailable
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
		status = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if h.taskQueue != nil && h.taskQueue.IsAsync() {
		queueMode = "async (Redis)"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status": overall,
		"components": gin.H{
			"database":   dbStatus,
			"queue_mode": queueMode,
		},
	})
}
