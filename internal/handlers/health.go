package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tallerco/shopcore/pkg/response"
)

// HealthHandler reports process liveness and storage reachability.
type HealthHandler struct {
	db      *gorm.DB
	started time.Time
}

// NewHealthHandler constructs a health handler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db, started: time.Now()}
}

// Check responds with overall service health. Storage failures degrade the
// status but still return 200 so load balancers keep routing read traffic.
func (h *HealthHandler) Check(c *gin.Context) {
	status := "ok"
	dbStatus := "ok"

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(requestContext(c))
		}
		if err != nil {
			status = "degraded"
			dbStatus = "unavailable"
		}
	}

	response.Success(c, http.StatusOK, gin.H{
		"status":   status,
		"database": dbStatus,
		"uptime":   time.Since(h.started).Round(time.Second).String(),
	})
}
