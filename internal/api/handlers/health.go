package handlers

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db  *gorm.DB
	rdb *redis.Client
}

func NewHealthHandler(db *gorm.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{
		"database": "connected",
		"redis":    "connected",
	}
	healthy := true

	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.PingContext(r.Context()) != nil {
		services["database"] = "disconnected"
		healthy = false
	}

	if err := h.rdb.Ping(r.Context()).Err(); err != nil {
		services["redis"] = "disconnected"
		healthy = false
	}

	payload := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  services,
	}

	if !healthy {
		payload["status"] = "unhealthy"
		respondRaw(w, http.StatusServiceUnavailable, payload)
		return
	}

	respondRaw(w, http.StatusOK, payload)
}
