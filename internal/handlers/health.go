package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/justinndidit/eventPipeline/internal/database"
	"github.com/justinndidit/eventPipeline/internal/utils"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type HealthHandler struct {
	logger      *zerolog.Logger
	redisClient *redis.Client
	db          *database.Database
	service     string
}

func NewHealthHandler(log *zerolog.Logger, rdb *redis.Client, db *database.Database, service string) *HealthHandler {
	return &HealthHandler{
		logger:      log,
		redisClient: rdb,
		db:          db,
		service:     service,
	}
}

func (h *HealthHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	response := map[string]interface{}{
		"service":   h.service,
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"checks":    make(map[string]interface{}),
	}

	checks := response["checks"].(map[string]interface{})
	isHealthy := true

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dbStart := time.Now()
	if err := h.db.Pool.Ping(ctx); err != nil {
		checks["database"] = map[string]interface{}{
			"status":        "unhealthy",
			"response_time": time.Since(dbStart).String(),
			"error":         err.Error(),
		}
		isHealthy = false
		h.logger.Error().Err(err).Dur("response_time", time.Since(dbStart)).Msg("database health check failed")
	} else {
		checks["database"] = map[string]interface{}{
			"status":        "healthy",
			"response_time": time.Since(dbStart).String(),
		}
	}

	if h.redisClient != nil {
		redisStart := time.Now()
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			checks["redis"] = map[string]interface{}{
				"status":        "unhealthy",
				"response_time": time.Since(redisStart).String(),
				"error":         err.Error(),
			}
			h.logger.Error().Err(err).Dur("response_time", time.Since(redisStart)).Msg("redis health check failed")
		} else {
			checks["redis"] = map[string]interface{}{
				"status":        "healthy",
				"response_time": time.Since(redisStart).String(),
			}
		}
	}

	if !isHealthy {
		response["status"] = "unhealthy"
		h.logger.Warn().Dur("total_duration", time.Since(start)).Msg("health check failed")
		utils.WriteJsonRaw(w, http.StatusServiceUnavailable, response)
		return
	}

	utils.WriteJsonRaw(w, http.StatusOK, response)
}
