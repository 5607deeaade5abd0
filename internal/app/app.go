// Package app wires each binary's dependencies into one container the
// router and server consume.
package app

import (
	"github.com/justinndidit/eventPipeline/internal/audit"
	"github.com/justinndidit/eventPipeline/internal/bus"
	"github.com/justinndidit/eventPipeline/internal/config"
	"github.com/justinndidit/eventPipeline/internal/database"
	"github.com/justinndidit/eventPipeline/internal/handlers"
	"github.com/justinndidit/eventPipeline/internal/notification"
	"github.com/justinndidit/eventPipeline/internal/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NotificationApp is the delivery service container.
type NotificationApp struct {
	Logger      *zerolog.Logger
	Config      *config.Config
	DB          *database.Database
	RedisClient *redis.Client
	Bus         bus.Bus
	Registry    *registry.Client
	PromReg     *prometheus.Registry

	Service   *notification.Service
	Scheduler *notification.Scheduler
	Triggers  *notification.Triggers

	NHandler *handlers.NotificationHandler
	HHandler *handlers.HealthHandler
}

// AuditApp is the audit service container.
type AuditApp struct {
	Logger      *zerolog.Logger
	Config      *config.Config
	DB          *database.Database
	RedisClient *redis.Client
	Bus         bus.Bus
	Registry    *registry.Client
	PromReg     *prometheus.Registry

	Service *audit.Service

	AHandler *handlers.AuditHandler
	HHandler *handlers.HealthHandler
}
