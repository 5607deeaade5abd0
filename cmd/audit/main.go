package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/justinndidit/eventPipeline/internal/app"
	"github.com/justinndidit/eventPipeline/internal/audit"
	"github.com/justinndidit/eventPipeline/internal/bus"
	"github.com/justinndidit/eventPipeline/internal/config"
	"github.com/justinndidit/eventPipeline/internal/database"
	"github.com/justinndidit/eventPipeline/internal/handlers"
	"github.com/justinndidit/eventPipeline/internal/logger"
	"github.com/justinndidit/eventPipeline/internal/metrics"
	"github.com/justinndidit/eventPipeline/internal/registry"
	"github.com/justinndidit/eventPipeline/internal/repositories"
	"github.com/justinndidit/eventPipeline/internal/routers"
	"github.com/justinndidit/eventPipeline/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const serviceName = "audit-service"

const DefaultContextTimeout = 30

func main() {
	log := logger.New(serviceName)
	log.Info().Msg("Application starting...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	log.Info().Msg("Config loaded successfully")

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelMigrate()

	if err = database.Migrate(migrateCtx, &log, cfg.Database); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	db, err := database.New(cfg.Database, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Audit intake joins its own queue group so replicas split the
	// wildcard stream instead of each capturing every event twice.
	eventBus, err := bus.ConnectNATS(cfg.Bus.URL, "audit-capture", &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to event bus")
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	m := metrics.NewAuditMetrics(promReg)

	aRepo := repositories.NewAuditRepo(db.Pool, &log)

	svc, err := audit.NewService(aRepo, eventBus, m, cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize audit service")
	}

	aHandler := handlers.NewAuditHandler(&log, svc)
	hHandler := handlers.NewHealthHandler(&log, redisClient, db, serviceName)

	application := &app.AuditApp{
		Logger:      &log,
		Config:      cfg,
		DB:          db,
		RedisClient: redisClient,
		Bus:         eventBus,
		PromReg:     promReg,
		Service:     svc,
		AHandler:    aHandler,
		HHandler:    hHandler,
	}

	r := routers.SetupAuditRoutes(application)
	srv := server.New(cfg.AuditServer, r, &log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe audit intake")
	}

	var reg *registry.Client
	if cfg.Registry.Enabled {
		reg, err = registry.NewClient(cfg.Registry, &log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create registry client")
		}
		host, _ := os.Hostname()
		port, _ := strconv.Atoi(cfg.AuditServer.Port)
		if err := reg.Register(serviceName, host, port, []string{"audit"}, nil); err != nil {
			log.Fatal().Err(err).Msg("failed to register with service registry")
		}
		reg.StartHeartbeat(ctx)
		application.Registry = reg
	}

	go func() {
		log.Info().Msg("Starting HTTP server...")
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	log.Info().Msg("Server is ready to accept connections")

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultContextTimeout*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}

	svc.Stop()

	if reg != nil {
		if err := reg.Deregister(); err != nil {
			log.Warn().Err(err).Msg("failed to deregister from service registry")
		}
	}

	if err := eventBus.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close event bus")
	}
	if err := redisClient.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close redis client")
	}
	db.Close()

	log.Info().Msg("server exited properly")
}
