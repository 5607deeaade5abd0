package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/justinndidit/eventPipeline/internal/app"
	"github.com/justinndidit/eventPipeline/internal/bus"
	"github.com/justinndidit/eventPipeline/internal/channels"
	"github.com/justinndidit/eventPipeline/internal/config"
	"github.com/justinndidit/eventPipeline/internal/database"
	"github.com/justinndidit/eventPipeline/internal/handlers"
	"github.com/justinndidit/eventPipeline/internal/logger"
	"github.com/justinndidit/eventPipeline/internal/metrics"
	"github.com/justinndidit/eventPipeline/internal/notification"
	"github.com/justinndidit/eventPipeline/internal/registry"
	"github.com/justinndidit/eventPipeline/internal/repositories"
	"github.com/justinndidit/eventPipeline/internal/routers"
	"github.com/justinndidit/eventPipeline/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const serviceName = "notification-service"

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

	eventBus, err := bus.ConnectNATS(cfg.Bus.URL, cfg.Bus.SubscribeQueueGroup, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to event bus")
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	m := metrics.NewNotificationMetrics(promReg)

	nRepo := repositories.NewNotificationRepo(db.Pool, &log)
	tRepo := repositories.NewTemplateRepo(db.Pool, &log)
	bRepo := repositories.NewBatchRepo(db.Pool, &log)
	iRepo := repositories.NewInAppRepo(db.Pool, &log)
	pRepo := repositories.NewPushSubscriptionRepo(db.Pool, &log)

	svc := notification.NewService(nRepo, tRepo, bRepo, iRepo, pRepo, eventBus, redisClient, m, cfg, &log)

	pushAdapter, err := channels.NewPushAdapter(cfg.Push, pRepo, cfg.Delivery.ProviderTimeout, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize push adapter")
	}
	adapters := []channels.Adapter{
		channels.NewEmailAdapter(cfg.Email, cfg.Delivery.ProviderTimeout, &log),
		channels.NewSMSAdapter(cfg.SMS, cfg.Delivery.ProviderTimeout, &log),
		channels.NewWebhookAdapter(cfg.Delivery.ProviderTimeout, &log),
		channels.NewInAppAdapter(iRepo, &log),
		pushAdapter,
	}

	scheduler := notification.NewScheduler(svc, adapters, cfg.Delivery, &log)
	triggers := notification.NewTriggers(svc, &log)

	nHandler := handlers.NewNotificationHandler(&log, redisClient, svc)
	hHandler := handlers.NewHealthHandler(&log, redisClient, db, serviceName)

	application := &app.NotificationApp{
		Logger:      &log,
		Config:      cfg,
		DB:          db,
		RedisClient: redisClient,
		Bus:         eventBus,
		PromReg:     promReg,
		Service:     svc,
		Scheduler:   scheduler,
		Triggers:    triggers,
		NHandler:    nHandler,
		HHandler:    hHandler,
	}

	r := routers.SetupNotificationRoutes(application)
	srv := server.New(cfg.NotificationServer, r, &log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := triggers.Start(eventBus); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe notification triggers")
	}
	scheduler.Start(ctx)

	var reg *registry.Client
	if cfg.Registry.Enabled {
		reg, err = registry.NewClient(cfg.Registry, &log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create registry client")
		}
		host, _ := os.Hostname()
		port, _ := strconv.Atoi(cfg.NotificationServer.Port)
		if err := reg.Register(serviceName, host, port, []string{"notifications"}, nil); err != nil {
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

	triggers.Stop()
	scheduler.Shutdown()

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
