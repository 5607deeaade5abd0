package routers

import (
	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/justinndidit/eventPipeline/internal/app"
	"github.com/justinndidit/eventPipeline/internal/metrics"
)

func SetupNotificationRoutes(a *app.NotificationApp) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", a.HHandler.HandleHealthCheck)
	r.Method("GET", "/metrics", metrics.Handler(a.PromReg))

	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Post("/send", a.NHandler.HandleSend)
		r.Post("/batch", a.NHandler.HandleSendBatch)
		r.Post("/templates", a.NHandler.HandleCreateTemplate)
		r.Get("/stats", a.NHandler.HandleStats)

		r.Route("/push", func(r chi.Router) {
			r.Post("/subscribe", a.NHandler.HandlePushSubscribe)
			r.Delete("/unsubscribe", a.NHandler.HandlePushUnsubscribe)
		})

		r.Route("/in-app", func(r chi.Router) {
			r.Get("/{user_id}", a.NHandler.HandleListInApp)
			r.Get("/{user_id}/unread-count", a.NHandler.HandleUnreadCount)
			r.Post("/{user_id}/read-all", a.NHandler.HandleMarkAllRead)
			r.Post("/{user_id}/{id}/read", a.NHandler.HandleMarkRead)
			r.Post("/{user_id}/{id}/archive", a.NHandler.HandleArchive)
		})

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.NHandler.HandleGetNotification)
			r.Post("/cancel", a.NHandler.HandleCancel)
			r.Post("/delivered", a.NHandler.HandleDeliveryReceipt)
			r.Post("/clicked", a.NHandler.HandleClick)
		})
	})

	return r
}

func SetupAuditRoutes(a *app.AuditApp) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", a.HHandler.HandleHealthCheck)
	r.Method("GET", "/metrics", metrics.Handler(a.PromReg))

	r.Route("/api/v1/audit", func(r chi.Router) {
		r.Post("/events", a.AHandler.HandleLog)
		r.Post("/events/batch", a.AHandler.HandleBatchLog)
		r.Post("/events/query", a.AHandler.HandleQuery)
		r.Get("/events/{id}", a.AHandler.HandleGetEvent)
		r.Get("/users/{user_id}/activities", a.AHandler.HandleUserActivities)
		r.Get("/users/{user_id}/summary", a.AHandler.HandleUserSummary)

		r.Route("/security", func(r chi.Router) {
			r.Post("/alerts", a.AHandler.HandleCreateSecurityAlert)
			r.Get("/events", a.AHandler.HandleListSecurityEvents)
			r.Post("/events/{id}/status", a.AHandler.HandleTransitionSecurityEvent)
		})

		r.Post("/compliance/reports", a.AHandler.HandleComplianceReport)
		r.Get("/compliance/standards", a.AHandler.HandleComplianceStandards)
		r.Post("/maintenance/cleanup", a.AHandler.HandleCleanup)
	})

	return r
}
