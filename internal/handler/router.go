package handler

import (
	"net/http"
	"time"

	"AquaWallet/internal/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	Wallets        *WalletHandler
	Notifications  *NotificationHandler
	Events         *EventHandler
	Realtime       http.Handler
	Verifier       auth.Verifier
	InternalAPIKey string
	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		sendSuccessResponse(w, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	if cfg.Realtime != nil {
		r.Handle("/ws", cfg.Realtime)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(auth.Middleware(cfg.Verifier, WriteError))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", cfg.Wallets.GetWallet)
			r.Get("/transactions", cfg.Wallets.ListTransactions)
			r.Post("/recharge", cfg.Wallets.Recharge)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", cfg.Notifications.List)
			r.Get("/unread-count", cfg.Notifications.UnreadCount)
			r.Put("/read-all", cfg.Notifications.MarkAllRead)
			r.Put("/{id}/read", cfg.Notifications.MarkRead)
			r.Delete("/{id}", cfg.Notifications.Delete)
		})
	})

	if cfg.Events != nil {
		r.Route("/internal/v1", func(r chi.Router) {
			r.Use(auth.InternalKey(cfg.InternalAPIKey, WriteError))
			r.Post("/events", cfg.Events.Publish)
		})
	}

	return r
}
