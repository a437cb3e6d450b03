package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nexofarma/whatsapp-backend/internal/conversation"
	httpmiddleware "github.com/nexofarma/whatsapp-backend/internal/http/middleware"
	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Webhooks       *conversation.WebhookHandler
	MetricsHandler http.Handler

	// WebhookRateLimit caps inbound webhook requests per second per IP.
	// Zero disables limiting.
	WebhookRateLimit float64
	WebhookBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.Webhooks.HealthCheck)

	r.Route("/webhooks/whatsapp", func(wh chi.Router) {
		if cfg.WebhookRateLimit > 0 {
			burst := cfg.WebhookBurst
			if burst <= 0 {
				burst = int(cfg.WebhookRateLimit) * 2
			}
			wh.Use(httpmiddleware.RateLimit(cfg.WebhookRateLimit, burst, httpmiddleware.ByRealIP))
		}
		wh.Get("/", cfg.Webhooks.HandleVerify)
		wh.Post("/", cfg.Webhooks.HandleInbound)
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
