package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpmiddleware "github.com/wolfman30/medibook/internal/http/middleware"
	"github.com/wolfman30/medibook/pkg/logging"
)

// RouteMounter registers its endpoints on a chi router.
type RouteMounter interface {
	Routes(r chi.Router)
}

// Config holds router configuration
type Config struct {
	Logger *logging.Logger

	// Chat is the patient WebSocket endpoint, mounted at /ws.
	Chat            http.Handler
	WhatsAppWebhook http.Handler
	MetricsHandler  http.Handler

	// Admin endpoints live under /admin behind AdminJWT. They are only
	// mounted when AdminAuthSecret is set.
	Appointments    RouteMounter
	Audit           RouteMounter
	Transcripts     RouteMounter
	AdminAuthSecret string

	CORSAllowedOrigins []string

	// WSConnectRate limits new WebSocket upgrades per client IP.
	WSConnectRate  float64
	WSConnectBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(logger))

	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Chat != nil {
			chat := cfg.Chat
			if cfg.WSConnectRate > 0 {
				chat = httpmiddleware.RateLimit(cfg.WSConnectRate, cfg.WSConnectBurst)(chat)
			}
			public.Handle("/ws", chat)
		}
		if cfg.WhatsAppWebhook != nil {
			public.Post("/webhooks/whatsapp", cfg.WhatsAppWebhook.ServeHTTP)
		}
	})

	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			for _, m := range []RouteMounter{cfg.Appointments, cfg.Audit, cfg.Transcripts} {
				if m != nil {
					m.Routes(admin)
				}
			}
		})
	} else if cfg.Appointments != nil || cfg.Audit != nil || cfg.Transcripts != nil {
		logger.Warn("admin routes disabled: ADMIN_JWT_SECRET not set")
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}
