package router

import (
	"net/http"
	"time"

	"site-service/internal/clientip"
	"site-service/internal/handler"
	"site-service/internal/rate"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouteConfig carries the per-route knobs the router cannot derive itself.
type RouteConfig struct {
	Platform    clientip.Platform
	ContactLim  rate.Limit
	WhatsAppLim rate.Limit
}

func SetupRoutes(
	contactHandler *handler.ContactHandler,
	cspHandler *handler.CSPHandler,
	whatsappHandler *handler.WhatsAppHandler,
	localeHandler *handler.LocaleHandler,
	healthHandler *handler.HealthHandler,
	limiter *rate.Limiter,
	cfg RouteConfig,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(clientip.Middleware(cfg.Platform))
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Operational endpoints
	r.Get("/healthz", healthHandler.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/contact", func(r chi.Router) {
			r.With(limiter.Middleware("contact", cfg.ContactLim)).
				Post("/", contactHandler.SubmitContact)
			r.Get("/", contactHandler.GetStats)
		})

		r.Route("/csp-report", func(r chi.Router) {
			r.Post("/", cspHandler.ReceiveReport)
			r.Get("/", cspHandler.Health)
		})

		r.With(limiter.Middleware("whatsapp", cfg.WhatsAppLim)).
			Post("/whatsapp/send", whatsappHandler.SendMessage)

		r.Route("/i18n", func(r chi.Router) {
			r.Get("/detect", localeHandler.DetectLocale)
			r.Get("/{locale}", localeHandler.GetBundle)
		})
	})

	return r
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("client_ip", clientip.FromContext(r.Context())),
				zap.String("user_agent", r.UserAgent()))
		})
	}
}
