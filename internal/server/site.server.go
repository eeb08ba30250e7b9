package server

import (
	"context"
	"net/http"
	"time"

	"site-service/internal/clientip"
	"site-service/internal/config"
	"site-service/internal/events"
	"site-service/internal/geo"
	"site-service/internal/handler"
	"site-service/internal/locale"
	"site-service/internal/provider/airtable"
	"site-service/internal/provider/resend"
	"site-service/internal/provider/turnstile"
	"site-service/internal/provider/whatsapp"
	"site-service/internal/rate"
	"site-service/internal/repository"
	"site-service/internal/router"
	"site-service/internal/usecase"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Server owns the HTTP server and every backend handle it needs to close on
// the way down. Postgres, Redis, Kafka and GeoIP are all optional: a missing
// backend puts the affected feature into degraded mode instead of failing
// startup.
type Server struct {
	httpSrv   *http.Server
	db        *pgxpool.Pool
	rdb       *redis.Client
	geoRes    geo.Resolver
	publisher *events.Publisher
	logger    *zap.Logger
}

func New(cfg config.AppConfig, logger *zap.Logger) *Server {
	// --- DB connection (optional) ---
	dbpool, err := config.ConnectDB()
	if err != nil {
		logger.Warn("postgres unavailable, lead persistence disabled", zap.Error(err))
		dbpool = nil
	}

	// --- Redis (optional) ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
		rdb = nil
	}
	cancel()

	// --- GeoIP (optional) ---
	var geoRes geo.Resolver
	if cfg.GeoIPDBPath != "" {
		geoRes, err = geo.NewMaxMindResolver(cfg.GeoIPDBPath)
		if err != nil {
			logger.Warn("geoip database unavailable, country enrichment disabled", zap.Error(err))
			geoRes = nil
		}
	}

	// --- Kafka events (optional) ---
	publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)

	// --- Providers ---
	captcha := turnstile.New(cfg.TurnstileSecretKey, cfg.TurnstileVerifyURL, logger)
	mailer := resend.New(cfg.ResendAPIKey, cfg.ResendAPIBase, logger)
	crm := airtable.New(cfg.AirtableAPIKey, cfg.AirtableBaseID, cfg.AirtableTable, cfg.AirtableAPIBase, logger)
	wa := whatsapp.New(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneID, cfg.WhatsAppAPIBase, logger)

	// --- Repos (nil when persistence is disabled) ---
	var leadRepo repository.LeadRepository
	var msgRepo repository.MessageLogRepository
	if dbpool != nil {
		leadRepo = repository.NewLeadRepo(dbpool)
		msgRepo = repository.NewMessageLogRepo(dbpool)
	}

	// --- Rate limiter ---
	limiter := rate.NewLimiter(rdb, logger)

	// --- Locale bundles ---
	loader := locale.NewLoader(cfg.LocaleDir)
	bundles := locale.NewBundleCache(loader, cfg.LocaleCacheCap, cfg.LocaleCacheTTL)
	for _, code := range locale.Supported {
		if _, err := bundles.Get(code); err != nil {
			logger.Warn("locale bundle preload failed", zap.String("locale", code), zap.Error(err))
		}
	}

	// --- Usecases ---
	leadUC := usecase.NewLeadUsecase(leadRepo, captcha, mailer, crm, limiter, geoRes, publisher, usecase.LeadConfig{
		FormMinFillTime: cfg.FormMinFillTime,
		FormMaxAge:      cfg.FormMaxAge,
		EmailRateLimit: rate.Limit{
			Max:    cfg.ContactEmailMax,
			Window: cfg.ContactEmailWindow,
			Block:  cfg.ContactRateBlock,
		},
		ContactFrom:          cfg.ContactFrom,
		ContactTo:            cfg.ContactTo,
		ContactSubjectPrefix: cfg.ContactSubjectPrefix,
	}, logger)

	waUC := usecase.NewWhatsAppUsecase(wa, msgRepo, limiter, usecase.WhatsAppConfig{
		MaxAttempts: cfg.WhatsAppMaxAttempts,
		RetryDelays: cfg.WhatsAppRetryDelays,
		RecipientLimit: rate.Limit{
			Max:    cfg.WhatsAppRateMax,
			Window: cfg.WhatsAppRateWindow,
			Block:  cfg.WhatsAppRateBlock,
		},
	}, logger)

	cspUC := usecase.NewCSPUsecase(logger)

	// --- Handlers ---
	contactHandler := handler.NewContactHandler(leadUC, cfg.AdminAPIToken, logger)
	cspHandler := handler.NewCSPHandler(cspUC, logger)
	waHandler := handler.NewWhatsAppHandler(waUC, cfg.WhatsAppAPIKey, logger)
	localeHandler := handler.NewLocaleHandler(bundles, logger)
	healthHandler := handler.NewHealthHandler(dbpool, rdb, logger)

	// --- HTTP routes ---
	r := router.SetupRoutes(contactHandler, cspHandler, waHandler, localeHandler, healthHandler, limiter, router.RouteConfig{
		Platform: clientip.ParsePlatform(cfg.DeploymentPlatform),
		ContactLim: rate.Limit{
			Max:    cfg.ContactRateMax,
			Window: cfg.ContactRateWindow,
			Block:  cfg.ContactRateBlock,
		},
		WhatsAppLim: rate.Limit{
			Max:    cfg.WhatsAppRateMax,
			Window: cfg.WhatsAppRateWindow,
			Block:  cfg.WhatsAppRateBlock,
		},
	}, logger)

	return &Server{
		httpSrv: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		db:        dbpool,
		rdb:       rdb,
		geoRes:    geoRes,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *Server) Addr() string {
	return s.httpSrv.Addr
}

func (s *Server) ListenAndServe() error {
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops the HTTP server, then releases backend handles.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)

	if s.publisher != nil {
		if cerr := s.publisher.Close(); cerr != nil {
			s.logger.Error("closing event publisher", zap.Error(cerr))
		}
	}
	if s.geoRes != nil {
		if cerr := s.geoRes.Close(); cerr != nil {
			s.logger.Error("closing geoip reader", zap.Error(cerr))
		}
	}
	if s.rdb != nil {
		if cerr := s.rdb.Close(); cerr != nil {
			s.logger.Error("closing redis client", zap.Error(cerr))
		}
	}
	if s.db != nil {
		s.db.Close()
	}

	return err
}
