package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/aisaas/backend/infra/clerk"
	"github.com/aisaas/backend/infra/gemini"
	"github.com/aisaas/backend/infra/huggingface"
	"github.com/aisaas/backend/infra/media"
	"github.com/aisaas/backend/internal/app/core/service"
	"github.com/aisaas/backend/internal/app/httpapi"
	"github.com/aisaas/backend/internal/app/metrics"
	"github.com/aisaas/backend/internal/app/services/creations"
	"github.com/aisaas/backend/internal/app/storage"
	"github.com/aisaas/backend/internal/app/storage/cache"
	"github.com/aisaas/backend/internal/app/storage/sqlstore"
	"github.com/aisaas/backend/internal/app/system"
	"github.com/aisaas/backend/internal/backoff"
	"github.com/aisaas/backend/internal/config"
	"github.com/aisaas/backend/internal/logging"
	"github.com/aisaas/backend/internal/middleware"
	"github.com/aisaas/backend/internal/platform/migrations"
	"github.com/aisaas/backend/internal/usage"
)

const shutdownTimeout = 15 * time.Second

// Application ties the creations service to its providers, storage and HTTP
// surface, and manages their lifecycle.
type Application struct {
	cfg     *config.Config
	log     *logging.Logger
	manager *system.Manager
	server  *system.HTTPServer
	closers []func() error

	Metrics   *metrics.Metrics
	Creations *creations.Service
	Handler   http.Handler
}

// New builds a fully wired application from cfg. The caller owns Run.
func New(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.New("aisaas", cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Application{
		cfg:     cfg,
		log:     log,
		manager: system.NewManager(log),
		Metrics: metrics.New("aisaas"),
	}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	db, err := OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	if cfg.Database.AutoMigrate {
		if err := migrations.Migrate(ctx, db.DB, cfg.Database.Driver); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	sqlStore := sqlstore.New(db)

	var store storage.CreationStore = sqlStore
	var cached *cache.Store
	if cfg.Cache.RedisURL != "" {
		kv, err := cache.NewRedisKV(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, kv.Close)
		cached = cache.New(sqlStore, kv, cfg.Cache.PublishedTTL,
			cache.WithLogger(log.WithContext(ctx).WithField("component", "published-cache")),
			cache.WithLookupObserver(a.Metrics.RecordCacheLookup),
		)
		store = cached
	}

	verifier, err := clerk.NewSessionVerifier(cfg.Clerk.JWTKey, cfg.Plans.PremiumPlan, cfg.Clerk.Parties())
	if err != nil {
		return nil, fmt.Errorf("clerk verifier: %w", err)
	}
	clerkClient := clerk.NewClient(clerk.ClientConfig{SecretKey: cfg.Clerk.SecretKey, APIURL: cfg.Clerk.APIURL})
	meter := usage.NewMeter(clerkClient, cfg.Plans.FreeCreationLimit)

	text := gemini.New(gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		BaseURL: cfg.Gemini.BaseURL,
		Model:   cfg.Gemini.Model,
		Timeout: cfg.Gemini.Timeout,
	}, gemini.WithPolicy(a.retryPolicy("gemini")))
	reviewer, err := gemini.NewReviewer(ctx, cfg.Gemini.APIKey, cfg.Gemini.ReviewModel, gemini.WithReviewPolicy(a.retryPolicy("gemini")))
	if err != nil {
		return nil, fmt.Errorf("gemini reviewer: %w", err)
	}
	images := huggingface.New(huggingface.Config{
		APIURL:  cfg.HuggingFace.APIURL,
		APIKey:  cfg.HuggingFace.APIKey,
		Timeout: cfg.HuggingFace.Timeout,
	})
	host, err := NewMediaHost(cfg.Media)
	if err != nil {
		return nil, err
	}

	a.Creations = creations.New(creations.Dependencies{
		Store:    store,
		Text:     text,
		Images:   images,
		Media:    host,
		Reviewer: reviewer,
		Meter:    meter,
		Metrics:  a.Metrics,
	}, creations.Limits{
		MaxImageBytes:  cfg.Plans.MaxImageBytes,
		MaxResumeBytes: cfg.Plans.MaxResumeBytes,
	}, log)

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, log)
	a.Handler = httpapi.NewRouter(a.Creations, httpapi.Options{
		Verifier:    verifier,
		Usage:       meter,
		RateLimiter: limiter,
		CORSOrigins: cfg.Server.AllowedOrigins(),
		Metrics:     a.Metrics,
		Logger:      log,
		Health:      sqlStore.Ping,
	})

	scheduler := system.NewScheduler(log, time.Minute)
	if err := scheduler.Add("rate-limit-cleanup", cfg.Server.MaintenanceSpec, func(context.Context) error {
		if removed := limiter.Cleanup(); removed > 0 {
			log.WithField("removed", removed).Debug("pruned idle rate limiters")
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if cached != nil {
		if err := scheduler.Add("published-cache-warm", cfg.Server.MaintenanceSpec, func(ctx context.Context) error {
			_, err := cached.Warm(ctx)
			return err
		}); err != nil {
			return nil, err
		}
	}

	a.server = system.NewHTTPServer(cfg.Server.Addr(), a.Handler, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, log)
	for _, svc := range []system.Service{serviceAdapter{a.Creations}, scheduler, a.server} {
		if err := a.manager.Register(svc); err != nil {
			return nil, err
		}
	}

	ok = true
	return a, nil
}

// Run starts every service and blocks until ctx is cancelled or the HTTP
// server fails, then shuts down.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	if err := a.manager.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err, open := <-a.server.Err():
			if open && err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		a.log.Info("shutting down")
		return a.manager.Stop(stopCtx)
	})
	return g.Wait()
}

func (a *Application) retryPolicy(provider string) backoff.Policy {
	p := backoff.Default()
	p.OnRetry = func(attempt int, delay time.Duration) {
		a.Metrics.RecordRetry(provider)
		a.log.WithField("provider", provider).WithField("attempt", attempt).
			WithField("delay", delay.String()).Warn("provider overloaded, retrying")
	}
	return p
}

func (a *Application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("error closing resource")
		}
	}
	a.closers = nil
}

// OpenDatabase opens the configured database and applies pool settings.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlstore.Open(ctx, cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Driver == "postgres" {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}
	return db, nil
}

// NewMediaHost selects the configured media backend.
func NewMediaHost(cfg config.MediaConfig) (media.Host, error) {
	switch cfg.Backend {
	case "cloudinary":
		return media.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	case "minio":
		return media.NewMinio(media.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
	default:
		return nil, errors.New("unsupported media backend " + cfg.Backend)
	}
}

// serviceAdapter lets the stateless creations service appear in the
// lifecycle so its descriptor is logged at startup.
type serviceAdapter struct {
	svc *creations.Service
}

func (s serviceAdapter) Name() string                  { return "creations" }
func (s serviceAdapter) Start(context.Context) error    { return nil }
func (s serviceAdapter) Stop(context.Context) error     { return nil }
func (s serviceAdapter) Descriptor() service.Descriptor { return s.svc.Descriptor() }
