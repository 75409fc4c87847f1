package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/karatlane/karat/pkg/api"
	"github.com/karatlane/karat/pkg/audit"
	"github.com/karatlane/karat/pkg/config"
	"github.com/karatlane/karat/pkg/floors"
	"github.com/karatlane/karat/pkg/identity"
	"github.com/karatlane/karat/pkg/observability"
	"github.com/karatlane/karat/pkg/storage/postgres"
	"github.com/karatlane/karat/pkg/stores"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewDefaultLogger().WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("port", cfg.Server.Port).Info("starting karat CRM")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("tracing disabled, OTel init failed")
	}

	db, err := postgres.Connect(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer db.Close()

	rows := postgres.NewRowStore(db)
	crm := postgres.NewCRMStore(db)

	redisClient, err := postgres.NewRedisClient(cfg.Storage)
	if err != nil {
		logger.WithError(err).Warn("redis unavailable, store preferences fall back to memory")
		redisClient = nil
	}

	var prefs stores.Preferences
	if redisClient != nil {
		prefs = stores.NewRedisPreferences(redisClient.GetClient(), cfg.Storage.CacheTTL)
	} else {
		prefs = stores.NewMemoryPreferences()
	}

	storeCtx := stores.NewContext(crm, prefs,
		stores.WithLogger(logger),
		stores.WithMetrics(metrics),
	)
	storeCtx.Load(ctx, "server")

	floorCtx := floors.NewContext(crm, floors.WithLogger(logger))

	var media api.Media
	if cfg.Storage.S3Bucket != "" {
		mediaStore, err := postgres.NewMediaStore(cfg.Storage)
		if err != nil {
			logger.WithError(err).Warn("media store unavailable, image endpoints disabled")
		} else {
			media = mediaStore
		}
	}

	provider, err := newIdentityProvider(ctx, cfg.Identity)
	if err != nil {
		logger.WithError(err).Error("failed to initialize identity provider")
		os.Exit(1)
	}

	state := identity.NewState(provider,
		identity.WithHydrateRetries(cfg.Identity.HydrateRetries),
		identity.WithHydrateBackoff(cfg.Identity.HydrateBackoff),
		identity.WithHydrateTimeout(cfg.Identity.HydrateTimeout),
		identity.WithStateLogger(logger),
	)
	if err := state.Start(ctx); err != nil {
		logger.WithError(err).Error("failed to start auth state store")
		os.Exit(1)
	}
	defer state.Stop()

	auditLogger, auditStore, err := newAuditTrail(db, cfg.Audit)
	if err != nil {
		logger.WithError(err).Error("failed to initialize audit trail")
		os.Exit(1)
	}
	defer auditLogger.Close()

	policy, err := config.LoadAccessPolicy(cfg.PolicyFile, logger)
	if err != nil {
		logger.WithError(err).Error("failed to load access policy")
		os.Exit(1)
	}
	if err := policy.Watch(ctx); err != nil {
		logger.WithError(err).Warn("access policy hot reload disabled")
	}

	var auditAPI *audit.Handlers
	if auditStore != nil {
		auditAPI = audit.NewHandlers(auditStore)
	}

	server := api.NewServer(api.Deps{
		Rows:           rows,
		Media:          media,
		Stores:         storeCtx,
		Floors:         floorCtx,
		Provider:       provider,
		ProviderName:   cfg.Identity.Provider,
		State:          state,
		Policy:         policy,
		Audit:          auditLogger,
		AuditAPI:       auditAPI,
		Logger:         logger,
		Metrics:        metrics,
		SignInURL:      cfg.Server.SignInURL,
		LogAllRequests: cfg.Audit.LogAllRequests,
	})

	var apiHandler http.Handler = server
	if otelProviders != nil {
		apiHandler = otelhttp.NewHandler(apiHandler, "karat-api")
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      apiHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	var redisRaw *redis.Client
	if redisClient != nil {
		redisRaw = redisClient.GetClient()
	}
	checker := observability.NewHealthChecker(db, redisRaw)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	sm := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(sctx context.Context) error {
		return healthServer.Shutdown(sctx)
	})
	if redisClient != nil {
		sm.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	if otelProviders != nil {
		sm.RegisterShutdownFunc(func(sctx context.Context) error {
			return observability.ShutdownOTel(sctx, otelProviders, logger)
		})
	}

	if err := sm.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
	}
	cancel()
	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	logger.Info("karat CRM stopped")
}

// newIdentityProvider builds the configured provider adapter.
func newIdentityProvider(ctx context.Context, cfg config.IdentityConfig) (identity.Provider, error) {
	pc := identity.ProviderConfig{Type: cfg.ProviderType()}
	switch pc.Type {
	case identity.ProviderTypeSAML:
		pc.SAML = &identity.SAMLConfig{
			SSOURL:      cfg.SAMLSSOURL,
			EntityID:    cfg.SAMLEntityID,
			Certificate: cfg.SAMLCertificate,
			PrivateKey:  cfg.SAMLPrivateKey,
			BaseURL:     cfg.SAMLBaseURL,
		}
	default:
		pc.OIDC = &identity.OIDCConfig{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			IssuerURL:    cfg.OIDCIssuer,
		}
	}
	return identity.NewProvider(ctx, pc)
}

// newAuditTrail assembles the configured audit sinks. The DB sink also
// backs the search and export API.
func newAuditTrail(db *sql.DB, cfg config.AuditConfig) (audit.Logger, audit.Store, error) {
	var sinks []audit.Logger
	var store audit.Store

	if cfg.DBEnabled {
		dbLogger, err := audit.NewDBLogger(db)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, dbLogger)
		store = audit.NewDBStore(dbLogger)
	}
	if cfg.FileEnabled {
		fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{
			BasePath: cfg.FilePath,
			Rotate:   true,
		})
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fileLogger)
	}

	switch len(sinks) {
	case 0:
		return audit.NewNoOpLogger(), nil, nil
	case 1:
		return sinks[0], store, nil
	default:
		return audit.NewMultiLogger(sinks...), store, nil
	}
}
