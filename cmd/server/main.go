package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/internal/api"
	"github.com/sirosfoundation/go-oid4vc/internal/didresolver"
	"github.com/sirosfoundation/go-oid4vc/internal/holder"
	"github.com/sirosfoundation/go-oid4vc/internal/modes"
	"github.com/sirosfoundation/go-oid4vc/internal/server"
	"github.com/sirosfoundation/go-oid4vc/internal/verification"
	"github.com/sirosfoundation/go-oid4vc/internal/verifier"
	"github.com/sirosfoundation/go-oid4vc/pkg/config"
	"github.com/sirosfoundation/go-oid4vc/pkg/jose"
	"github.com/sirosfoundation/go-oid4vc/pkg/logging"
	"github.com/sirosfoundation/go-oid4vc/pkg/middleware"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
	modeFlag   = flag.String("mode", "all", "Comma-separated roles to run: all, holder, verifier")
	version    = "dev"
	buildTime  = "unknown"
)

func main() {
	flag.Parse()

	roles, err := modes.ParseModes(*modeFlag)
	if err != nil {
		log.Fatalf("Invalid mode: %v", err)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting OpenID4VC server",
		zap.String("version", version),
		zap.String("build_time", buildTime),
		zap.String("roles", roles.String()),
	)

	if err := run(cfg, roles, logger); err != nil {
		logger.Error("Server failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("Server exited")
}

func run(cfg *config.Config, roles modes.Set, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Holder and verifier keys live in separate signers.
	resolver := didresolver.NewDefaultRouter()
	deps := api.Dependencies{}

	if roles.Holder {
		signer := jose.NewMemorySigner()
		key, err := signer.GenerateKey(cfg.Holder.KeyAlgorithm)
		if err != nil {
			return fmt.Errorf("generating holder key: %w", err)
		}
		binding, err := holder.NewKeyBindingResolver(key)
		if err != nil {
			return fmt.Errorf("creating key binding: %w", err)
		}
		dispatcher := verification.NewDispatcher(
			verification.NewJWSCredentialVerifier(resolver),
			verification.NewSdJwtVerifier(resolver),
			logger,
		)
		engine, err := holder.NewEngine(holder.Options{
			HTTPClient:  &http.Client{Timeout: cfg.Holder.HTTPTimeout()},
			DIDResolver: resolver,
			Signer:      signer,
			Verifier:    dispatcher,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("creating holder engine: %w", err)
		}
		deps.Holder = engine
		deps.Binding = binding
		logger.Info("Holder key ready", zap.String("kid", binding.DIDURL()))
		logger.Warn("No linked data proof verifier configured, ldp_vc credentials will be reported invalid")
	}

	if roles.Verifier {
		signer := jose.NewMemorySigner()
		key, err := signer.GenerateKey(cfg.Verifier.KeyAlgorithm)
		if err != nil {
			return fmt.Errorf("generating verifier key: %w", err)
		}
		id, err := didresolver.NewDIDJWK(key)
		if err != nil {
			return fmt.Errorf("creating verifier DID: %w", err)
		}
		sessions, err := newSessionStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = sessions.Close() }()

		service, err := verifier.NewService(verifier.Options{
			Signer:      signer,
			DIDResolver: resolver,
			Sessions:    sessions,
			RequestTTL:  cfg.Verifier.RequestTTL(),
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("creating verifier service: %w", err)
		}
		deps.Verifier = service
		deps.Sessions = sessions
		deps.VerifierKeyID = id.String() + "#0"
		logger.Info("Verifier identity ready", zap.String("client_id", id.String()))
	}

	handlers, err := api.NewHandlers(deps, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating handlers: %w", err)
	}

	manager := server.NewManager(&server.ServerConfig{
		HTTPAddress:  cfg.Server.Host,
		HTTPPort:     cfg.Server.Port,
		CORS:         cfg.Server.CORS,
		LoggingLevel: cfg.Logging.Level,
	}, logger)
	if roles.Holder {
		manager.AddProvider(server.NewHolderProvider(handlers))
	}
	if roles.Verifier {
		var limiter *middleware.RateLimiter
		if cfg.RateLimit.Enabled {
			limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
				BurstSize:         cfg.RateLimit.Burst,
			}, logger)
			defer limiter.Stop()
		}
		manager.AddProvider(server.NewVerifierProvider(handlers, limiter, logger))
	}

	if err := manager.Start(ctx); err != nil {
		return err
	}

	// Wait for interrupt signal
	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	return nil
}

// newSessionStore creates the configured proof request session store. The
// memory store is swept in the background until ctx is done.
func newSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (verifier.SessionStore, error) {
	switch cfg.SessionStore.Type {
	case "redis":
		store, err := verifier.NewRedisSessionStore(&verifier.RedisSessionConfig{
			Address:    cfg.SessionStore.Redis.Address,
			Password:   cfg.SessionStore.Redis.Password,
			DB:         cfg.SessionStore.Redis.DB,
			KeyPrefix:  cfg.SessionStore.Redis.KeyPrefix,
			DefaultTTL: cfg.Verifier.RequestTTL(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("initializing redis session store: %w", err)
		}
		logger.Info("Using redis session store", zap.String("address", cfg.SessionStore.Redis.Address))
		return store, nil
	default:
		store := verifier.NewMemorySessionStore(logger)
		interval := time.Duration(cfg.SessionStore.CleanupIntervalSeconds) * time.Second
		if interval > 0 {
			go verifier.RunCleanup(ctx, store, interval, logger)
		}
		logger.Info("Using in-memory session store")
		return store, nil
	}
}
