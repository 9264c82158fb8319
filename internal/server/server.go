package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/internal/api"
	"github.com/sirosfoundation/go-oid4vc/pkg/config"
	"github.com/sirosfoundation/go-oid4vc/pkg/middleware"
)

// RouteProvider allows roles to register their routes on a shared router.
// This separates route definition from server lifecycle management.
type RouteProvider interface {
	// RegisterRoutes adds this role's routes to the router.
	RegisterRoutes(router *gin.Engine)

	// Name returns the role name for logging and /status
	Name() string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPAddress string
	HTTPPort    int

	CORS         config.CORSConfig
	LoggingLevel string
}

// Manager manages the HTTP server and combines multiple RouteProviders
type Manager struct {
	cfg    *ServerConfig
	logger *zap.Logger

	providers []RouteProvider

	httpServer *http.Server
	httpRouter *gin.Engine
}

// NewManager creates a new server manager
func NewManager(cfg *ServerConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		logger:    logger,
		providers: make([]RouteProvider, 0),
	}
}

// AddProvider adds a RouteProvider to the manager.
// Call this before Start() to register all roles.
func (m *Manager) AddProvider(p RouteProvider) {
	m.providers = append(m.providers, p)
	m.logger.Debug("Added route provider", zap.String("name", p.Name()))
}

// Handler builds the router with every provider's routes
func (m *Manager) Handler() http.Handler {
	if m.httpRouter != nil {
		return m.httpRouter
	}
	m.httpRouter = m.buildRouter()
	for _, p := range m.providers {
		m.logger.Info("Registering HTTP routes", zap.String("role", p.Name()))
		p.RegisterRoutes(m.httpRouter)
	}
	m.addStatusEndpoints(m.httpRouter)
	return m.httpRouter
}

// Start binds the listener and serves in the background. Bind errors are
// returned directly.
func (m *Manager) Start(ctx context.Context) error {
	if m.cfg.LoggingLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	httpAddr := fmt.Sprintf("%s:%d", m.cfg.HTTPAddress, m.cfg.HTTPPort)
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", httpAddr, err)
	}

	m.httpServer = &http.Server{
		Handler:      m.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		m.logger.Info("HTTP server listening", zap.String("address", listener.Addr().String()))
		if err := m.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.httpServer == nil {
		return nil
	}
	if err := m.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}

// buildRouter creates a new router with common middleware
func (m *Manager) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(m.logger))
	if len(m.cfg.CORS.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: m.cfg.CORS.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
			MaxAge:       12 * time.Hour,
		}))
	}
	return router
}

// roles lists the names of the registered providers
func (m *Manager) roles() []string {
	roles := make([]string, 0, len(m.providers))
	for _, p := range m.providers {
		roles = append(roles, p.Name())
	}
	return roles
}

// addStatusEndpoints adds /health and /status routes
func (m *Manager) addStatusEndpoints(router *gin.Engine) {
	roles := m.roles()
	handler := func(c *gin.Context) {
		c.JSON(http.StatusOK, api.StatusResponse{
			Status:       "ok",
			Service:      "go-oid4vc",
			Roles:        roles,
			APIVersion:   api.CurrentAPIVersion,
			Capabilities: api.CapabilitiesForRoles(roles),
		})
	}
	router.GET("/health", handler)
	router.GET("/status", handler)
}
