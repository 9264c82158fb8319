package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/internal/api"
	"github.com/sirosfoundation/go-oid4vc/pkg/middleware"
)

// HolderProvider provides the credential offer routes
type HolderProvider struct {
	handlers *api.Handlers
}

// NewHolderProvider creates a new holder route provider
func NewHolderProvider(handlers *api.Handlers) *HolderProvider {
	return &HolderProvider{handlers: handlers}
}

func (p *HolderProvider) Name() string { return api.RoleHolder }

func (p *HolderProvider) RegisterRoutes(router *gin.Engine) {
	p.handlers.RegisterHolderRoutes(router)
}

// VerifierProvider provides the proof request routes. The authorization
// response endpoint is rate limited per client IP.
type VerifierProvider struct {
	handlers *api.Handlers
	limiter  *middleware.RateLimiter
	logger   *zap.Logger
}

// NewVerifierProvider creates a new verifier route provider. A nil limiter
// disables rate limiting.
func NewVerifierProvider(handlers *api.Handlers, limiter *middleware.RateLimiter, logger *zap.Logger) *VerifierProvider {
	return &VerifierProvider{handlers: handlers, limiter: limiter, logger: logger}
}

func (p *VerifierProvider) Name() string { return api.RoleVerifier }

func (p *VerifierProvider) RegisterRoutes(router *gin.Engine) {
	var responseMiddleware []gin.HandlerFunc
	if p.limiter != nil {
		responseMiddleware = append(responseMiddleware, middleware.RateLimitMiddleware(p.limiter, p.logger))
	}
	p.handlers.RegisterVerifierRoutes(router, responseMiddleware...)
}
