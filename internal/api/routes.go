package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterHolderRoutes adds the holder endpoints to router
func (h *Handlers) RegisterHolderRoutes(router gin.IRouter) {
	offers := router.Group("/holder/offers")
	{
		offers.POST("/resolve", h.ResolveOffer)
		offers.POST("/accept", h.AcceptOffer)
		offers.POST("/authorize", h.AuthorizeOffer)
		offers.GET("/callback", h.AuthorizationCallback)
		offers.POST("/callback", h.AuthorizationCallback)
	}
}

// RegisterVerifierRoutes adds the verifier endpoints to router. The response
// endpoint is reachable by anyone holding a request and is wrapped with
// responseMiddleware.
func (h *Handlers) RegisterVerifierRoutes(router gin.IRouter, responseMiddleware ...gin.HandlerFunc) {
	group := router.Group("/verifier")
	{
		group.POST("/requests", h.CreateProofRequest)
		group.POST("/response", append(responseMiddleware, h.AuthorizationResponse)...)
	}
}
