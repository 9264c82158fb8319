package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/internal/holder"
	"github.com/sirosfoundation/go-oid4vc/internal/verification"
	"github.com/sirosfoundation/go-oid4vc/pkg/logging"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

// ResolveOfferRequest carries a credential offer by value or by reference
type ResolveOfferRequest struct {
	CredentialOffer string `json:"credential_offer" binding:"required"`
}

// AcceptOfferRequest runs the pre-authorized_code flow for an offer
type AcceptOfferRequest struct {
	CredentialOffer string `json:"credential_offer" binding:"required"`
	UserPIN         string `json:"user_pin,omitempty"`
	// Credentials selects offered credential ids. Omitted requests all of
	// them, an empty list requests none.
	Credentials       []string `json:"credentials,omitempty"`
	AllowedAlgorithms []string `json:"allowed_algorithms,omitempty"`
}

// AuthorizeOfferRequest starts the authorization_code flow for an offer
type AuthorizeOfferRequest struct {
	CredentialOffer string   `json:"credential_offer" binding:"required"`
	Credentials     []string `json:"credentials,omitempty"`
	Scope           []string `json:"scope,omitempty"`
}

// AuthorizeOfferResponse tells the client where to send the user
type AuthorizeOfferResponse struct {
	AuthorizationRequestURI string `json:"authorization_request_uri"`
	State                   string `json:"state"`
}

// CallbackRequest completes the authorization_code flow
type CallbackRequest struct {
	State string `json:"state" form:"state" binding:"required"`
	Code  string `json:"code" form:"code" binding:"required"`
}

// IssuedCredentialResponse is one issued credential with its verification result
type IssuedCredentialResponse struct {
	Format       oid4vc.Format       `json:"format"`
	Credential   json.RawMessage     `json:"credential"`
	Verification verification.Result `json:"verification"`
}

// AcceptOfferResponse lists the issued credentials
type AcceptOfferResponse struct {
	Credentials []IssuedCredentialResponse `json:"credentials"`
}

// ResolveOffer handles POST /holder/offers/resolve
func (h *Handlers) ResolveOffer(c *gin.Context) {
	var req ResolveOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, errInvalidRequest, err)
		return
	}

	offer, err := h.holder.Resolve(c.Request.Context(), req.CredentialOffer)
	if err != nil {
		h.logger.Info("Failed to resolve credential offer", zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

// AcceptOffer handles POST /holder/offers/accept. Each issued credential is
// returned with its verification result; a failed check does not fail the
// request. With the stock verifiers ldp_vc credentials are always reported
// with is_valid false until a linked data proof verifier is injected.
func (h *Handlers) AcceptOffer(c *gin.Context) {
	var req AcceptOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, errInvalidRequest, err)
		return
	}

	ctx := c.Request.Context()
	offer, err := h.holder.Resolve(ctx, req.CredentialOffer)
	if err != nil {
		respondError(c, err)
		return
	}
	if offer.Offer.PreAuthorizedCode == nil {
		abortWithError(c, http.StatusBadRequest, errInvalidRequest,
			errors.New("offer carries no pre-authorized_code grant, use /holder/offers/authorize"))
		return
	}

	issued, err := h.holder.AcceptCredentialOffer(ctx, offer, holder.AcceptOptions{
		CredentialIDs:     req.Credentials,
		AllowedAlgorithms: h.allowedAlgorithms(req.AllowedAlgorithms),
		BindingResolver:   h.binding,
		ClientID:          h.cfg.Holder.ClientID,
		UserPIN:           logging.Secret(req.UserPIN),
	})
	if err != nil {
		h.logger.Info("Failed to accept credential offer",
			zap.String("issuer", offer.Metadata.CredentialIssuer),
			zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issuedResponse(issued))
}

// AuthorizeOffer handles POST /holder/offers/authorize
func (h *Handlers) AuthorizeOffer(c *gin.Context) {
	var req AuthorizeOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, errInvalidRequest, err)
		return
	}

	ctx := c.Request.Context()
	offer, err := h.holder.Resolve(ctx, req.CredentialOffer)
	if err != nil {
		respondError(c, err)
		return
	}
	session, err := h.holder.BuildAuthorizationRequest(ctx, offer, holder.AuthorizationOptions{
		ClientID:      h.cfg.Holder.ClientID,
		RedirectURI:   h.cfg.Holder.RedirectURI,
		Scope:         req.Scope,
		CredentialIDs: req.Credentials,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.pending.put(&pendingAuthorization{
		offer:         offer,
		session:       session,
		credentialIDs: req.Credentials,
	})
	c.JSON(http.StatusOK, AuthorizeOfferResponse{
		AuthorizationRequestURI: session.AuthorizationRequestURI,
		State:                   session.State,
	})
}

// AuthorizationCallback handles the redirect from the authorization server,
// as a GET with query parameters or a POST with a JSON body.
func (h *Handlers) AuthorizationCallback(c *gin.Context) {
	var req CallbackRequest
	var err error
	if c.Request.Method == http.MethodGet {
		if errCode := c.Query("error"); errCode != "" {
			h.pending.take(c.Query("state"))
			abortWithError(c, http.StatusBadRequest, errCode, errors.New(c.Query("error_description")))
			return
		}
		err = c.ShouldBindQuery(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		abortWithError(c, http.StatusBadRequest, errInvalidRequest, err)
		return
	}

	pending, ok := h.pending.take(req.State)
	if !ok {
		abortWithError(c, http.StatusBadRequest, errInvalidRequest, errors.New("unknown or expired state"))
		return
	}

	issued, err := h.holder.AcceptCredentialOffer(c.Request.Context(), pending.offer, holder.AcceptOptions{
		CredentialIDs:     pending.credentialIDs,
		AllowedAlgorithms: h.allowedAlgorithms(nil),
		BindingResolver:   h.binding,
		ClientID:          h.cfg.Holder.ClientID,
		Code:              req.Code,
		Session:           pending.session,
	})
	if err != nil {
		h.logger.Info("Failed to complete authorization code flow",
			zap.String("issuer", pending.offer.Metadata.CredentialIssuer),
			zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issuedResponse(issued))
}

// allowedAlgorithms narrows the configured algorithms to the requested ones
func (h *Handlers) allowedAlgorithms(requested []string) []string {
	configured := h.cfg.Holder.AllowedAlgorithms
	if requested == nil {
		return configured
	}
	if configured == nil {
		return requested
	}
	return lo.Filter(requested, func(alg string, _ int) bool {
		return lo.Contains(configured, alg)
	})
}

func issuedResponse(issued []holder.IssuedCredential) AcceptOfferResponse {
	resp := AcceptOfferResponse{Credentials: make([]IssuedCredentialResponse, 0, len(issued))}
	for _, credential := range issued {
		resp.Credentials = append(resp.Credentials, IssuedCredentialResponse{
			Format:       credential.Format(),
			Credential:   credential.Raw(),
			Verification: credential.Verification(),
		})
	}
	return resp
}
