package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/internal/verifier"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

// CreateProofRequestRequest asks for a new proof request
type CreateProofRequestRequest struct {
	// PresentationDefinition is optional. Without it only an id_token is requested.
	PresentationDefinition *oid4vc.PresentationDefinition `json:"presentation_definition,omitempty"`
}

// CreateProofRequestResponse carries the request for the holder
type CreateProofRequestResponse struct {
	RequestURI string `json:"request_uri"`
	State      string `json:"state"`
}

// CreateProofRequest handles POST /verifier/requests
func (h *Handlers) CreateProofRequest(c *gin.Context) {
	var req CreateProofRequestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, errInvalidRequest, err)
			return
		}
	}

	request, _, err := h.verifier.CreateProofRequest(c.Request.Context(), verifier.ProofRequestOptions{
		PresentationDefinition: req.PresentationDefinition,
		RedirectURI:            h.cfg.Verifier.ResponseURI,
		KeyID:                  h.verifierKeyID,
		Algorithm:              h.cfg.Verifier.SigningAlgorithm,
	})
	if err != nil {
		h.logger.Error("Failed to create proof request", zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, CreateProofRequestResponse{
		RequestURI: request.RequestURI,
		State:      request.State,
	})
}

// AuthorizationResponse handles POST /verifier/response. The holder posts
// id_token, vp_token, presentation_submission and state as a form.
func (h *Handlers) AuthorizationResponse(c *gin.Context) {
	state := c.PostForm(oid4vc.StateParam)
	if state == "" {
		abortWithError(c, http.StatusBadRequest, errInvalidRequest, errors.New("state is missing"))
		return
	}

	ctx := c.Request.Context()
	session, err := h.sessions.Get(ctx, state)
	if errors.Is(err, verifier.ErrSessionNotFound) {
		abortWithError(c, http.StatusBadRequest, errInvalidRequest, errors.New("unknown or expired state"))
		return
	}
	if err != nil {
		h.logger.Error("Failed to load proof request session", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, errServerError, errors.New("session store unavailable"))
		return
	}

	resp := verifier.AuthorizationResponse{
		IDToken: c.PostForm(oid4vc.IDTokenParam),
		State:   state,
	}
	if v := c.PostForm(oid4vc.VPTokenParam); v != "" {
		resp.VPToken = formValue(v)
	}
	if v := c.PostForm(oid4vc.PresentationSubmissionParam); v != "" {
		resp.PresentationSubmission = json.RawMessage(v)
	}

	result, err := h.verifier.VerifyAuthorizationResponse(ctx, resp, session)
	if errors.Is(err, oid4vc.ErrMissingContext) {
		abortWithError(c, http.StatusBadRequest, errInvalidRequest, err)
		return
	}
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, errInvalidRequest, err)
		return
	}
	if err := h.sessions.Delete(ctx, state); err != nil {
		h.logger.Warn("Failed to delete proof request session", zap.String("state", state), zap.Error(err))
	}

	h.logger.Info("Accepted authorization response",
		zap.String("state", state),
		zap.Any("subject", result.IDTokenPayload["sub"]))
	c.Status(http.StatusOK)
}

// formValue keeps a JSON vp_token as is and encodes a compact one as a JSON string
func formValue(v string) json.RawMessage {
	if json.Valid([]byte(v)) {
		return json.RawMessage(v)
	}
	data, _ := json.Marshal(v)
	return data
}
