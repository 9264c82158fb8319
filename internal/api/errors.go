package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

// Error codes of the JSON error body
const (
	errInvalidRequest = "invalid_request"
	errIssuerError    = "issuer_error"
	errServerError    = "server_error"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func abortWithError(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, ErrorDescription: err.Error()})
}

// respondError maps an oid4vc error kind to a status code. Configuration
// problems are the caller's, failures of the issuer are reported as 502.
func respondError(c *gin.Context, err error) {
	switch oid4vc.KindOf(err) {
	case oid4vc.ErrConfiguration,
		oid4vc.ErrUnsupportedFormat,
		oid4vc.ErrNoCompatibleAlgorithm,
		oid4vc.ErrBindingMismatch,
		oid4vc.ErrAmbiguousKeyReference,
		oid4vc.ErrMissingContext:
		abortWithError(c, http.StatusBadRequest, errInvalidRequest, err)
	case oid4vc.ErrOfferResolution,
		oid4vc.ErrMetadata,
		oid4vc.ErrTokenAcquisition,
		oid4vc.ErrCredentialRequest,
		oid4vc.ErrVerification:
		abortWithError(c, http.StatusBadGateway, errIssuerError, err)
	default:
		abortWithError(c, http.StatusInternalServerError, errServerError, err)
	}
}
