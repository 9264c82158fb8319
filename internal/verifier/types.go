package verifier

import (
	"encoding/json"

	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

// HolderMetadata describes the holder capabilities the verifier is willing
// to accept. It is sent as the registration block of the request object.
type HolderMetadata struct {
	IDTokenSigningAlgValuesSupported       []string               `json:"id_token_signing_alg_values_supported"`
	RequestObjectSigningAlgValuesSupported []string               `json:"request_object_signing_alg_values_supported"`
	ResponseTypesSupported                 []string               `json:"response_types_supported"`
	ScopesSupported                        []string               `json:"scopes_supported"`
	SubjectTypesSupported                  []string               `json:"subject_types_supported"`
	SubjectSyntaxTypesSupported            []string               `json:"subject_syntax_types_supported"`
	VPFormats                              map[string]interface{} `json:"vp_formats"`
}

// DefaultHolderMetadata accepts EdDSA signed did:key holders
func DefaultHolderMetadata() HolderMetadata {
	algs := map[string]interface{}{"alg": []string{"EdDSA"}}
	suites := map[string]interface{}{"proof_type": []string{"Ed25519Signature2018"}}
	return HolderMetadata{
		IDTokenSigningAlgValuesSupported:       []string{"EdDSA"},
		RequestObjectSigningAlgValuesSupported: []string{"EdDSA"},
		ResponseTypesSupported:                 []string{"id_token", "vp_token"},
		ScopesSupported:                        []string{oid4vc.ScopeOpenID},
		SubjectTypesSupported:                  []string{"pairwise"},
		SubjectSyntaxTypesSupported:            []string{"did:key"},
		VPFormats: map[string]interface{}{
			"jwt_vc": algs,
			"jwt_vp": algs,
			"ldp_vc": suites,
			"ldp_vp": suites,
		},
	}
}

// ProofRequestOptions configures a proof request
type ProofRequestOptions struct {
	// PresentationDefinition is optional. Without one, the request only asks
	// for a self-issued id_token.
	PresentationDefinition *oid4vc.PresentationDefinition
	// HolderMetadata defaults to DefaultHolderMetadata
	HolderMetadata *HolderMetadata
	// RedirectURI receives the authorization response
	RedirectURI string
	// KeyID is the verifier DID URL used to sign the request. Its DID is the client_id.
	KeyID string
	// Algorithm defaults to the first signer algorithm the key supports
	Algorithm string
}

// ProofRequest is a signed request ready to be shared with a holder
type ProofRequest struct {
	// RequestURI is an openid:// URI carrying the request by value
	RequestURI    string `json:"request_uri"`
	RequestObject string `json:"request"`
	State         string `json:"state"`
	Nonce         string `json:"nonce"`
}

// AuthorizationResponse is the holder's answer posted to the redirect URI
type AuthorizationResponse struct {
	IDToken string `json:"id_token"`
	// VPToken is a JSON string holding a compact JWS, or a JSON object
	VPToken json.RawMessage `json:"vp_token,omitempty"`
	// PresentationSubmission is either a JSON object or a JSON-encoded string
	PresentationSubmission json.RawMessage `json:"presentation_submission,omitempty"`
	State                  string          `json:"state,omitempty"`
}

// VerifiedAuthorizationResponse is the outcome of a successful verification
type VerifiedAuthorizationResponse struct {
	IDTokenPayload         map[string]interface{}         `json:"id_token_payload"`
	PresentationSubmission *oid4vc.PresentationSubmission `json:"presentation_submission,omitempty"`
	// Presentation is the decoded vp_token
	Presentation map[string]interface{} `json:"presentation,omitempty"`
}
