package oid4vc

// Grant types
const (
	PreAuthorizedCodeGrantType = "urn:ietf:params:oauth:grant-type:pre-authorized_code"
	AuthorizationCodeGrantType = "authorization_code"
)

// Well-known paths
const (
	CredentialIssuerWellKnown    = "/.well-known/openid-credential-issuer"
	AuthzServerWellKnown         = "/.well-known/oauth-authorization-server"
	OpenIDConfigurationWellKnown = "/.well-known/openid-configuration"
)

// Request and response parameter names
const (
	AuthorizationDetailsParam   = "authorization_details"
	ClientIDParam               = "client_id"
	CNonceParam                 = "c_nonce"
	CNonceExpiresInParam        = "c_nonce_expires_in"
	CodeChallengeParam          = "code_challenge"
	CodeChallengeMethodParam    = "code_challenge_method"
	CredentialOfferParam        = "credential_offer"
	CredentialOfferURIParam     = "credential_offer_uri"
	IDTokenParam                = "id_token"
	IssuerStateParam            = "issuer_state"
	NonceParam                  = "nonce"
	PreAuthorizedCodeParam      = "pre-authorized_code"
	PresentationSubmissionParam = "presentation_submission"
	RequestParam                = "request"
	RequestURIParam             = "request_uri"
	ResourceParam               = "resource"
	ResponseTypeParam           = "response_type"
	StateParam                  = "state"
	TxCodeParam                 = "tx_code"
	UserPINParam                = "user_pin"
	VPTokenParam                = "vp_token"
)

// PKCE
const (
	CodeChallengeMethodS256 = "S256"
)

// Miscellaneous protocol values
const (
	ProofJWTType             = "openid4vci-proof+jwt"
	ProofTypeJWT             = "jwt"
	AuthorizationDetailsType = "openid_credential"
	ScopeOpenID              = "openid"
	CredentialOfferScheme    = "openid-credential-offer"
	SIOPRequestScheme        = "openid"
)

// Binding method identifiers as declared in cryptographic_binding_methods_supported.
const (
	BindingMethodDID = "did"
	BindingMethodJWK = "jwk"
	DIDPrefix        = "did:"
)
