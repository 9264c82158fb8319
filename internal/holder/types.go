package holder

import (
	"encoding/json"
	"time"

	"github.com/sirosfoundation/go-oid4vc/internal/verification"
	"github.com/sirosfoundation/go-oid4vc/pkg/logging"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

// GrantType is an OAuth2 grant offered by a credential issuer
type GrantType string

const (
	GrantPreAuthorizedCode GrantType = oid4vc.PreAuthorizedCodeGrantType
	GrantAuthorizationCode GrantType = oid4vc.AuthorizationCodeGrantType
)

// MetadataVersion identifies the generation of issuer metadata and offer
// documents an issuer speaks. It selects the shape of outgoing requests.
type MetadataVersion int

const (
	// Draft11 uses credentials_supported lists and the user_pin parameter
	Draft11 MetadataVersion = 11
	// Draft13 uses credential_configurations_supported maps and tx_code
	Draft13 MetadataVersion = 13
)

// CredentialOffer is a normalized credential offer
type CredentialOffer struct {
	CredentialIssuer  string                  `json:"credential_issuer"`
	CredentialIDs     []string                `json:"credential_ids"`
	PreAuthorizedCode *PreAuthorizedCodeGrant `json:"pre_authorized_code,omitempty"`
	AuthorizationCode *AuthorizationCodeGrant `json:"authorization_code,omitempty"`
}

// PreAuthorizedCodeGrant holds the parameters of the pre-authorized_code grant
type PreAuthorizedCodeGrant struct {
	Code                logging.Secret `json:"-"`
	UserPINRequired     bool           `json:"user_pin_required,omitempty"`
	TxCode              *TxCode        `json:"tx_code,omitempty"`
	AuthorizationServer string         `json:"authorization_server,omitempty"`
}

// PINRequired reports whether the token request must carry a user PIN
func (g *PreAuthorizedCodeGrant) PINRequired() bool {
	return g.UserPINRequired || g.TxCode != nil
}

// TxCode describes the transaction code a user must enter
type TxCode struct {
	InputMode   string `json:"input_mode,omitempty"`
	Length      int    `json:"length,omitempty"`
	Description string `json:"description,omitempty"`
}

// AuthorizationCodeGrant holds the parameters of the authorization_code grant
type AuthorizationCodeGrant struct {
	IssuerState         string `json:"issuer_state,omitempty"`
	AuthorizationServer string `json:"authorization_server,omitempty"`
}

// GrantTypes lists the grants the offer carries
func (o CredentialOffer) GrantTypes() []GrantType {
	var grants []GrantType
	if o.PreAuthorizedCode != nil {
		grants = append(grants, GrantPreAuthorizedCode)
	}
	if o.AuthorizationCode != nil {
		grants = append(grants, GrantAuthorizationCode)
	}
	return grants
}

// IssuerMetadata is the normalized description of a credential issuer
type IssuerMetadata struct {
	CredentialIssuer                   string                `json:"credential_issuer"`
	CredentialEndpoint                 string                `json:"credential_endpoint"`
	TokenEndpoint                      string                `json:"token_endpoint"`
	AuthorizationEndpoint              string                `json:"authorization_endpoint,omitempty"`
	PushedAuthorizationRequestEndpoint string                `json:"pushed_authorization_request_endpoint,omitempty"`
	AuthorizationServer                string                `json:"authorization_server,omitempty"`
	Version                            MetadataVersion       `json:"version"`
	CredentialsSupported               []CredentialSupported `json:"credentials_supported"`
}

// CredentialSupported describes one credential an issuer can issue
type CredentialSupported struct {
	ID     string        `json:"id"`
	Format oid4vc.Format `json:"format"`
	Scope  string        `json:"scope,omitempty"`
	// BindingMethodsSupported is nil when the issuer does not declare it
	BindingMethodsSupported []string `json:"cryptographic_binding_methods_supported,omitempty"`
	// CryptographicSuitesSupported is nil when the issuer does not declare it
	CryptographicSuitesSupported []string             `json:"cryptographic_suites_supported,omitempty"`
	Definition                   CredentialDefinition `json:"definition"`
	// ProofSigningAlgValuesSupported lists the algorithms accepted for jwt
	// proofs. It is nil when proof_types_supported does not declare them.
	ProofSigningAlgValuesSupported []string `json:"proof_signing_alg_values_supported,omitempty"`
}

// CredentialDefinition describes the type of a credential. Implementations
// are JwtVcJsonDefinition, LinkedDataDefinition and SdJwtVcDefinition.
type CredentialDefinition interface {
	Accept(v CredentialDefinitionVisitor) error
	credentialDefinition()
}

// CredentialDefinitionVisitor handles every kind of CredentialDefinition
type CredentialDefinitionVisitor interface {
	VisitJwtVcJson(def JwtVcJsonDefinition) error
	VisitLinkedData(def LinkedDataDefinition) error
	VisitSdJwtVc(def SdJwtVcDefinition) error
}

// JwtVcJsonDefinition describes a jwt_vc_json credential by its types
type JwtVcJsonDefinition struct {
	Types []string `json:"types"`
}

func (d JwtVcJsonDefinition) Accept(v CredentialDefinitionVisitor) error { return v.VisitJwtVcJson(d) }
func (JwtVcJsonDefinition) credentialDefinition()                       {}

// LinkedDataDefinition describes an ldp_vc or jwt_vc_json-ld credential
type LinkedDataDefinition struct {
	Context           []interface{}          `json:"@context"`
	Types             []string               `json:"types"`
	CredentialSubject map[string]interface{} `json:"credentialSubject,omitempty"`
}

func (d LinkedDataDefinition) Accept(v CredentialDefinitionVisitor) error { return v.VisitLinkedData(d) }
func (LinkedDataDefinition) credentialDefinition()                       {}

// SdJwtVcDefinition describes an sd_jwt_vc credential by its vct
type SdJwtVcDefinition struct {
	VCT    string                 `json:"vct"`
	Claims map[string]interface{} `json:"claims,omitempty"`
}

func (d SdJwtVcDefinition) Accept(v CredentialDefinitionVisitor) error { return v.VisitSdJwtVc(d) }
func (SdJwtVcDefinition) credentialDefinition()                       {}

// ResolvedCredentialOffer is an offer joined with the metadata of its issuer.
type ResolvedCredentialOffer struct {
	Offer              CredentialOffer       `json:"credential_offer"`
	Metadata           IssuerMetadata        `json:"metadata"`
	OfferedCredentials []CredentialSupported `json:"offered_credentials"`
}

// OfferedCredential returns the offered credential with the given id
func (r *ResolvedCredentialOffer) OfferedCredential(id string) (CredentialSupported, bool) {
	for _, c := range r.OfferedCredentials {
		if c.ID == id {
			return c, true
		}
	}
	return CredentialSupported{}, false
}

// AuthorizationSession holds the state of one authorization attempt. It must
// not outlive the attempt.
type AuthorizationSession struct {
	CodeVerifier               logging.Secret `json:"-"`
	CodeChallenge              string         `json:"code_challenge"`
	CodeChallengeMethod        string         `json:"code_challenge_method"`
	AuthorizationRequestURI    string         `json:"authorization_request_uri"`
	ClientID                   string         `json:"client_id"`
	RedirectURI                string         `json:"redirect_uri"`
	Scope                      []string       `json:"scope,omitempty"`
	State                      string         `json:"state"`
	PushedAuthorizationRequest bool           `json:"pushed_authorization_request"`
}

// AccessToken is the outcome of a token request
type AccessToken struct {
	Value           logging.Secret `json:"-"`
	TokenType       string         `json:"token_type"`
	CNonce          string         `json:"c_nonce,omitempty"`
	CNonceExpiresIn int            `json:"c_nonce_expires_in,omitempty"`
	Expiry          time.Time      `json:"expiry,omitempty"`
}

// IssuedCredential is a credential received from an issuer. Implementations
// are JwtVcCredential, LdpVcCredential and SdJwtVcCredential.
type IssuedCredential interface {
	Format() oid4vc.Format
	// Raw returns the credential as it appeared in the credential response
	Raw() json.RawMessage
	Verification() verification.Result
	issuedCredential()
}

// JwtVcCredential is a jwt_vc_json or jwt_vc_json-ld credential
type JwtVcCredential struct {
	CredentialFormat oid4vc.Format       `json:"format"`
	Compact          string              `json:"credential"`
	Result           verification.Result `json:"verification"`
}

func (c JwtVcCredential) Format() oid4vc.Format             { return c.CredentialFormat }
func (c JwtVcCredential) Raw() json.RawMessage              { return quote(c.Compact) }
func (c JwtVcCredential) Verification() verification.Result { return c.Result }
func (JwtVcCredential) issuedCredential()                   {}

// LdpVcCredential is an ldp_vc credential
type LdpVcCredential struct {
	Document json.RawMessage     `json:"credential"`
	Result   verification.Result `json:"verification"`
}

func (c LdpVcCredential) Format() oid4vc.Format             { return oid4vc.FormatLdpVc }
func (c LdpVcCredential) Raw() json.RawMessage              { return c.Document }
func (c LdpVcCredential) Verification() verification.Result { return c.Result }
func (LdpVcCredential) issuedCredential()                   {}

// SdJwtVcCredential is an sd_jwt_vc credential
type SdJwtVcCredential struct {
	Compact string              `json:"credential"`
	Result  verification.Result `json:"verification"`
}

func (c SdJwtVcCredential) Format() oid4vc.Format             { return oid4vc.FormatSdJwtVc }
func (c SdJwtVcCredential) Raw() json.RawMessage              { return quote(c.Compact) }
func (c SdJwtVcCredential) Verification() verification.Result { return c.Result }
func (SdJwtVcCredential) issuedCredential()                   {}

func quote(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}
