package holder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

// AuthorizationOptions configures an authorization request
type AuthorizationOptions struct {
	ClientID    string
	RedirectURI string
	Scope       []string
	// CredentialIDs selects the offered credentials to request authorization
	// for. Nil selects every offered credential.
	CredentialIDs []string
	// State defaults to a random value
	State string
}

type pushedAuthorizationResponse struct {
	RequestURI string `json:"request_uri"`
	ExpiresIn  int    `json:"expires_in"`
}

// BuildAuthorizationRequest assembles the authorization request for an
// authorization_code flow. When the issuer declares a pushed authorization
// request endpoint, the parameters are pushed there and the returned URI only
// references the request handle.
func (e *Engine) BuildAuthorizationRequest(ctx context.Context, offer *ResolvedCredentialOffer, opts AuthorizationOptions) (*AuthorizationSession, error) {
	if opts.ClientID == "" {
		return nil, oid4vc.Errorf(oid4vc.ErrConfiguration, "client_id is required")
	}
	if opts.RedirectURI == "" {
		return nil, oid4vc.Errorf(oid4vc.ErrConfiguration, "redirect_uri is required")
	}
	if offer.Metadata.AuthorizationEndpoint == "" {
		return nil, oid4vc.Errorf(oid4vc.ErrMetadata, "issuer declares no authorization endpoint").
			WithEndpoint(offer.Metadata.AuthorizationServer)
	}

	credentials, err := selectCredentials(offer, opts.CredentialIDs)
	if err != nil {
		return nil, err
	}

	details := make([]map[string]interface{}, 0, len(credentials))
	for _, c := range credentials {
		detail, err := authorizationDetail(offer.Metadata, c)
		if err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	if len(opts.Scope) == 0 && len(details) == 0 {
		return nil, oid4vc.Errorf(oid4vc.ErrConfiguration, "either scope or authorization_details must be requested")
	}
	scope := opts.Scope
	if len(scope) > 0 && !lo.Contains(scope, oid4vc.ScopeOpenID) {
		scope = append([]string{oid4vc.ScopeOpenID}, scope...)
	}

	state := opts.State
	if state == "" {
		state = uuid.NewString()
	}
	pkce := BuildPKCE()

	config := &oauth2.Config{
		ClientID:    opts.ClientID,
		RedirectURL: opts.RedirectURI,
		Scopes:      scope,
		Endpoint: oauth2.Endpoint{
			AuthURL:   offer.Metadata.AuthorizationEndpoint,
			TokenURL:  offer.Metadata.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	authOpts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(pkce.Verifier.Reveal()),
		oauth2.SetAuthURLParam(oid4vc.ResourceParam, offer.Metadata.CredentialIssuer),
	}
	if len(details) > 0 {
		encoded, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("encoding authorization_details: %w", err)
		}
		authOpts = append(authOpts, oauth2.SetAuthURLParam(oid4vc.AuthorizationDetailsParam, string(encoded)))
	}
	if grant := offer.Offer.AuthorizationCode; grant != nil && grant.IssuerState != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam(oid4vc.IssuerStateParam, grant.IssuerState))
	}

	session := &AuthorizationSession{
		CodeVerifier:        pkce.Verifier,
		CodeChallenge:       pkce.Challenge,
		CodeChallengeMethod: pkce.Method,
		ClientID:            opts.ClientID,
		RedirectURI:         opts.RedirectURI,
		Scope:               scope,
		State:               state,
	}

	if parEndpoint := offer.Metadata.PushedAuthorizationRequestEndpoint; parEndpoint != "" {
		direct, err := url.Parse(config.AuthCodeURL(state, authOpts...))
		if err != nil {
			return nil, fmt.Errorf("building authorization parameters: %w", err)
		}
		requestURI, err := e.pushAuthorizationRequest(ctx, parEndpoint, direct.Query())
		if err != nil {
			return nil, err
		}
		minimal := url.Values{}
		minimal.Set(oid4vc.ClientIDParam, opts.ClientID)
		minimal.Set(oid4vc.RequestURIParam, requestURI)
		minimal.Set(oid4vc.ResponseTypeParam, "code")
		session.AuthorizationRequestURI = appendQuery(offer.Metadata.AuthorizationEndpoint, minimal)
		session.PushedAuthorizationRequest = true
	} else {
		session.AuthorizationRequestURI = config.AuthCodeURL(state, authOpts...)
	}

	e.logger.Debug("Built authorization request",
		zap.String("issuer", offer.Metadata.CredentialIssuer),
		zap.Bool("pushed", session.PushedAuthorizationRequest),
		zap.Int("authorization_details", len(details)))
	return session, nil
}

func (e *Engine) pushAuthorizationRequest(ctx context.Context, endpoint string, params url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", oid4vc.Wrap(oid4vc.ErrOfferResolution, fmt.Errorf("pushing authorization request: %w", err)).WithEndpoint(endpoint)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", oid4vc.Errorf(oid4vc.ErrOfferResolution, "pushed authorization request failed: HTTP %d: %s", resp.StatusCode, string(body)).
			WithEndpoint(endpoint)
	}
	var parResp pushedAuthorizationResponse
	if err := json.Unmarshal(body, &parResp); err != nil || parResp.RequestURI == "" {
		return "", oid4vc.Errorf(oid4vc.ErrOfferResolution, "pushed authorization response has no request_uri").WithEndpoint(endpoint)
	}
	return parResp.RequestURI, nil
}

func appendQuery(endpoint string, params url.Values) string {
	if strings.Contains(endpoint, "?") {
		return endpoint + "&" + params.Encode()
	}
	return endpoint + "?" + params.Encode()
}

// selectCredentials resolves ids against the offered credentials. Nil ids
// select every offered credential; an empty, non-nil slice selects none.
func selectCredentials(offer *ResolvedCredentialOffer, ids []string) ([]CredentialSupported, error) {
	if ids == nil {
		return offer.OfferedCredentials, nil
	}
	selected := make([]CredentialSupported, 0, len(ids))
	for _, id := range ids {
		c, ok := offer.OfferedCredential(id)
		if !ok {
			return nil, oid4vc.Errorf(oid4vc.ErrConfiguration, "credential %q is not part of the offer", id)
		}
		selected = append(selected, c)
	}
	return selected, nil
}

// authorizationDetailBuilder derives the authorization_details entry of a credential
type authorizationDetailBuilder struct {
	metadata   IssuerMetadata
	credential CredentialSupported
	detail     map[string]interface{}
}

func authorizationDetail(md IssuerMetadata, c CredentialSupported) (map[string]interface{}, error) {
	if c.Definition == nil {
		return nil, oid4vc.Errorf(oid4vc.ErrUnsupportedFormat, "credential %q has no recognized definition", c.ID).WithFormat(c.Format)
	}
	b := &authorizationDetailBuilder{
		metadata:   md,
		credential: c,
		detail: map[string]interface{}{
			"type":   oid4vc.AuthorizationDetailsType,
			"format": string(c.Format),
		},
	}
	if md.Version >= Draft13 {
		b.detail["credential_configuration_id"] = c.ID
	}
	if md.AuthorizationServer != "" && md.AuthorizationServer != md.CredentialIssuer {
		b.detail["locations"] = []string{md.CredentialIssuer}
	}
	if err := c.Definition.Accept(b); err != nil {
		return nil, err
	}
	return b.detail, nil
}

func (b *authorizationDetailBuilder) VisitJwtVcJson(def JwtVcJsonDefinition) error {
	if b.metadata.Version >= Draft13 {
		b.detail["credential_definition"] = map[string]interface{}{"type": def.Types}
	} else {
		b.detail["types"] = def.Types
	}
	return nil
}

func (b *authorizationDetailBuilder) VisitLinkedData(def LinkedDataDefinition) error {
	if b.metadata.Version >= Draft13 {
		definition := map[string]interface{}{"@context": def.Context, "type": def.Types}
		if def.CredentialSubject != nil {
			definition["credentialSubject"] = def.CredentialSubject
		}
		b.detail["credential_definition"] = definition
		return nil
	}
	b.detail["@context"] = def.Context
	b.detail["types"] = def.Types
	if def.CredentialSubject != nil {
		b.detail["credentialSubject"] = def.CredentialSubject
	}
	return nil
}

func (b *authorizationDetailBuilder) VisitSdJwtVc(def SdJwtVcDefinition) error {
	b.detail["vct"] = def.VCT
	if def.Claims != nil {
		b.detail["claims"] = def.Claims
	}
	return nil
}
