// Package metadata provides entity metadata discovery services for OpenID4VC protocols.
// These services fetch and parse metadata from credential issuers and their
// authorization servers, to be used by the holder engine during credential issuance.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

// maxDocumentSize bounds the size of fetched metadata and offer documents
const maxDocumentSize = 1 << 20

// IssuerMetadata represents the credential issuer metadata from
// .well-known/openid-credential-issuer. Both the draft 11 and the draft 13+
// shapes are captured here; the holder normalizes them.
type IssuerMetadata struct {
	CredentialIssuer string `json:"credential_issuer"`
	// draft 11 uses a single authorization_server, draft 13 a list
	AuthorizationServer                string   `json:"authorization_server,omitempty"`
	AuthorizationServers               []string `json:"authorization_servers,omitempty"`
	AuthorizationEndpoint              string   `json:"authorization_endpoint,omitempty"`
	TokenEndpoint                      string   `json:"token_endpoint,omitempty"`
	PushedAuthorizationRequestEndpoint string   `json:"pushed_authorization_request_endpoint,omitempty"`
	CredentialEndpoint                 string   `json:"credential_endpoint"`
	DeferredCredentialEndpoint         string   `json:"deferred_credential_endpoint,omitempty"`
	NotificationEndpoint               string   `json:"notification_endpoint,omitempty"`
	// Display is kept verbatim for clients rendering the issuer
	Display json.RawMessage `json:"display,omitempty"`
	// CredentialsSupported is the draft 11 array of credential descriptions
	CredentialsSupported json.RawMessage `json:"credentials_supported,omitempty"`
	// CredentialConfigurationsSupported is the draft 13+ map keyed by configuration id
	CredentialConfigurationsSupported json.RawMessage `json:"credential_configurations_supported,omitempty"`
}

// AuthorizationServerMetadata represents OAuth 2.0 authorization server
// metadata (RFC 8414) or an OpenID provider configuration.
type AuthorizationServerMetadata struct {
	Issuer                             string   `json:"issuer"`
	AuthorizationEndpoint              string   `json:"authorization_endpoint,omitempty"`
	TokenEndpoint                      string   `json:"token_endpoint,omitempty"`
	PushedAuthorizationRequestEndpoint string   `json:"pushed_authorization_request_endpoint,omitempty"`
	RequirePushedAuthorizationRequests bool     `json:"require_pushed_authorization_requests,omitempty"`
	CodeChallengeMethodsSupported      []string `json:"code_challenge_methods_supported,omitempty"`
	GrantTypesSupported                []string `json:"grant_types_supported,omitempty"`
}

// Client fetches issuer-side metadata documents
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a metadata client. A nil httpClient gets a client with a 15 second timeout.
func NewClient(httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger.Named("metadata"),
	}
}

// FetchIssuerMetadata fetches OpenID4VCI issuer metadata from the well-known endpoint
func (c *Client) FetchIssuerMetadata(ctx context.Context, issuerURL string) (*IssuerMetadata, error) {
	wellKnownURL := WellKnownURL(issuerURL, oid4vc.CredentialIssuerWellKnown)

	var metadata IssuerMetadata
	if err := c.getJSON(ctx, wellKnownURL, &metadata); err != nil {
		return nil, oid4vc.Wrap(oid4vc.ErrMetadata, fmt.Errorf("fetching issuer metadata: %w", err)).WithEndpoint(wellKnownURL)
	}
	if metadata.CredentialIssuer == "" {
		return nil, oid4vc.Errorf(oid4vc.ErrMetadata, "issuer metadata has no credential_issuer").WithEndpoint(wellKnownURL)
	}
	if metadata.CredentialEndpoint == "" {
		return nil, oid4vc.Errorf(oid4vc.ErrMetadata, "issuer metadata has no credential_endpoint").WithEndpoint(wellKnownURL)
	}

	c.logger.Debug("Fetched issuer metadata",
		zap.String("issuer", metadata.CredentialIssuer),
		zap.String("credential_endpoint", metadata.CredentialEndpoint))
	return &metadata, nil
}

// FetchAuthorizationServerMetadata fetches RFC 8414 metadata, falling back to the
// OpenID provider configuration when the server does not publish the former.
func (c *Client) FetchAuthorizationServerMetadata(ctx context.Context, serverURL string) (*AuthorizationServerMetadata, error) {
	var firstErr error
	for _, path := range []string{oid4vc.AuthzServerWellKnown, oid4vc.OpenIDConfigurationWellKnown} {
		wellKnownURL := WellKnownURL(serverURL, path)
		var metadata AuthorizationServerMetadata
		err := c.getJSON(ctx, wellKnownURL, &metadata)
		if err == nil {
			return &metadata, nil
		}
		if ctx.Err() != nil {
			return nil, oid4vc.Wrap(oid4vc.ErrMetadata, err).WithEndpoint(wellKnownURL)
		}
		if firstErr == nil {
			firstErr = oid4vc.Wrap(oid4vc.ErrMetadata, fmt.Errorf("fetching authorization server metadata: %w", err)).WithEndpoint(wellKnownURL)
		}
		c.logger.Debug("Authorization server metadata not available",
			zap.String("url", wellKnownURL),
			zap.Error(err))
	}
	return nil, firstErr
}

// FetchCredentialOffer dereferences a credential_offer_uri
func (c *Client) FetchCredentialOffer(ctx context.Context, offerURI string) (json.RawMessage, error) {
	var offer json.RawMessage
	if err := c.getJSON(ctx, offerURI, &offer); err != nil {
		return nil, oid4vc.Wrap(oid4vc.ErrOfferResolution, fmt.Errorf("fetching credential offer: %w", err)).WithEndpoint(offerURI)
	}
	return offer, nil
}

// WellKnownURL appends a well-known path to an entity identifier
func WellKnownURL(entityURL, path string) string {
	return strings.TrimSuffix(entityURL, "/") + path
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
