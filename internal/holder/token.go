package holder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/sirosfoundation/go-oid4vc/pkg/logging"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

// TokenRequest selects the grant used to obtain an access token. A nil
// Session selects the pre-authorized_code grant.
type TokenRequest struct {
	// UserPIN is sent as tx_code or user_pin, depending on the offer
	UserPIN logging.Secret
	// Code is the authorization code delivered to the redirect URI
	Code    string
	Session *AuthorizationSession
}

type tokenResponse struct {
	AccessToken     string `json:"access_token"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int64  `json:"expires_in"`
	CNonce          string `json:"c_nonce"`
	CNonceExpiresIn int    `json:"c_nonce_expires_in"`
}

// AcquireAccessToken obtains an access token from the token endpoint of the
// issuer's authorization server.
func (e *Engine) AcquireAccessToken(ctx context.Context, offer *ResolvedCredentialOffer, req TokenRequest) (*AccessToken, error) {
	endpoint := offer.Metadata.TokenEndpoint
	if endpoint == "" {
		return nil, oid4vc.Errorf(oid4vc.ErrMetadata, "issuer declares no token endpoint")
	}
	var (
		token *AccessToken
		err   error
	)
	if req.Session != nil {
		token, err = e.exchangeAuthorizationCode(ctx, offer, req)
	} else {
		token, err = e.redeemPreAuthorizedCode(ctx, offer, req)
	}
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Acquired access token",
		zap.String("token_endpoint", endpoint),
		zap.Bool("c_nonce", token.CNonce != ""))
	return token, nil
}

func (e *Engine) redeemPreAuthorizedCode(ctx context.Context, offer *ResolvedCredentialOffer, req TokenRequest) (*AccessToken, error) {
	endpoint := offer.Metadata.TokenEndpoint
	grant := offer.Offer.PreAuthorizedCode
	if grant == nil {
		return nil, oid4vc.Errorf(oid4vc.ErrConfiguration, "offer carries no pre-authorized_code grant")
	}
	if grant.PINRequired() && req.UserPIN == "" {
		return nil, oid4vc.Errorf(oid4vc.ErrConfiguration, "offer requires a user PIN")
	}

	form := url.Values{}
	form.Set("grant_type", oid4vc.PreAuthorizedCodeGrantType)
	form.Set(oid4vc.PreAuthorizedCodeParam, grant.Code.Reveal())
	if req.UserPIN != "" {
		if grant.TxCode != nil {
			form.Set(oid4vc.TxCodeParam, req.UserPIN.Reveal())
		} else {
			form.Set(oid4vc.UserPINParam, req.UserPIN.Reveal())
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, oid4vc.Wrap(oid4vc.ErrTokenAcquisition, fmt.Errorf("token request: %w", err)).WithEndpoint(endpoint)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, oid4vc.Wrap(oid4vc.ErrTokenAcquisition, fmt.Errorf("reading token response: %w", err)).WithEndpoint(endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, oid4vc.Errorf(oid4vc.ErrTokenAcquisition, "token endpoint returned HTTP %d: %s", resp.StatusCode, string(body)).
			WithEndpoint(endpoint)
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, oid4vc.Wrap(oid4vc.ErrTokenAcquisition, fmt.Errorf("decoding token response: %w", err)).WithEndpoint(endpoint)
	}
	if tr.AccessToken == "" {
		return nil, oid4vc.Errorf(oid4vc.ErrTokenAcquisition, "token response has no access_token").WithEndpoint(endpoint)
	}

	token := &AccessToken{
		Value:           logging.Secret(tr.AccessToken),
		TokenType:       tr.TokenType,
		CNonce:          tr.CNonce,
		CNonceExpiresIn: tr.CNonceExpiresIn,
	}
	if tr.ExpiresIn > 0 {
		token.Expiry = e.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return token, nil
}

func (e *Engine) exchangeAuthorizationCode(ctx context.Context, offer *ResolvedCredentialOffer, req TokenRequest) (*AccessToken, error) {
	endpoint := offer.Metadata.TokenEndpoint
	if req.Code == "" {
		return nil, oid4vc.Errorf(oid4vc.ErrConfiguration, "authorization code is required")
	}
	config := &oauth2.Config{
		ClientID:    req.Session.ClientID,
		RedirectURL: req.Session.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   offer.Metadata.AuthorizationEndpoint,
			TokenURL:  endpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	tok, err := config.Exchange(ctx, req.Code, oauth2.VerifierOption(req.Session.CodeVerifier.Reveal()))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, oid4vc.Errorf(oid4vc.ErrTokenAcquisition, "token endpoint returned HTTP %d: %s",
				retrieveErr.Response.StatusCode, string(retrieveErr.Body)).WithEndpoint(endpoint)
		}
		return nil, oid4vc.Wrap(oid4vc.ErrTokenAcquisition, fmt.Errorf("exchanging authorization code: %w", err)).WithEndpoint(endpoint)
	}

	token := &AccessToken{
		Value:     logging.Secret(tok.AccessToken),
		TokenType: tok.TokenType,
		Expiry:    tok.Expiry,
	}
	if nonce, ok := tok.Extra(oid4vc.CNonceParam).(string); ok {
		token.CNonce = nonce
	}
	if expires, ok := tok.Extra(oid4vc.CNonceExpiresInParam).(float64); ok {
		token.CNonceExpiresIn = int(expires)
	}
	return token, nil
}
