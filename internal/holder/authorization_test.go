package holder

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

func TestBuildPKCE(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		pkce := BuildPKCE()
		sum := sha256.Sum256([]byte(pkce.Verifier.Reveal()))
		assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), pkce.Challenge)
		assert.Equal(t, "S256", pkce.Method)
		// two 32 byte values, base64url encoded
		assert.Len(t, pkce.Verifier.Reveal(), 86)
		assert.False(t, seen[pkce.Verifier.Reveal()])
		seen[pkce.Verifier.Reveal()] = true
	}
}

func resolveOffer(t *testing.T, h *testHolder, issuer *fakeIssuer, ids ...string) *ResolvedCredentialOffer {
	offer, err := h.engine.Resolve(context.Background(), issuer.offerURI(ids...))
	require.NoError(t, err)
	return offer
}

func TestBuildAuthorizationRequest_Direct(t *testing.T) {
	issuer := newFakeIssuer(t)
	h := newTestHolder(t)
	offer := resolveOffer(t, h, issuer, configJWT)

	session, err := h.engine.BuildAuthorizationRequest(context.Background(), offer, AuthorizationOptions{
		ClientID:    "wallet",
		RedirectURI: "https://wallet.example/cb",
		Scope:       []string{"UniversityDegree"},
	})
	require.NoError(t, err)
	assert.False(t, session.PushedAuthorizationRequest)
	assert.NotEmpty(t, session.State)
	assert.Equal(t, []string{"openid", "UniversityDegree"}, session.Scope)

	u, err := url.Parse(session.AuthorizationRequestURI)
	require.NoError(t, err)
	assert.Equal(t, issuer.URL()+"/authorize", u.Scheme+"://"+u.Host+u.Path)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "wallet", q.Get("client_id"))
	assert.Equal(t, "https://wallet.example/cb", q.Get("redirect_uri"))
	assert.Equal(t, "openid UniversityDegree", q.Get("scope"))
	assert.Equal(t, session.State, q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, session.CodeChallenge, q.Get("code_challenge"))
	assert.Equal(t, "issuer-state-1", q.Get("issuer_state"))
	assert.Equal(t, issuer.URL(), q.Get("resource"))

	sum := sha256.Sum256([]byte(session.CodeVerifier.Reveal()))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), q.Get("code_challenge"))

	var details []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(q.Get("authorization_details")), &details))
	require.Len(t, details, 1)
	assert.Equal(t, "openid_credential", details[0]["type"])
	assert.Equal(t, "jwt_vc_json", details[0]["format"])
	assert.Equal(t, configJWT, details[0]["credential_configuration_id"])
	assert.NotContains(t, details[0], "locations")

	// the verifier is never part of the session's JSON form
	data, err := json.Marshal(session)
	require.NoError(t, err)
	assert.NotContains(t, string(data), session.CodeVerifier.Reveal())
}

func TestBuildAuthorizationRequest_Pushed(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.usePAR = true
	h := newTestHolder(t)
	offer := resolveOffer(t, h, issuer, configJWT)

	session, err := h.engine.BuildAuthorizationRequest(context.Background(), offer, AuthorizationOptions{
		ClientID:    "wallet",
		RedirectURI: "https://wallet.example/cb",
	})
	require.NoError(t, err)
	assert.True(t, session.PushedAuthorizationRequest)

	u, err := url.Parse(session.AuthorizationRequestURI)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, url.Values{
		"client_id":     {"wallet"},
		"request_uri":   {"urn:ietf:params:oauth:request_uri:abc123"},
		"response_type": {"code"},
	}, q)

	require.Len(t, issuer.PARForms(), 1)
	pushed := issuer.PARForms()[0]
	assert.Equal(t, session.CodeChallenge, pushed.Get("code_challenge"))
	assert.Equal(t, "S256", pushed.Get("code_challenge_method"))
	assert.Equal(t, session.State, pushed.Get("state"))
	assert.Empty(t, pushed.Get("scope"))
	assert.True(t, strings.Contains(pushed.Get("authorization_details"), "openid_credential"))
}

func TestBuildAuthorizationRequest_Draft11Details(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.draft11 = true
	h := newTestHolder(t)
	offer := resolveOffer(t, h, issuer, configJWT, configLDP)

	session, err := h.engine.BuildAuthorizationRequest(context.Background(), offer, AuthorizationOptions{
		ClientID:    "wallet",
		RedirectURI: "https://wallet.example/cb",
		State:       "fixed-state",
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed-state", session.State)

	u, err := url.Parse(session.AuthorizationRequestURI)
	require.NoError(t, err)
	var details []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(u.Query().Get("authorization_details")), &details))
	require.Len(t, details, 2)
	assert.Equal(t, []interface{}{"VerifiableCredential", "UniversityDegreeCredential"}, details[0]["types"])
	assert.NotContains(t, details[0], "credential_configuration_id")
	assert.Equal(t, "ldp_vc", details[1]["format"])
	assert.Equal(t, []interface{}{"https://www.w3.org/2018/credentials/v1"}, details[1]["@context"])
}

func TestBuildAuthorizationRequest_Errors(t *testing.T) {
	issuer := newFakeIssuer(t)
	h := newTestHolder(t)
	offer := resolveOffer(t, h, issuer, configJWT)
	ctx := context.Background()

	tests := []struct {
		name string
		opts AuthorizationOptions
		kind error
	}{
		{name: "missing client id", opts: AuthorizationOptions{RedirectURI: "https://wallet.example/cb"}, kind: oid4vc.ErrConfiguration},
		{name: "missing redirect uri", opts: AuthorizationOptions{ClientID: "wallet"}, kind: oid4vc.ErrConfiguration},
		{
			name: "nothing requested",
			opts: AuthorizationOptions{ClientID: "wallet", RedirectURI: "https://wallet.example/cb", CredentialIDs: []string{}},
			kind: oid4vc.ErrConfiguration,
		},
		{
			name: "credential not offered",
			opts: AuthorizationOptions{ClientID: "wallet", RedirectURI: "https://wallet.example/cb", CredentialIDs: []string{configSD}},
			kind: oid4vc.ErrConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.BuildAuthorizationRequest(ctx, offer, tt.opts)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestBuildAuthorizationRequest_ScopeOnly(t *testing.T) {
	issuer := newFakeIssuer(t)
	h := newTestHolder(t)
	offer := resolveOffer(t, h, issuer, configJWT)

	session, err := h.engine.BuildAuthorizationRequest(context.Background(), offer, AuthorizationOptions{
		ClientID:      "wallet",
		RedirectURI:   "https://wallet.example/cb",
		Scope:         []string{"openid", "UniversityDegree"},
		CredentialIDs: []string{},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"openid", "UniversityDegree"}, session.Scope)
	u, err := url.Parse(session.AuthorizationRequestURI)
	require.NoError(t, err)
	assert.Empty(t, u.Query().Get("authorization_details"))
}
