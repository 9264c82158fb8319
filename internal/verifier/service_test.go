package verifier

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/internal/didresolver"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

func TestCreateProofRequest(t *testing.T) {
	env := newTestEnv(t)
	req, session := env.createRequest(t, testDefinition())

	assert.Equal(t, session.ID, req.State)
	assert.Equal(t, session.Nonce, req.Nonce)
	assert.NotEqual(t, session.ID, session.Nonce)
	assert.Equal(t, strings.SplitN(env.verifier, "#", 2)[0], session.ClientID)
	assert.Equal(t, "ES256", session.SigningAlgorithm)
	assert.Equal(t, env.now.Add(defaultRequestTTL), session.ExpiresAt)

	u, err := url.Parse(req.RequestURI)
	require.NoError(t, err)
	assert.Equal(t, "openid", u.Scheme)
	assert.Equal(t, req.RequestObject, u.Query().Get("request"))

	msg, err := jws.ParseString(req.RequestObject)
	require.NoError(t, err)
	headers := msg.Signatures()[0].ProtectedHeaders()
	assert.Equal(t, env.verifier, headers.KeyID())
	assert.Equal(t, jwa.ES256, headers.Algorithm())

	key, err := didresolver.ResolveKey(context.Background(), didresolver.NewDefaultRouter(), env.verifier, didresolver.Authentication)
	require.NoError(t, err)
	payload, err := jws.Verify([]byte(req.RequestObject), jws.WithKey(jwa.ES256, key))
	require.NoError(t, err)

	var claims map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &claims))
	assert.Equal(t, "id_token", claims["response_type"])
	assert.Equal(t, "openid", claims["scope"])
	assert.Equal(t, "post", claims["response_mode"])
	assert.Equal(t, session.ClientID, claims["client_id"])
	assert.Equal(t, redirectURI, claims["redirect_uri"])
	assert.Equal(t, session.Nonce, claims["nonce"])
	assert.Equal(t, session.ID, claims["state"])
	registration := claims["registration"].(map[string]interface{})
	assert.Equal(t, []interface{}{"did:key"}, registration["subject_syntax_types_supported"])
	assert.Contains(t, registration["vp_formats"], "jwt_vp")
	definition := claims["presentation_definition"].(map[string]interface{})
	assert.Equal(t, "university-degree", definition["id"])
}

func TestCreateProofRequest_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		opts ProofRequestOptions
		kind error
	}{
		{
			name: "missing redirect uri",
			opts: ProofRequestOptions{KeyID: env.verifier},
			kind: oid4vc.ErrConfiguration,
		},
		{
			name: "key id without fragment",
			opts: ProofRequestOptions{KeyID: strings.SplitN(env.verifier, "#", 2)[0], RedirectURI: redirectURI},
			kind: oid4vc.ErrConfiguration,
		},
		{
			name: "invalid definition",
			opts: ProofRequestOptions{
				KeyID:                  env.verifier,
				RedirectURI:            redirectURI,
				PresentationDefinition: &oid4vc.PresentationDefinition{ID: "pd"},
			},
			kind: oid4vc.ErrConfiguration,
		},
		{
			name: "algorithm not usable with key",
			opts: ProofRequestOptions{KeyID: env.verifier, RedirectURI: redirectURI, Algorithm: "EdDSA"},
			kind: oid4vc.ErrNoCompatibleAlgorithm,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.service.CreateProofRequest(ctx, tt.opts)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestCreateProofRequest_StoresSession(t *testing.T) {
	env := newTestEnv(t)
	store := NewMemorySessionStore(zap.NewNop())
	env.service.sessions = store

	_, session := env.createRequest(t, nil)
	stored, err := store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Nonce, stored.Nonce)
	assert.Nil(t, stored.PresentationDefinition)
}

func TestVerifyAuthorizationResponse_IDTokenOnly(t *testing.T) {
	env := newTestEnv(t)
	_, session := env.createRequest(t, nil)

	result, err := env.service.VerifyAuthorizationResponse(context.Background(), AuthorizationResponse{
		IDToken: env.idToken(t, session, nil),
		State:   session.ID,
	}, session)
	require.NoError(t, err)
	assert.Equal(t, env.holder.did, result.IDTokenPayload["sub"])
	assert.Nil(t, result.PresentationSubmission)
}

func TestVerifyAuthorizationResponse_UnrequestedPresentation(t *testing.T) {
	env := newTestEnv(t)
	_, session := env.createRequest(t, nil)
	pd := testDefinition()

	for name, resp := range map[string]AuthorizationResponse{
		"vp_token": {
			IDToken: env.idToken(t, session, nil),
			VPToken: env.vpToken(t, session, nil),
			State:   session.ID,
		},
		"submission": {
			IDToken:                env.idToken(t, session, nil),
			PresentationSubmission: mustJSON(t, testSubmission(pd.ID)),
			State:                  session.ID,
		},
	} {
		t.Run(name, func(t *testing.T) {
			result, err := env.service.VerifyAuthorizationResponse(context.Background(), resp, session)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, oid4vc.ErrVerification)
		})
	}
}

func TestVerifyAuthorizationResponse_Presentation(t *testing.T) {
	env := newTestEnv(t)
	pd := testDefinition()
	_, session := env.createRequest(t, pd)
	submission := testSubmission(pd.ID)

	encoded, err := json.Marshal(submission)
	require.NoError(t, err)
	for name, raw := range map[string]json.RawMessage{
		"object": encoded,
		"string": mustJSON(t, string(encoded)),
	} {
		t.Run(name, func(t *testing.T) {
			result, err := env.service.VerifyAuthorizationResponse(context.Background(), AuthorizationResponse{
				IDToken:                env.idToken(t, session, nil),
				VPToken:                env.vpToken(t, session, nil),
				PresentationSubmission: raw,
				State:                  session.ID,
			}, session)
			require.NoError(t, err)
			require.NotNil(t, result.PresentationSubmission)
			assert.Equal(t, "university-degree", result.PresentationSubmission.DefinitionID)
			require.Len(t, result.PresentationSubmission.DescriptorMap, 1)
			assert.NotNil(t, result.PresentationSubmission.DescriptorMap[0].PathNested)
			assert.Contains(t, result.Presentation, "vp")
		})
	}
}

func TestVerifyAuthorizationResponse_MissingContext(t *testing.T) {
	env := newTestEnv(t)
	_, session := env.createRequest(t, nil)
	resp := AuthorizationResponse{IDToken: env.idToken(t, session, nil)}

	_, err := env.service.VerifyAuthorizationResponse(context.Background(), resp, nil)
	assert.ErrorIs(t, err, oid4vc.ErrMissingContext)

	env.now = env.now.Add(defaultRequestTTL + time.Second)
	_, err = env.service.VerifyAuthorizationResponse(context.Background(), resp, session)
	assert.ErrorIs(t, err, oid4vc.ErrMissingContext)
}

func TestVerifyAuthorizationResponse_CrossSession(t *testing.T) {
	env := newTestEnv(t)
	pd := testDefinition()
	_, sessionA := env.createRequest(t, pd)
	_, sessionB := env.createRequest(t, pd)

	resp := AuthorizationResponse{
		IDToken:                env.idToken(t, sessionA, nil),
		VPToken:                env.vpToken(t, sessionA, nil),
		PresentationSubmission: mustJSON(t, testSubmission(pd.ID)),
		State:                  sessionA.ID,
	}
	_, err := env.service.VerifyAuthorizationResponse(context.Background(), resp, sessionA)
	require.NoError(t, err)

	_, err = env.service.VerifyAuthorizationResponse(context.Background(), resp, sessionB)
	assert.ErrorIs(t, err, oid4vc.ErrVerification)

	// a response without state still fails on the nonce
	resp.State = ""
	_, err = env.service.VerifyAuthorizationResponse(context.Background(), resp, sessionB)
	assert.ErrorIs(t, err, oid4vc.ErrVerification)
}

func TestVerifyAuthorizationResponse_Rejected(t *testing.T) {
	env := newTestEnv(t)
	pd := testDefinition()
	_, session := env.createRequest(t, pd)
	submission := testSubmission(pd.ID)

	valid := func() AuthorizationResponse {
		return AuthorizationResponse{
			IDToken:                env.idToken(t, session, nil),
			VPToken:                env.vpToken(t, session, nil),
			PresentationSubmission: mustJSON(t, submission),
			State:                  session.ID,
		}
	}
	withSubmission := func(mutate func(map[string]interface{})) json.RawMessage {
		var copied map[string]interface{}
		require.NoError(t, json.Unmarshal(mustJSON(t, submission), &copied))
		mutate(copied)
		return mustJSON(t, copied)
	}

	tests := []struct {
		name   string
		mutate func(*AuthorizationResponse)
	}{
		{name: "missing id_token", mutate: func(r *AuthorizationResponse) { r.IDToken = "" }},
		{name: "id_token wrong nonce", mutate: func(r *AuthorizationResponse) {
			r.IDToken = env.idToken(t, session, map[string]interface{}{"nonce": "other"})
		}},
		{name: "id_token wrong audience", mutate: func(r *AuthorizationResponse) {
			r.IDToken = env.idToken(t, session, map[string]interface{}{"aud": "did:example:other"})
		}},
		{name: "id_token expired", mutate: func(r *AuthorizationResponse) {
			r.IDToken = env.idToken(t, session, map[string]interface{}{"exp": env.now.Add(-time.Hour).Unix()})
		}},
		{name: "id_token without exp", mutate: func(r *AuthorizationResponse) {
			r.IDToken = env.idToken(t, session, map[string]interface{}{"exp": nil})
		}},
		{name: "id_token not self-issued", mutate: func(r *AuthorizationResponse) {
			r.IDToken = env.idToken(t, session, map[string]interface{}{"iss": "https://op.example"})
		}},
		{name: "id_token subject does not own key", mutate: func(r *AuthorizationResponse) {
			r.IDToken = env.idToken(t, session, map[string]interface{}{"iss": "did:example:1", "sub": "did:example:1"})
		}},
		{name: "id_token tampered", mutate: func(r *AuthorizationResponse) { r.IDToken += "x" }},
		{name: "state mismatch", mutate: func(r *AuthorizationResponse) { r.State = "other" }},
		{name: "missing vp_token", mutate: func(r *AuthorizationResponse) { r.VPToken = nil }},
		{name: "vp_token wrong nonce", mutate: func(r *AuthorizationResponse) {
			r.VPToken = env.vpToken(t, session, map[string]interface{}{"nonce": "other"})
		}},
		{name: "vp_token wrong audience", mutate: func(r *AuthorizationResponse) {
			r.VPToken = env.vpToken(t, session, map[string]interface{}{"aud": "did:example:other"})
		}},
		{name: "vp_token without vp", mutate: func(r *AuthorizationResponse) {
			r.VPToken = env.vpToken(t, session, map[string]interface{}{"vp": nil})
		}},
		{name: "vp_token not a JWT", mutate: func(r *AuthorizationResponse) { r.VPToken = json.RawMessage(`{"vp":{}}`) }},
		{name: "missing submission", mutate: func(r *AuthorizationResponse) { r.PresentationSubmission = nil }},
		{name: "submission fails schema", mutate: func(r *AuthorizationResponse) {
			r.PresentationSubmission = json.RawMessage(`{"id":"s"}`)
		}},
		{name: "submission for other definition", mutate: func(r *AuthorizationResponse) {
			r.PresentationSubmission = withSubmission(func(m map[string]interface{}) { m["definition_id"] = "other" })
		}},
		{name: "submission maps unknown descriptor", mutate: func(r *AuthorizationResponse) {
			r.PresentationSubmission = withSubmission(func(m map[string]interface{}) {
				m["descriptor_map"].([]interface{})[0].(map[string]interface{})["id"] = "unknown"
			})
		}},
		{name: "submission leaves descriptor unsatisfied", mutate: func(r *AuthorizationResponse) {
			r.PresentationSubmission = withSubmission(func(m map[string]interface{}) { m["descriptor_map"] = []interface{}{} })
		}},
		{name: "submission path does not resolve", mutate: func(r *AuthorizationResponse) {
			r.PresentationSubmission = withSubmission(func(m map[string]interface{}) {
				nested := m["descriptor_map"].([]interface{})[0].(map[string]interface{})["path_nested"].(map[string]interface{})
				nested["path"] = "$.vp.verifiableCredential[3]"
			})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := valid()
			tt.mutate(&resp)
			result, err := env.service.VerifyAuthorizationResponse(context.Background(), resp, session)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, oid4vc.ErrVerification)
		})
	}
}
