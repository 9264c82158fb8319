package verifier

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/internal/didresolver"
	"github.com/sirosfoundation/go-oid4vc/pkg/jose"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

const redirectURI = "https://verifier.example/response"

type testEnv struct {
	service  *Service
	signer   *jose.MemorySigner
	verifier string
	holder   testParty
	now      time.Time
}

// testParty is a DID controlled key
type testParty struct {
	key   jwk.Key
	did   string
	keyID string
}

func newTestEnv(t *testing.T) *testEnv {
	signer := jose.NewMemorySigner()
	verifierKey, err := signer.GenerateKey(jose.AlgES256)
	require.NoError(t, err)
	verifierDID, err := didresolver.NewDIDJWK(verifierKey)
	require.NoError(t, err)

	holderKey, err := signer.GenerateKey(jose.AlgEdDSA)
	require.NoError(t, err)
	raw, err := jwk.PublicRawKeyOf(holderKey)
	require.NoError(t, err)
	holderDID, err := didresolver.NewDIDKey(raw)
	require.NoError(t, err)

	env := &testEnv{
		signer:   signer,
		verifier: verifierDID.String() + "#0",
		holder: testParty{
			key:   holderKey,
			did:   holderDID.String(),
			keyID: holderDID.String() + "#" + holderDID.ID,
		},
		now: time.Now().Truncate(time.Second),
	}
	service, err := NewService(Options{
		Signer:      signer,
		DIDResolver: didresolver.NewDefaultRouter(),
		Logger:      zap.NewNop(),
		Now:         func() time.Time { return env.now },
	})
	require.NoError(t, err)
	env.service = service
	service.presentation.(*JWTPresentationVerifier).now = func() time.Time { return env.now }
	return env
}

func testDefinition() *oid4vc.PresentationDefinition {
	return &oid4vc.PresentationDefinition{
		ID: "university-degree",
		InputDescriptors: []oid4vc.InputDescriptor{{
			ID: "degree",
			Constraints: &oid4vc.Constraints{Fields: []oid4vc.Field{{
				Path: []string{"$.vc.type"},
			}}},
		}},
	}
}

func (e *testEnv) createRequest(t *testing.T, pd *oid4vc.PresentationDefinition) (*ProofRequest, *ProofRequestSession) {
	req, session, err := e.service.CreateProofRequest(context.Background(), ProofRequestOptions{
		PresentationDefinition: pd,
		RedirectURI:            redirectURI,
		KeyID:                  e.verifier,
	})
	require.NoError(t, err)
	return req, session
}

// sign signs claims with the holder key
func (e *testEnv) sign(t *testing.T, claims map[string]interface{}) string {
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	compact, err := e.signer.Sign(context.Background(), jose.SignRequest{
		Payload:   payload,
		Key:       e.holder.key,
		Algorithm: jose.AlgEdDSA,
		Headers:   map[string]interface{}{"kid": e.holder.keyID, "typ": "JWT"},
	})
	require.NoError(t, err)
	return compact
}

func (e *testEnv) idToken(t *testing.T, session *ProofRequestSession, overrides map[string]interface{}) string {
	claims := map[string]interface{}{
		"iss":   e.holder.did,
		"sub":   e.holder.did,
		"aud":   session.ClientID,
		"nonce": session.Nonce,
		"iat":   e.now.Unix(),
		"exp":   e.now.Add(5 * time.Minute).Unix(),
	}
	for k, v := range overrides {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return e.sign(t, claims)
}

// credential is an embedded credential as it appears inside a presentation
const credential = "eyJhbGciOiJFZERTQSJ9.eyJ2YyI6eyJ0eXBlIjpbIlZlcmlmaWFibGVDcmVkZW50aWFsIiwiVW5pdmVyc2l0eURlZ3JlZUNyZWRlbnRpYWwiXX19.c2ln"

func (e *testEnv) vpToken(t *testing.T, session *ProofRequestSession, overrides map[string]interface{}) json.RawMessage {
	claims := map[string]interface{}{
		"iss":   e.holder.did,
		"aud":   session.ClientID,
		"nonce": session.Nonce,
		"iat":   e.now.Unix(),
		"exp":   e.now.Add(5 * time.Minute).Unix(),
		"vp": map[string]interface{}{
			"@context":             []string{"https://www.w3.org/2018/credentials/v1"},
			"type":                 []string{"VerifiablePresentation"},
			"verifiableCredential": []string{credential},
		},
	}
	for k, v := range overrides {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	data, err := json.Marshal(e.sign(t, claims))
	require.NoError(t, err)
	return data
}

func testSubmission(definitionID string) map[string]interface{} {
	return map[string]interface{}{
		"id":            "submission-1",
		"definition_id": definitionID,
		"descriptor_map": []interface{}{map[string]interface{}{
			"id":     "degree",
			"format": "jwt_vp",
			"path":   "$",
			"path_nested": map[string]interface{}{
				"id":     "degree",
				"format": "jwt_vc",
				"path":   "$.vp.verifiableCredential[0]",
			},
		}},
	}
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
