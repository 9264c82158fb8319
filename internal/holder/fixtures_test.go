package holder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/internal/didresolver"
	"github.com/sirosfoundation/go-oid4vc/internal/verification"
	"github.com/sirosfoundation/go-oid4vc/pkg/jose"
)

const (
	configJWT    = "UniversityDegree_jwt"
	configLDP    = "UniversityDegree_ldp"
	configSD     = "Identity_sd"
	configAlumni = "Alumni_jwt"
	// configProof is signed with ES256 but takes EdDSA proofs
	configProof = "Employee_jwt"
)

// fakeIssuer serves issuer metadata and the token, PAR and credential
// endpoints of a credential issuer that is its own authorization server.
type fakeIssuer struct {
	t      *testing.T
	server *httptest.Server

	draft11 bool
	usePAR  bool
	// credentialNonces are returned as c_nonce by successive credential responses
	credentialNonces []string
	// credentialBody overrides the credential response
	credentialBody func(req map[string]interface{}) map[string]interface{}
	tokenStatus    int

	mu                 sync.Mutex
	tokenForms         []url.Values
	parForms           []url.Values
	credentialRequests []map[string]interface{}
	proofNonces        []string
	authorizations     []string
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	f := &fakeIssuer{t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-credential-issuer", f.handleMetadata)
	mux.HandleFunc("/token", f.handleToken)
	mux.HandleFunc("/par", f.handlePAR)
	mux.HandleFunc("/credential", f.handleCredential)
	mux.HandleFunc("/offer", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, f.offer(configJWT))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIssuer) URL() string { return f.server.URL }

func (f *fakeIssuer) offer(ids ...string) map[string]interface{} {
	grants := map[string]interface{}{
		"urn:ietf:params:oauth:grant-type:pre-authorized_code": map[string]interface{}{
			"pre-authorized_code": "pre-auth-code",
		},
		"authorization_code": map[string]interface{}{
			"issuer_state": "issuer-state-1",
		},
	}
	if f.draft11 {
		return map[string]interface{}{
			"credential_issuer": f.URL(),
			"credentials":       ids,
			"grants":            grants,
		}
	}
	return map[string]interface{}{
		"credential_issuer":            f.URL(),
		"credential_configuration_ids": ids,
		"grants":                       grants,
	}
}

// offerURI returns a credential offer URI carrying the offer by value
func (f *fakeIssuer) offerURI(ids ...string) string {
	data, err := json.Marshal(f.offer(ids...))
	require.NoError(f.t, err)
	return "openid-credential-offer://?credential_offer=" + url.QueryEscape(string(data))
}

func (f *fakeIssuer) handleMetadata(w http.ResponseWriter, _ *http.Request) {
	md := map[string]interface{}{
		"credential_issuer":      f.URL(),
		"credential_endpoint":    f.URL() + "/credential",
		"token_endpoint":         f.URL() + "/token",
		"authorization_endpoint": f.URL() + "/authorize",
	}
	if f.usePAR {
		md["pushed_authorization_request_endpoint"] = f.URL() + "/par"
	}
	if f.draft11 {
		md["credentials_supported"] = []interface{}{
			map[string]interface{}{
				"id":                                      configJWT,
				"format":                                  "jwt_vc_json",
				"types":                                   []string{"VerifiableCredential", "UniversityDegreeCredential"},
				"cryptographic_binding_methods_supported": []string{"did:key", "did:jwk"},
				"cryptographic_suites_supported":          []string{"EdDSA"},
			},
			map[string]interface{}{
				"id":                                      configLDP,
				"format":                                  "ldp_vc",
				"@context":                                []string{"https://www.w3.org/2018/credentials/v1"},
				"types":                                   []string{"VerifiableCredential", "UniversityDegreeCredential"},
				"cryptographic_binding_methods_supported": []string{"did"},
				"cryptographic_suites_supported":          []string{"Ed25519Signature2018"},
			},
			map[string]interface{}{
				"id":     configAlumni,
				"format": "jwt_vc_json",
				"types":  []string{"VerifiableCredential", "AlumniCredential"},
			},
		}
	} else {
		md["credential_configurations_supported"] = map[string]interface{}{
			configJWT: map[string]interface{}{
				"format":                                  "jwt_vc_json",
				"scope":                                   "UniversityDegree",
				"cryptographic_binding_methods_supported": []string{"did:key", "did:jwk"},
				"credential_signing_alg_values_supported": []string{"EdDSA"},
				"credential_definition": map[string]interface{}{
					"type": []string{"VerifiableCredential", "UniversityDegreeCredential"},
				},
			},
			configLDP: map[string]interface{}{
				"format":                                  "ldp_vc",
				"cryptographic_binding_methods_supported": []string{"did"},
				"cryptographic_suites_supported":          []string{"Ed25519Signature2018"},
				"credential_definition": map[string]interface{}{
					"@context": []string{"https://www.w3.org/2018/credentials/v1"},
					"type":     []string{"VerifiableCredential", "UniversityDegreeCredential"},
				},
			},
			configSD: map[string]interface{}{
				"format":                                  "sd_jwt_vc",
				"cryptographic_binding_methods_supported": []string{"jwk"},
				"credential_signing_alg_values_supported": []string{"ES256"},
				"vct":                                     "https://example.com/identity",
			},
			configProof: map[string]interface{}{
				"format":                                  "jwt_vc_json",
				"cryptographic_binding_methods_supported": []string{"did:key"},
				"credential_signing_alg_values_supported": []string{"ES256"},
				"proof_types_supported": map[string]interface{}{
					"jwt": map[string]interface{}{
						"proof_signing_alg_values_supported": []string{"EdDSA"},
					},
				},
				"credential_definition": map[string]interface{}{
					"type": []string{"VerifiableCredential", "EmployeeCredential"},
				},
			},
			"Unknown_format": map[string]interface{}{
				"format": "mso_mdoc",
			},
		}
	}
	writeJSON(w, http.StatusOK, md)
}

func (f *fakeIssuer) handleToken(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())
	f.mu.Lock()
	f.tokenForms = append(f.tokenForms, r.PostForm)
	f.mu.Unlock()
	if f.tokenStatus != 0 {
		writeJSON(w, f.tokenStatus, map[string]string{"error": "invalid_grant"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": "access-token-1",
		"token_type":   "bearer",
		"expires_in":   300,
		"c_nonce":      "token-nonce",
	})
}

func (f *fakeIssuer) handlePAR(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())
	f.mu.Lock()
	f.parForms = append(f.parForms, r.PostForm)
	f.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"request_uri": "urn:ietf:params:oauth:request_uri:abc123",
		"expires_in":  60,
	})
}

func (f *fakeIssuer) handleCredential(w http.ResponseWriter, r *http.Request) {
	var req map[string]interface{}
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
	proof, _ := req["proof"].(map[string]interface{})
	compact, _ := proof["jwt"].(string)
	msg, err := jws.ParseString(compact)
	require.NoError(f.t, err)
	var claims map[string]interface{}
	require.NoError(f.t, json.Unmarshal(msg.Payload(), &claims))
	nonce, _ := claims["nonce"].(string)

	f.mu.Lock()
	n := len(f.credentialRequests)
	f.credentialRequests = append(f.credentialRequests, req)
	f.proofNonces = append(f.proofNonces, nonce)
	f.authorizations = append(f.authorizations, r.Header.Get("Authorization"))
	f.mu.Unlock()

	if f.credentialBody != nil {
		writeJSON(w, http.StatusOK, f.credentialBody(req))
		return
	}
	resp := map[string]interface{}{}
	switch req["format"] {
	case "ldp_vc":
		resp["credential"] = map[string]interface{}{"type": []string{"VerifiableCredential"}}
	case "sd_jwt_vc":
		resp["credential"] = "eyJhbGciOiJFUzI1NiJ9.e30.c2ln~"
	default:
		resp["credential"] = "eyJhbGciOiJFZERTQSJ9.e30.c2ln"
	}
	if n < len(f.credentialNonces) {
		resp["c_nonce"] = f.credentialNonces[n]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *fakeIssuer) TokenForms() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.tokenForms...)
}

func (f *fakeIssuer) PARForms() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.parForms...)
}

func (f *fakeIssuer) CredentialRequests() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.credentialRequests...)
}

func (f *fakeIssuer) ProofNonces() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.proofNonces...)
}

func (f *fakeIssuer) Authorizations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authorizations...)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// stubVerifier accepts or rejects every credential
type stubVerifier struct {
	result verification.Result
	calls  []string
}

func (s *stubVerifier) Verify(_ context.Context, _ json.RawMessage, format string) (verification.Result, error) {
	s.calls = append(s.calls, format)
	return s.result, nil
}

type testHolder struct {
	engine   *Engine
	signer   *jose.MemorySigner
	verifier *stubVerifier
	// edKey is an Ed25519 holder key published as did:key and did:jwk
	edKey jwk.Key
	// ecKey is a P-256 holder key used for jwk bindings
	ecKey    jwk.Key
	didKeyID string
	didJWKID string
}

func newTestHolder(t *testing.T) *testHolder {
	signer := jose.NewMemorySigner()
	edKey, err := signer.GenerateKey(jose.AlgEdDSA)
	require.NoError(t, err)
	ecKey, err := signer.GenerateKey(jose.AlgES256)
	require.NoError(t, err)

	raw, err := jwk.PublicRawKeyOf(edKey)
	require.NoError(t, err)
	didKey, err := didresolver.NewDIDKey(raw)
	require.NoError(t, err)
	didJWK, err := didresolver.NewDIDJWK(edKey)
	require.NoError(t, err)

	verifier := &stubVerifier{result: verification.Valid()}
	engine, err := NewEngine(Options{
		DIDResolver: didresolver.NewDefaultRouter(),
		Signer:      signer,
		Verifier:    verifier,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return &testHolder{
		engine:   engine,
		signer:   signer,
		verifier: verifier,
		edKey:    edKey,
		ecKey:    ecKey,
		didKeyID: didKey.String() + "#" + didKey.ID,
		didJWKID: didJWK.String() + "#0",
	}
}

// bindingResolver binds DID credentials to did:key and jwk credentials to the P-256 key
func (h *testHolder) bindingResolver() CredentialBindingResolver {
	return CredentialBindingResolverFunc(func(_ context.Context, req BindingRequest) (CredentialBinding, error) {
		if req.Requirement.PreferredBinding() == BindingJWK {
			return JWKBinding(h.ecKey), nil
		}
		return DIDBinding(h.didKeyID), nil
	})
}

func staticBinding(binding CredentialBinding) CredentialBindingResolver {
	return CredentialBindingResolverFunc(func(context.Context, BindingRequest) (CredentialBinding, error) {
		return binding, nil
	})
}

func protectedHeaders(t *testing.T, compact string) jws.Headers {
	msg, err := jws.ParseString(compact)
	require.NoError(t, err)
	require.Len(t, msg.Signatures(), 1)
	return msg.Signatures()[0].ProtectedHeaders()
}

func claimsOf(t *testing.T, compact string) map[string]interface{} {
	parts := strings.Split(compact, ".")
	require.Len(t, parts, 3)
	msg, err := jws.ParseString(compact)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Payload(), &claims))
	return claims
}
