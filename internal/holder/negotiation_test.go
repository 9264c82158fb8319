package holder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/internal/didresolver"
	"github.com/sirosfoundation/go-oid4vc/internal/verification"
	"github.com/sirosfoundation/go-oid4vc/pkg/jose"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

func jwtCredential(suites, methods []string) CredentialSupported {
	return CredentialSupported{
		ID:                           "cred",
		Format:                       oid4vc.FormatJwtVcJson,
		BindingMethodsSupported:      methods,
		CryptographicSuitesSupported: suites,
		Definition:                   JwtVcJsonDefinition{Types: []string{"VerifiableCredential"}},
	}
}

func TestSelectProofOfPossessionRequirements_Algorithm(t *testing.T) {
	h := newTestHolder(t)

	tests := []struct {
		name       string
		credential CredentialSupported
		allowed    []string
		want       string
		wantErr    bool
	}{
		{
			name:       "issuer suite selected",
			credential: jwtCredential([]string{"EdDSA"}, nil),
			allowed:    []string{"EdDSA", "ES256"},
			want:       "EdDSA",
		},
		{
			name:       "allowed order wins",
			credential: jwtCredential([]string{"EdDSA", "ES256"}, nil),
			allowed:    []string{"ES256", "EdDSA"},
			want:       "ES256",
		},
		{
			name:       "suites undeclared takes first possible",
			credential: jwtCredential(nil, nil),
			allowed:    []string{"ES256", "EdDSA"},
			want:       "ES256",
		},
		{
			name:       "nil allowed uses signer algorithms",
			credential: jwtCredential([]string{"ES256"}, nil),
			want:       "ES256",
		},
		{
			name:       "allowed algorithm without a held key skipped",
			credential: jwtCredential([]string{"ES384", "EdDSA"}, nil),
			allowed:    []string{"ES384", "EdDSA"},
			want:       "EdDSA",
		},
		{
			name: "linked data suite mapped to key type",
			credential: CredentialSupported{
				Format:                       oid4vc.FormatLdpVc,
				CryptographicSuitesSupported: []string{"EcdsaSecp256r1Signature2019"},
				Definition:                   LinkedDataDefinition{},
			},
			allowed: []string{"EdDSA", "ES256"},
			want:    "ES256",
		},
		{
			name:       "no overlap with issuer",
			credential: jwtCredential([]string{"RS256"}, nil),
			allowed:    []string{"EdDSA"},
			wantErr:    true,
		},
		{
			name:       "no overlap with signer",
			credential: jwtCredential([]string{"RS256"}, nil),
			allowed:    []string{"RS256"},
			wantErr:    true,
		},
		{
			name:       "declared but empty suites",
			credential: jwtCredential([]string{}, nil),
			allowed:    []string{"EdDSA"},
			wantErr:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := h.engine.SelectProofOfPossessionRequirements(tt.credential, tt.allowed)
			if tt.wantErr {
				assert.ErrorIs(t, err, oid4vc.ErrNoCompatibleAlgorithm)
				var oidErr *oid4vc.Error
				require.ErrorAs(t, err, &oidErr)
				assert.Equal(t, tt.credential.Format, oidErr.Format)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Algorithm)
		})
	}
}

func TestSelectProofOfPossessionRequirements_HeldKeys(t *testing.T) {
	signer := jose.NewMemorySigner()
	ecKey, err := signer.GenerateKey(jose.AlgES256)
	require.NoError(t, err)
	engine, err := NewEngine(Options{
		DIDResolver: didresolver.NewDefaultRouter(),
		Signer:      signer,
		Verifier:    &stubVerifier{result: verification.Valid()},
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)

	credential := jwtCredential([]string{"EdDSA", "ES256"}, []string{"jwk"})
	req, err := engine.SelectProofOfPossessionRequirements(credential, []string{"EdDSA", "ES256"})
	require.NoError(t, err)
	assert.Equal(t, "ES256", req.Algorithm)

	proof, err := engine.BuildProofOfPossession(context.Background(), ProofInput{
		Binding:   JWKBinding(ecKey),
		Algorithm: req.Algorithm,
		Audience:  "https://issuer.example",
		ClientID:  "wallet",
		Nonce:     "nonce",
	})
	require.NoError(t, err)
	assert.Equal(t, "ES256", protectedHeaders(t, proof).Algorithm().String())

	_, err = engine.SelectProofOfPossessionRequirements(credential, []string{"EdDSA"})
	assert.ErrorIs(t, err, oid4vc.ErrNoCompatibleAlgorithm)
}

func TestSelectProofOfPossessionRequirements_BindingMethods(t *testing.T) {
	h := newTestHolder(t)

	req, err := h.engine.SelectProofOfPossessionRequirements(jwtCredential(nil, []string{"did:key", "did:web", "jwk"}), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"did:key", "did:web"}, req.SupportedDIDMethods)
	assert.True(t, req.SupportsJWK)
	assert.False(t, req.SupportsAllDIDMethods)
	assert.Equal(t, BindingDID, req.PreferredBinding())

	req, err = h.engine.SelectProofOfPossessionRequirements(jwtCredential(nil, []string{"did"}), nil)
	require.NoError(t, err)
	assert.True(t, req.SupportsAllDIDMethods)
	assert.False(t, req.SupportsJWK)

	req, err = h.engine.SelectProofOfPossessionRequirements(jwtCredential(nil, []string{"jwk"}), nil)
	require.NoError(t, err)
	assert.Equal(t, BindingJWK, req.PreferredBinding())

	req, err = h.engine.SelectProofOfPossessionRequirements(jwtCredential(nil, nil), nil)
	require.NoError(t, err)
	assert.Nil(t, req.SupportedDIDMethods)
	assert.False(t, req.SupportsJWK)
}

func TestResolveCredentialBinding(t *testing.T) {
	h := newTestHolder(t)
	ctx := context.Background()
	credential := jwtCredential(nil, []string{"did:key"})
	requirement, err := h.engine.SelectProofOfPossessionRequirements(credential, nil)
	require.NoError(t, err)

	t.Run("did:key accepted", func(t *testing.T) {
		binding, err := ResolveCredentialBinding(ctx, staticBinding(DIDBinding(h.didKeyID)), *requirement, credential)
		require.NoError(t, err)
		assert.Equal(t, h.didKeyID, binding.DIDURL)
	})
	t.Run("did:example rejected", func(t *testing.T) {
		_, err := ResolveCredentialBinding(ctx, staticBinding(DIDBinding("did:example:123#key-1")), *requirement, credential)
		assert.ErrorIs(t, err, oid4vc.ErrBindingMismatch)
	})
	t.Run("jwk rejected", func(t *testing.T) {
		_, err := ResolveCredentialBinding(ctx, staticBinding(JWKBinding(h.ecKey)), *requirement, credential)
		assert.ErrorIs(t, err, oid4vc.ErrBindingMismatch)
	})
	t.Run("not a DID URL", func(t *testing.T) {
		_, err := ResolveCredentialBinding(ctx, staticBinding(DIDBinding("https://example.com#key")), *requirement, credential)
		assert.ErrorIs(t, err, oid4vc.ErrBindingMismatch)
	})
	t.Run("declared DID prefix", func(t *testing.T) {
		web := jwtCredential(nil, []string{"did:web:example.com"})
		req, err := h.engine.SelectProofOfPossessionRequirements(web, nil)
		require.NoError(t, err)
		for didURL, ok := range map[string]bool{
			"did:web:example.com#key-1":       true,
			"did:web:example.com:alice#key-1": true,
			"did:web:example.community#key-1": false,
			"did:web:other.com#key-1":         false,
		} {
			_, err := ResolveCredentialBinding(ctx, staticBinding(DIDBinding(didURL)), *req, web)
			if ok {
				assert.NoError(t, err, didURL)
			} else {
				assert.ErrorIs(t, err, oid4vc.ErrBindingMismatch, didURL)
			}
		}
	})
	t.Run("did:key does not match did:keys", func(t *testing.T) {
		_, err := ResolveCredentialBinding(ctx, staticBinding(DIDBinding("did:keys:z6Mk#key-1")), *requirement, credential)
		assert.ErrorIs(t, err, oid4vc.ErrBindingMismatch)
	})
	t.Run("any DID when methods undeclared", func(t *testing.T) {
		open := jwtCredential(nil, nil)
		req, err := h.engine.SelectProofOfPossessionRequirements(open, nil)
		require.NoError(t, err)
		_, err = ResolveCredentialBinding(ctx, staticBinding(DIDBinding("did:example:123#key-1")), *req, open)
		assert.NoError(t, err)
	})
	t.Run("nil resolver", func(t *testing.T) {
		_, err := ResolveCredentialBinding(ctx, nil, *requirement, credential)
		assert.ErrorIs(t, err, oid4vc.ErrConfiguration)
	})
}
