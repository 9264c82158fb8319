package holder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/sirosfoundation/go-oid4vc/internal/didresolver"
	"github.com/sirosfoundation/go-oid4vc/pkg/jose"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

const (
	headerKeyID = "kid"
	headerJWK   = "jwk"
	headerX5C   = "x5c"
	headerType  = "typ"
	headerAlg   = "alg"
	claimIssuer = "iss"
	claimAud    = "aud"
	claimIssued = "iat"
	claimNonce  = "nonce"
)

// ProofInput describes a proof of possession JWT
type ProofInput struct {
	Binding   CredentialBinding
	Algorithm string
	// Audience is the credential issuer identifier
	Audience string
	ClientID string
	Nonce    string
	// AdditionalHeaders are merged into the protected header. They may not
	// override typ or alg.
	AdditionalHeaders map[string]interface{}
}

// BuildProofOfPossession signs a proof of possession JWT for the bound key
func (e *Engine) BuildProofOfPossession(ctx context.Context, in ProofInput) (string, error) {
	if in.Algorithm == "" {
		return "", oid4vc.Errorf(oid4vc.ErrConfiguration, "proof algorithm is required")
	}
	if in.Audience == "" {
		return "", oid4vc.Errorf(oid4vc.ErrConfiguration, "proof audience is required")
	}

	headers := make(map[string]interface{}, len(in.AdditionalHeaders)+3)
	for k, v := range in.AdditionalHeaders {
		if k == headerType || k == headerAlg {
			continue
		}
		headers[k] = v
	}
	headers[headerType] = oid4vc.ProofJWTType

	claims := map[string]interface{}{
		claimAud:    in.Audience,
		claimIssued: e.now().Unix(),
	}
	if in.Nonce != "" {
		claims[claimNonce] = in.Nonce
	}
	if in.ClientID != "" {
		claims[claimIssuer] = in.ClientID
	}

	switch in.Binding.Kind {
	case BindingDID:
		headers[headerKeyID] = in.Binding.DIDURL
		if in.ClientID == "" {
			if i := strings.Index(in.Binding.DIDURL, "#"); i > 0 {
				claims[claimIssuer] = in.Binding.DIDURL[:i]
			}
		}
	case BindingJWK:
		if in.Binding.JWK == nil {
			return "", oid4vc.Errorf(oid4vc.ErrConfiguration, "jwk binding carries no key")
		}
		pub, err := in.Binding.JWK.PublicKey()
		if err != nil {
			return "", oid4vc.Wrap(oid4vc.ErrConfiguration, fmt.Errorf("deriving public jwk: %w", err))
		}
		headers[headerJWK] = pub
	}

	key, err := e.proofKey(ctx, headers, in.Algorithm)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encoding proof claims: %w", err)
	}
	compact, err := e.signer.Sign(ctx, jose.SignRequest{
		Payload:   payload,
		Key:       key,
		Algorithm: in.Algorithm,
		Headers:   headers,
	})
	if err != nil {
		return "", fmt.Errorf("signing proof: %w", err)
	}
	return compact, nil
}

// proofKey locates the public key named by the proof header and checks it
// can produce alg.
func (e *Engine) proofKey(ctx context.Context, headers map[string]interface{}, alg string) (jwk.Key, error) {
	kid, hasKid := headers[headerKeyID]
	inline, hasJWK := headers[headerJWK]
	if hasKid && hasJWK {
		return nil, oid4vc.Errorf(oid4vc.ErrAmbiguousKeyReference, "proof header carries both kid and jwk")
	}
	if _, ok := headers[headerX5C]; ok {
		return nil, oid4vc.Errorf(oid4vc.ErrConfiguration, "x5c key references are not supported")
	}

	var key jwk.Key
	switch {
	case hasKid:
		keyID, ok := kid.(string)
		if !ok || !strings.HasPrefix(keyID, oid4vc.DIDPrefix) {
			return nil, oid4vc.Errorf(oid4vc.ErrConfiguration, "kid must be a DID URL")
		}
		if !strings.Contains(keyID, "#") {
			return nil, oid4vc.Errorf(oid4vc.ErrConfiguration, "kid %s does not reference a verification method", keyID)
		}
		resolved, err := didresolver.ResolveKey(ctx, e.didResolver, keyID, didresolver.Authentication)
		if err != nil {
			return nil, oid4vc.Wrap(oid4vc.ErrConfiguration, fmt.Errorf("dereferencing kid: %w", err))
		}
		key = resolved
	case hasJWK:
		k, ok := inline.(jwk.Key)
		if !ok {
			return nil, oid4vc.Errorf(oid4vc.ErrConfiguration, "jwk header is not a JWK")
		}
		key = k
	default:
		return nil, oid4vc.Errorf(oid4vc.ErrConfiguration, "proof header names no key")
	}

	if !jose.KeySupportsAlgorithm(key, alg) {
		keyType, _ := jose.KeyTypeOf(key)
		return nil, oid4vc.Errorf(oid4vc.ErrConfiguration, "key of type %s cannot sign with %s", keyType, alg).WithAlgorithm(alg)
	}
	return key, nil
}
