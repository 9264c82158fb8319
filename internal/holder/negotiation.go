package holder

import (
	"strings"

	"github.com/samber/lo"

	"github.com/sirosfoundation/go-oid4vc/pkg/jose"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

// ProofOfPossessionRequirement is the outcome of negotiating how the holder
// proves possession of the key a credential is bound to.
type ProofOfPossessionRequirement struct {
	Algorithm string `json:"algorithm"`
	// SupportedDIDMethods lists the did: method prefixes the issuer accepts.
	// It is nil when the issuer declares no binding methods.
	SupportedDIDMethods   []string `json:"supported_did_methods,omitempty"`
	SupportsAllDIDMethods bool     `json:"supports_all_did_methods"`
	SupportsJWK           bool     `json:"supports_jwk"`
}

// PreferredBinding returns the binding kind the issuer is most likely to
// accept. DID bindings are preferred over JWK bindings.
func (r ProofOfPossessionRequirement) PreferredBinding() BindingKind {
	if r.SupportsJWK && !r.SupportsAllDIDMethods && len(r.SupportedDIDMethods) == 0 {
		return BindingJWK
	}
	return BindingDID
}

// SelectProofOfPossessionRequirements picks the signature algorithm and the
// acceptable key bindings for requesting credential. A nil allowed list
// accepts every algorithm the signer supports.
func (e *Engine) SelectProofOfPossessionRequirements(credential CredentialSupported, allowed []string) (*ProofOfPossessionRequirement, error) {
	alg, err := selectAlgorithm(credential, e.signer.SupportedAlgorithms(), allowed)
	if err != nil {
		return nil, err
	}
	req := &ProofOfPossessionRequirement{Algorithm: alg}
	if methods := credential.BindingMethodsSupported; methods != nil {
		req.SupportsAllDIDMethods = lo.Contains(methods, oid4vc.BindingMethodDID)
		req.SupportsJWK = lo.Contains(methods, oid4vc.BindingMethodJWK)
		req.SupportedDIDMethods = lo.Filter(methods, func(m string, _ int) bool {
			return strings.HasPrefix(m, oid4vc.DIDPrefix)
		})
	}
	return req, nil
}

func selectAlgorithm(credential CredentialSupported, supported, allowed []string) (string, error) {
	possible := supported
	if allowed != nil {
		possible = lo.Filter(allowed, func(alg string, _ int) bool {
			return lo.Contains(supported, alg)
		})
	}
	if len(possible) == 0 {
		return "", oid4vc.Errorf(oid4vc.ErrNoCompatibleAlgorithm,
			"none of the allowed algorithms %v is supported by the signer", allowed).WithFormat(credential.Format)
	}

	if proofAlgs := credential.ProofSigningAlgValuesSupported; proofAlgs != nil {
		if alg, ok := lo.Find(possible, func(alg string) bool { return lo.Contains(proofAlgs, alg) }); ok {
			return alg, nil
		}
		return "", oid4vc.Errorf(oid4vc.ErrNoCompatibleAlgorithm,
			"issuer accepts %v for proofs, holder can use %v", proofAlgs, possible).WithFormat(credential.Format)
	}

	suites := credential.CryptographicSuitesSupported
	// The issuer not declaring any suites is taken as accepting any algorithm.
	if suites == nil {
		return possible[0], nil
	}

	var match func(alg string) bool
	switch credential.Format {
	case oid4vc.FormatLdpVc:
		match = func(alg string) bool {
			proofType, ok := jose.ProofTypeForAlgorithm(alg)
			return ok && lo.Contains(suites, proofType)
		}
	default:
		match = func(alg string) bool {
			return lo.Contains(suites, alg)
		}
	}
	if alg, ok := lo.Find(possible, match); ok {
		return alg, nil
	}
	return "", oid4vc.Errorf(oid4vc.ErrNoCompatibleAlgorithm,
		"issuer supports %v, holder can use %v", suites, possible).WithFormat(credential.Format)
}
