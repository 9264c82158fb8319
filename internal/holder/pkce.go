package holder

import (
	"golang.org/x/oauth2"

	"github.com/sirosfoundation/go-oid4vc/pkg/logging"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

// PKCE is a code verifier and its S256 challenge
type PKCE struct {
	Verifier  logging.Secret
	Challenge string
	Method    string
}

// BuildPKCE generates a fresh PKCE pair. The verifier concatenates two
// independent 256-bit random values.
func BuildPKCE() PKCE {
	verifier := oauth2.GenerateVerifier() + oauth2.GenerateVerifier()
	return PKCE{
		Verifier:  logging.Secret(verifier),
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		Method:    oid4vc.CodeChallengeMethodS256,
	}
}
