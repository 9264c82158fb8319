package holder

import (
	"context"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/pkg/logging"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

// AcceptOptions configures the acceptance of a credential offer
type AcceptOptions struct {
	// CredentialIDs selects the offered credentials to request. Nil requests
	// every offered credential, an empty slice requests none.
	CredentialIDs []string
	// AllowedAlgorithms restricts proof signature algorithms. Nil allows
	// every algorithm the signer supports.
	AllowedAlgorithms []string
	BindingResolver   CredentialBindingResolver
	// ClientID is used as the proof issuer when set
	ClientID string

	// UserPIN is used with the pre-authorized_code grant
	UserPIN logging.Secret
	// Code and Session select the authorization_code grant
	Code    string
	Session *AuthorizationSession
}

// AcceptCredentialOffer requests the selected credentials of a resolved
// offer. Credentials are requested one by one; the first failure aborts the
// whole acceptance.
func (e *Engine) AcceptCredentialOffer(ctx context.Context, offer *ResolvedCredentialOffer, opts AcceptOptions) ([]IssuedCredential, error) {
	if opts.CredentialIDs != nil && len(opts.CredentialIDs) == 0 {
		return []IssuedCredential{}, nil
	}
	credentials, err := selectCredentials(offer, opts.CredentialIDs)
	if err != nil {
		return nil, err
	}
	if opts.BindingResolver == nil {
		return nil, oid4vc.Errorf(oid4vc.ErrConfiguration, "no credential binding resolver configured")
	}

	token, err := e.AcquireAccessToken(ctx, offer, TokenRequest{
		UserPIN: opts.UserPIN,
		Code:    opts.Code,
		Session: opts.Session,
	})
	if err != nil {
		return nil, err
	}

	clientID := opts.ClientID
	if clientID == "" && opts.Session != nil {
		clientID = opts.Session.ClientID
	}

	logger := e.logger.With(zap.String("issuer", offer.Metadata.CredentialIssuer))
	nonce := token.CNonce
	issued := make([]IssuedCredential, 0, len(credentials))
	for _, credential := range credentials {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		requirement, err := e.SelectProofOfPossessionRequirements(credential, opts.AllowedAlgorithms)
		if err != nil {
			return nil, err
		}
		binding, err := ResolveCredentialBinding(ctx, opts.BindingResolver, *requirement, credential)
		if err != nil {
			return nil, err
		}
		proof, err := e.BuildProofOfPossession(ctx, ProofInput{
			Binding:   binding,
			Algorithm: requirement.Algorithm,
			Audience:  offer.Metadata.CredentialIssuer,
			ClientID:  clientID,
			Nonce:     nonce,
		})
		if err != nil {
			return nil, err
		}
		body, err := credentialRequestBody(offer.Metadata, credential, proof)
		if err != nil {
			return nil, err
		}
		resp, err := e.requestCredential(ctx, offer.Metadata, token, body)
		if err != nil {
			return nil, err
		}
		if resp.CNonce != "" {
			nonce = resp.CNonce
		}
		cred, err := e.issuedCredential(ctx, credential.Format, offer.Metadata.CredentialEndpoint, resp)
		if err != nil {
			return nil, err
		}
		logger.Info("Received credential",
			zap.String("credential_id", credential.ID),
			zap.String("format", string(credential.Format)),
			zap.String("algorithm", requirement.Algorithm),
			zap.String("binding", string(binding.Kind)))
		issued = append(issued, cred)
	}
	return issued, nil
}
