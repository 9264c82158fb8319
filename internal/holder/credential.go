package holder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

type credentialProof struct {
	ProofType string `json:"proof_type"`
	JWT       string `json:"jwt"`
}

type credentialResponse struct {
	Credential      json.RawMessage `json:"credential"`
	Format          string          `json:"format"`
	CNonce          string          `json:"c_nonce"`
	CNonceExpiresIn int             `json:"c_nonce_expires_in"`
	TransactionID   string          `json:"transaction_id"`
	// Credentials is the batch shape used by later drafts
	Credentials []issuedCredentialEntry `json:"credentials"`
}

type issuedCredentialEntry struct {
	Credential json.RawMessage `json:"credential"`
}

// credential returns the first credential of the response
func (r credentialResponse) credential() json.RawMessage {
	if len(r.Credential) > 0 && !bytes.Equal(r.Credential, []byte("null")) {
		return r.Credential
	}
	for _, c := range r.Credentials {
		if len(c.Credential) > 0 && !bytes.Equal(c.Credential, []byte("null")) {
			return c.Credential
		}
	}
	return nil
}

// credentialRequestBuilder assembles the credential request body of one credential
type credentialRequestBuilder struct {
	version MetadataVersion
	body    map[string]interface{}
}

func credentialRequestBody(md IssuerMetadata, c CredentialSupported, proof string) (map[string]interface{}, error) {
	if c.Definition == nil {
		return nil, oid4vc.Errorf(oid4vc.ErrUnsupportedFormat, "credential %q has no recognized definition", c.ID).WithFormat(c.Format)
	}
	b := &credentialRequestBuilder{
		version: md.Version,
		body: map[string]interface{}{
			"format": string(c.Format),
			"proof":  credentialProof{ProofType: oid4vc.ProofTypeJWT, JWT: proof},
		},
	}
	if err := c.Definition.Accept(b); err != nil {
		return nil, err
	}
	return b.body, nil
}

func (b *credentialRequestBuilder) VisitJwtVcJson(def JwtVcJsonDefinition) error {
	if b.version >= Draft13 {
		b.body["credential_definition"] = map[string]interface{}{"type": def.Types}
	} else {
		b.body["types"] = def.Types
	}
	return nil
}

func (b *credentialRequestBuilder) VisitLinkedData(def LinkedDataDefinition) error {
	definition := map[string]interface{}{"@context": def.Context}
	if b.version >= Draft13 {
		definition["type"] = def.Types
	} else {
		definition["types"] = def.Types
	}
	if def.CredentialSubject != nil {
		definition["credentialSubject"] = def.CredentialSubject
	}
	b.body["credential_definition"] = definition
	return nil
}

func (b *credentialRequestBuilder) VisitSdJwtVc(def SdJwtVcDefinition) error {
	b.body["vct"] = def.VCT
	return nil
}

// requestCredential posts one credential request and returns the parsed response
func (e *Engine) requestCredential(ctx context.Context, md IssuerMetadata, token *AccessToken, body map[string]interface{}) (*credentialResponse, error) {
	endpoint := md.CredentialEndpoint
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding credential request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	tokenType := token.TokenType
	if tokenType == "" || tokenType == "bearer" {
		tokenType = "Bearer"
	}
	req.Header.Set("Authorization", tokenType+" "+token.Value.Reveal())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, oid4vc.Wrap(oid4vc.ErrCredentialRequest, fmt.Errorf("credential request: %w", err)).WithEndpoint(endpoint)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, oid4vc.Wrap(oid4vc.ErrCredentialRequest, fmt.Errorf("reading credential response: %w", err)).WithEndpoint(endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, oid4vc.Errorf(oid4vc.ErrCredentialRequest, "credential endpoint returned HTTP %d: %s", resp.StatusCode, string(data)).
			WithEndpoint(endpoint)
	}
	var cr credentialResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return nil, oid4vc.Wrap(oid4vc.ErrCredentialRequest, fmt.Errorf("decoding credential response: %w", err)).WithEndpoint(endpoint)
	}
	return &cr, nil
}

// issuedCredential checks the response shape for the requested format, runs
// verification and wraps the result.
func (e *Engine) issuedCredential(ctx context.Context, requested oid4vc.Format, endpoint string, resp *credentialResponse) (IssuedCredential, error) {
	raw := resp.credential()
	if raw == nil {
		if resp.TransactionID != "" {
			return nil, oid4vc.Errorf(oid4vc.ErrCredentialRequest, "deferred issuance is not supported").
				WithFormat(requested).WithEndpoint(endpoint)
		}
		return nil, oid4vc.Errorf(oid4vc.ErrCredentialRequest, "credential response has no credential").
			WithFormat(requested).WithEndpoint(endpoint)
	}
	if resp.Format != "" && resp.Format != string(requested) {
		return nil, oid4vc.Errorf(oid4vc.ErrCredentialRequest, "issuer returned format %s, requested %s", resp.Format, requested).
			WithFormat(requested).WithEndpoint(endpoint)
	}

	var compact string
	switch requested {
	case oid4vc.FormatJwtVcJson, oid4vc.FormatJwtVcJsonLd, oid4vc.FormatSdJwtVc:
		if err := json.Unmarshal(raw, &compact); err != nil {
			return nil, oid4vc.Errorf(oid4vc.ErrCredentialRequest, "%s credential must be a string", requested).
				WithFormat(requested).WithEndpoint(endpoint)
		}
	case oid4vc.FormatLdpVc:
		if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, oid4vc.Errorf(oid4vc.ErrCredentialRequest, "ldp_vc credential must be a JSON object").
				WithFormat(requested).WithEndpoint(endpoint)
		}
	default:
		return nil, oid4vc.Errorf(oid4vc.ErrUnsupportedFormat, "format %q is not supported", requested).WithFormat(requested)
	}

	result, err := e.verifier.Verify(ctx, raw, string(requested))
	if err != nil {
		return nil, err
	}
	if !result.IsValid {
		cause := result.Error
		if cause == nil {
			cause = errors.New("credential is not valid")
		}
		return nil, oid4vc.Wrap(oid4vc.ErrVerification, fmt.Errorf("verifying issued credential: %w", cause)).WithFormat(requested)
	}

	switch requested {
	case oid4vc.FormatSdJwtVc:
		return SdJwtVcCredential{Compact: compact, Result: result}, nil
	case oid4vc.FormatLdpVc:
		return LdpVcCredential{Document: raw, Result: result}, nil
	default:
		return JwtVcCredential{CredentialFormat: requested, Compact: compact, Result: result}, nil
	}
}
