// Package verification checks received credentials according to their
// declared format. The Dispatcher routes each credential to the collaborator
// responsible for its format.
package verification

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

// Result is the outcome of a verification. Error is set when IsValid is false.
type Result struct {
	IsValid bool  `json:"is_valid"`
	Error   error `json:"-"`
}

// MarshalJSON includes the failure reason as a string
func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		IsValid bool   `json:"is_valid"`
		Error   string `json:"error,omitempty"`
	}{IsValid: r.IsValid}
	if r.Error != nil {
		out.Error = r.Error.Error()
	}
	return json.Marshal(out)
}

// Valid returns a successful Result
func Valid() Result {
	return Result{IsValid: true}
}

// Invalid returns a failed Result carrying err
func Invalid(err error) Result {
	return Result{IsValid: false, Error: err}
}

// CredentialRequest is the input for verifying a W3C credential.
type CredentialRequest struct {
	Format oid4vc.Format
	// Compact is set for JWT-based formats
	Compact string
	// Document is set for linked data credentials
	Document json.RawMessage
}

// CredentialVerifier verifies W3C verifiable credentials (jwt_vc_json,
// jwt_vc_json-ld and ldp_vc).
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, req CredentialRequest) (Result, error)
}

// SdJwtVcVerifier verifies SD-JWT VC credentials.
type SdJwtVcVerifier interface {
	VerifySdJwtVc(ctx context.Context, compact string) (Result, error)
}

// Dispatcher routes credentials to the verifier for their format.
type Dispatcher struct {
	credentials CredentialVerifier
	sdJwt       SdJwtVcVerifier
	logger      *zap.Logger
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(credentials CredentialVerifier, sdJwt SdJwtVcVerifier, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		credentials: credentials,
		sdJwt:       sdJwt,
		logger:      logger.Named("verification"),
	}
}

// Verify checks raw against the rules of format. An unknown format fails with
// oid4vc.ErrUnsupportedFormat before either collaborator is called. Structural
// and cryptographic failures are reported as an invalid Result; the returned
// error is reserved for failures to run the verification at all.
func (d *Dispatcher) Verify(ctx context.Context, raw json.RawMessage, format string) (Result, error) {
	f, err := oid4vc.ParseFormat(format)
	if err != nil {
		return Result{}, err
	}

	var result Result
	switch f {
	case oid4vc.FormatJwtVcJson, oid4vc.FormatJwtVcJsonLd:
		compact, ok := asString(raw)
		if !ok {
			return Invalid(fmt.Errorf("%s credential must be a compact JWT string", f)), nil
		}
		result, err = d.verifyCredential(ctx, CredentialRequest{Format: f, Compact: compact})
	case oid4vc.FormatLdpVc:
		if !isObject(raw) {
			return Invalid(fmt.Errorf("%s credential must be a JSON object", f)), nil
		}
		result, err = d.verifyCredential(ctx, CredentialRequest{Format: f, Document: raw})
	case oid4vc.FormatSdJwtVc:
		compact, ok := asString(raw)
		if !ok {
			return Invalid(fmt.Errorf("%s credential must be a string", f)), nil
		}
		if d.sdJwt == nil {
			return Result{}, oid4vc.Errorf(oid4vc.ErrConfiguration, "no verifier configured").WithFormat(f)
		}
		result, err = d.sdJwt.VerifySdJwtVc(ctx, compact)
	}
	if err != nil {
		return Result{}, err
	}

	if !result.IsValid {
		d.logger.Debug("Credential failed verification",
			zap.String("format", string(f)),
			zap.Error(result.Error))
	}
	return result, nil
}

func (d *Dispatcher) verifyCredential(ctx context.Context, req CredentialRequest) (Result, error) {
	if d.credentials == nil {
		return Result{}, oid4vc.Errorf(oid4vc.ErrConfiguration, "no verifier configured").WithFormat(req.Format)
	}
	return d.credentials.VerifyCredential(ctx, req)
}

func asString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func isObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal(raw, &obj) == nil && obj != nil
}
