package oid4vc

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the holder and verifier entry points
// matches exactly one of these through errors.Is.
var (
	ErrConfiguration         = errors.New("configuration error")
	ErrOfferResolution       = errors.New("offer resolution error")
	ErrMetadata              = errors.New("metadata error")
	ErrUnsupportedFormat     = errors.New("unsupported format")
	ErrNoCompatibleAlgorithm = errors.New("no compatible algorithm")
	ErrBindingMismatch       = errors.New("binding mismatch")
	ErrAmbiguousKeyReference = errors.New("ambiguous key reference")
	ErrTokenAcquisition      = errors.New("token acquisition error")
	ErrCredentialRequest     = errors.New("credential request error")
	ErrVerification          = errors.New("verification error")
	ErrMissingContext        = errors.New("missing context")
)

// Error carries an error kind together with the format, algorithm or
// endpoint involved in the failure.
type Error struct {
	Kind      error
	Format    Format
	Algorithm string
	Endpoint  string
	Err       error
}

// Errorf creates an Error of the given kind. The message is formatted with
// fmt.Errorf, so %w verbs keep the cause reachable.
func Errorf(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap creates an Error of the given kind around an existing error.
func Wrap(kind error, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) WithFormat(f Format) *Error {
	e.Format = f
	return e
}

func (e *Error) WithAlgorithm(alg string) *Error {
	e.Algorithm = alg
	return e
}

func (e *Error) WithEndpoint(endpoint string) *Error {
	e.Endpoint = endpoint
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	var attrs []string
	if e.Format != "" {
		attrs = append(attrs, "format="+string(e.Format))
	}
	if e.Algorithm != "" {
		attrs = append(attrs, "alg="+e.Algorithm)
	}
	if e.Endpoint != "" {
		attrs = append(attrs, "endpoint="+e.Endpoint)
	}
	if len(attrs) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(attrs, ", "))
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the error kind of err, or nil if err is not an *Error.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
