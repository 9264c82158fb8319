// Package oid4vc holds the protocol vocabulary shared by the holder and
// verifier sides: credential formats, error kinds, request parameter names
// and presentation exchange documents.
package oid4vc

import "encoding/json"

// Format is a credential format identifier. The set of values is closed;
// anything else is rejected by ParseFormat.
type Format string

const (
	FormatJwtVcJson   Format = "jwt_vc_json"
	FormatJwtVcJsonLd Format = "jwt_vc_json-ld"
	FormatLdpVc       Format = "ldp_vc"
	FormatSdJwtVc     Format = "sd_jwt_vc"
)

// Formats lists every supported format in declaration order.
var Formats = []Format{FormatJwtVcJson, FormatJwtVcJsonLd, FormatLdpVc, FormatSdJwtVc}

// ParseFormat maps a wire value onto the closed Format set.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJwtVcJson, FormatJwtVcJsonLd, FormatLdpVc, FormatSdJwtVc:
		return f, nil
	}
	return "", Errorf(ErrUnsupportedFormat, "format %q is not supported", s).WithFormat(Format(s))
}

// IsJWT reports whether credentials of this format are signed as a compact JWS.
func (f Format) IsJWT() bool {
	return f == FormatJwtVcJson || f == FormatJwtVcJsonLd
}

// IsLinkedData reports whether the format carries a JSON-LD @context.
func (f Format) IsLinkedData() bool {
	return f == FormatLdpVc || f == FormatJwtVcJsonLd
}

func (f Format) String() string {
	return string(f)
}

// UnmarshalJSON rejects formats outside the supported set.
func (f *Format) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
