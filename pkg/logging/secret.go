package logging

import "encoding/json"

const redacted = "[REDACTED]"

// Secret holds a value that must never end up in logs or serialized output,
// such as a PKCE code verifier or a bearer token. Use Reveal to read it.
type Secret string

// Reveal returns the underlying value
func (s Secret) Reveal() string {
	return string(s)
}

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string {
	return s.String()
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
