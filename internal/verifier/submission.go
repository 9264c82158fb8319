package verifier

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/samber/lo"

	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc/schema"
)

// parseSubmission accepts a presentation_submission given either as a JSON
// object or as a JSON string containing the object, and validates it.
func parseSubmission(raw json.RawMessage) (*oid4vc.PresentationSubmission, error) {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 {
		return nil, errors.New("presentation_submission is missing")
	}
	if data[0] == '"' {
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			return nil, fmt.Errorf("decoding presentation_submission: %w", err)
		}
		data = []byte(encoded)
	}
	if err := schema.Validate(data, schema.PresentationSubmission); err != nil {
		return nil, fmt.Errorf("invalid presentation_submission: %w", err)
	}
	var submission oid4vc.PresentationSubmission
	if err := json.Unmarshal(data, &submission); err != nil {
		return nil, fmt.Errorf("decoding presentation_submission: %w", err)
	}
	return &submission, nil
}

// checkSubmission verifies that submission answers definition and that every
// mapped path resolves in the presentation.
func checkSubmission(submission *oid4vc.PresentationSubmission, definition *oid4vc.PresentationDefinition, presentation map[string]interface{}) error {
	if submission.DefinitionID != definition.ID {
		return fmt.Errorf("submission answers definition %q, requested %q", submission.DefinitionID, definition.ID)
	}
	descriptorIDs := definition.InputDescriptorIDs()
	mapped := lo.Map(submission.DescriptorMap, func(m oid4vc.InputDescriptorMapping, _ int) string { return m.ID })
	if unknown := lo.Without(mapped, descriptorIDs...); len(unknown) > 0 {
		return fmt.Errorf("submission maps unknown input descriptors %v", unknown)
	}
	if missing := lo.Without(descriptorIDs, mapped...); len(missing) > 0 {
		return fmt.Errorf("input descriptors %v are not satisfied", missing)
	}
	for _, mapping := range submission.DescriptorMap {
		if err := resolveMapping(mapping, presentation); err != nil {
			return fmt.Errorf("descriptor %s: %w", mapping.ID, err)
		}
	}
	return nil
}

// resolveMapping evaluates the path of mapping, then each nested path
// against the value found by its parent.
func resolveMapping(mapping oid4vc.InputDescriptorMapping, document interface{}) error {
	current := &mapping
	for current != nil {
		value, err := jsonpath.Get(current.Path, document)
		if err != nil {
			return fmt.Errorf("path %s: %w", current.Path, err)
		}
		if value == nil {
			return fmt.Errorf("path %s resolves to nothing", current.Path)
		}
		document = decodeEmbedded(value)
		current = current.PathNested
	}
	return nil
}

// decodeEmbedded returns the payload of a compact JWT so nested paths can
// descend into it. Signatures of embedded credentials are not checked here.
func decodeEmbedded(value interface{}) interface{} {
	s, ok := value.(string)
	if !ok {
		return value
	}
	if i := strings.Index(s, "~"); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return value
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return value
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return value
	}
	return decoded
}
