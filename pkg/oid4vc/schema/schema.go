// Package schema validates presentation exchange documents against their
// JSON schemas.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/loader"
)

const (
	presentationDefinitionSchemaURL = "https://identity.foundation/presentation-exchange/schemas/presentation-definition.json"
	presentationSubmissionSchemaURL = "https://identity.foundation/presentation-exchange/schemas/presentation-submission.json"
)

//go:embed presentation_definition.json
var presentationDefinitionSchemaData []byte

//go:embed presentation_submission.json
var presentationSubmissionSchemaData []byte

// PresentationDefinition is the compiled schema for a presentation definition.
var PresentationDefinition *jsonschema.Schema

// PresentationSubmission is the compiled schema for a presentation submission.
var PresentationSubmission *jsonschema.Schema

func init() {
	// Only the embedded schemas may be referenced.
	loader.Load = func(url string) (io.ReadCloser, error) {
		return nil, fmt.Errorf("refusing to load unknown schema: %s", url)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	resources := map[string][]byte{
		presentationDefinitionSchemaURL: presentationDefinitionSchemaData,
		presentationSubmissionSchemaURL: presentationSubmissionSchemaData,
	}
	for u, data := range resources {
		if err := compiler.AddResource(u, bytes.NewReader(data)); err != nil {
			panic(fmt.Errorf("error compiling schema %s: %w", u, err))
		}
	}
	PresentationDefinition = compiler.MustCompile(presentationDefinitionSchemaURL)
	PresentationSubmission = compiler.MustCompile(presentationSubmissionSchemaURL)
}

// Validate validates the given raw JSON document against the given schema.
func Validate(data []byte, target *jsonschema.Schema) error {
	return target.Validate(bytes.NewReader(data))
}

// ValidateValue marshals v and validates the result against the given schema.
func ValidateValue(v interface{}, target *jsonschema.Schema) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return Validate(data, target)
}
