package oid4vc

// PresentationDefinition describes the credentials a verifier requires
// (DIF Presentation Exchange v2).
type PresentationDefinition struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name,omitempty"`
	Purpose          string                 `json:"purpose,omitempty"`
	InputDescriptors []InputDescriptor      `json:"input_descriptors"`
	Format           map[string]interface{} `json:"format,omitempty"`
}

// InputDescriptor describes a single required credential
type InputDescriptor struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name,omitempty"`
	Purpose     string                 `json:"purpose,omitempty"`
	Group       []string               `json:"group,omitempty"`
	Format      map[string]interface{} `json:"format,omitempty"`
	Constraints *Constraints           `json:"constraints,omitempty"`
}

// Constraints defines field constraints
type Constraints struct {
	LimitDisclosure string  `json:"limit_disclosure,omitempty"`
	Fields          []Field `json:"fields,omitempty"`
}

// Field defines a field constraint
type Field struct {
	ID       string                 `json:"id,omitempty"`
	Path     []string               `json:"path"`
	Purpose  string                 `json:"purpose,omitempty"`
	Filter   map[string]interface{} `json:"filter,omitempty"`
	Optional bool                   `json:"optional,omitempty"`
}

// InputDescriptorIDs returns the ids of all input descriptors in declaration order.
func (pd PresentationDefinition) InputDescriptorIDs() []string {
	ids := make([]string, 0, len(pd.InputDescriptors))
	for _, d := range pd.InputDescriptors {
		ids = append(ids, d.ID)
	}
	return ids
}

// PresentationSubmission maps the credentials in a presentation onto the
// input descriptors of a definition.
type PresentationSubmission struct {
	ID            string                   `json:"id"`
	DefinitionID  string                   `json:"definition_id"`
	DescriptorMap []InputDescriptorMapping `json:"descriptor_map"`
}

// InputDescriptorMapping locates the credential satisfying one input descriptor.
type InputDescriptorMapping struct {
	ID         string                  `json:"id"`
	Format     string                  `json:"format"`
	Path       string                  `json:"path"`
	PathNested *InputDescriptorMapping `json:"path_nested,omitempty"`
}
