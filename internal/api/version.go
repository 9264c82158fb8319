// Package api provides the HTTP handlers of the holder and verifier endpoints.
package api

// APIVersion represents the current API version supported by this server.
// The api_version field in /status indicates what features are available.
const (
	// APIVersion1 is the original API version.
	APIVersion1 = 1

	// CurrentAPIVersion is the highest API version supported by this server.
	CurrentAPIVersion = APIVersion1
)

// Role names reported by /status
const (
	RoleHolder   = "holder"
	RoleVerifier = "verifier"
)

// roleCapabilities describes the features each role contributes.
var roleCapabilities = map[string][]string{
	RoleHolder: {
		"oid4vci-pre-authorized-code",
		"oid4vci-authorization-code",
		"pushed-authorization-requests",
	},
	RoleVerifier: {
		"siopv2",
		"oid4vp",
		"presentation-exchange",
	},
}

// CapabilitiesForRoles lists the capabilities of the active roles
func CapabilitiesForRoles(roles []string) []string {
	var capabilities []string
	for _, role := range roles {
		capabilities = append(capabilities, roleCapabilities[role]...)
	}
	return capabilities
}

// StatusResponse is the response from the /status endpoint.
type StatusResponse struct {
	Status       string   `json:"status"`
	Service      string   `json:"service"`
	Roles        []string `json:"roles"`
	APIVersion   int      `json:"api_version"`
	Capabilities []string `json:"capabilities,omitempty"`
}
