// Package api provides the HTTP surface of the auth backend.
package api

// APIVersion is a capability level, not a URL prefix: REST endpoints
// live under /api/... unversioned, and the api_version field of /health
// tells frontends which features this server speaks.
const (
	// APIVersion1 is the original API version.
	APIVersion1 = 1

	// CurrentAPIVersion is the highest API version supported by this server.
	CurrentAPIVersion = APIVersion1
)

// APICapabilities describes the features available at each API version.
var APICapabilities = map[int][]string{
	APIVersion1: {
		"webauthn",
		"sessions",
		"csrf",
		"legacy-token",
	},
}

// StatusResponse is the response from the /health endpoint.
type StatusResponse struct {
	Status       string   `json:"status"`
	Service      string   `json:"service"`
	APIVersion   int      `json:"api_version"`
	Capabilities []string `json:"capabilities,omitempty"`
}
