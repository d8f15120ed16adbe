// Package manifest defines the plugin manifest type and the structural
// regexes used to validate its name, version, and entry point fields.
package manifest

import "regexp"

var (
	// NamePattern matches a lowercase plugin identifier.
	NamePattern = regexp.MustCompile(`^[a-z0-9_-]{2,50}$`)
	// VersionPattern matches a semver triple with an optional pre-release tag.
	VersionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[A-Za-z0-9-]+)?$`)
	// EntryPointPattern matches a PascalCase exported symbol name.
	EntryPointPattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)
)

// SignatureAlgorithm enumerates the supported signing algorithms.
type SignatureAlgorithm string

const (
	AlgRS256 SignatureAlgorithm = "RS256"
	AlgRS512 SignatureAlgorithm = "RS512"
	AlgES256 SignatureAlgorithm = "ES256"
	AlgES512 SignatureAlgorithm = "ES512"
)

// SupportedAlgorithms is the set the signing pipeline accepts.
var SupportedAlgorithms = map[SignatureAlgorithm]bool{
	AlgRS256: true,
	AlgRS512: true,
	AlgES256: true,
	AlgES512: true,
}

// Signature is the manifest's optional embedded signature block.
type Signature struct {
	Algorithm SignatureAlgorithm `json:"algorithm"`
	PublicKey string             `json:"publicKey"`
	Value     string             `json:"signature"`
}

// Security carries the manifest's optional signature and trust hint.
type Security struct {
	Signature  *Signature `json:"signature,omitempty"`
	TrustLevel string     `json:"trustLevel,omitempty"`
}

// Permissions describes the services/modules a plugin asks to access.
type Permissions struct {
	Services []string `json:"services,omitempty"`
	Modules  []string `json:"modules,omitempty"`
}

// Configuration carries the plugin's opaque configuration schema.
type Configuration struct {
	Schema map[string]interface{} `json:"schema,omitempty"`
}

// Module is the manifest's opaque module-exports block: stored and echoed
// back verbatim, never interpreted by the registry or host.
type Module struct {
	Exports []string `json:"exports,omitempty"`
}

// Manifest is plugin.manifest.json's parsed form.
type Manifest struct {
	Name                  string         `json:"name"`
	Version               string         `json:"version"`
	Description           string         `json:"description"`
	Author                string         `json:"author"`
	License               string         `json:"license"`
	EntryPoint            string         `json:"entryPoint"`
	Dependencies          []string       `json:"dependencies,omitempty"`
	LoadOrder             *int           `json:"loadOrder,omitempty"`
	CompatibilityVersion  string         `json:"compatibilityVersion"`
	Routes                []string       `json:"routes,omitempty"`
	Configuration         *Configuration `json:"configuration,omitempty"`
	Module                *Module        `json:"module,omitempty"`
	Security              *Security      `json:"security,omitempty"`
	Permissions           *Permissions   `json:"permissions,omitempty"`
	Critical              bool           `json:"critical,omitempty"`
}

// DependencySet returns Dependencies as a set for reachability checks.
func (m *Manifest) DependencySet() map[string]bool {
	set := make(map[string]bool, len(m.Dependencies))
	for _, d := range m.Dependencies {
		set[d] = true
	}
	return set
}

// ExportSet returns Module.Exports as a set, empty if Module is nil.
func (m *Manifest) ExportSet() map[string]bool {
	set := map[string]bool{}
	if m.Module == nil {
		return set
	}
	for _, e := range m.Module.Exports {
		set[e] = true
	}
	return set
}
