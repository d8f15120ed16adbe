// Package validate implements the structural validator: three orthogonal
// checks (manifest, structure, static security) each producing a
// separately cached ValidationVerdict.
package validate

import (
	"encoding/json"
	"fmt"

	"github.com/ows4444/pluginforge/internal/cache"
	"github.com/ows4444/pluginforge/internal/manifest"
)

const (
	maxDescriptionLen = 1000
	maxAuthorLen      = 200
	maxLicenseLen     = 100
)

// ParseManifest decodes plugin.manifest.json's bytes into a manifest.Manifest
// without validating field contents.
func ParseManifest(data []byte) (*manifest.Manifest, error) {
	var m manifest.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("validate: parse manifest: %w", err)
	}
	return &m, nil
}

// ValidateManifest runs the manifest-kind check, consulting and populating
// the cache by (digest, KindManifest).
func (v *Validator) ValidateManifest(digest string, data []byte) (cache.Verdict, *manifest.Manifest, error) {
	if verdict, ok := v.cache.Get(digest, cache.KindManifest); ok {
		m, err := ParseManifest(data)
		return verdict, m, err
	}

	m, parseErr := ParseManifest(data)
	if parseErr != nil {
		verdict := cache.Verdict{IsValid: false, Errors: []string{parseErr.Error()}}
		v.cache.Set(digest, cache.KindManifest, verdict)
		return verdict, nil, nil
	}

	verdict := checkManifestFields(m)
	v.cache.Set(digest, cache.KindManifest, verdict)
	return verdict, m, nil
}

func checkManifestFields(m *manifest.Manifest) cache.Verdict {
	var errs, warns []string

	if !manifest.NamePattern.MatchString(m.Name) {
		errs = append(errs, fmt.Sprintf("name %q does not match %s", m.Name, manifest.NamePattern.String()))
	}
	if !manifest.VersionPattern.MatchString(m.Version) {
		errs = append(errs, fmt.Sprintf("version %q does not match %s", m.Version, manifest.VersionPattern.String()))
	}
	if !manifest.EntryPointPattern.MatchString(m.EntryPoint) {
		errs = append(errs, fmt.Sprintf("entryPoint %q does not match %s", m.EntryPoint, manifest.EntryPointPattern.String()))
	}
	if m.CompatibilityVersion != "" && !manifest.VersionPattern.MatchString(m.CompatibilityVersion) {
		errs = append(errs, fmt.Sprintf("compatibilityVersion %q does not match %s", m.CompatibilityVersion, manifest.VersionPattern.String()))
	}

	if m.Description == "" {
		warns = append(warns, "description is empty")
	} else if len(m.Description) > maxDescriptionLen {
		errs = append(errs, fmt.Sprintf("description exceeds %d characters", maxDescriptionLen))
	}
	if m.Author == "" {
		warns = append(warns, "author is empty")
	} else if len(m.Author) > maxAuthorLen {
		errs = append(errs, fmt.Sprintf("author exceeds %d characters", maxAuthorLen))
	}
	if m.License == "" {
		warns = append(warns, "license is empty")
	} else if len(m.License) > maxLicenseLen {
		errs = append(errs, fmt.Sprintf("license exceeds %d characters", maxLicenseLen))
	}

	if m.Security != nil && m.Security.Signature != nil {
		if !manifest.SupportedAlgorithms[m.Security.Signature.Algorithm] {
			errs = append(errs, fmt.Sprintf("unsupported signature algorithm %q", m.Security.Signature.Algorithm))
		}
	}

	return cache.Verdict{IsValid: len(errs) == 0, Errors: errs, Warnings: warns}
}
