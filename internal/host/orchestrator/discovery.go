package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ows4444/pluginforge/internal/manifest"
)

// DiscoveryErrorKind classifies why a candidate plugin directory could not
// be discovered.
type DiscoveryErrorKind string

const (
	ManifestNotFound       DiscoveryErrorKind = "MANIFEST_NOT_FOUND"
	ManifestParseError     DiscoveryErrorKind = "MANIFEST_PARSE_ERROR"
	ManifestValidationError DiscoveryErrorKind = "MANIFEST_VALIDATION_ERROR"
	FileAccessError        DiscoveryErrorKind = "FILE_ACCESS_ERROR"
	UnknownDiscoveryError  DiscoveryErrorKind = "UNKNOWN"
)

// DiscoveryError reports one plugin directory's discovery failure.
type DiscoveryError struct {
	Plugin string
	Kind   DiscoveryErrorKind
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery: %s: %s: %v", e.Plugin, e.Kind, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Discovered is one successfully parsed plugin candidate.
type Discovered struct {
	Name     string
	Path     string
	Manifest *manifest.Manifest
}

// Discover scans dir for plugin subdirectories, each expected to contain a
// plugin.manifest.json. A directory-level read failure (dir itself missing
// or unreadable) is returned as the sole FILE_ACCESS_ERROR entry with no
// discovered plugins; per-plugin failures are collected alongside whatever
// plugins did parse successfully.
func Discover(dir string) ([]*Discovered, []*DiscoveryError) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []*DiscoveryError{{Plugin: dir, Kind: FileAccessError, Err: err}}
	}

	var found []*Discovered
	var errs []*DiscoveryError

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		pluginDir := filepath.Join(dir, name)
		manifestPath := filepath.Join(pluginDir, "plugin.manifest.json")

		raw, err := os.ReadFile(manifestPath)
		if err != nil {
			kind := FileAccessError
			if os.IsNotExist(err) {
				kind = ManifestNotFound
			}
			errs = append(errs, &DiscoveryError{Plugin: name, Kind: kind, Err: err})
			continue
		}

		var m manifest.Manifest
		if err := json.Unmarshal(raw, &m); err != nil {
			errs = append(errs, &DiscoveryError{Plugin: name, Kind: ManifestParseError, Err: err})
			continue
		}

		if m.Name == "" || m.Version == "" || m.EntryPoint == "" {
			errs = append(errs, &DiscoveryError{
				Plugin: name, Kind: ManifestValidationError,
				Err: fmt.Errorf("manifest missing one of name/version/entryPoint"),
			})
			continue
		}

		found = append(found, &Discovered{Name: m.Name, Path: pluginDir, Manifest: &m})
	}

	return found, errs
}
