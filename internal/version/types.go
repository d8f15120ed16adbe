// Package version implements the version lifecycle engine: a
// multi-version table per plugin with an at-most-one-active invariant,
// semver-aware ordering, promotion/rollback, archival, and compatibility
// analysis.
package version

import (
	"time"

	"github.com/ows4444/pluginforge/internal/registry"
)

// Record is one row of a plugin's version table. The versions table owns
// these payload fields; the primary registry.Record mirrors only the
// currently active version.
type Record struct {
	PluginName      string
	Version         string
	IsActive        bool
	Status          registry.Status
	PromotionDate   *time.Time
	DeprecationDate *time.Time
	RollbackReason  string

	Description  string
	Author       string
	License      string
	Manifest     string
	FilePath     string
	FileSize     int64
	Checksum     string
	Tags         []string
	Dependencies []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AddOptions configures AddVersion.
type AddOptions struct {
	MakeActive bool
}

// RollbackOptions configures Rollback.
type RollbackOptions struct {
	PreserveCurrentVersion bool
	Reason                 string
}

// CompatibilityReport is CheckCompatibility's result. Removed dependencies
// are a breaking change; added dependencies require a migration step before
// the new version can be promoted safely.
type CompatibilityReport struct {
	Compatible          bool     `json:"isCompatible"`
	MajorVersionDiff    bool     `json:"majorVersionDiff"`
	MigrationRequired   bool     `json:"migrationRequired"`
	AddedDependencies   []string `json:"addedDependencies,omitempty"`
	RemovedDependencies []string `json:"removedDependencies,omitempty"`
	RemovedExports      []string `json:"removedExports,omitempty"`
	BreakingChanges     []string `json:"breakingChanges,omitempty"`
	Issues              []string `json:"issues,omitempty"`
	Notes               []string `json:"notes,omitempty"`
}
