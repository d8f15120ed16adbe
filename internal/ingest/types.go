// Package ingest wires the cache, validator, signature verifier, trust
// engine, optimizer, repository, blob store, and version engine into a
// single pipeline that turns an uploaded archive into a stored, active
// plugin version. Every upload is sequenced per (name, version) so two
// uploads of the same pair never interleave their writes.
package ingest

import (
	"time"

	"github.com/ows4444/pluginforge/internal/manifest"
)

// Request is one upload: the raw archive bytes plus caller-supplied
// provenance. Ingest does not read UserAgent or IPAddress.
type Request struct {
	Data      []byte
	UserAgent string
	IPAddress string
}

// Result describes a successfully ingested bundle.
type Result struct {
	Name         string
	Version      string
	Checksum     string
	FileSize     int64
	TrustLevel   string
	OptimizedBy  float64 // SavingsRatio actually applied, 0 if not optimized
	Manifest     *manifest.Manifest
	Duration     time.Duration
}
