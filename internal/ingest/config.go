package ingest

import (
	"fmt"
	"log/slog"

	"github.com/ows4444/pluginforge/internal/events"
	"github.com/ows4444/pluginforge/internal/optimize"
	"github.com/ows4444/pluginforge/internal/registry"
	"github.com/ows4444/pluginforge/internal/registry/blob"
	"github.com/ows4444/pluginforge/internal/signature"
	"github.com/ows4444/pluginforge/internal/trust"
	"github.com/ows4444/pluginforge/internal/validate"
	"github.com/ows4444/pluginforge/internal/version"
)

// Config wires the orchestrator's collaborators. Validator, Verifier, Trust,
// Versions, Repository and Blobs are required and MaxFileSize must be
// positive; the other fields are optional.
type Config struct {
	Validator        *validate.Validator
	StructureChecker validate.StructureChecker // nil uses validate.DefaultStructureChecker
	Verifier         *signature.Verifier
	Trust            *trust.Engine
	Versions         *version.Engine
	Repository       registry.Repository
	Blobs            *blob.Store
	Bus              *events.Bus
	Logger           *slog.Logger
	Metrics          *Metrics

	MaxFileSize         int64
	OptimizationEnabled bool
	OptimizeOptions     optimize.Options

	// AssignedBy labels the trust assignments this pipeline produces.
	AssignedBy string
}

func (c Config) validate() error {
	switch {
	case c.Validator == nil:
		return fmt.Errorf("ingest: Validator is required")
	case c.Verifier == nil:
		return fmt.Errorf("ingest: Verifier is required")
	case c.Trust == nil:
		return fmt.Errorf("ingest: Trust is required")
	case c.Versions == nil:
		return fmt.Errorf("ingest: Versions is required")
	case c.Repository == nil:
		return fmt.Errorf("ingest: Repository is required")
	case c.Blobs == nil:
		return fmt.Errorf("ingest: Blobs is required")
	case c.MaxFileSize <= 0:
		return fmt.Errorf("ingest: MaxFileSize must be positive")
	}
	return nil
}
