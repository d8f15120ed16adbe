package validate

import (
	"log/slog"
	"time"

	"github.com/ows4444/pluginforge/internal/cache"
)

// Options bounds the static security scan.
type Options struct {
	RegexTimeout   time.Duration
	MaxContentSize int
	MaxIterations  int
}

// DefaultOptions mirrors the validation daemon's environment-variable defaults.
func DefaultOptions() Options {
	return Options{
		RegexTimeout:   5 * time.Second,
		MaxContentSize: 1 << 20,
		MaxIterations:  100000,
	}
}

// Validator runs the manifest, structure, and static security checks
// against the shared validation cache.
type Validator struct {
	cache  *cache.Cache
	opts   Options
	logger *slog.Logger
}

// New constructs a Validator bound to the process-wide validation cache.
func New(c *cache.Cache, opts Options, logger *slog.Logger) *Validator {
	return &Validator{cache: c, opts: opts, logger: logger.With("component", "structural_validator")}
}
