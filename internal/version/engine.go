package version

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ows4444/pluginforge/internal/events"
	"github.com/ows4444/pluginforge/internal/registry"
	"github.com/ows4444/pluginforge/internal/validate"
)

// ErrVersionNotFound is returned when a (name, version) pair has no row.
var ErrVersionNotFound = fmt.Errorf("version: not found")

// ErrActiveVersionProtected is returned by DeleteVersion when force is false.
var ErrActiveVersionProtected = fmt.Errorf("version: cannot delete the active version without force")

// Engine is the version lifecycle engine: an in-memory, mutex-guarded
// multi-version table per plugin, mirroring the currently active version
// into the primary registry.Repository record on every promotion.
type Engine struct {
	mu       sync.Mutex
	versions map[string][]*Record // pluginName -> rows

	repo    registry.Repository
	bus     *events.Bus
	logger  *slog.Logger
	metrics *Metrics
}

// New creates a version Engine. repo is the primary-record mirror target.
func New(repo registry.Repository, bus *events.Bus, logger *slog.Logger, metrics *Metrics) *Engine {
	return &Engine{
		versions: make(map[string][]*Record),
		repo:     repo,
		bus:      bus,
		logger:   logger,
		metrics:  metrics,
	}
}

// ListVersions returns all rows for name, sorted by version descending.
func (e *Engine) ListVersions(name string) []*Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows := append([]*Record(nil), e.versions[name]...)
	sort.Slice(rows, func(i, j int) bool {
		if c := compareVersions(rows[i].Version, rows[j].Version); c != 0 {
			return c > 0
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	return rows
}

// GetActive returns the single active row for name, if any.
func (e *Engine) GetActive(name string) (*Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeLocked(name)
}

func (e *Engine) activeLocked(name string) (*Record, bool) {
	for _, r := range e.versions[name] {
		if r.IsActive {
			return r, true
		}
	}
	return nil, false
}

func (e *Engine) findLocked(name, ver string) (*Record, bool) {
	for _, r := range e.versions[name] {
		if r.Version == ver {
			return r, true
		}
	}
	return nil, false
}

// AddVersion inserts rec. If opts.MakeActive, it is immediately promoted.
func (e *Engine) AddVersion(ctx context.Context, rec *Record, opts AddOptions) error {
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	if rec.Status == "" {
		rec.Status = registry.StatusDeprecated
	}

	e.mu.Lock()
	e.versions[rec.PluginName] = append(e.versions[rec.PluginName], rec)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.VersionsTotal.WithLabelValues(rec.PluginName).Inc()
	}
	e.logger.Info("version added", "name", rec.PluginName, "version", rec.Version, "makeActive", opts.MakeActive)

	if opts.MakeActive {
		return e.Promote(ctx, rec.PluginName, rec.Version)
	}
	return nil
}

// Promote transactionally deactivates all other versions of name and
// activates version, mirroring its payload into the primary record.
func (e *Engine) Promote(ctx context.Context, name, ver string) error {
	e.mu.Lock()
	target, ok := e.findLocked(name, ver)
	if !ok {
		e.mu.Unlock()
		return ErrVersionNotFound
	}

	now := time.Now().UTC()
	for _, r := range e.versions[name] {
		if r.IsActive && r.Version != ver {
			r.IsActive = false
			if r.Status == registry.StatusActive {
				r.Status = registry.StatusDeprecated
			}
		}
	}
	target.IsActive = true
	target.Status = registry.StatusActive
	target.PromotionDate = &now
	target.UpdatedAt = now
	snapshot := *target
	e.mu.Unlock()

	if err := e.mirrorToPrimary(ctx, &snapshot); err != nil {
		return fmt.Errorf("mirror promoted version to primary record: %w", err)
	}

	e.logger.Info("version promoted", "name", name, "version", ver)
	if e.bus != nil {
		_ = e.bus.Publish(events.Event{
			Type:       events.TypeVersionPromoted,
			PluginName: name,
			Payload:    map[string]any{"version": ver},
		})
	}
	if e.metrics != nil {
		e.metrics.PromotionsTotal.WithLabelValues(name).Inc()
	}
	return nil
}

func (e *Engine) mirrorToPrimary(ctx context.Context, r *Record) error {
	return e.repo.Save(ctx, &registry.Record{
		Name:          r.PluginName,
		Version:       r.Version,
		Description:   r.Description,
		Author:        r.Author,
		License:       r.License,
		Manifest:      r.Manifest,
		FilePath:      r.FilePath,
		FileSize:      r.FileSize,
		Checksum:      r.Checksum,
		UploadDate:    r.CreatedAt,
		LastAccessed:  time.Now().UTC(),
		Status:        registry.StatusActive,
		Tags:          r.Tags,
		Dependencies:  r.Dependencies,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	})
}

// Rollback promotes target back to active. If opts.PreserveCurrentVersion,
// the version being replaced is marked rollback_target rather than merely
// deprecated, so it remains available for re-promotion.
func (e *Engine) Rollback(ctx context.Context, name, target string, opts RollbackOptions) error {
	e.mu.Lock()
	if _, ok := e.findLocked(name, target); !ok {
		e.mu.Unlock()
		return ErrVersionNotFound
	}
	current, hasCurrent := e.activeLocked(name)
	if opts.PreserveCurrentVersion && hasCurrent && current.Version != target {
		current.Status = registry.StatusRollbackTarg
		current.RollbackReason = opts.Reason
	}
	e.mu.Unlock()

	if err := e.Promote(ctx, name, target); err != nil {
		return err
	}

	e.logger.Info("version rolled back", "name", name, "target", target, "reason", opts.Reason)
	if e.bus != nil {
		_ = e.bus.Publish(events.Event{
			Type:       events.TypeVersionRolledBack,
			PluginName: name,
			Payload:    map[string]any{"target": target, "reason": opts.Reason},
		})
	}
	return nil
}

// Archive marks the oldest non-active, non-rollback-target versions of
// name as archived, preserving the newest keepLatest.
func (e *Engine) Archive(name string, keepLatest int) error {
	rows := e.ListVersions(name)

	e.mu.Lock()
	defer e.mu.Unlock()

	kept := 0
	for _, r := range rows {
		if r.IsActive || r.Status == registry.StatusRollbackTarg {
			continue
		}
		kept++
		if kept <= keepLatest {
			continue
		}
		r.Status = registry.StatusArchived
		r.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// DeleteVersion removes a version row. Refuses to delete the active
// version unless force is set.
func (e *Engine) DeleteVersion(name, ver string, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows := e.versions[name]
	for i, r := range rows {
		if r.Version != ver {
			continue
		}
		if r.IsActive && !force {
			return ErrActiveVersionProtected
		}
		e.versions[name] = append(rows[:i], rows[i+1:]...)
		return nil
	}
	return ErrVersionNotFound
}

// CheckCompatibility diffs the manifests of from and to: major version
// bumps, dependency-set changes, and export removals are surfaced;
// incompatibility is flagged on any major bump, removed dependency, or
// removed export.
func (e *Engine) CheckCompatibility(name, from, to string) (*CompatibilityReport, error) {
	e.mu.Lock()
	fromRec, ok1 := e.findLocked(name, from)
	toRec, ok2 := e.findLocked(name, to)
	e.mu.Unlock()
	if !ok1 || !ok2 {
		return nil, ErrVersionNotFound
	}

	fromManifest, err := validate.ParseManifest([]byte(fromRec.Manifest))
	if err != nil {
		return nil, fmt.Errorf("parse manifest for %s: %w", from, err)
	}
	toManifest, err := validate.ParseManifest([]byte(toRec.Manifest))
	if err != nil {
		return nil, fmt.Errorf("parse manifest for %s: %w", to, err)
	}

	report := &CompatibilityReport{Compatible: true}

	if semverMajor(fromManifest.CompatibilityVersion) != semverMajor(toManifest.CompatibilityVersion) {
		report.MajorVersionDiff = true
		report.Compatible = false
		report.BreakingChanges = append(report.BreakingChanges, "compatibilityVersion major component changed")
		report.Notes = append(report.Notes, "compatibilityVersion major component changed")
	}

	fromDeps, toDeps := fromManifest.DependencySet(), toManifest.DependencySet()
	for dep := range toDeps {
		if !fromDeps[dep] {
			report.AddedDependencies = append(report.AddedDependencies, dep)
		}
	}
	for dep := range fromDeps {
		if !toDeps[dep] {
			report.RemovedDependencies = append(report.RemovedDependencies, dep)
		}
	}
	sort.Strings(report.AddedDependencies)
	sort.Strings(report.RemovedDependencies)

	if len(report.AddedDependencies) > 0 {
		report.MigrationRequired = true
		report.Issues = append(report.Issues, fmt.Sprintf("new dependencies require migration: %s", strings.Join(report.AddedDependencies, ", ")))
	}
	if len(report.RemovedDependencies) > 0 {
		report.Compatible = false
		report.BreakingChanges = append(report.BreakingChanges, fmt.Sprintf("dependencies removed: %s", strings.Join(report.RemovedDependencies, ", ")))
	}

	fromExports, toExports := fromManifest.ExportSet(), toManifest.ExportSet()
	for sym := range fromExports {
		if !toExports[sym] {
			report.RemovedExports = append(report.RemovedExports, sym)
		}
	}
	sort.Strings(report.RemovedExports)
	if len(report.RemovedExports) > 0 {
		report.Compatible = false
		report.BreakingChanges = append(report.BreakingChanges, "one or more exported symbols were removed")
		report.Notes = append(report.Notes, "one or more exported symbols were removed")
	}

	return report, nil
}

func semverMajor(v string) string {
	parts := []rune(v)
	for i, r := range parts {
		if r == '.' {
			return string(parts[:i])
		}
	}
	return v
}
