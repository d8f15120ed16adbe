package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apierrors "github.com/ows4444/pluginforge/internal/api/errors"
	"github.com/ows4444/pluginforge/internal/events"
	"github.com/ows4444/pluginforge/internal/manifest"
	"github.com/ows4444/pluginforge/internal/optimize"
	"github.com/ows4444/pluginforge/internal/registry"
	"github.com/ows4444/pluginforge/internal/signature"
	"github.com/ows4444/pluginforge/internal/trust"
	"github.com/ows4444/pluginforge/internal/validate"
	"github.com/ows4444/pluginforge/internal/version"
)

// Orchestrator runs the ingestion pipeline described by Config, serializing
// writers that target the same (name, version) pair.
type Orchestrator struct {
	cfg Config

	keyMu sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs an Orchestrator. Returns an error if cfg is incomplete.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("component", "ingest_orchestrator")
	if cfg.AssignedBy == "" {
		cfg.AssignedBy = "ingestion-pipeline"
	}
	return &Orchestrator{cfg: cfg, locks: make(map[string]*sync.Mutex)}, nil
}

func (o *Orchestrator) lockFor(key string) *sync.Mutex {
	o.keyMu.Lock()
	defer o.keyMu.Unlock()
	m, ok := o.locks[key]
	if !ok {
		m = &sync.Mutex{}
		o.locks[key] = m
	}
	return m
}

// Ingest runs the full pipeline over req.Data: size check, digesting,
// manifest/structure/security validation, signature verification, trust
// assignment and policy enforcement, optional optimization, and durable
// storage of the blob, the primary record, and the version row.
func (o *Orchestrator) Ingest(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if int64(len(req.Data)) > o.cfg.MaxFileSize {
		return nil, o.reject("size", apierrors.PluginUploadFailed(
			fmt.Sprintf("bundle of %d bytes exceeds the %d byte limit", len(req.Data), o.cfg.MaxFileSize)))
	}

	data := req.Data
	digest := sha256Hex(data)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, o.reject("manifest", apierrors.PluginUploadFailed(fmt.Sprintf("not a valid archive: %v", err)))
	}
	manifestBytes, err := validate.ReadManifestEntry(zr)
	if err != nil {
		return nil, o.reject("manifest", apierrors.PluginValidationFailed(err.Error()))
	}
	manifestVerdict, m, err := o.cfg.Validator.ValidateManifest(digest, manifestBytes)
	if err != nil {
		return nil, o.reject("manifest", apierrors.PluginValidationFailed(err.Error()))
	}
	if !manifestVerdict.IsValid {
		return nil, o.reject("manifest", apierrors.PluginValidationFailed(joinErrs(manifestVerdict.Errors)))
	}

	mu := o.lockFor(m.Name + "@" + m.Version)
	mu.Lock()
	defer mu.Unlock()

	if o.versionExists(m.Name, m.Version) {
		return nil, o.reject("conflict", apierrors.PluginConflict(m.Name, m.Version))
	}

	structureVerdict, zr2, err := o.cfg.Validator.ValidateStructure(digest, data, o.cfg.StructureChecker)
	if err != nil {
		return nil, o.reject("structure", apierrors.PluginValidationFailed(err.Error()))
	}
	if !structureVerdict.IsValid {
		return nil, o.reject("structure", apierrors.PluginValidationFailed(joinErrs(structureVerdict.Errors)))
	}

	securityVerdict, err := o.cfg.Validator.ValidateSecurity(digest, zr2)
	if err != nil {
		return nil, o.reject("security", apierrors.PluginValidationFailed(err.Error()))
	}
	if !securityVerdict.IsValid {
		return nil, o.reject("security", apierrors.PluginSecurityViolation(joinErrs(securityVerdict.Errors)))
	}

	var sig *manifest.Signature
	if m.Security != nil {
		sig = m.Security.Signature
	}
	sigResult := o.cfg.Verifier.Verify(data, sig)
	if !sigResult.IsValid {
		return nil, o.reject("signature", apierrors.PluginSecurityViolation(joinErrs(sigResult.Errors)))
	}

	assignment := &trust.Assignment{
		PluginName: m.Name,
		Version:    m.Version,
		TrustLevel: sigResult.TrustLevel,
		AssignedBy: o.cfg.AssignedBy,
		Reason:     "initial assignment derived from signature verification",
		Evidence:   []trust.Evidence{evidenceFromSignature(sigResult)},
	}
	if err := o.cfg.Trust.AssignTrustLevel(assignment); err != nil {
		return nil, o.reject("trust", apierrors.InternalServerError(err.Error()))
	}

	policyResult, err := o.cfg.Trust.ValidateAgainstPolicy(m.Name, m, m.Version)
	if err != nil {
		return nil, o.reject("policy", apierrors.InternalServerError(err.Error()))
	}
	if !policyResult.IsValid {
		for _, v := range policyResult.Violations {
			o.cfg.Trust.RecordViolation(trust.Violation{
				PluginName: m.Name,
				Version:    m.Version,
				Severity:   trust.SeverityHigh,
				Action:     trust.ActionRestrict,
				Message:    v,
			})
		}
		return nil, o.reject("policy", apierrors.InsufficientTrustLevel(sigResult.TrustLevel.String()))
	}

	// The blob store always keeps the bytes the uploader actually sent
	// (data is left untouched); optimization only changes the digest/size/
	// checksum recorded in metadata, which is what compatibility checks and
	// download accounting key off.
	checksum := digest
	fileSize := int64(len(data))
	var appliedRatio float64
	if o.cfg.OptimizationEnabled {
		optResult, err := optimize.Optimize(data, m, o.cfg.OptimizeOptions)
		if err != nil {
			o.cfg.Logger.Warn("optimization failed, recording original metadata", "name", m.Name, "version", m.Version, "error", err)
		} else if optResult.Accepted {
			checksum = sha256Hex(optResult.Optimized)
			fileSize = int64(len(optResult.Optimized))
			appliedRatio = optResult.SavingsRatio
			if o.cfg.Metrics != nil {
				o.cfg.Metrics.OptimizationRatio.Observe(appliedRatio)
			}
		}
	}

	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	_, filePath, err := o.cfg.Blobs.Write(ctx, m.Name, m.Version, data)
	if err != nil {
		return nil, o.reject("storage", apierrors.StorageOperationFailed(err.Error()))
	}
	cleanups = append(cleanups, func() { _ = o.cfg.Blobs.Delete(ctx, m.Name, m.Version) })

	now := time.Now().UTC()
	rec := &registry.Record{
		Name:         m.Name,
		Version:      m.Version,
		Description:  m.Description,
		Author:       m.Author,
		License:      m.License,
		Manifest:     string(manifestBytes),
		FilePath:     filePath,
		FileSize:     fileSize,
		Checksum:     checksum,
		UploadDate:   now,
		LastAccessed: now,
		Status:       registry.StatusActive,
		Dependencies: m.Dependencies,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.cfg.Repository.Save(ctx, rec); err != nil {
		return nil, o.reject("storage", apierrors.DatabaseOperationFailed(err.Error()))
	}
	cleanups = append(cleanups, func() { _ = o.cfg.Repository.Delete(ctx, m.Name) })

	versionRec := &version.Record{
		PluginName:   m.Name,
		Version:      m.Version,
		Status:       registry.StatusActive,
		Description:  m.Description,
		Author:       m.Author,
		License:      m.License,
		Manifest:     string(manifestBytes),
		FilePath:     filePath,
		FileSize:     fileSize,
		Checksum:     checksum,
		Dependencies: m.Dependencies,
	}
	if err := o.cfg.Versions.AddVersion(ctx, versionRec, version.AddOptions{MakeActive: true}); err != nil {
		return nil, o.reject("storage", apierrors.DatabaseOperationFailed(err.Error()))
	}

	cleanups = nil

	if o.cfg.Bus != nil {
		_ = o.cfg.Bus.Publish(events.Event{
			Type:       events.TypePluginStored,
			PluginName: m.Name,
			Payload: map[string]any{
				"version":    m.Version,
				"checksum":   checksum,
				"trustLevel": sigResult.TrustLevel.String(),
			},
		})
	}

	duration := time.Since(start)
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.Accepted.WithLabelValues(m.Name).Inc()
		o.cfg.Metrics.DurationSeconds.Observe(duration.Seconds())
	}
	o.cfg.Logger.Info("bundle ingested",
		"name", m.Name, "version", m.Version, "size", fileSize,
		"trustLevel", sigResult.TrustLevel.String(), "duration", duration)

	return &Result{
		Name:        m.Name,
		Version:     m.Version,
		Checksum:    checksum,
		FileSize:    fileSize,
		TrustLevel:  sigResult.TrustLevel.String(),
		OptimizedBy: appliedRatio,
		Manifest:    m,
		Duration:    duration,
	}, nil
}

func (o *Orchestrator) versionExists(name, ver string) bool {
	for _, r := range o.cfg.Versions.ListVersions(name) {
		if r.Version == ver {
			return true
		}
	}
	return false
}

func (o *Orchestrator) reject(step string, apiErr *apierrors.APIError) error {
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.Rejected.WithLabelValues(step).Inc()
	}
	o.cfg.Logger.Warn("bundle rejected", "step", step, "code", apiErr.Code, "message", apiErr.Message)
	return apiErr
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func joinErrs(errs []string) string {
	if len(errs) == 0 {
		return "validation failed"
	}
	out := errs[0]
	for _, e := range errs[1:] {
		out += "; " + e
	}
	return out
}

func evidenceFromSignature(r *signature.Result) trust.Evidence {
	switch {
	case r.Verified && r.TrustLevel > trust.Community:
		return trust.Evidence{Kind: trust.EvidenceSignature, Score: 100, Note: "signature verified against a trusted issuer key"}
	case r.Verified:
		return trust.Evidence{Kind: trust.EvidenceSignature, Score: 60, Note: "signature verifies but issuer key is not trusted"}
	default:
		return trust.Evidence{Kind: trust.EvidenceSignature, Score: 0, Note: "bundle is unsigned"}
	}
}
