// Package blob implements the plugin bundle blob store: crash-safe writes
// and reconciliation of bundle files on local disk.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ows4444/pluginforge/internal/registry"
)

var ErrNotFound = errors.New("blob: not found")

// Store writes bundle archives under root/plugins/<name>-<version>.zip.
type Store struct {
	root   string
	logger *slog.Logger
}

// New creates a Store rooted at root. The plugins subdirectory is created
// if missing.
func New(root string, logger *slog.Logger) (*Store, error) {
	pluginsDir := filepath.Join(root, "plugins")
	if err := os.MkdirAll(pluginsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create plugins directory: %w", err)
	}
	return &Store{root: root, logger: logger}, nil
}

func (s *Store) pathFor(name, version string) string {
	return filepath.Join(s.root, "plugins", fmt.Sprintf("%s-%s.zip", name, version))
}

// Write stores data at <name>-<version>.zip, fsyncing before the final
// rename so a crash never leaves a partially-written bundle visible under
// its final name. Returns the SHA-256 checksum and final path.
func (s *Store) Write(ctx context.Context, name, version string, data []byte) (checksum, path string, err error) {
	finalPath := s.pathFor(name, version)
	tmp, err := os.CreateTemp(filepath.Dir(finalPath), ".tmp-"+filepath.Base(finalPath)+"-*")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	sum := sha256.Sum256(data)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", "", fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", "", fmt.Errorf("rename into place: %w", err)
	}

	s.logger.Debug("bundle written", "name", name, "version", version, "size", len(data))
	return hex.EncodeToString(sum[:]), finalPath, nil
}

// Read loads a bundle's bytes.
func (s *Store) Read(ctx context.Context, name, version string) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(name, version))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return data, nil
}

// Delete removes a bundle's file. Idempotent: deleting a bundle that does
// not exist is not an error.
func (s *Store) Delete(ctx context.Context, name, version string) error {
	if err := os.Remove(s.pathFor(name, version)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete bundle: %w", err)
	}
	return nil
}

// Exists reports whether a bundle file is present on disk.
func (s *Store) Exists(name, version string) bool {
	_, err := os.Stat(s.pathFor(name, version))
	return err == nil
}

// ReconcileResult reports the outcome of Reconcile.
type ReconcileResult struct {
	OrphanedBlobs    []string // blob files with no matching record of any status
	QuarantinedNames []string // records whose blob file is missing
}

// Reconcile compares the blob directory against the repository's active
// records at boot. Orphaned blob files are reported (not deleted) and
// records whose backing file is missing are transitioned to disabled.
func (s *Store) Reconcile(ctx context.Context, repo registry.Repository) (*ReconcileResult, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "plugins"))
	if err != nil {
		return nil, fmt.Errorf("read plugins directory: %w", err)
	}

	onDisk := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		onDisk[e.Name()] = true
	}

	records, err := repo.List(ctx, registry.ListOptions{Status: "all", Limit: 1 << 20})
	if err != nil {
		return nil, fmt.Errorf("list records for reconciliation: %w", err)
	}

	result := &ReconcileResult{}
	expected := make(map[string]bool, len(records))
	for _, rec := range records {
		expected[filepath.Base(rec.FilePath)] = true
		if rec.Status == registry.StatusActive && !onDisk[filepath.Base(rec.FilePath)] {
			s.logger.Warn("quarantining record with missing blob", "name", rec.Name, "path", rec.FilePath)
			if err := repo.UpdateStatus(ctx, rec.Name, registry.StatusDisabled); err != nil {
				return nil, fmt.Errorf("quarantine %s: %w", rec.Name, err)
			}
			result.QuarantinedNames = append(result.QuarantinedNames, rec.Name)
		}
	}

	for fileName := range onDisk {
		if !expected[fileName] {
			result.OrphanedBlobs = append(result.OrphanedBlobs, fileName)
		}
	}
	sort.Strings(result.OrphanedBlobs)
	sort.Strings(result.QuarantinedNames)

	if len(result.OrphanedBlobs) > 0 {
		s.logger.Warn("orphaned blob files found during reconciliation", "count", len(result.OrphanedBlobs))
	}

	return result, nil
}
