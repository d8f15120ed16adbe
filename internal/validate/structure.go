package validate

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/ows4444/pluginforge/internal/cache"
)

const manifestEntryName = "plugin.manifest.json"

// StructureChecker is a pluggable hook run after the archive-layout checks.
type StructureChecker interface {
	Check(files []string) (errs, warns []string)
}

// DefaultStructureChecker rejects path traversal and duplicate entries.
type DefaultStructureChecker struct{}

func (DefaultStructureChecker) Check(files []string) (errs, warns []string) {
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if seen[f] {
			errs = append(errs, fmt.Sprintf("duplicate archive entry %q", f))
		}
		seen[f] = true

		clean := path.Clean(f)
		if strings.HasPrefix(clean, "../") || clean == ".." || path.IsAbs(clean) {
			errs = append(errs, fmt.Sprintf("unsafe archive entry path %q", f))
		}
	}
	if len(files) == 0 {
		warns = append(warns, "archive contains no files")
	}
	return errs, warns
}

// ValidateStructure runs the structure-kind check: opens data as a ZIP
// archive, requires plugin.manifest.json at the root, enumerates entries,
// and forwards the listing to checker (DefaultStructureChecker if nil).
func (v *Validator) ValidateStructure(digest string, data []byte, checker StructureChecker) (cache.Verdict, *zip.Reader, error) {
	if verdict, ok := v.cache.Get(digest, cache.KindStructure); ok {
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return verdict, nil, nil
		}
		return verdict, zr, nil
	}

	if checker == nil {
		checker = DefaultStructureChecker{}
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		verdict := cache.Verdict{IsValid: false, Errors: []string{fmt.Sprintf("not a valid ZIP archive: %v", err)}}
		v.cache.Set(digest, cache.KindStructure, verdict)
		return verdict, nil, nil
	}

	files := make([]string, 0, len(zr.File))
	hasManifest := false
	for _, f := range zr.File {
		files = append(files, f.Name)
		if f.Name == manifestEntryName {
			hasManifest = true
		}
	}

	var errs, warns []string
	if !hasManifest {
		errs = append(errs, fmt.Sprintf("archive missing required %q at root", manifestEntryName))
	}

	checkErrs, checkWarns := checker.Check(files)
	errs = append(errs, checkErrs...)
	warns = append(warns, checkWarns...)

	verdict := cache.Verdict{IsValid: len(errs) == 0, Errors: errs, Warnings: warns}
	v.cache.Set(digest, cache.KindStructure, verdict)
	return verdict, zr, nil
}

// ReadManifestEntry extracts plugin.manifest.json's raw bytes from the archive.
func ReadManifestEntry(zr *zip.Reader) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == manifestEntryName {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("validate: open %s: %w", manifestEntryName, err)
			}
			defer rc.Close()
			buf := &bytes.Buffer{}
			if _, err := buf.ReadFrom(rc); err != nil {
				return nil, fmt.Errorf("validate: read %s: %w", manifestEntryName, err)
			}
			return buf.Bytes(), nil
		}
	}
	return nil, fmt.Errorf("validate: %s not found in archive", manifestEntryName)
}
