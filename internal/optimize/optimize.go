// Package optimize implements the bundle optimizer: entry-point discovery,
// tree-shaking, minification, stripping, and recompression over a
// plugin's ZIP archive.
package optimize

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/ows4444/pluginforge/internal/manifest"
)

// essentialFiles are always kept by tree-shaking regardless of reachability.
var essentialFiles = map[string]bool{
	"plugin.manifest.json": true,
	"package.json":         true,
}

// defaultEntryCandidates is tried in order before falling back to
// package.json's "main" field, then to every top-level .js file.
var defaultEntryCandidates = []string{"index.js", "main.js", "app.js"}

// stripSuffixes/stripNames are removed in the strip phase.
var stripSuffixes = []string{".test.js", ".spec.js", ".map"}
var stripNames = map[string]bool{"README.md": true, "README": true, "LICENSE": true, "CHANGELOG.md": true, "CHANGELOG": true}

// Options controls the recompression phase.
type Options struct {
	CompressionLevel int    // 1-9; >=8 enables aggressive minify rules
	Algorithm        string // "gzip" | "brotli" | "deflate"
}

// DefaultOptions mirrors the BUNDLE_OPT_COMPRESSION env default.
func DefaultOptions() Options {
	return Options{CompressionLevel: 6, Algorithm: "gzip"}
}

// Result is the optimizer's output.
type Result struct {
	Optimized    []byte
	OriginalSize int
	NewSize      int
	SavingsRatio float64
	Accepted     bool
	Kept         []string
	Dropped      []string
}

// entryFile is an in-memory archive member we carry through the pipeline.
type entryFile struct {
	name string
	data []byte
}

// Optimize runs the full optimization pipeline over data (a ZIP archive)
// and returns the optimized buffer. The ingestion pipeline accepts it only
// when Result.SavingsRatio exceeds 0.05.
func Optimize(data []byte, m *manifest.Manifest, opts Options) (*Result, error) {
	files, err := readArchive(data)
	if err != nil {
		return nil, fmt.Errorf("optimize: read archive: %w", err)
	}

	entryPoints := discoverEntryPoints(files, m)
	kept, dropped := treeShake(files, entryPoints)

	minified := make([]entryFile, 0, len(kept))
	for _, f := range kept {
		if isSourceFile(f.name) {
			f.data = minify(f.data, opts.CompressionLevel >= 8)
		}
		minified = append(minified, f)
	}

	finalFiles, strippedMore := strip(minified)
	dropped = append(dropped, strippedMore...)

	buf, err := recompress(finalFiles, opts)
	if err != nil {
		return nil, fmt.Errorf("optimize: recompress: %w", err)
	}

	result := &Result{
		Optimized:    buf,
		OriginalSize: len(data),
		NewSize:      len(buf),
		Kept:         fileNames(finalFiles),
		Dropped:      dropped,
	}
	if len(data) > 0 {
		result.SavingsRatio = 1 - float64(len(buf))/float64(len(data))
	}
	result.Accepted = result.SavingsRatio > 0.05
	return result, nil
}

func readArchive(data []byte) ([]entryFile, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	files := make([]entryFile, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		buf := &bytes.Buffer{}
		_, err = buf.ReadFrom(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		files = append(files, entryFile{name: f.Name, data: buf.Bytes()})
	}
	return files, nil
}

// discoverEntryPoints locates the archive's runtime entry point(s), preferring
// a conventional filename, then package.json's "main" field, then falling
// back to every top-level .js file.
func discoverEntryPoints(files []entryFile, m *manifest.Manifest) []string {
	byName := make(map[string]entryFile, len(files))
	for _, f := range files {
		byName[f.name] = f
	}

	for _, candidate := range defaultEntryCandidates {
		if _, ok := byName[candidate]; ok {
			return []string{candidate}
		}
	}

	if pkg, ok := byName["package.json"]; ok {
		var parsed struct {
			Main string `json:"main"`
		}
		if json.Unmarshal(pkg.data, &parsed) == nil && parsed.Main != "" {
			if _, ok := byName[parsed.Main]; ok {
				return []string{parsed.Main}
			}
		}
	}

	var all []string
	for _, f := range files {
		if strings.HasSuffix(f.name, ".js") {
			all = append(all, f.name)
		}
	}
	sort.Strings(all)
	return all
}

var requireRegex = regexp.MustCompile(`require\(\s*['"]\.(/[^'"]*)['"]\s*\)`)
var importRegex = regexp.MustCompile(`from\s+['"]\.(/[^'"]*)['"]`)

// treeShake computes transitive reachability via local require/import
// statements, always keeping essential files and entry points.
func treeShake(files []entryFile, entryPoints []string) (kept []entryFile, dropped []string) {
	byName := make(map[string]entryFile, len(files))
	for _, f := range files {
		byName[f.name] = f
	}

	reachable := map[string]bool{}
	var queue []string
	for _, ep := range entryPoints {
		reachable[ep] = true
		queue = append(queue, ep)
	}
	for name := range essentialFiles {
		if _, ok := byName[name]; ok && !reachable[name] {
			reachable[name] = true
			queue = append(queue, name)
		}
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		f, ok := byName[name]
		if !ok {
			continue
		}
		for _, dep := range localRequires(f.data, name) {
			if !reachable[dep] {
				reachable[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	for _, f := range files {
		if reachable[f.name] || essentialFiles[f.name] {
			kept = append(kept, f)
		} else {
			dropped = append(dropped, f.name)
		}
	}
	return kept, dropped
}

func localRequires(content []byte, fromFile string) []string {
	dir := path.Dir(fromFile)
	var deps []string
	for _, m := range requireRegex.FindAllStringSubmatch(string(content), -1) {
		deps = append(deps, resolveLocalPath(dir, m[1]))
	}
	for _, m := range importRegex.FindAllStringSubmatch(string(content), -1) {
		deps = append(deps, resolveLocalPath(dir, m[1]))
	}
	return deps
}

func resolveLocalPath(dir, rel string) string {
	p := path.Join(dir, rel)
	if !strings.HasSuffix(p, ".js") && !strings.HasSuffix(p, ".ts") {
		p += ".js"
	}
	return p
}

func isSourceFile(name string) bool {
	return strings.HasSuffix(name, ".js") || strings.HasSuffix(name, ".ts")
}

func fileNames(files []entryFile) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names
}
