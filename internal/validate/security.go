package validate

import (
	"archive/zip"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/ows4444/pluginforge/internal/cache"
)

// unsafeModules is the fixed unsafe-module denylist.
var unsafeModules = []string{
	"fs", "child_process", "process", "os", "path", "crypto", "net",
	"http", "https", "url", "stream", "events", "util", "cluster", "worker_threads",
}

var importRegex = buildImportRegex(unsafeModules)

func buildImportRegex(modules []string) *regexp.Regexp {
	escaped := make([]string, len(modules))
	for i, m := range modules {
		escaped[i] = regexp.QuoteMeta(m)
	}
	alt := strings.Join(escaped, "|")
	// Matches `require('fs')`, `require("node:fs")`, `import x from 'fs'`,
	// `import x from "node:fs/promises"`.
	pattern := fmt.Sprintf(
		`(?:require\(\s*['"](?:node:)?(%s)(?:/[^'"]*)?['"]\s*\))|(?:from\s+['"](?:node:)?(%s)(?:/[^'"]*)?['"])`,
		alt, alt,
	)
	return regexp.MustCompile(pattern)
}

// scannableSuffixes is the set of text file extensions the security scan
// considers.
var scannableSuffixes = []string{".ts", ".js"}

func isScannable(name string) bool {
	for _, suf := range scannableSuffixes {
		if strings.HasSuffix(name, suf) {
			return true
		}
	}
	return false
}

// ValidateSecurity runs the static unsafe-import scan, consulting and
// populating the cache by (digest, KindSecurity). The scan is bounded by
// Validator.opts; exceeding any bound fails the scan as "too complex".
func (v *Validator) ValidateSecurity(digest string, zr *zip.Reader) (cache.Verdict, error) {
	if verdict, ok := v.cache.Get(digest, cache.KindSecurity); ok {
		return verdict, nil
	}

	verdict := v.scan(zr)
	v.cache.Set(digest, cache.KindSecurity, verdict)
	return verdict, nil
}

func (v *Validator) scan(zr *zip.Reader) cache.Verdict {
	deadline := time.Now().Add(v.opts.RegexTimeout)
	iterations := 0

	var errs, warns []string

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isScannable(f.Name) {
			continue
		}

		if time.Now().After(deadline) {
			return cache.Verdict{IsValid: false, Errors: []string{"security scan exceeded time budget: too complex"}}
		}

		content, err := readTruncated(f, v.opts.MaxContentSize)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", f.Name, err))
			continue
		}

		lines := strings.Split(content, "\n")
		for _, line := range lines {
			iterations++
			if iterations > v.opts.MaxIterations {
				return cache.Verdict{IsValid: false, Errors: []string{"security scan exceeded iteration budget: too complex"}}
			}
			if iterations%1000 == 0 && time.Now().After(deadline) {
				return cache.Verdict{IsValid: false, Errors: []string{"security scan exceeded time budget: too complex"}}
			}

			if m := importRegex.FindStringSubmatch(line); m != nil {
				mod := firstNonEmpty(m[1], m[2])
				errs = append(errs, fmt.Sprintf("%s: unsafe import of denylisted module %q", f.Name, mod))
			}
		}
	}

	return cache.Verdict{IsValid: len(errs) == 0, Errors: errs, Warnings: warns}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func readTruncated(f *zip.File, maxSize int) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer rc.Close()

	limited := io.LimitReader(rc, int64(maxSize))
	buf, err := io.ReadAll(limited)
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	return string(buf), nil
}
