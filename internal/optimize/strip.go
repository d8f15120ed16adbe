package optimize

import "strings"

// strip removes test/spec/source-map files and top-level docs that serve
// no runtime purpose.
func strip(files []entryFile) (kept []entryFile, dropped []string) {
	for _, f := range files {
		if shouldStrip(f.name) {
			dropped = append(dropped, f.name)
			continue
		}
		kept = append(kept, f)
	}
	return kept, dropped
}

func shouldStrip(name string) bool {
	base := name
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		base = name[idx+1:]
	}
	if stripNames[base] {
		return true
	}
	for _, suffix := range stripSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
