package version

import (
	"strings"

	"golang.org/x/mod/semver"
)

// compareVersions orders a, b descending: parseable semver triples compare
// numerically (pre-release tags sort lower than their release),
// non-parseable versions fall back to lexical descending.
// Returns >0 if a sorts before b, <0 if b sorts before a, 0 if equal.
func compareVersions(a, b string) int {
	va, vb := toSemver(a), toSemver(b)
	if semver.IsValid(va) && semver.IsValid(vb) {
		return semver.Compare(va, vb)
	}
	// Fall back to lexical descending for non-semver strings.
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

func toSemver(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
