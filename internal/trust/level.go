// Package trust implements the trust & capability engine: the trust
// policy table, capability gating, and the violation ledger.
package trust

// Level is one of the five ranked trust tiers gating capability access.
type Level int

const (
	Quarantined Level = iota
	Untrusted
	Community
	Verified
	Internal
)

var levelNames = map[Level]string{
	Quarantined: "QUARANTINED",
	Untrusted:   "UNTRUSTED",
	Community:   "COMMUNITY",
	Verified:    "VERIFIED",
	Internal:    "INTERNAL",
}

var namesToLevel = map[string]Level{
	"QUARANTINED": Quarantined,
	"UNTRUSTED":   Untrusted,
	"COMMUNITY":   Community,
	"VERIFIED":    Verified,
	"INTERNAL":    Internal,
}

// String renders the level's canonical name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel parses a level's canonical name, defaulting to Untrusted.
func ParseLevel(s string) (Level, bool) {
	l, ok := namesToLevel[s]
	if !ok {
		return Untrusted, false
	}
	return l, ok
}

// Meets reports whether this level's rank is at least min's rank.
func (l Level) Meets(min Level) bool {
	return int(l) >= int(min)
}

// AllLevels lists every level in ascending rank order, for the
// `/plugins/trust/levels` endpoint.
func AllLevels() []Level {
	return []Level{Quarantined, Untrusted, Community, Verified, Internal}
}
