package trust

// Catalog is the fixed capability catalog the trust engine gates against.
var Catalog = []Capability{
	{Name: "filesystem.read", RiskLevel: RiskMedium, Category: CategoryFilesystem},
	{Name: "filesystem.write", RiskLevel: RiskHigh, Category: CategoryFilesystem},
	{Name: "network.connect", RiskLevel: RiskMedium, Category: CategoryNetwork},
	{Name: "network.listen", RiskLevel: RiskHigh, Category: CategoryNetwork},
	{Name: "process.spawn", RiskLevel: RiskCritical, Category: CategoryProcess},
	{Name: "database.query", RiskLevel: RiskMedium, Category: CategoryDatabase},
	{Name: "database.write", RiskLevel: RiskHigh, Category: CategoryDatabase},
	{Name: "api.call", RiskLevel: RiskLow, Category: CategoryAPI},
	{Name: "api.route", RiskLevel: RiskLow, Category: CategoryAPI},
	{Name: "security.audit", RiskLevel: RiskHigh, Category: CategorySecurity},
}

func capabilitySet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// DefaultPolicies returns the built-in policy table, one row per Level.
// Higher trust levels strictly widen the allowed set; QUARANTINED denies
// everything.
func DefaultPolicies() map[Level]*Policy {
	return map[Level]*Policy{
		Quarantined: {
			Level:               Quarantined,
			AllowedCapabilities: capabilitySet(),
			DeniedCapabilities:  capabilitySet("filesystem.read", "filesystem.write", "network.connect", "network.listen", "process.spawn", "database.query", "database.write", "api.call", "api.route", "security.audit"),
			ResourceLimits:      ResourceLimits{CPU: 0, MemoryMB: 0, FileHandles: 0, NetworkConnections: 0},
			RequiresReview:      true,
			AuditLevel:          "full",
		},
		Untrusted: {
			Level:               Untrusted,
			AllowedCapabilities: capabilitySet("api.call"),
			DeniedCapabilities:  capabilitySet("filesystem.read", "filesystem.write", "network.connect", "network.listen", "process.spawn", "database.write", "security.audit"),
			ResourceLimits:      ResourceLimits{CPU: 0.25, MemoryMB: 64, FileHandles: 8, NetworkConnections: 0},
			RequiresReview:      true,
			AuditLevel:          "full",
		},
		Community: {
			Level:               Community,
			AllowedCapabilities: capabilitySet("api.call", "api.route", "filesystem.read", "network.connect", "database.query"),
			DeniedCapabilities:  capabilitySet("filesystem.write", "process.spawn", "security.audit"),
			ResourceLimits:      ResourceLimits{CPU: 0.5, MemoryMB: 256, FileHandles: 32, NetworkConnections: 8},
			RequiresReview:      false,
			AuditLevel:          "standard",
		},
		Verified: {
			Level:               Verified,
			AllowedCapabilities: capabilitySet("api.call", "api.route", "filesystem.read", "filesystem.write", "network.connect", "database.query", "database.write"),
			DeniedCapabilities:  capabilitySet("process.spawn"),
			ResourceLimits:      ResourceLimits{CPU: 1, MemoryMB: 512, FileHandles: 128, NetworkConnections: 32},
			RequiresReview:      false,
			AuditLevel:          "standard",
		},
		Internal: {
			Level:               Internal,
			AllowedCapabilities: capabilitySet("api.call", "api.route", "filesystem.read", "filesystem.write", "network.connect", "network.listen", "process.spawn", "database.query", "database.write", "security.audit"),
			DeniedCapabilities:  capabilitySet(),
			ResourceLimits:      ResourceLimits{CPU: 4, MemoryMB: 2048, FileHandles: 1024, NetworkConnections: 256},
			RequiresReview:      false,
			AuditLevel:          "minimal",
		},
	}
}
