package trust

import (
	"io"
	"log/slog"
	"testing"

	"github.com/ows4444/pluginforge/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetTrustLevel_DefaultsToUntrusted(t *testing.T) {
	e := New(nil, testLogger(), nil)
	assert.Equal(t, Untrusted, e.GetTrustLevel("unknown-plugin", "1.0.0"))
}

func TestAssignTrustLevel_DeactivatesPrior(t *testing.T) {
	e := New(nil, testLogger(), nil)

	require.NoError(t, e.AssignTrustLevel(&Assignment{PluginName: "greeter", Version: "1.0.0", TrustLevel: Community, AssignedBy: "system"}))
	require.NoError(t, e.AssignTrustLevel(&Assignment{PluginName: "greeter", Version: "1.0.0", TrustLevel: Verified, AssignedBy: "reviewer"}))

	assert.Equal(t, Verified, e.GetTrustLevel("greeter", "1.0.0"))

	e.mu.RLock()
	rows := e.assignments[assignmentKey("greeter", "1.0.0")]
	e.mu.RUnlock()
	active := 0
	for _, r := range rows {
		if r.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active, "invariant T1: at most one active assignment per (name, version)")
}

func TestGetTrustLevel_FallsBackToVersionlessAssignment(t *testing.T) {
	e := New(nil, testLogger(), nil)
	require.NoError(t, e.AssignTrustLevel(&Assignment{PluginName: "greeter", TrustLevel: Verified, AssignedBy: "system"}))
	assert.Equal(t, Verified, e.GetTrustLevel("greeter", "2.0.0"))
}

func TestCanPerformCapability(t *testing.T) {
	e := New(nil, testLogger(), nil)
	require.NoError(t, e.AssignTrustLevel(&Assignment{PluginName: "greeter", Version: "1.0.0", TrustLevel: Untrusted, AssignedBy: "system"}))

	assert.False(t, e.CanPerformCapability("greeter", "filesystem.write", "1.0.0"))
	assert.True(t, e.CanPerformCapability("greeter", "api.call", "1.0.0"))
}

func TestValidateAgainstPolicy_DeniesUnauthorizedCapability(t *testing.T) {
	e := New(nil, testLogger(), nil)
	require.NoError(t, e.AssignTrustLevel(&Assignment{PluginName: "greeter", Version: "1.0.0", TrustLevel: Untrusted, AssignedBy: "system"}))

	m := &manifest.Manifest{
		Name:    "greeter",
		Version: "1.0.0",
		Permissions: &manifest.Permissions{
			Services: []string{"filesystem.write"},
		},
	}
	result, err := e.ValidateAgainstPolicy("greeter", m, "1.0.0")
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.NotEmpty(t, result.Violations)
}

func TestRecordViolation_Ledger(t *testing.T) {
	e := New(nil, testLogger(), nil)
	e.RecordViolation(Violation{PluginName: "greeter", Severity: SeverityHigh, Action: ActionQuarantine, Message: "bad capability request"})

	violations := e.Violations("greeter")
	require.Len(t, violations, 1)
	assert.Equal(t, SeverityHigh, violations[0].Severity)
}

func TestLevel_Meets(t *testing.T) {
	assert.True(t, Verified.Meets(Community))
	assert.False(t, Untrusted.Meets(Verified))
}
