package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_LegalTransitionSequence(t *testing.T) {
	m := New(0, nil)
	require.NoError(t, m.Transition("greeter", Discovered, "scan", nil))
	require.NoError(t, m.Transition("greeter", Loading, "load", nil))
	require.NoError(t, m.Transition("greeter", Loaded, "instantiate", nil))
	assert.Equal(t, Loaded, m.Current("greeter"))
}

func TestMachine_IllegalTransitionRejected(t *testing.T) {
	m := New(0, nil)
	err := m.Transition("greeter", Loaded, "skip-ahead", nil)
	var illegal *ErrIllegalTransition
	assert.ErrorAs(t, err, &illegal)
}

func TestMachine_ReenteringCurrentStateIsNoOp(t *testing.T) {
	m := New(0, nil)
	require.NoError(t, m.Transition("greeter", Discovered, "scan", nil))
	require.NoError(t, m.Transition("greeter", Discovered, "rescan", nil))
	assert.Equal(t, Discovered, m.Current("greeter"))
	assert.Len(t, m.History("greeter"), 2)
}

func TestMachine_AnyStateMayFailWithError(t *testing.T) {
	m := New(0, nil)
	require.NoError(t, m.Transition("greeter", Discovered, "scan", nil))
	require.NoError(t, m.Transition("greeter", Loading, "load", nil))
	require.NoError(t, m.Transition("greeter", Failed, "load", errors.New("entry point missing")))

	history := m.History("greeter")
	require.Len(t, history, 3)
	assert.Equal(t, "entry point missing", history[2].Error)
	assert.Equal(t, Failed, m.Current("greeter"))
}

func TestMachine_FailedCanRetryViaDiscovered(t *testing.T) {
	m := New(0, nil)
	require.NoError(t, m.Transition("greeter", Failed, "boot", errors.New("boom")))
	require.NoError(t, m.Transition("greeter", Discovered, "retry", nil))
	assert.Equal(t, Discovered, m.Current("greeter"))
}

func TestMachine_HistoryRingIsBounded(t *testing.T) {
	m := New(3, nil)
	require.NoError(t, m.Transition("greeter", Discovered, "1", nil))
	require.NoError(t, m.Transition("greeter", Loading, "2", nil))
	require.NoError(t, m.Transition("greeter", Failed, "3", errors.New("x")))
	require.NoError(t, m.Transition("greeter", Discovered, "4", nil))

	history := m.History("greeter")
	require.Len(t, history, 3)
	assert.Equal(t, "2", history[0].Event)
	assert.Equal(t, "4", history[2].Event)
}

func TestMachine_UnloadCycle(t *testing.T) {
	m := New(0, nil)
	require.NoError(t, m.Transition("greeter", Discovered, "scan", nil))
	require.NoError(t, m.Transition("greeter", Loading, "load", nil))
	require.NoError(t, m.Transition("greeter", Loaded, "instantiate", nil))
	require.NoError(t, m.Transition("greeter", Unloading, "unload", nil))
	require.NoError(t, m.Transition("greeter", Unloaded, "unload", nil))
	assert.Equal(t, Unloaded, m.Current("greeter"))
}
