package mitigation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

func newTestExecutor(t *testing.T) (*Executor, *State) {
	t.Helper()
	state := NewState()
	executor, err := NewExecutor(DefaultConfig(), state)
	require.NoError(t, err)
	return executor, state
}

func TestExecutor_Apply_actionTable(t *testing.T) {
	executor, _ := newTestExecutor(t)

	view := executor.Apply(domain.ActionRaiseFeeThreshold)
	assert.Equal(t, domain.ModeFeeFilter, view.Mode)
	assert.Equal(t, 10.0, view.MinFee)
	assert.Equal(t, time.Duration(0), view.Delay)

	view = executor.Apply(domain.ActionDeprioritizeSpam)
	assert.Equal(t, domain.ModeSpamDeprioritization, view.Mode)
	assert.Equal(t, 10.0, view.MinFee)
	assert.Equal(t, 500*time.Millisecond, view.Delay)

	view = executor.Apply(domain.ActionDefensiveMode)
	assert.Equal(t, domain.ModeDefensive, view.Mode)
	assert.Equal(t, 35.0, view.MinFee)
	assert.Equal(t, time.Second, view.Delay)
}

func TestExecutor_Apply_repeatedActionIsIdempotent(t *testing.T) {
	executor, _ := newTestExecutor(t)

	first := executor.Apply(domain.ActionDefensiveMode)
	second := executor.Apply(domain.ActionDefensiveMode)
	assert.Equal(t, first, second)
	assert.Equal(t, 25.0, second.MinFee) // not re-stacked

	executor.Apply(domain.ActionDoNothing)
	first = executor.Apply(domain.ActionRaiseFeeThreshold)
	second = executor.Apply(domain.ActionRaiseFeeThreshold)
	assert.Equal(t, first, second)
	assert.Equal(t, 10.0, second.MinFee)
}

func TestExecutor_Apply_doNothingResetsToBaseline(t *testing.T) {
	executor, _ := newTestExecutor(t)

	// defensive twice, then do nothing
	executor.Apply(domain.ActionDefensiveMode)
	executor.Apply(domain.ActionDefensiveMode)
	view := executor.Apply(domain.ActionDoNothing)

	assert.Equal(t, domain.ModeNormal, view.Mode)
	assert.Zero(t, view.MinFee)
	assert.Zero(t, view.Delay)
}

func TestExecutor_Apply_anySequenceEndingInDoNothingIsBaseline(t *testing.T) {
	executor, _ := newTestExecutor(t)
	baseline := executor.Reset()

	sequences := [][]domain.Action{
		{domain.ActionDoNothing},
		{domain.ActionRaiseFeeThreshold, domain.ActionDoNothing},
		{domain.ActionDefensiveMode, domain.ActionRaiseFeeThreshold, domain.ActionDeprioritizeSpam, domain.ActionDoNothing},
		{domain.ActionDeprioritizeSpam, domain.ActionDefensiveMode, domain.ActionDefensiveMode, domain.ActionDoNothing},
	}
	for _, sequence := range sequences {
		executor.Reset()
		var view View
		for _, action := range sequence {
			view = executor.Apply(action)
		}
		assert.Equal(t, baseline.Mode, view.Mode)
		assert.Equal(t, baseline.MinFee, view.MinFee)
		assert.Equal(t, baseline.Delay, view.Delay)
	}
}

func TestExecutor_Apply_unknownActionLeavesStateUntouched(t *testing.T) {
	executor, _ := newTestExecutor(t)

	before := executor.Apply(domain.ActionRaiseFeeThreshold)
	after := executor.Apply(domain.Action(99))
	assert.Equal(t, before, after)
}

func TestState_ShouldAdmit(t *testing.T) {
	executor, state := newTestExecutor(t)

	// NORMAL admits everything without delay
	admit, delay := state.ShouldAdmit(0.0001, 0.99)
	assert.True(t, admit)
	assert.Zero(t, delay)

	executor.Apply(domain.ActionRaiseFeeThreshold)
	admit, _ = state.ShouldAdmit(5, 0.1)
	assert.False(t, admit) // below fee floor
	admit, delay = state.ShouldAdmit(50, 0.1)
	assert.True(t, admit)
	assert.Zero(t, delay)

	executor.Apply(domain.ActionDefensiveMode)
	admit, delay = state.ShouldAdmit(50, 0.9)
	assert.True(t, admit)
	assert.Equal(t, time.Second, delay) // spam gets delayed, not dropped
}

func TestState_View_isACopy(t *testing.T) {
	executor, state := newTestExecutor(t)

	view := state.View()
	view.MinFee = 999

	executor.Apply(domain.ActionRaiseFeeThreshold)
	assert.Equal(t, 10.0, state.View().MinFee)
}
