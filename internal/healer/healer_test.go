package healer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleRunsDefaultStrategyForKind(t *testing.T) {
	h := New()
	var gotAgent string
	h.RegisterAction(StrategyRestartAgent, func(incident Incident) (string, error) {
		gotAgent = incident.AgentID
		return "restarted", nil
	})

	action := h.Handle(Incident{Kind: FailureAgentFailed, AgentID: "a1"})
	assert.Equal(t, StrategyRestartAgent, action.Strategy)
	assert.True(t, action.Success)
	assert.Equal(t, "restarted", action.ObservedEffect)
	assert.Equal(t, "a1", gotAgent)
}

func TestHandleWithNoRegisteredActionRecordsFailure(t *testing.T) {
	h := New()
	action := h.Handle(Incident{Kind: FailureSlowAgent, AgentID: "a1"})
	assert.False(t, action.Success)
	assert.Equal(t, StrategyGradualDegradation, action.Strategy)
}

func TestHandlePropagatesActionError(t *testing.T) {
	h := New()
	h.RegisterAction(StrategyRetryTask, func(incident Incident) (string, error) {
		return "", errors.New("boom")
	})
	action := h.Handle(Incident{Kind: FailureTaskTimeout})
	assert.False(t, action.Success)
	assert.Contains(t, action.ObservedEffect, "boom")
}

func TestStrategyOverrideRetunesSelection(t *testing.T) {
	h := New(WithStrategyOverride(FailureAgentFailed, StrategyGradualDegradation))
	action := h.Handle(Incident{Kind: FailureAgentFailed})
	assert.Equal(t, StrategyGradualDegradation, action.Strategy)
}

func TestPreventiveGatedOnConfidenceThreshold(t *testing.T) {
	h := New(WithPreventiveThreshold(0.7))
	h.RegisterAction(StrategyRebalanceResources, func(Incident) (string, error) { return "rebalanced", nil })

	_, applied := h.HandlePreventive(Incident{Kind: FailureResourceExhaustion}, 0.5)
	assert.False(t, applied)

	action, applied := h.HandlePreventive(Incident{Kind: FailureResourceExhaustion}, 0.9)
	assert.True(t, applied)
	assert.True(t, action.Preventive)
}

func TestPredictionAccuracyTracksConfirmedShare(t *testing.T) {
	h := New()
	accuracy, n := h.PredictionAccuracy()
	assert.Zero(t, n)
	assert.Zero(t, accuracy)

	h.RecordPredictionOutcome(true)
	h.RecordPredictionOutcome(true)
	h.RecordPredictionOutcome(false)

	accuracy, n = h.PredictionAccuracy()
	assert.Equal(t, 3, n)
	assert.InDelta(t, 2.0/3.0, accuracy, 0.001)
}

func TestHistoryIsBounded(t *testing.T) {
	h := New(WithMaxHistory(3))
	h.RegisterAction(StrategyRetryTask, func(Incident) (string, error) { return "ok", nil })
	for i := 0; i < 10; i++ {
		h.Handle(Incident{Kind: FailureTaskTimeout})
	}
	assert.Len(t, h.History(), 3)
}

func TestEffectivenessComputesSuccessRateAndTrend(t *testing.T) {
	h := New()
	calls := 0
	h.RegisterAction(StrategyRetryTask, func(Incident) (string, error) {
		calls++
		if calls <= 3 {
			return "", errors.New("fail early")
		}
		return "ok", nil
	})
	for i := 0; i < 9; i++ {
		h.Handle(Incident{Kind: FailureTaskTimeout})
		time.Sleep(time.Millisecond)
	}

	eff := h.EffectivenessFor(StrategyRetryTask)
	require.Equal(t, 9, eff.Attempts)
	assert.InDelta(t, 6.0/9.0, eff.SuccessRate, 0.001)
	assert.Equal(t, TrendImproving, eff.Trend)
}

func TestEffectivenessUnknownWithTooFewRecords(t *testing.T) {
	h := New()
	h.RegisterAction(StrategyRetryTask, func(Incident) (string, error) { return "ok", nil })
	h.Handle(Incident{Kind: FailureTaskTimeout})
	eff := h.EffectivenessFor(StrategyRetryTask)
	assert.Equal(t, TrendUnknown, eff.Trend)
}
