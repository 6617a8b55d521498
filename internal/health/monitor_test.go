package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/swarmcore/internal/registry"
)

func TestClassifyThresholds(t *testing.T) {
	m := NewMonitor(registry.New())
	assert.Equal(t, registry.Healthy, m.classify(5*time.Second))
	assert.Equal(t, registry.Degraded, m.classify(15*time.Second))
	assert.Equal(t, registry.Critical, m.classify(25*time.Second))
	assert.Equal(t, registry.Failed, m.classify(35*time.Second))
}

func TestSweepTransitionsAgentThroughStates(t *testing.T) {
	reg := registry.New()
	_, err := reg.Register("a1", "worker", nil)
	require.NoError(t, err)

	var alerts []Alert
	m := NewMonitor(reg,
		WithHealthyMax(1*time.Millisecond),
		WithDegradedMax(2*time.Millisecond),
		WithCriticalMax(3*time.Millisecond),
		WithAlertHandler(func(a Alert) { alerts = append(alerts, a) }),
	)

	time.Sleep(5 * time.Millisecond)
	m.sweep()

	a, err := reg.Lookup("a1")
	require.NoError(t, err)
	assert.Equal(t, registry.Failed, a.Health)
	require.NotEmpty(t, alerts)
	assert.Equal(t, SeverityCritical, alerts[len(alerts)-1].Severity)
}

func TestHeartbeatReturnsAgentToHealthy(t *testing.T) {
	reg := registry.New()
	_, err := reg.Register("a1", "worker", nil)
	require.NoError(t, err)
	require.NoError(t, reg.SetHealthState("a1", registry.Failed, 10))

	m := NewMonitor(reg, WithHealthyMax(time.Hour), WithDegradedMax(2*time.Hour), WithCriticalMax(3*time.Hour))
	require.NoError(t, reg.UpdateHeartbeat("a1"))
	m.sweep()

	a, err := reg.Lookup("a1")
	require.NoError(t, err)
	assert.Equal(t, registry.Healthy, a.Health)
	assert.Equal(t, 0, a.ConsecutiveMissedHeartbeats)
}

func TestStartStopSweepsOnInterval(t *testing.T) {
	reg := registry.New()
	_, err := reg.Register("a1", "worker", nil)
	require.NoError(t, err)

	m := NewMonitor(reg,
		WithHealthyMax(1*time.Millisecond),
		WithDegradedMax(2*time.Millisecond),
		WithCriticalMax(3*time.Millisecond),
		WithSweepInterval(5*time.Millisecond),
	)
	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool {
		a, err := reg.Lookup("a1")
		return err == nil && a.Health == registry.Failed
	}, 200*time.Millisecond, 5*time.Millisecond)
}
