package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/swarmcore/internal/authtoken"
	"github.com/dreamware/swarmcore/internal/swarmerr"
)

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	_, err := r.Register("a1", "worker", map[string]any{"zone": "us"})
	require.NoError(t, err)

	a, err := r.Lookup("a1")
	require.NoError(t, err)
	assert.Equal(t, Healthy, a.Health)
	assert.Equal(t, "us", a.Metadata["zone"])
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := New()
	_, err := r.Register("a1", "worker", nil)
	require.NoError(t, err)
	_, err = r.Register("a1", "worker", nil)
	assert.True(t, errors.Is(err, swarmerr.ErrAlreadyRegistered))
}

func TestUnregisterThenReregisterSucceeds(t *testing.T) {
	r := New()
	_, err := r.Register("a1", "worker", nil)
	require.NoError(t, err)
	require.NoError(t, r.Unregister("a1"))

	_, err = r.Register("a1", "worker", map[string]any{"fresh": true})
	require.NoError(t, err)
	a, err := r.Lookup("a1")
	require.NoError(t, err)
	assert.Equal(t, true, a.Metadata["fresh"])
}

func TestListAllReflectsRegisterUnregisterSequence(t *testing.T) {
	r := New()
	for _, id := range []string{"a1", "a2", "a3"} {
		_, err := r.Register(id, "worker", nil)
		require.NoError(t, err)
	}
	require.NoError(t, r.Unregister("a2"))

	ids := map[string]bool{}
	for _, a := range r.ListAll() {
		ids[a.ID] = true
	}
	assert.True(t, ids["a1"])
	assert.False(t, ids["a2"])
	assert.True(t, ids["a3"])
}

func TestListActiveExcludesFailed(t *testing.T) {
	r := New()
	_, err := r.Register("a1", "worker", nil)
	require.NoError(t, err)
	_, err = r.Register("a2", "worker", nil)
	require.NoError(t, err)
	require.NoError(t, r.SetHealthState("a2", Failed, 10))

	active := r.ListActive()
	assert.Len(t, active, 1)
	assert.Equal(t, "a1", active[0].ID)
}

func TestMetadataCopyIsolation(t *testing.T) {
	r := New()
	_, err := r.Register("a1", "worker", map[string]any{"k": "v"})
	require.NoError(t, err)

	a, _ := r.Lookup("a1")
	a.Metadata["k"] = "mutated"

	a2, _ := r.Lookup("a1")
	assert.Equal(t, "v", a2.Metadata["k"])
}

func TestTokenIssuanceIsOptIn(t *testing.T) {
	r := New()
	a, err := r.Register("a1", "worker", nil)
	require.NoError(t, err)
	assert.Empty(t, a.CapabilityToken)
	assert.True(t, r.VerifyCapability("a1", "anything"))
}

func TestTokenIssuedAndVerifiedWhenConfigured(t *testing.T) {
	secret := []byte("shared-secret")
	r := New(
		WithTokenIssuer(authtoken.NewIssuer(secret, time.Hour)),
		WithTokenVerifier(authtoken.NewVerifier(secret)),
	)
	a, err := r.Register("a1", "worker", nil)
	require.NoError(t, err)
	require.NotEmpty(t, a.CapabilityToken)
	assert.True(t, r.VerifyCapability("a1", a.CapabilityToken))
	assert.False(t, r.VerifyCapability("a1", "not-a-real-token"))
}
