package authtoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueThenVerifyRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	issuer := NewIssuer(secret, time.Hour)
	verifier := NewVerifier(secret)

	token, err := issuer.Issue("agent-1", time.Now())
	require.NoError(t, err)

	claims, err := verifier.Verify(token, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", claims.AgentID)
}

func TestVerifyRejectsWrongAgent(t *testing.T) {
	secret := []byte("test-secret")
	issuer := NewIssuer(secret, time.Hour)
	verifier := NewVerifier(secret)

	token, err := issuer.Issue("agent-1", time.Now())
	require.NoError(t, err)

	_, err = verifier.Verify(token, "agent-2")
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	issuer := NewIssuer(secret, time.Millisecond)
	verifier := NewVerifier(secret)

	token, err := issuer.Issue("agent-1", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = verifier.Verify(token, "agent-1")
	assert.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewIssuer([]byte("secret-a"), time.Hour)
	verifier := NewVerifier([]byte("secret-b"))

	token, err := issuer.Issue("agent-1", time.Now())
	require.NoError(t, err)

	_, err = verifier.Verify(token, "agent-1")
	assert.Error(t, err)
}
