package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOrReturnsFallbackWhenUnset(t *testing.T) {
	const key = "SWARMD_TEST_UNSET_VAR"
	os.Unsetenv(key)
	assert.Equal(t, "fallback", envOr(key, "fallback"))
}

func TestEnvOrReturnsSetValue(t *testing.T) {
	const key = "SWARMD_TEST_SET_VAR"
	os.Setenv(key, "configured")
	defer os.Unsetenv(key)
	assert.Equal(t, "configured", envOr(key, "fallback"))
}
