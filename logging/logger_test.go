package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuildsLoggerWithValidLevel(t *testing.T) {
	l, err := New(DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, l)
	defer l.Close()
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "not-a-level", Format: "json", Outputs: []string{"stdout"}})
	assert.Error(t, err)
}

func TestLogEventDoesNotPanicOnSchemaViolation(t *testing.T) {
	l, err := New(DefaultConfig())
	require.NoError(t, err)
	defer l.Close()
	assert.NotPanics(t, func() {
		l.LogEvent("fair_price_update", map[string]any{"symbol": "BTC-PERP"})
	})
}

func TestValidateCatchesMissingFields(t *testing.T) {
	err := Validate("fair_price_update", map[string]any{"symbol": "BTC-PERP"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local_mid")
}

func TestValidatePassesUnknownEvent(t *testing.T) {
	assert.NoError(t, Validate("not_a_registered_event", nil))
}

func TestLogErrorDoesNotPanic(t *testing.T) {
	l, err := New(DefaultConfig())
	require.NoError(t, err)
	defer l.Close()
	assert.NotPanics(t, func() {
		l.LogError(errors.New("boom"), map[string]any{"symbol": "BTC-PERP"})
	})
}
