package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitAcceptsLevelStrings(t *testing.T) {
	require.NoError(t, Init("debug"))
	require.NoError(t, Init(" WARN "))

	// Unknown levels fall back to info instead of failing start-up.
	require.NoError(t, Init("not-a-level"))

	require.NotNil(t, Logger())
	require.NotNil(t, WithModule("realtime"))
}
