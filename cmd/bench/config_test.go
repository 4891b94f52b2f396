package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := config{Duration: defaultDuration, MessageLen: defaultMessageLen}
	require.NoError(t, cfg.validate())

	cfg.MessageLen = 0
	require.NoError(t, cfg.validate())

	cfg.MessageLen = -1
	require.ErrorContains(t, cfg.validate(), "message length must not be negative, got -1")
}
