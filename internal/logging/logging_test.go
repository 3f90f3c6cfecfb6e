package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(LevelWarn, &buf)
	require.NoError(t, err)

	logger.Info("quiet")
	logger.Warn("loud")
	require.NoError(t, logger.Sync())

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestNewNone(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(LevelNone, &buf)
	require.NoError(t, err)
	logger.Error("nothing")
	assert.Empty(t, buf.String())
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("chatty", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chatty")
	assert.False(t, Valid("chatty"))
}
