package logging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Big0290/memory-context-manager-v2/internal/logging"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, logging.DefaultConfig().Validate())
	assert.Error(t, logging.Config{Level: "verbose", Format: "json"}.Validate())
	assert.Error(t, logging.Config{Level: "info", Format: "xml"}.Validate())
}

func TestNew(t *testing.T) {
	logger, err := logging.New(logging.Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = logging.New(logging.Config{Level: "nope", Format: "json"})
	require.Error(t, err)
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, logging.RequestIDFromContext(ctx))

	ctx = logging.ContextWithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", logging.RequestIDFromContext(ctx))
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, logging.ContextFields(ctx))

	ctx = logging.ContextWithRequestID(ctx, "req-123")
	fields := logging.ContextFields(ctx)
	require.Len(t, fields, 1)
	assert.Equal(t, "request_id", fields[0].Key)
}
