package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Big0290/memory-context-manager-v2/internal/telemetry"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*telemetry.Config)
		wantErr bool
	}{
		{"defaults", func(c *telemetry.Config) {}, false},
		{"disabled skips checks", func(c *telemetry.Config) {
			c.Enabled = false
			c.Endpoint = ""
			c.SampleRate = 7
		}, false},
		{"missing endpoint", func(c *telemetry.Config) {
			c.Enabled = true
			c.Endpoint = ""
		}, true},
		{"missing service name", func(c *telemetry.Config) {
			c.Enabled = true
			c.ServiceName = ""
		}, true},
		{"bad protocol", func(c *telemetry.Config) {
			c.Enabled = true
			c.Protocol = "thrift"
		}, true},
		{"http protocol", func(c *telemetry.Config) {
			c.Enabled = true
			c.Protocol = "http/protobuf"
		}, false},
		{"insecure remote endpoint", func(c *telemetry.Config) {
			c.Enabled = true
			c.Endpoint = "collector.example.com:4317"
			c.Insecure = true
		}, true},
		{"secure remote endpoint", func(c *telemetry.Config) {
			c.Enabled = true
			c.Endpoint = "collector.example.com:4317"
			c.Insecure = false
		}, false},
		{"sample rate out of range", func(c *telemetry.Config) {
			c.Enabled = true
			c.SampleRate = 1.5
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := telemetry.DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewDisabled(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	tel, err := telemetry.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, tel)
	assert.False(t, tel.Degraded())

	// Disabled instances hand out usable no-op instruments.
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	cfg.Enabled = true
	cfg.SampleRate = -1

	_, err := telemetry.New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestShutdownNil(t *testing.T) {
	var tel *telemetry.Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Degraded())
}
