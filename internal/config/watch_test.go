package config_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Big0290/memory-context-manager-v2/internal/config"
)

func TestWatchReloadsOnRewrite(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 8080\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *config.Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- config.Watch(ctx, path, nil, func(cfg *config.Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// Give the watcher a moment to install before rewriting.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9000\n"), 0o600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 9000, cfg.Server.Port)
	case <-time.After(3 * time.Second):
		t.Fatal("config reload not observed")
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatchIgnoresInvalidRewrite(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 8080\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *config.Config, 4)
	go func() {
		_ = config.Watch(ctx, path, nil, func(cfg *config.Config) {
			reloaded <- cfg
		})
	}()

	time.Sleep(100 * time.Millisecond)
	// Out-of-range port fails validation; the callback must not fire.
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 99999\n"), 0o600))

	select {
	case cfg := <-reloaded:
		t.Fatalf("invalid config applied: port %d", cfg.Server.Port)
	case <-time.After(500 * time.Millisecond):
	}
}
