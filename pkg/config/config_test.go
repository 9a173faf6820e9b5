package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultsPassValidation(t *testing.T) {
	cfg := New()
	require.NoError(t, cfg.validate())
	require.True(t, cfg.Lock.TTL > cfg.Pipeline.RunDeadline)
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	contents := []byte("redis:\n  addr: \"redis.internal:6380\"\nlock:\n  ttl: 50m\n")
	require.NoError(t, os.WriteFile(path, contents, 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	require.Equal(t, 50*time.Minute, cfg.Lock.TTL)
	// Untouched defaults survive the overlay.
	require.Equal(t, 10*time.Minute, cfg.Lock.PostRunExtension)
}

func TestValidateRejectsShortRefreshInterval(t *testing.T) {
	cfg := New()
	cfg.Lock.RefreshInterval = 30 * time.Second
	require.Error(t, cfg.validate())
}

func TestValidateRejectsExtensionOutsideRange(t *testing.T) {
	cfg := New()
	cfg.Lock.PostRunExtension = 20 * time.Minute
	require.Error(t, cfg.validate())
}

func TestValidateRejectsTTLNotExceedingDeadline(t *testing.T) {
	cfg := New()
	cfg.Lock.TTL = cfg.Pipeline.RunDeadline
	require.Error(t, cfg.validate())
}
