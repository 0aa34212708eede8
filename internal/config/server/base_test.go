package server

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigFrom_Defaults(t *testing.T) {
	root := t.TempDir()
	v := viper.New()
	v.Set("storage.root", root)

	cfg, err := LoadServerConfigFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Metadata.Type)
	assert.Equal(t, filepath.Join(root, "metadata.db"), cfg.Metadata.SQLite.Path)
	assert.Equal(t, filepath.Join(root, "keyring"), cfg.KeyStore.FileDir)
	assert.Equal(t, CipherAES256GCM, cfg.Crypto.Cipher)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeoutDuration())
	assert.Equal(t, 15*time.Minute, cfg.Storage.SweepIntervalDuration())
	assert.Equal(t, 10*time.Minute, cfg.Storage.OrphanGraceDuration())
	assert.GreaterOrEqual(t, cfg.Storage.Workers, 1)

	n, err := cfg.Crypto.ChunkSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, 1<<20, n)
}

func TestLoadServerConfigFrom_ExplicitPathsKept(t *testing.T) {
	v := viper.New()
	v.Set("storage.root", t.TempDir())
	v.Set("metadata.sqlite.path", "/srv/meta.db")

	cfg, err := LoadServerConfigFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "/srv/meta.db", cfg.Metadata.SQLite.Path)
}

func TestLoadServerConfigFrom_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"unknown cipher", "crypto.cipher", "rot13"},
		{"chunk not power of two", "crypto.chunk_size", "1000k"},
		{"chunk too small", "crypto.chunk_size", "1k"},
		{"bad log level", "log.level", "LOUD"},
		{"bad metadata type", "metadata.type", "postgres"},
		{"zero workers", "storage.workers", 0},
		{"bad sweep interval", "storage.sweep_interval", "soon"},
		{"negative orphan grace", "storage.orphan_grace", "-1m"},
		{"unknown backend", "keystore.backends", []string{"floppy"}},
		{"zero tries", "keystore.max_tries", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set("storage.root", t.TempDir())
			v.Set(tt.key, tt.value)

			_, err := LoadServerConfigFrom(v)
			assert.Error(t, err)
		})
	}
}

func TestShutdownTimeoutDuration_Fallback(t *testing.T) {
	cfg := &BaseServerConfig{ShutdownTimeout: "nope"}
	assert.Equal(t, 60*time.Second, cfg.ShutdownTimeoutDuration())
}
