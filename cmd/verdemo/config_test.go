package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verdemo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
in_memory: false
settle_delay: 250ms
replicas:
  - name: alice
    src: 10
  - name: bob
`), 0o644))

	cfg, err := initConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.InMemory)
	assert.Equal(t, "text", cfg.Field)
	assert.Equal(t, 250*time.Millisecond, cfg.SettleDelay)
	require.Len(t, cfg.Replicas, 2)
	assert.Equal(t, ReplicaConfig{Name: "alice", Src: 10}, cfg.Replicas[0])
	assert.Equal(t, "bob", cfg.Replicas[1].Name)
	assert.NotZero(t, cfg.Replicas[1].Src)

	_, err = initConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSplitCommand(t *testing.T) {
	cmd, args := splitCommand("  insert 3  two words ")
	assert.Equal(t, "insert", cmd)
	assert.Equal(t, "3  two words", args)
	cmd, args = splitCommand("text")
	assert.Equal(t, "text", cmd)
	assert.Equal(t, "", args)
}
