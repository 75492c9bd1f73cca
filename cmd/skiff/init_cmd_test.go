package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffsync/skiff/internal/config"
	"github.com/skiffsync/skiff/internal/sync"
)

func TestInitCommand_CreatesConfig(t *testing.T) {
	cfgPath := testConfigPath(t)
	root := newTestRootCmd(newInitCmd())

	out, err := runCmd(t, root, "init", "-c", cfgPath, "-b", "skiff-backups", "-r", "eu-west-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Skiff initialized")
	assert.Contains(t, out, "skiff-backups")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "skiff-backups", cfg.Remote.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Remote.Region)
	assert.Equal(t, sync.StrategyNewest, cfg.Strategy)
	assert.Empty(t, cfg.Roots)
}

func TestInitCommand_AlreadyInitialized(t *testing.T) {
	cfgPath := testConfigPath(t)
	root := newTestRootCmd(newInitCmd())

	_, err := runCmd(t, root, "init", "-c", cfgPath, "-b", "first", "-r", "eu-west-1")
	require.NoError(t, err)

	out, err := runCmd(t, root, "init", "-c", cfgPath, "-b", "second", "-r", "us-east-1")
	require.NoError(t, err)
	assert.Contains(t, out, "already initialized")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "first", cfg.Remote.Bucket, "a rerun must not overwrite the config")
}

func TestInitCommand_RequiresBucket(t *testing.T) {
	cfgPath := testConfigPath(t)
	root := newTestRootCmd(newInitCmd())

	_, err := runCmd(t, root, "init", "-c", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket is required")
}

func TestInitCommand_EndpointOnlyRemote(t *testing.T) {
	cfgPath := testConfigPath(t)
	root := newTestRootCmd(newInitCmd())

	out, err := runCmd(t, root, "init", "-c", cfgPath, "-b", "minio-local", "-e", "http://localhost:9000")
	require.NoError(t, err)
	assert.Contains(t, out, "http://localhost:9000")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", cfg.Remote.Endpoint)
}
