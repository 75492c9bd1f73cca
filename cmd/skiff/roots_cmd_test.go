package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffsync/skiff/internal/config"
	"github.com/skiffsync/skiff/internal/sync"
)

func initTestConfig(t *testing.T) string {
	t.Helper()
	cfgPath := testConfigPath(t)

	root := newTestRootCmd(newInitCmd())
	_, err := runCmd(t, root, "init", "-c", cfgPath, "-b", "skiff-backups", "-r", "eu-west-1")
	require.NoError(t, err)
	return cfgPath
}

func TestRootsCommand_AddListRemove(t *testing.T) {
	cfgPath := initTestConfig(t)
	localDir := t.TempDir()
	root := newTestRootCmd(newRootsCmd())

	out, err := runCmd(t, root, "roots", "add", localDir, "-c", cfgPath, "--remote", "backups/docs")
	require.NoError(t, err)
	assert.Contains(t, out, "Added")

	out, err = runCmd(t, root, "roots", "list", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, localDir)
	assert.Contains(t, out, "backups/docs")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	require.Len(t, cfg.Roots, 1)
	assert.Equal(t, sync.DirectionBoth, cfg.Roots[0].Direction, "direction defaults to both")

	out, err = runCmd(t, root, "roots", "remove", localDir, "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed")

	out, err = runCmd(t, root, "roots", "list", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No roots configured")
}

func TestRootsCommand_AddDuplicateFails(t *testing.T) {
	cfgPath := initTestConfig(t)
	localDir := t.TempDir()
	root := newTestRootCmd(newRootsCmd())

	_, err := runCmd(t, root, "roots", "add", localDir, "-c", cfgPath, "--remote", "backups/a")
	require.NoError(t, err)

	_, err = runCmd(t, root, "roots", "add", localDir, "-c", cfgPath, "--remote", "backups/b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already configured")
}

func TestRootsCommand_AddWithDirectionAndIgnores(t *testing.T) {
	cfgPath := initTestConfig(t)
	localDir := t.TempDir()
	root := newTestRootCmd(newRootsCmd())

	_, err := runCmd(t, root, "roots", "add", localDir, "-c", cfgPath,
		"--remote", "backups/code", "--direction", "up", "--ignore", "*.log", "--ignore", "node_modules/")
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	require.Len(t, cfg.Roots, 1)
	assert.Equal(t, sync.DirectionUp, cfg.Roots[0].Direction)
	assert.Equal(t, []string{"*.log", "node_modules/"}, cfg.Roots[0].IgnorePatterns)
}

func TestRootsCommand_RemoveMissingFails(t *testing.T) {
	cfgPath := initTestConfig(t)
	root := newTestRootCmd(newRootsCmd())

	_, err := runCmd(t, root, "roots", "remove", "/nowhere/special", "-c", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such root")
}
