package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skiffsync/skiff/internal/version"
)

func TestVersionCommand_PrintsDetailedVersion(t *testing.T) {
	root := newTestRootCmd(newVersionCmd())

	out, err := runCmd(t, root, "version")
	require.NoError(t, err)
	require.Equal(t, version.DetailedWithApp(), strings.TrimSpace(out))
}
