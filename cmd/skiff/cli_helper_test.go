package main

import (
	"bytes"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/spf13/cobra"

	"github.com/skiffsync/skiff/internal/config"
)

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

// newTestRootCmd builds a fresh root command so tests never share the
// package-level rootCmd's flag state.
func newTestRootCmd(subcommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{Use: "skiff"}
	cmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "Skiff config file")
	cmd.AddCommand(subcommands...)
	return cmd
}

// runCmd executes the CLI with args and returns its combined output.
func runCmd(t *testing.T, root *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(t.Context())
	return stripANSI(out.String()), err
}

func testConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}
