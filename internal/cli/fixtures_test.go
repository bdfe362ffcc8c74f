package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ripple/internal/config"
)

const countdownSpec = `package specs

reactor: countdown: {
	triggers: [{kind: "resource_mutated", name: "n"}]
	when: {resource: "n", op: "gt", value: 0}
	actions: [{op: "add_resource", name: "n", value: -1}]
}
`

const tallySpec = `package specs

reactor: tally: {
	mode: "persistent"
	triggers: [{kind: "resource_mutated", name: "n"}]
	actions: [{op: "add_resource", name: "ticks", value: 1}]
}
`

const countdownScenario = `name: countdown
flow_token: cd
world:
  resources:
    n: 0
    ticks: 0
steps:
  - name: start
    actions:
      - { op: set_resource, name: n, value: 3 }
assertions:
  - type: resource
    name: n
    value: 0
`

// writeFiles writes name -> content into a fresh directory.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

// specsDir holds the countdown and tally reactors.
func specsDir(t *testing.T) string {
	t.Helper()
	return writeFiles(t, map[string]string{
		"countdown.cue": countdownSpec,
		"tally.cue":     tallySpec,
	})
}

// testOpts mirrors what PersistentPreRunE sets up for subcommands.
func testOpts(format string) *RootOptions {
	return &RootOptions{Format: format, Config: config.Defaults()}
}

// execute runs cmd with args and returns its stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}
