package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

var (
	editalConfig   = filepath.Join("..", "compiler", "testdata", "edital.cue")
	editalDocument = filepath.Join("..", "harness", "testdata", "documents", "edital_sem_sancoes.txt")
)

// execute runs a command built by newCmd and returns its stdout.
func execute(t *testing.T, opts *RootOptions, newCmd func(*RootOptions) *cobra.Command, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	cmd := newCmd(opts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// tempDB returns options sharing one SQLite file for the test.
func tempDB(t *testing.T, format string) *RootOptions {
	t.Helper()
	return &RootOptions{Format: format, DB: filepath.Join(t.TempDir(), "configs.db")}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const halfWeightConfig = `
organizationId: "prefeitura-exemplo"
name:           "Half weights"
description:    "Weights that sum to fifty"
parameters: [
	{id: "structural", name: "Structural", category: "structural", valueType: "number", weight: 10},
	{id: "legal", name: "Legal", category: "legal", valueType: "number", weight: 10},
	{id: "clarity", name: "Clarity", category: "clarity", valueType: "number", weight: 10},
	{id: "formal", name: "Formal", category: "formal", valueType: "number", weight: 20},
]
`
