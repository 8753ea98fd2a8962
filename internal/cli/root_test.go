package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Help(t *testing.T) {
	cmd := NewRootCommand()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "asset pipeline")
	assert.Contains(t, out.String(), "build")
	assert.Contains(t, out.String(), "import")
}

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCommand()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "anvil")
}

func TestVersionCommand_JSON(t *testing.T) {
	cmd := NewRootCommand()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--json"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"version"`)
}

func TestDiffCommand_IdenticalFiles(t *testing.T) {
	dir := t.TempDir()

	manifest := dir + "/manifest.json"
	writeTestFile(t, manifest, `[{"artifact_id":"x"}]`)

	cmd := NewRootCommand()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"diff", manifest, manifest})

	require.NoError(t, cmd.Execute())
	assert.Empty(t, out.String())
}

func TestDiffCommand_DifferentFilesExitThree(t *testing.T) {
	dir := t.TempDir()

	a := dir + "/a.json"
	b := dir + "/b.json"
	writeTestFile(t, a, `[{"artifact_id":"x"}]`)
	writeTestFile(t, b, `[{"artifact_id":"y"}]`)

	cmd := NewRootCommand()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"diff", a, b})

	err := cmd.Execute()
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Contains(t, out.String(), "artifact_id")
}

func TestUnknownCommandFails(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"definitely-not-a-command"})

	require.Error(t, cmd.Execute())
}
