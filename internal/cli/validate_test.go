package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSchema(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.cue"), []byte(content), 0o644))
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidate_Success(t *testing.T) {
	dir := writeSchema(t, `
package app

table: tasks: {
	fields: {
		title: {type: "string"}
		done:  {type: "bool", default: false}
	}
}
`)

	out, err := runCLI(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "schema valid")
	assert.Contains(t, out, "1 table")
}

func TestValidate_SuccessJSON(t *testing.T) {
	dir := writeSchema(t, `
package app

table: tasks: {
	fields: {
		title: {type: "string"}
	}
}
`)

	out, err := runCLI(t, "--format", "json", "validate", dir)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestValidate_MissingDir(t *testing.T) {
	out, err := runCLI(t, "validate", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E005")
}

func TestValidate_EmptyDir(t *testing.T) {
	out, err := runCLI(t, "validate", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E003")
}

func TestValidate_BadField(t *testing.T) {
	dir := writeSchema(t, `
package app

table: tasks: {
	fields: {
		title: {type: "whatever"}
	}
}
`)

	out, err := runCLI(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Validation failed")
	assert.Contains(t, out, "E102")
}

func TestValidate_FailureJSON(t *testing.T) {
	dir := writeSchema(t, `
package app

table: tasks: {
	fields: {
		owner: {type: "ref", table: "nowhere"}
	}
}
`)

	out, err := runCLI(t, "--format", "json", "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E103", resp.Error.Code)
}
