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

// garageDir declares Car (int id, color index, temporal manufactureDate)
// and Driver (prefix "driver", handle id, named indexes).
const garageDir = "../schema/testdata/garage"

func TestValidateValidSchemas(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{garageDir})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Car  prefix=Car  id=id")
	assert.Contains(t, output, "  color (equality) <- color")
	assert.Contains(t, output, "  manufactureDate (sorted, temporal) <- manufactureDate")
	assert.Contains(t, output, "Driver  prefix=driver  id=handle")
	assert.Contains(t, output, "  drivers_by_team (equality) <- team")
	assert.Contains(t, output, "  leaderboard (sorted) <- rating")
	assert.Contains(t, output, "✓ All schemas valid (2 types)")
}

func TestValidateValidSchemasJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{garageDir})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.Len(t, resp.Data.Types, 2)

	byName := map[string]TypeSummary{}
	for _, ts := range resp.Data.Types {
		byName[ts.Name] = ts
	}
	assert.Equal(t, "driver", byName["Driver"].Prefix)
	assert.Equal(t, "handle", byName["Driver"].Identifier)
	assert.Contains(t, byName["Car"].Indexes, IndexSummary{
		Name: "manufactureDate", Kind: "sorted", Property: "manufactureDate", Temporal: true,
	})
}

func TestValidateNonExistentDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/directory/path"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E005") // ErrCodeNotFound
	assert.Contains(t, buf.String(), "not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateEmptyDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E003")
	assert.Contains(t, buf.String(), "no CUE files found")
}

const badSchemas = `
package bad

entity: NoID: {
	fields: {
		name: {type: "string"}
	}
}

entity: Decimal: {
	fields: {
		id:    {type: "int", id: true}
		price: {type: "decimal"}
	}
}
`

func TestValidateInvalidSchema(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "bad.cue"), []byte(badSchemas), 0644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed with 2 error(s)")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	output := buf.String()
	assert.Contains(t, output, "✗ Validation failed")
	assert.Contains(t, output, "no identifier property declared")
	assert.Contains(t, output, "E102")
}

func TestValidateInvalidSchemaJSON(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "bad.cue"), []byte(badSchemas), 0644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 2)
	require.NotNil(t, resp.Error)

	codes := []string{resp.Data.Errors[0].Code, resp.Data.Errors[1].Code}
	assert.ElementsMatch(t, []string{"E110", "E102"}, codes)
}

func TestValidateErrorHasPosition(t *testing.T) {
	tmpDir := t.TempDir()
	src := "package bad\n\nentity: Bad: {\n\tfields: {\n\t\tid: {type: \"int\", id: true, index: 3}\n\t}\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "bad.cue"), []byte(src), 0644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	require.Error(t, cmd.Execute())

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Len(t, resp.Data.Errors, 1)
	e := resp.Data.Errors[0]
	assert.Equal(t, "E103", e.Code)
	assert.Contains(t, e.File, "bad.cue")
	assert.Equal(t, 5, e.Line)
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "type", plural(1, "type", "types"))
	assert.Equal(t, "types", plural(0, "type", "types"))
	assert.Equal(t, "types", plural(2, "type", "types"))
}

func TestIndent(t *testing.T) {
	assert.Equal(t, "  a\n  b", indent("a\nb\n", "  "))
	assert.Equal(t, "  one", indent("one", "  "))
}
