package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata/scenarios and compares
// its final keyspace with testdata/golden/<name>.golden.
func TestScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenarioWithBasePath(file, schemasDir)
			require.NoError(t, err)
			require.Equal(t, name, scenario.Name, "scenario name must match its file name")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestMarshalSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenarioWithBasePath("testdata/scenarios/driver-transfer.yaml", schemasDir)
	require.NoError(t, err)

	var first []byte
	for i := 0; i < 3; i++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		data, err := MarshalSnapshot(scenario.Name, result)
		require.NoError(t, err)
		if first == nil {
			first = data
			continue
		}
		assert.Equal(t, string(first), string(data))
	}
}

func TestMarshalSnapshot_Layout(t *testing.T) {
	scenario := carScenario([]Step{
		{Save: "Car", Values: map[string]any{"color": "red", "manufactureDate": "2013-01-01T00:00:00Z"}},
	})

	result, err := Run(scenario)
	require.NoError(t, err)

	data, err := MarshalSnapshot("layout", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"keys":[`+
			`{"hash":{"color":"red","engineType":"","id":"1","make":"","manufactureDate":"2013-01-01T00:00:00Z","model":""},"key":"Car:1","type":"hash"},`+
			`{"key":"color:red","members":["1"],"type":"set"},`+
			`{"key":"manufactureDate","scores":{"1":1356998400},"type":"zset"}`+
			`],"scenario_name":"layout"}`,
		string(data))
}

func TestAssertGolden_FromResult(t *testing.T) {
	scenario, err := LoadScenarioWithBasePath("testdata/scenarios/color-cleared.yaml", schemasDir)
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, "color-cleared", result))
}
