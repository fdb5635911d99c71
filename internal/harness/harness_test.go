package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kvorm/internal/store"
)

func intp(n int) *int { return &n }

func floatp(f float64) *float64 { return &f }

func carScenario(steps []Step, assertions ...Assertion) *Scenario {
	return &Scenario{
		Name:        "car",
		Description: "car scenario",
		Schemas:     []string{"car.cue"},
		SchemaDir:   schemasDir,
		Steps:       steps,
		Assertions:  assertions,
	}
}

func TestRun_SaveAssignsSequentialIDs(t *testing.T) {
	scenario := carScenario([]Step{
		{Save: "Car", Values: map[string]any{"color": "red"}},
		{Save: "Car", Values: map[string]any{"color": "red"}},
		{Save: "Car", Values: map[string]any{"id": 10, "color": "blue"}},
	},
		Assertion{Type: AssertCardinality, Key: "color:red", Count: intp(2)},
		Assertion{Type: AssertSetContains, Key: "color:blue", Member: "10"},
		Assertion{Type: AssertKeyCount, Pattern: "Car:*", Count: intp(3)},
	)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	require.Len(t, result.Steps, 3)
	assert.Equal(t, "1", result.Steps[0].ID)
	assert.Equal(t, "2", result.Steps[1].ID)
	assert.Equal(t, "10", result.Steps[2].ID)
}

func TestRun_FreshDatabasePerRun(t *testing.T) {
	scenario := carScenario([]Step{
		{Save: "Car", Values: map[string]any{"color": "red"}},
	},
		Assertion{Type: AssertKeyCount, Pattern: "*", Count: intp(2)},
	)

	for i := 0; i < 2; i++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, result.Errors)
		assert.Equal(t, "1", result.Steps[0].ID)
		assert.Len(t, result.Dump, 2)
	}
}

func TestRun_UpdateAndFind(t *testing.T) {
	scenario := carScenario([]Step{
		{Save: "Car", Values: map[string]any{"color": "red", "make": "Volvo", "manufactureDate": "2013-01-01T00:00:00Z"}},
		{Update: "Car", ID: 1, Set: map[string]any{"color": nil}},
		{Find: "Car", ID: 1, Expect: map[string]any{"color": nil, "make": "Volvo", "manufactureDate": "2013-01-01T00:00:00Z"}},
	},
		Assertion{Type: AssertKeyCount, Pattern: "color:*", Count: intp(0)},
		Assertion{Type: AssertScore, Key: "manufactureDate", Member: "1", Score: floatp(1356998400)},
		Assertion{Type: AssertRecord, Key: "Car:1", Fields: map[string]string{"color": "", "make": "Volvo"}},
	)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_FindMismatch(t *testing.T) {
	scenario := carScenario([]Step{
		{Save: "Car", Values: map[string]any{"color": "red"}},
		{Find: "Car", ID: 1, Expect: map[string]any{"color": "blue"}},
	})

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: find")
	assert.Contains(t, result.Errors[0], `1.color = "red"`)
}

func TestRun_MissingRecord(t *testing.T) {
	scenario := carScenario([]Step{
		{Update: "Car", ID: 5, Set: map[string]any{"color": "red"}},
	})

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Car 5 not found")
	assert.Empty(t, result.Dump)
}

func TestRun_ExpectedError(t *testing.T) {
	t.Run("matches", func(t *testing.T) {
		scenario := carScenario([]Step{
			{Save: "Car", Values: map[string]any{"color": "red", "wheels": 4}, Error: "unknown property"},
		})
		result, err := Run(scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, result.Errors)
		assert.Contains(t, result.Steps[0].Err, "unknown property")
	})

	t.Run("wrong message", func(t *testing.T) {
		scenario := carScenario([]Step{
			{Save: "Car", Values: map[string]any{"manufactureDate": "yesterday"}, Error: "unknown property"},
		})
		result, err := Run(scenario)
		require.NoError(t, err)
		assert.False(t, result.Pass)
		assert.Contains(t, result.Errors[0], "parse time")
	})

	t.Run("no error", func(t *testing.T) {
		scenario := carScenario([]Step{
			{Save: "Car", Values: map[string]any{}, Error: "boom"},
		})
		result, err := Run(scenario)
		require.NoError(t, err)
		assert.False(t, result.Pass)
		assert.Contains(t, result.Errors[0], "got success")
	})
}

func TestRun_UnknownType(t *testing.T) {
	scenario := carScenario([]Step{
		{Save: "Boat", Values: map[string]any{}},
	})

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown type "Boat"`)
}

func TestRun_SchemaErrors(t *testing.T) {
	scenario := carScenario([]Step{{Save: "Car", Values: map[string]any{}}})
	scenario.Schemas = []string{"boat.cue"}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load schemas")
}

func TestRun_RepositoryOptions(t *testing.T) {
	steps := []Step{
		{Save: "Car", Values: map[string]any{"color": "red", "make": "Volvo"}},
		{Update: "Car", ID: 1, Set: map[string]any{"color": "blue"}},
	}

	t.Run("stale membership by default", func(t *testing.T) {
		result, err := Run(carScenario(steps,
			Assertion{Type: AssertSetContains, Key: "color:red", Member: "1"},
		))
		require.NoError(t, err)
		assert.True(t, result.Pass, result.Errors)
	})

	t.Run("stale cleanup", func(t *testing.T) {
		scenario := carScenario(steps,
			Assertion{Type: AssertSetExcludes, Key: "color:red", Member: "1"},
			Assertion{Type: AssertKeyCount, Pattern: "color:*", Count: intp(1)},
		)
		scenario.Repository = RepositoryOptions{StaleCleanup: true, Atomic: true}

		result, err := Run(scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, result.Errors)
	})
}

func TestRun_AssertionFailures(t *testing.T) {
	scenario := carScenario([]Step{
		{Save: "Car", Values: map[string]any{"color": "red"}},
	},
		Assertion{Type: AssertSetContains, Key: "color:blue", Member: "1"},
		Assertion{Type: AssertCardinality, Key: "color:red", Count: intp(3)},
		Assertion{Type: AssertKeyCount, Pattern: "*", Count: intp(2)},
	)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Assertion failed: set_contains")
	assert.Contains(t, result.Errors[1], "Assertion failed: cardinality")
}

func TestRun_Dump(t *testing.T) {
	scenario := &Scenario{
		Name:        "drivers",
		Description: "drivers",
		Schemas:     []string{"car.cue", "driver.cue"},
		SchemaDir:   schemasDir,
		Steps: []Step{
			{Save: "Driver", Values: map[string]any{"handle": "jim", "rating": 8.5}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	require.Len(t, result.Dump, 2)

	assert.Equal(t, "driver:jim", result.Dump[0].Key)
	assert.Equal(t, store.TypeHash, result.Dump[0].Type)
	assert.Equal(t, "8.5", result.Dump[0].Hash["rating"])

	assert.Equal(t, "leaderboard", result.Dump[1].Key)
	assert.Equal(t, map[string]float64{"jim": 8.5}, result.Dump[1].Scores)
}

func TestResult_AddError(t *testing.T) {
	result := NewResult()
	assert.True(t, result.Pass)

	result.AddError("boom")
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"boom"}, result.Errors)
}

func TestResult_AddStep(t *testing.T) {
	result := NewResult()
	result.AddStep(OpSave, "Car", "1", nil)
	result.AddStep(OpFind, "Car", "2", assert.AnError)

	require.Len(t, result.Steps, 2)
	assert.Equal(t, StepRecord{Op: "save", Type: "Car", ID: "1"}, result.Steps[0])
	assert.Equal(t, assert.AnError.Error(), result.Steps[1].Err)
}
