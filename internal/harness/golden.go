package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/kvorm/internal/canonical"
	"github.com/roach88/kvorm/internal/store"
)

// DumpSnapshot captures the keyspace a scenario leaves behind.
// All fields use canonical JSON serialization for deterministic comparison.
type DumpSnapshot struct {
	ScenarioName string        `json:"scenario_name"`
	Keys         []store.Entry `json:"keys"`
}

// toCanonicalMap converts a DumpSnapshot to a map[string]any for canonical JSON serialization.
// This is required because canonical.Marshal only handles primitives, maps and slices.
func (s *DumpSnapshot) toCanonicalMap() map[string]any {
	keys := make([]any, len(s.Keys))
	for i, e := range s.Keys {
		entry := map[string]any{
			"key":  e.Key,
			"type": string(e.Type),
		}
		switch e.Type {
		case store.TypeHash:
			entry["hash"] = e.Hash
		case store.TypeSet:
			entry["members"] = e.Members
		case store.TypeZSet:
			entry["scores"] = e.Scores
		}
		keys[i] = entry
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"keys":          keys,
	}
}

// MarshalSnapshot renders the result's dump as canonical JSON. This is the
// content of a scenario's golden file.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := DumpSnapshot{
		ScenarioName: scenarioName,
		Keys:         result.Dump,
	}
	return canonical.Marshal(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the final keyspace
// against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the dump doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's dump against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
