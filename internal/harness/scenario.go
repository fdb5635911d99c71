package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/kvorm/internal/orm"
)

// Scenario defines a repository test scenario.
// Scenarios save, update and find records through the repository, then
// assert on the keys the repository left in the store.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schemas lists the CUE files declaring the entity types used by the
	// steps. Paths are relative to SchemaDir and must share one package.
	Schemas []string `yaml:"schemas"`

	// SchemaDir is the directory Schemas are resolved against. It is set
	// by the loader, not by the YAML.
	SchemaDir string `yaml:"-"`

	// Repository holds the options every repository in the scenario uses.
	Repository RepositoryOptions `yaml:"repository,omitempty"`

	// Steps run in order against one store.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final keyspace.
	// Supported types: key_count, set_contains, set_excludes, cardinality,
	// score, record
	Assertions []Assertion `yaml:"assertions"`
}

// RepositoryOptions mirrors the repository section of the config file.
type RepositoryOptions struct {
	WriteMode    string `yaml:"write_mode,omitempty"`
	StaleCleanup bool   `yaml:"stale_cleanup,omitempty"`
	Atomic       bool   `yaml:"atomic,omitempty"`
}

// Options converts the section to repository options.
func (o RepositoryOptions) Options() ([]orm.Option, error) {
	mode, err := orm.ParseWriteMode(o.WriteMode)
	if err != nil {
		return nil, err
	}
	return []orm.Option{
		orm.WithWriteMode(mode),
		orm.WithStaleCleanup(o.StaleCleanup),
		orm.WithAtomic(o.Atomic),
	}, nil
}

// Step is one repository operation. Exactly one of Save, Update or Find
// names the entity type the step acts on.
type Step struct {
	// Save stores a new record built from Values. A missing identifier is
	// generated as "1", "2", ... in step order.
	Save   string         `yaml:"save,omitempty"`
	Values map[string]any `yaml:"values,omitempty"`

	// Update finds the record with ID, applies Set and saves it again.
	// A null in Set clears the property.
	Update string         `yaml:"update,omitempty"`
	Set    map[string]any `yaml:"set,omitempty"`

	// Find loads the record with ID and compares the properties in Expect.
	// Properties left out of Expect are not checked.
	Find   string         `yaml:"find,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	ID any `yaml:"id,omitempty"`

	// Error, if set, is a substring the step's error must contain. The
	// step is then expected to fail.
	Error string `yaml:"error,omitempty"`
}

// Step operations.
const (
	OpSave   = "save"
	OpUpdate = "update"
	OpFind   = "find"
)

// Op returns the step's operation and entity type.
func (s Step) Op() (op, typeName string) {
	switch {
	case s.Save != "":
		return OpSave, s.Save
	case s.Update != "":
		return OpUpdate, s.Update
	case s.Find != "":
		return OpFind, s.Find
	}
	return "", ""
}

// Assertion validates the final keyspace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "key_count": Number of keys matching Pattern equals Count
	// - "set_contains": Equality set Key has Member
	// - "set_excludes": Equality set Key lacks Member
	// - "cardinality": Set or sorted set Key has Count members
	// - "score": Member of sorted set Key has Score
	// - "record": Hash Key has every field in Fields
	Type string `yaml:"type"`

	Key     string `yaml:"key,omitempty"`
	Pattern string `yaml:"pattern,omitempty"`
	Member  string `yaml:"member,omitempty"`

	// Count is a pointer so that zero can be asserted.
	Count *int `yaml:"count,omitempty"`

	Score *float64 `yaml:"score,omitempty"`

	// Fields are compared against the stored strings, so nulls are "".
	Fields map[string]string `yaml:"fields,omitempty"`
}

// Assertion type constants.
const (
	AssertKeyCount    = "key_count"
	AssertSetContains = "set_contains"
	AssertSetExcludes = "set_excludes"
	AssertCardinality = "cardinality"
	AssertScore       = "score"
	AssertRecord      = "record"
)

// LoadScenario reads and parses a scenario YAML file. Schemas are resolved
// relative to the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving schema paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	scenario.SchemaDir = basePath

	if err := validateSchemaFiles(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML without touching the filesystem.
// The caller sets SchemaDir.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Schemas) == 0 {
		return fmt.Errorf("schemas list is required and must be non-empty")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if _, err := s.Repository.Options(); err != nil {
		return fmt.Errorf("repository: %w", err)
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateSchemaFiles(s *Scenario) error {
	for _, f := range s.Schemas {
		if _, err := os.Stat(filepath.Join(s.SchemaDir, f)); os.IsNotExist(err) {
			return fmt.Errorf("schema file not found: %s", f)
		}
	}
	return nil
}

func validateStep(index int, s Step) error {
	set := 0
	for _, name := range []string{s.Save, s.Update, s.Find} {
		if name != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of save, update or find is required", index)
	}

	op, _ := s.Op()
	switch op {
	case OpSave:
		if s.Values == nil {
			return fmt.Errorf("steps[%d]: values is required for save (use empty map if no values)", index)
		}
		if s.Set != nil || s.Expect != nil {
			return fmt.Errorf("steps[%d]: save takes values only", index)
		}
	case OpUpdate:
		if s.ID == nil {
			return fmt.Errorf("steps[%d]: id is required for update", index)
		}
		if s.Set == nil {
			return fmt.Errorf("steps[%d]: set is required for update", index)
		}
		if s.Values != nil || s.Expect != nil {
			return fmt.Errorf("steps[%d]: update takes id and set only", index)
		}
	case OpFind:
		if s.ID == nil {
			return fmt.Errorf("steps[%d]: id is required for find", index)
		}
		if s.Values != nil || s.Set != nil {
			return fmt.Errorf("steps[%d]: find takes id and expect only", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertKeyCount:
		if a.Pattern == "" {
			return fmt.Errorf("assertions[%d]: pattern is required for key_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for key_count", index)
		}
	case AssertSetContains, AssertSetExcludes:
		if a.Key == "" || a.Member == "" {
			return fmt.Errorf("assertions[%d]: key and member are required for %s", index, a.Type)
		}
	case AssertCardinality:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for cardinality", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for cardinality", index)
		}
	case AssertScore:
		if a.Key == "" || a.Member == "" {
			return fmt.Errorf("assertions[%d]: key and member are required for score", index)
		}
		if a.Score == nil {
			return fmt.Errorf("assertions[%d]: score is required for score", index)
		}
	case AssertRecord:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for record", index)
		}
		if len(a.Fields) == 0 {
			return fmt.Errorf("assertions[%d]: fields is required for record", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
