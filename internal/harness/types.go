package harness

import "github.com/roach88/kvorm/internal/store"

// StepRecord is what one step did, kept for failure messages.
type StepRecord struct {
	Op   string `json:"op"`
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Err  string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step and assertion matched.
	Pass bool `json:"pass"`

	// Steps records each step in order.
	Steps []StepRecord `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Dump is the whole keyspace after the last step, ordered by key.
	Dump []store.Entry `json:"dump"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepRecord{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep records a completed step.
func (r *Result) AddStep(op, typeName, id string, err error) {
	rec := StepRecord{Op: op, Type: typeName, ID: id}
	if err != nil {
		rec.Err = err.Error()
	}
	r.Steps = append(r.Steps, rec)
}
