package harness

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/kvorm/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Steps    []StepRecord // Steps run so far, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Steps) > 0 {
		fmt.Fprintf(&buf, "\nSteps:\n")
		for i, s := range e.Steps {
			fmt.Fprintf(&buf, "  [%d] %s %s %s", i+1, s.Op, s.Type, s.ID)
			if s.Err != "" {
				fmt.Fprintf(&buf, " (error: %s)", s.Err)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// assertKeyCount checks how many keys match a glob pattern.
func assertKeyCount(ctx context.Context, st store.Store, a Assertion, steps []StepRecord) error {
	keys, err := st.Keys(ctx, a.Pattern)
	if err != nil {
		return fmt.Errorf("key_count: %w", err)
	}
	if len(keys) != *a.Count {
		return &AssertionError{
			Type:     AssertKeyCount,
			Expected: fmt.Sprintf("%d keys matching %q", *a.Count, a.Pattern),
			Actual:   fmt.Sprintf("%d keys: %v", len(keys), keys),
			Steps:    steps,
		}
	}
	return nil
}

// assertMembership checks that an equality set has, or lacks, a member.
func assertMembership(ctx context.Context, st store.Store, a Assertion, want bool, steps []StepRecord) error {
	members, err := st.SMembers(ctx, a.Key)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Type, err)
	}
	if slices.Contains(members, a.Member) == want {
		return nil
	}

	expected := fmt.Sprintf("%s contains %q", a.Key, a.Member)
	if !want {
		expected = fmt.Sprintf("%s does not contain %q", a.Key, a.Member)
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: expected,
		Actual:   fmt.Sprintf("members %v", members),
		Steps:    steps,
	}
}

// assertCardinality counts the members of a set or sorted set. A missing
// key has zero members.
func assertCardinality(ctx context.Context, st store.Store, a Assertion, steps []StepRecord) error {
	t, err := st.Type(ctx, a.Key)
	if err != nil {
		return fmt.Errorf("cardinality: %w", err)
	}

	var n int64
	switch t {
	case store.TypeSet:
		n, err = st.SCard(ctx, a.Key)
	case store.TypeZSet:
		n, err = st.ZCard(ctx, a.Key)
	case store.TypeNone:
	default:
		return &AssertionError{
			Type:     AssertCardinality,
			Expected: fmt.Sprintf("%s is a set or sorted set", a.Key),
			Actual:   fmt.Sprintf("%s is a %s", a.Key, t),
			Steps:    steps,
		}
	}
	if err != nil {
		return fmt.Errorf("cardinality: %w", err)
	}

	if n != int64(*a.Count) {
		return &AssertionError{
			Type:     AssertCardinality,
			Expected: fmt.Sprintf("%s has %d members", a.Key, *a.Count),
			Actual:   fmt.Sprintf("%d members", n),
			Steps:    steps,
		}
	}
	return nil
}

// assertScore checks the score of one sorted-set member.
func assertScore(ctx context.Context, st store.Store, a Assertion, steps []StepRecord) error {
	score, ok, err := st.ZScore(ctx, a.Key, a.Member)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}

	expected := fmt.Sprintf("%s[%q] = %v", a.Key, a.Member, *a.Score)
	switch {
	case !ok:
		return &AssertionError{Type: AssertScore, Expected: expected, Actual: "member not found", Steps: steps}
	case score != *a.Score:
		return &AssertionError{Type: AssertScore, Expected: expected, Actual: fmt.Sprintf("score %v", score), Steps: steps}
	}
	return nil
}

// assertRecord checks fields of a stored hash. Fields not named in the
// assertion are not checked.
func assertRecord(ctx context.Context, st store.Store, a Assertion, steps []StepRecord) error {
	fields, err := st.HGetAll(ctx, a.Key)
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	if len(fields) == 0 {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("record %s exists", a.Key),
			Actual:   "no fields stored",
			Steps:    steps,
		}
	}

	for _, name := range slices.Sorted(maps.Keys(a.Fields)) {
		want := a.Fields[name]
		got, ok := fields[name]
		if !ok {
			return &AssertionError{
				Type:     AssertRecord,
				Expected: fmt.Sprintf("%s field %q = %q", a.Key, name, want),
				Actual:   fmt.Sprintf("field %q not stored", name),
				Steps:    steps,
			}
		}
		if got != want {
			return &AssertionError{
				Type:     AssertRecord,
				Expected: fmt.Sprintf("%s field %q = %q", a.Key, name, want),
				Actual:   fmt.Sprintf("field %q = %q", name, got),
				Steps:    steps,
			}
		}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the store.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		if actx == nil || actx.Store == nil {
			errors = append(errors, fmt.Sprintf("assertion[%d]: %s requires a store", i, assertion.Type))
			continue
		}
		ctx := actx.Ctx
		if ctx == nil {
			ctx = context.Background()
		}

		var err error
		switch assertion.Type {
		case AssertKeyCount:
			err = assertKeyCount(ctx, actx.Store, assertion, result.Steps)
		case AssertSetContains:
			err = assertMembership(ctx, actx.Store, assertion, true, result.Steps)
		case AssertSetExcludes:
			err = assertMembership(ctx, actx.Store, assertion, false, result.Steps)
		case AssertCardinality:
			err = assertCardinality(ctx, actx.Store, assertion, result.Steps)
		case AssertScore:
			err = assertScore(ctx, actx.Store, assertion, result.Steps)
		case AssertRecord:
			err = assertRecord(ctx, actx.Store, assertion, result.Steps)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
