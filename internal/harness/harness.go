package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/kvorm/internal/hydrate"
	"github.com/roach88/kvorm/internal/orm"
	"github.com/roach88/kvorm/internal/schema"
	"github.com/roach88/kvorm/internal/store"
	"github.com/roach88/kvorm/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenario steps with deterministic identifiers.
type Harness struct {
	store  store.Store
	repos  map[string]*orm.Repository
	ids    *testutil.SequentialIDGenerator
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Generated identifiers restart at "1" so dumps are reproducible.
//
// Execution flow:
// 1. Load and compile the scenario's CUE schemas
// 2. Create fresh in-memory database and one repository per type
// 3. Execute steps, recording mismatches
// 4. Evaluate assertions and dump the keyspace
func Run(scenario *Scenario) (*Result, error) {
	loaded, errs := schema.LoadFiles(scenario.SchemaDir, scenario.Schemas, schema.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load schemas: %w", errors.Join(errs...))
	}

	st, err := store.OpenSQLite(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	opts, err := scenario.Repository.Options()
	if err != nil {
		return nil, fmt.Errorf("invalid repository options: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	opts = append(opts, orm.WithLogger(logger))

	h := &Harness{
		store:  st,
		repos:  make(map[string]*orm.Repository, len(loaded.Types)),
		ids:    testutil.NewSequentialIDGenerator(),
		logger: logger,
	}
	for _, t := range loaded.Types {
		repo, err := orm.New(st, loaded.Registry, t.Name, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create repository for %s: %w", t.Name, err)
		}
		h.repos[t.Name] = repo
	}

	ctx := context.Background()
	result := NewResult()
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	if result.Dump, err = store.Dump(ctx, st, "*"); err != nil {
		return nil, fmt.Errorf("failed to dump store: %w", err)
	}
	return result, nil
}

// executeSteps runs the steps in order. A step that fails unexpectedly,
// or succeeds when an error was expected, fails the scenario but does not
// stop it; an unknown type does.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		op, typeName := step.Op()
		repo, ok := h.repos[typeName]
		if !ok {
			return fmt.Errorf("steps[%d]: unknown type %q", i, typeName)
		}

		var id string
		var err error
		switch op {
		case OpSave:
			id, err = h.save(ctx, repo, step.Values)
		case OpUpdate:
			id, err = h.update(ctx, repo, step.ID, step.Set)
		case OpFind:
			id, err = h.find(ctx, repo, step, i, result)
		default:
			return fmt.Errorf("steps[%d]: no operation", i)
		}
		result.AddStep(op, typeName, id, err)

		switch {
		case step.Error != "" && err == nil:
			result.AddError(fmt.Sprintf("steps[%d]: %s %s: expected error containing %q, got success", i, op, typeName, step.Error))
		case step.Error != "" && !strings.Contains(err.Error(), step.Error):
			result.AddError(fmt.Sprintf("steps[%d]: %s %s: expected error containing %q, got: %v", i, op, typeName, step.Error, err))
		case step.Error == "" && err != nil:
			result.AddError(fmt.Sprintf("steps[%d]: %s %s: %v", i, op, typeName, err))
		}

		h.logger.Info("step completed",
			"step", i,
			"op", op,
			"type", typeName,
			"id", id,
			"error", err,
		)
	}
	return nil
}

// save builds a record from values, assigns an identifier if it has none,
// and saves it.
func (h *Harness) save(ctx context.Context, repo *orm.Repository, values map[string]any) (string, error) {
	md := repo.Metadata()
	rec := schema.NewRecord(md.Type.Name)
	if err := schema.Fill(md.Type, rec, values); err != nil {
		return "", err
	}
	id, err := repo.AssignID(rec, h.ids)
	if err != nil {
		return "", err
	}
	return id, repo.Save(ctx, rec)
}

// update loads an existing record, applies set and saves it.
func (h *Harness) update(ctx context.Context, repo *orm.Repository, id any, set map[string]any) (string, error) {
	rec, idStr, err := h.load(ctx, repo, id)
	if err != nil {
		return idStr, err
	}
	if err := schema.Fill(repo.Metadata().Type, rec, set); err != nil {
		return idStr, err
	}
	return idStr, repo.Save(ctx, rec)
}

// find loads a record and compares the expected properties. Each mismatch
// is added to result; only load failures are returned.
func (h *Harness) find(ctx context.Context, repo *orm.Repository, step Step, index int, result *Result) (string, error) {
	rec, idStr, err := h.load(ctx, repo, step.ID)
	if err != nil {
		return idStr, err
	}

	t := repo.Metadata().Type
	for _, name := range slices.Sorted(maps.Keys(step.Expect)) {
		p, ok := t.Property(name)
		if !ok {
			return idStr, fmt.Errorf("expect: unknown property %q", name)
		}
		want, err := hydrate.Coerce(p.Kind, step.Expect[name])
		if err != nil {
			return idStr, fmt.Errorf("expect %s: %w", name, err)
		}
		wantStr, err := hydrate.Format(want)
		if err != nil {
			return idStr, fmt.Errorf("expect %s: %w", name, err)
		}
		gotStr, err := hydrate.Format(rec.Get(name))
		if err != nil {
			return idStr, fmt.Errorf("%s: %w", name, err)
		}
		if wantStr != gotStr {
			result.AddError((&AssertionError{
				Type:     "find",
				Expected: fmt.Sprintf("steps[%d]: %s %s.%s = %q", index, t.Name, idStr, name, wantStr),
				Actual:   fmt.Sprintf("%s.%s = %q", idStr, name, gotStr),
				Steps:    result.Steps,
			}).Error())
		}
	}
	return idStr, nil
}

// load finds an existing record. A missing record is an error here,
// unlike in Repository.Find.
func (h *Harness) load(ctx context.Context, repo *orm.Repository, id any) (*schema.Record, string, error) {
	idStr, err := hydrate.Format(id)
	if err != nil {
		return nil, "", fmt.Errorf("id: %w", err)
	}
	exists, err := repo.Exists(ctx, id)
	if err != nil {
		return nil, idStr, err
	}
	if !exists {
		return nil, idStr, fmt.Errorf("%s %s not found", repo.Metadata().Type.Name, idStr)
	}
	e, err := repo.Find(ctx, id)
	if err != nil {
		return nil, idStr, err
	}
	return e.(*schema.Record), idStr, nil
}
