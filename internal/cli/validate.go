package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/kvorm/internal/meta"
	"github.com/roach88/kvorm/internal/schema"
)

// ValidationError is one problem found in a schemas directory.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// IndexSummary describes one resolved index.
type IndexSummary struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Property string `json:"property"`
	Temporal bool   `json:"temporal,omitempty"`
}

// TypeSummary describes the resolved metadata of one entity type.
type TypeSummary struct {
	Name       string         `json:"name"`
	Prefix     string         `json:"prefix"`
	Identifier string         `json:"identifier"`
	Indexes    []IndexSummary `json:"indexes"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Types  []TypeSummary     `json:"types,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schemas-dir>",
		Short: "Validate entity schemas",
		Long: `Compile the CUE entity declarations in a directory and resolve the
metadata of every type: key prefix, identifier property and indexes.

Reports every problem found, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, schemasDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, loadErrors := schema.Load(schemasDir, schema.LoadModeCollectAll)

	// Handle load errors (directory not found, no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *schema.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, schema.ErrCodeGeneric, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, schemasDir)

	if len(loadErrors) > 0 {
		return outputValidationErrors(formatter, toValidationErrors(loadErrors))
	}

	types := make([]TypeSummary, 0, len(loadResult.Types))
	for _, t := range loadResult.Types {
		md, err := loadResult.Registry.Resolve(t.Name)
		if err != nil {
			return outputValidationErrors(formatter, toValidationErrors([]error{err}))
		}
		formatter.VerboseLog("Resolved %s: %d index(es)", t.Name, len(md.Indexes))
		types = append(types, summarize(md))
	}

	return outputValidateSuccess(formatter, types)
}

func summarize(md *meta.Metadata) TypeSummary {
	s := TypeSummary{
		Name:       md.Type.Name,
		Prefix:     md.Prefix,
		Identifier: md.Identifier.Name,
		Indexes:    make([]IndexSummary, 0, len(md.Indexes)),
	}
	for _, idx := range md.Indexes {
		s.Indexes = append(s.Indexes, IndexSummary{
			Name:     idx.Name,
			Kind:     idx.Kind.String(),
			Property: idx.Property.Name,
			Temporal: idx.Temporal,
		})
	}
	return s
}

func toValidationErrors(errs []error) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, err := range errs {
		var loadErr *schema.LoadError
		if errors.As(err, &loadErr) {
			ve := ValidationError{Code: loadErr.Code, Message: loadErr.Message}
			if loadErr.Pos.IsValid() {
				ve.File = loadErr.Pos.Filename()
				ve.Line = loadErr.Pos.Line()
			}
			out = append(out, ve)
			continue
		}
		code, _ := classify(err)
		out = append(out, ValidationError{Code: code, Message: err.Error()})
	}
	return out
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, types []TypeSummary) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Types: types})
	}

	w := formatter.Writer
	for _, t := range types {
		fmt.Fprintf(w, "%s  prefix=%s  id=%s\n", t.Name, t.Prefix, t.Identifier)
		for _, idx := range t.Indexes {
			kind := idx.Kind
			if idx.Temporal {
				kind += ", temporal"
			}
			fmt.Fprintf(w, "  %s (%s) <- %s\n", idx.Name, kind, idx.Property)
		}
	}
	fmt.Fprintf(w, "✓ All schemas valid (%d %s)\n", len(types), plural(len(types), "type", "types"))
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Unreadable schema directories are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", err.File, err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// indent prefixes every line of s.
func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
