package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/kvorm/internal/hydrate"
	"github.com/roach88/kvorm/internal/meta"
	"github.com/roach88/kvorm/internal/orm"
	"github.com/roach88/kvorm/internal/schema"
)

// SaveOptions holds flags for the save command.
type SaveOptions struct {
	*RootOptions
	Data string // JSON object of property values
}

// RecordResult is the output of save and find.
type RecordResult struct {
	Type   string            `json:"type"`
	ID     string            `json:"id"`
	Key    string            `json:"key"`
	Exists bool              `json:"exists"`
	Fields map[string]string `json:"fields,omitempty"`
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SaveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "save <schemas-dir> <Type>",
		Short: "Save a record and update its indexes",
		Long: `Decode a JSON object into a record of the given type and save it.

Values are converted by each property's declared type; time values are
RFC 3339 strings. A string identifier left empty is filled with a new
UUIDv7.

Examples:
  kvorm save ./schemas Car --data '{"id": 1, "color": "red"}'
  kvorm save ./schemas Driver --data '{"team": "williams"}' --driver redis`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Data, "data", "{}", "record values as a JSON object")

	return cmd
}

func runSave(opts *SaveOptions, schemasDir, typeName string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	values, err := decodeValues(opts.Data)
	if err != nil {
		return formatter.Fail(err)
	}

	sess, err := openSession(ctx, opts.RootOptions, cmd, schemasDir)
	if err != nil {
		return formatter.Fail(err)
	}
	defer sess.Close()

	repo, err := sess.repository(typeName)
	if err != nil {
		return formatter.Fail(err)
	}

	t := repo.Metadata().Type
	rec := schema.NewRecord(t.Name)
	if err := schema.Fill(t, rec, values); err != nil {
		if !meta.IsMetadataError(err) {
			err = &orm.InvalidArgumentError{Type: t.Name, Message: err.Error()}
		}
		return formatter.Fail(err)
	}
	id, err := repo.AssignID(rec, orm.UUIDv7Generator{})
	if err != nil {
		return formatter.Fail(err)
	}
	if err := repo.Save(ctx, rec); err != nil {
		return formatter.Fail(err)
	}

	key, err := repo.Key(id)
	if err != nil {
		return formatter.Fail(err)
	}
	formatter.VerboseLog("Saved %s", key)

	result := RecordResult{Type: t.Name, ID: id, Key: key, Exists: true}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Saved %s\n", key)
	return nil
}

// decodeValues parses a JSON object. Numbers stay json.Number so that
// large integer identifiers survive.
func decodeValues(data string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("--data must be a JSON object: %v", err))
	}
	if values == nil {
		return nil, NewExitError(ExitCommandError, "--data must be a JSON object")
	}
	return values, nil
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find <schemas-dir> <Type> <id>",
		Short: "Load a record by identifier",
		Long: `Load the record stored for an identifier and print its fields.

A missing record is not an error: the output reports exists=false and
every property as null.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(rootOpts, args[0], args[1], args[2], cmd)
		},
	}

	return cmd
}

func runFind(opts *RootOptions, schemasDir, typeName, id string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	sess, err := openSession(ctx, opts, cmd, schemasDir)
	if err != nil {
		return formatter.Fail(err)
	}
	defer sess.Close()

	repo, err := sess.repository(typeName)
	if err != nil {
		return formatter.Fail(err)
	}

	key, err := repo.Key(id)
	if err != nil {
		return formatter.Fail(err)
	}
	exists, err := repo.Exists(ctx, id)
	if err != nil {
		return formatter.Fail(err)
	}
	e, err := repo.Find(ctx, id)
	if err != nil {
		return formatter.Fail(err)
	}
	fields, err := hydrate.New(repo.Metadata().Type).ToMap(e)
	if err != nil {
		return formatter.Fail(err)
	}

	result := RecordResult{Type: typeName, ID: id, Key: key, Exists: exists, Fields: fields}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if !exists {
		fmt.Fprintf(w, "%s (not found)\n", key)
	} else {
		fmt.Fprintln(w, key)
	}
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		v := fields[name]
		if v == "" {
			v = "(null)"
		}
		fmt.Fprintf(w, "  %s: %s\n", name, v)
	}
	return nil
}
