package cli

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/kvorm/internal/store"
)

// IndexResult is the output of members and range.
type IndexResult struct {
	Key string   `json:"key"`
	IDs []string `json:"ids"`
}

// NewMembersCommand creates the members command.
func NewMembersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members <index> <value>",
		Short: "List the ids in an equality index",
		Long: `Print the ids stored in the equality index set for one value.

Booleans are indexed as 1 and 0, times as RFC 3339 in UTC.

Examples:
  kvorm members color red
  kvorm members drivers_by_team williams --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMembers(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runMembers(opts *RootOptions, index, value string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	sess, err := openSession(ctx, opts, cmd, "")
	if err != nil {
		return formatter.Fail(err)
	}
	defer sess.Close()

	key := sess.cfg.Naming().Key(index, value)
	ids, err := sess.store.SMembers(ctx, key)
	if err != nil {
		return formatter.Fail(err)
	}
	return outputIDs(formatter, IndexResult{Key: key, IDs: ids})
}

// RangeOptions holds flags for the range command.
type RangeOptions struct {
	*RootOptions
	Min   float64
	Max   float64
	Since string // RFC 3339, overrides Min
	Until string // RFC 3339, overrides Max
}

// NewRangeCommand creates the range command.
func NewRangeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RangeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "range <index>",
		Short: "List the ids in a sorted index by score",
		Long: `Print the ids in a sorted index whose score lies within [min, max],
lowest score first.

Temporal indexes are scored in Unix seconds; --since and --until take
RFC 3339 times instead of raw scores.

Examples:
  kvorm range leaderboard --min 9
  kvorm range manufactureDate --since 2010-01-01T00:00:00Z`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRange(opts, args[0], cmd)
		},
	}

	cmd.Flags().Float64Var(&opts.Min, "min", store.MinScore, "lowest score (inclusive)")
	cmd.Flags().Float64Var(&opts.Max, "max", store.MaxScore, "highest score (inclusive)")
	cmd.Flags().StringVar(&opts.Since, "since", "", "lowest time (RFC 3339, inclusive)")
	cmd.Flags().StringVar(&opts.Until, "until", "", "highest time (RFC 3339, inclusive)")

	return cmd
}

func runRange(opts *RangeOptions, index string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	min, max, err := opts.bounds()
	if err != nil {
		return formatter.Fail(err)
	}

	sess, err := openSession(ctx, opts.RootOptions, cmd, "")
	if err != nil {
		return formatter.Fail(err)
	}
	defer sess.Close()

	key := sess.cfg.Naming().Key(index)
	ids, err := sess.store.ZRangeByScore(ctx, key, min, max)
	if err != nil {
		return formatter.Fail(err)
	}
	return outputIDs(formatter, IndexResult{Key: key, IDs: ids})
}

// bounds resolves the score range, letting the time flags win.
func (o *RangeOptions) bounds() (min, max float64, err error) {
	min, max = o.Min, o.Max
	if o.Since != "" {
		t, err := time.Parse(time.RFC3339, o.Since)
		if err != nil {
			return 0, 0, NewExitError(ExitCommandError, fmt.Sprintf("--since: %v", err))
		}
		min = float64(t.Unix())
	}
	if o.Until != "" {
		t, err := time.Parse(time.RFC3339, o.Until)
		if err != nil {
			return 0, 0, NewExitError(ExitCommandError, fmt.Sprintf("--until: %v", err))
		}
		max = float64(t.Unix())
	}
	if min > max {
		return 0, 0, NewExitError(ExitCommandError, fmt.Sprintf("empty range: min %v > max %v", min, max))
	}
	return min, max, nil
}

func outputIDs(formatter *OutputFormatter, result IndexResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	formatter.VerboseLog("%s: %d id(s)", result.Key, len(result.IDs))
	for _, id := range result.IDs {
		fmt.Fprintln(formatter.Writer, id)
	}
	return nil
}

// KeysOptions holds flags for the keys command.
type KeysOptions struct {
	*RootOptions
	Dump bool
}

// NewKeysCommand creates the keys command.
func NewKeysCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeysOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "keys [pattern]",
		Short: "List keys matching a glob pattern",
		Long: `List the keys matching a glob pattern (default "*") with their type.

With --dump, also print every key's contents.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := "*"
			if len(args) == 1 {
				pattern = args[0]
			}
			return runKeys(opts, pattern, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Dump, "dump", false, "print key contents")

	return cmd
}

func runKeys(opts *KeysOptions, pattern string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	sess, err := openSession(ctx, opts.RootOptions, cmd, "")
	if err != nil {
		return formatter.Fail(err)
	}
	defer sess.Close()

	entries, err := store.Dump(ctx, sess.store, pattern)
	if err != nil {
		return formatter.Fail(err)
	}
	if !opts.Dump {
		for i := range entries {
			entries[i] = store.Entry{Key: entries[i].Key, Type: entries[i].Type}
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}

	w := formatter.Writer
	for _, e := range entries {
		fmt.Fprintf(w, "%s (%s)\n", e.Key, e.Type)
		if !opts.Dump {
			continue
		}
		switch e.Type {
		case store.TypeHash:
			for _, f := range slices.Sorted(maps.Keys(e.Hash)) {
				fmt.Fprintf(w, "  %s: %q\n", f, e.Hash[f])
			}
		case store.TypeSet:
			for _, m := range e.Members {
				fmt.Fprintf(w, "  %s\n", m)
			}
		case store.TypeZSet:
			for _, m := range slices.Sorted(maps.Keys(e.Scores)) {
				fmt.Fprintf(w, "  %s: %v\n", m, e.Scores[m])
			}
		}
	}
	return nil
}
