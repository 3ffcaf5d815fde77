package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/repotrack/internal/dictionary"
	"github.com/fyrsmithlabs/repotrack/internal/tracking"
	"github.com/fyrsmithlabs/repotrack/internal/wire"
)

func newModelCmd(a *app) *cobra.Command {
	var checksum int64

	cmd := &cobra.Command{
		Use:   "model <qname>",
		Short: "Fetch a model definition",
		Long: `Fetch a content model definition and write it to stdout. With --checksum
the command fails when the repository holds a different version.

Example:
  repotrack model '{http://www.alfresco.org/model/content/1.0}contentmodel' --checksum 123`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := dictionary.ParseQName(args[0])
			if err != nil {
				return err
			}
			expected, err := optInt64(cmd, "checksum")
			if err != nil {
				return err
			}

			ctx, c, err := a.client(cmd.Context(), tracking.OpGetModel)
			if err != nil {
				return err
			}
			m, err := c.GetModel(ctx, name, expected)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return outputJSON(a.out, struct {
					Name     string `json:"name"`
					Checksum int64  `json:"checksum"`
					Content  string `json:"content"`
				}{m.Name.String(), m.Checksum, string(m.Content)})
			}
			_, err = a.out.Write(m.Content)
			return err
		},
	}
	cmd.Flags().Int64Var(&checksum, "checksum", 0, "expected model checksum")
	return cmd
}

func newModelsDiffCmd(a *app) *cobra.Command {
	var held []string

	cmd := &cobra.Command{
		Use:   "models-diff",
		Short: "Compare held models with the repository",
		Long: `Compare the models the caller holds, given as name=checksum pairs, with
the repository's and list the new, changed and removed models.

Example:
  repotrack models-diff --model '{http://www.alfresco.org/model/content/1.0}contentmodel=123'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			refs, err := parseModelRefs(held)
			if err != nil {
				return err
			}
			ctx, c, err := a.client(cmd.Context(), tracking.OpGetModelsDiff)
			if err != nil {
				return err
			}
			diffs, err := c.GetModelsDiff(ctx, refs)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return outputJSON(a.out, tracking.ModelDiffsToWire(diffs))
			}
			rows := make([][]string, 0, len(diffs))
			for _, d := range diffs {
				rows = append(rows, []string{
					d.Name.String(), string(d.Type), optString(d.OldChecksum), optString(d.NewChecksum),
				})
			}
			return table(a.out, "NAME\tTYPE\tOLD\tNEW", rows)
		},
	}
	cmd.Flags().StringArrayVar(&held, "model", nil, "held model as name=checksum (repeatable)")
	return cmd
}

// parseModelRefs parses name=checksum pairs. The checksum follows the last '='.
func parseModelRefs(raw []string) ([]tracking.ModelRef, error) {
	refs := make([]tracking.ModelRef, 0, len(raw))
	for _, s := range raw {
		i := strings.LastIndex(s, "=")
		if i < 0 {
			return nil, fmt.Errorf("invalid model %q: expected name=checksum", s)
		}
		name, err := dictionary.ParseQName(s[:i])
		if err != nil {
			return nil, err
		}
		sum, err := parseInt64Arg("checksum", s[i+1:])
		if err != nil {
			return nil, err
		}
		refs = append(refs, tracking.ModelRef{Name: name, Checksum: sum})
	}
	return refs, nil
}

func newNextTxCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "next-tx <fromCommitTime>",
		Short: "Find the next transaction commit time",
		Long: `Print the commit time of the first transaction committed after the given
commit time in ms. Exits with an error when there is none.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseInt64Arg("commit time", args[0])
			if err != nil {
				return err
			}
			ctx, c, err := a.client(cmd.Context(), tracking.OpGetNextTxCommitTime)
			if err != nil {
				return err
			}
			next, err := c.GetNextTxCommitTime(ctx, from)
			if err != nil {
				return commitTimeError(err)
			}
			if a.jsonOut {
				return outputJSON(a.out, wire.NextTransactionResponse{NextTransactionCommitTimeMs: &next})
			}
			_, err = fmt.Fprintln(a.out, next)
			return err
		},
	}
}

func newTxIntervalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tx-interval <fromNodeId> <toNodeId>",
		Short: "Find the commit time span of a node id range",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseInt64Arg("node id", args[0])
			if err != nil {
				return err
			}
			to, err := parseInt64Arg("node id", args[1])
			if err != nil {
				return err
			}
			ctx, c, err := a.client(cmd.Context(), tracking.OpGetTxIntervalCommitTime)
			if err != nil {
				return err
			}
			iv, err := c.GetTxIntervalCommitTime(ctx, from, to)
			if err != nil {
				return commitTimeError(err)
			}
			if a.jsonOut {
				return outputJSON(a.out, wire.TransactionIntervalResponse{
					MinTransactionCommitTimeMs: &iv.MinCommitTimeMs,
					MaxTransactionCommitTimeMs: &iv.MaxCommitTimeMs,
				})
			}
			_, err = fmt.Fprintf(a.out, "%d\t%d\n", iv.MinCommitTimeMs, iv.MaxCommitTimeMs)
			return err
		},
	}
}

// commitTimeError explains the optional-endpoint failure modes.
func commitTimeError(err error) error {
	switch {
	case errors.Is(err, tracking.ErrNoTransaction):
		return fmt.Errorf("no transaction found: %w", err)
	case errors.Is(err, tracking.ErrMethodUnreachable):
		return fmt.Errorf("repository does not support this call: %w", err)
	}
	return err
}
