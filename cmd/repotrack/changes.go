package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repotrack/internal/tracking"
)

// cursorFlags registers the four cursor bounds on cmd.
func cursorFlags(cmd *cobra.Command, fromTime, minID, toTime, maxID string) {
	cmd.Flags().Int64(fromTime, 0, "lower commit time bound in ms, inclusive")
	cmd.Flags().Int64(minID, 0, "lower id bound, inclusive")
	cmd.Flags().Int64(toTime, 0, "upper commit time bound in ms, inclusive")
	cmd.Flags().Int64(maxID, 0, "upper id bound, exclusive")
}

func cursorFromFlags(cmd *cobra.Command, maxResults int, fromTime, minID, toTime, maxID string) (tracking.CursorQuery, error) {
	q := tracking.CursorQuery{MaxResults: maxResults}
	var err error
	if q.FromCommitTime, err = optInt64(cmd, fromTime); err != nil {
		return q, err
	}
	if q.MinID, err = optInt64(cmd, minID); err != nil {
		return q, err
	}
	if q.ToCommitTime, err = optInt64(cmd, toTime); err != nil {
		return q, err
	}
	if q.MaxID, err = optInt64(cmd, maxID); err != nil {
		return q, err
	}
	return q, nil
}

func newAclChangeSetsCmd(a *app) *cobra.Command {
	var maxResults int

	cmd := &cobra.Command{
		Use:   "acl-changesets",
		Short: "List ACL change sets",
		Long: `List ACL change sets in id order, or in commit time order when a time
bound is given.

Examples:
  repotrack acl-changesets --from-id 1 --to-id 500
  repotrack acl-changesets --from-time 1700000000000 --max 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := cursorFromFlags(cmd, maxResults, "from-time", "from-id", "to-time", "to-id")
			if err != nil {
				return err
			}
			ctx, c, err := a.client(cmd.Context(), tracking.OpGetAclChangeSets)
			if err != nil {
				return err
			}
			page, err := c.GetAclChangeSets(ctx, q)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return outputJSON(a.out, tracking.AclChangeSetsToWire(page))
			}
			rows := make([][]string, 0, len(page.ChangeSets))
			for _, cs := range page.ChangeSets {
				rows = append(rows, []string{itoa(cs.ID), itoa(cs.CommitTimeMs), fmt.Sprint(cs.AclCount)})
			}
			if err := table(a.out, "ID\tCOMMIT TIME\tACLS", rows); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "max commit time: %s, max id: %s\n", optString(page.MaxCommitTime), optString(page.MaxID))
			return nil
		},
	}
	cursorFlags(cmd, "from-time", "from-id", "to-time", "to-id")
	cmd.Flags().IntVar(&maxResults, "max", 0, "maximum change sets to return (0 for server default)")
	return cmd
}

func newAclsCmd(a *app) *cobra.Command {
	var (
		changeSetIDs []int64
		maxResults   int
		all          bool
	)

	cmd := &cobra.Command{
		Use:   "acls",
		Short: "List the ACLs of ACL change sets",
		Long: `List the ACLs touched by the given ACL change sets, ordered by id.

With --all the command keeps requesting pages until every ACL is returned.

Examples:
  repotrack acls --changesets 1,2,3
  repotrack acls --changesets 1,2,3 --max 100 --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(changeSetIDs) == 0 {
				return fmt.Errorf("--changesets is required")
			}
			minID, err := optInt64(cmd, "from-id")
			if err != nil {
				return err
			}
			sets := make([]tracking.AclChangeSet, 0, len(changeSetIDs))
			for _, id := range changeSetIDs {
				sets = append(sets, tracking.AclChangeSet{ID: id})
			}

			ctx, c, err := a.client(cmd.Context(), tracking.OpGetAcls)
			if err != nil {
				return err
			}
			var acls []tracking.Acl
			if all {
				acls, err = tracking.FetchAllAcls(ctx, c, sets, maxResults)
			} else {
				acls, err = c.GetAcls(ctx, sets, minID, maxResults)
			}
			if err != nil {
				return err
			}
			if !all && len(acls) > 0 && tracking.AclsTruncated(sets, acls, maxResults) {
				a.logger.Info(ctx, "page may be truncated, use --all or --from-id to continue",
					zap.Int64("last_acl_id", acls[len(acls)-1].ID))
			}

			if a.jsonOut {
				return outputJSON(a.out, tracking.AclsToWire(acls))
			}
			rows := make([][]string, 0, len(acls))
			for _, acl := range acls {
				rows = append(rows, []string{itoa(acl.ID), itoa(acl.AclChangeSetID)})
			}
			return table(a.out, "ID\tCHANGE SET", rows)
		},
	}
	cmd.Flags().Int64SliceVar(&changeSetIDs, "changesets", nil, "ACL change set ids (comma separated)")
	cmd.Flags().Int64("from-id", 0, "lowest ACL id to return")
	cmd.Flags().IntVar(&maxResults, "max", 0, "maximum ACLs per page (0 for server default)")
	cmd.Flags().BoolVar(&all, "all", false, "page until every ACL is returned")
	return cmd
}

func newAclReadersCmd(a *app) *cobra.Command {
	var aclIDs []int64

	cmd := &cobra.Command{
		Use:   "acl-readers",
		Short: "Resolve the readers of ACLs",
		Long: `Resolve the reader and denied authorities of the given ACLs.

Example:
  repotrack acl-readers --acls 10,11`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(aclIDs) == 0 {
				return fmt.Errorf("--acls is required")
			}
			acls := make([]tracking.Acl, 0, len(aclIDs))
			for _, id := range aclIDs {
				acls = append(acls, tracking.Acl{ID: id})
			}
			ctx, c, err := a.client(cmd.Context(), tracking.OpGetAclReaders)
			if err != nil {
				return err
			}
			readers, err := c.GetAclReaders(ctx, acls)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return outputJSON(a.out, tracking.AclReadersToWire(readers))
			}
			rows := make([][]string, 0, len(readers))
			for _, r := range readers {
				tenant := r.TenantDomain
				if tenant == "" {
					tenant = "-"
				}
				rows = append(rows, []string{
					itoa(r.AclID), itoa(r.AclChangeSetID), tenant,
					fmt.Sprint(r.Readers), fmt.Sprint(r.Denied),
				})
			}
			return table(a.out, "ACL\tCHANGE SET\tTENANT\tREADERS\tDENIED", rows)
		},
	}
	cmd.Flags().Int64SliceVar(&aclIDs, "acls", nil, "ACL ids (comma separated)")
	return cmd
}

func newTransactionsCmd(a *app) *cobra.Command {
	var maxResults int

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List transactions",
		Long: `List transactions in id order, or in commit time order when a time bound
is given.

Examples:
  repotrack transactions --min-id 1 --max 100
  repotrack transactions --from-commit-time 1700000000000 --to-commit-time 1700000600000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := cursorFromFlags(cmd, maxResults, "from-commit-time", "min-id", "to-commit-time", "max-id")
			if err != nil {
				return err
			}
			ctx, c, err := a.client(cmd.Context(), tracking.OpGetTransactions)
			if err != nil {
				return err
			}
			page, err := c.GetTransactions(ctx, q, nil)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return outputJSON(a.out, tracking.TransactionsToWire(page))
			}
			if err := table(a.out, "ID\tCOMMIT TIME\tUPDATES\tDELETES", transactionRows(page.Transactions)); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "max commit time: %s, max id: %s\n", optString(page.MaxCommitTime), optString(page.MaxID))
			return nil
		},
	}
	cursorFlags(cmd, "from-commit-time", "min-id", "to-commit-time", "max-id")
	cmd.Flags().IntVar(&maxResults, "max", 0, "maximum transactions to return (0 for server default)")
	return cmd
}

func transactionRows(txs []tracking.Transaction) [][]string {
	rows := make([][]string, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, []string{itoa(tx.ID), itoa(tx.CommitTimeMs), itoa(tx.Updates), itoa(tx.Deletes)})
	}
	return rows
}

func newFollowCmd(a *app) *cobra.Command {
	var (
		from       int64
		maxResults int
		interval   time.Duration
		once       bool
	)

	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Follow transactions by commit time",
		Long: `Follow transactions in commit time order starting at --from, printing each
transaction once. Without --once the command polls every --interval until
interrupted.

Example:
  repotrack follow --from 1700000000000 --interval 10s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, c, err := a.client(cmd.Context(), tracking.OpGetTransactions)
			if err != nil {
				return err
			}
			if maxResults <= 0 {
				maxResults = a.cfg.Tracker.MaxResults
			}
			// id -1 keeps transactions committed exactly at --from
			mark := tracking.Watermark{CommitTimeMs: from, ID: -1}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				page, err := c.GetTransactions(ctx, mark.Query(maxResults), nil)
				if err != nil {
					return err
				}
				var fresh []tracking.Transaction
				fresh, mark = tracking.Advance(mark, page.Transactions)
				for _, tx := range fresh {
					if err := printTransaction(a, tx); err != nil {
						return err
					}
				}
				if len(fresh) > 0 {
					a.logger.Debug(ctx, "advanced watermark",
						zap.Int64("commit_time", mark.CommitTimeMs),
						zap.Int64("id", mark.ID),
						zap.Int("count", len(fresh)),
					)
				}
				// a full page means more records are waiting
				if len(page.Transactions) >= maxResults && len(fresh) > 0 {
					continue
				}
				if once {
					return nil
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().Int64Var(&from, "from", 0, "commit time in ms to start from")
	cmd.Flags().IntVar(&maxResults, "max", 0, "page size (default tracker.max_results)")
	cmd.Flags().DurationVar(&interval, "interval", 15*time.Second, "poll interval")
	cmd.Flags().BoolVar(&once, "once", false, "stop when caught up")
	return cmd
}

func printTransaction(a *app, tx tracking.Transaction) error {
	if a.jsonOut {
		return outputJSON(a.out, tracking.TransactionsToWire(&tracking.Transactions{
			Transactions: []tracking.Transaction{tx},
		}).Transactions[0])
	}
	_, err := fmt.Fprintf(a.out, "%d\t%d\t%d\t%d\n", tx.ID, tx.CommitTimeMs, tx.Updates, tx.Deletes)
	return err
}
