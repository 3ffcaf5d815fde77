package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repotrack/internal/dictionary"
	"github.com/fyrsmithlabs/repotrack/internal/tracking"
	"github.com/fyrsmithlabs/repotrack/internal/wire"
)

func newNodesCmd(a *app) *cobra.Command {
	var (
		txnIDs          []int64
		includeAspects  []string
		excludeAspects  []string
		storeProtocol   string
		storeIdentifier string
		shardProperty   string
		maxResults      int
	)

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List node changes",
		Long: `List the node change records of transactions or of a node id range.

Examples:
  repotrack nodes --txns 1,2
  repotrack nodes --from-node 100 --to-node 200 --include-aspect '{http://www.alfresco.org/model/content/1.0}titled'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := tracking.GetNodesParameters{
				TransactionIDs:  txnIDs,
				StoreProtocol:   storeProtocol,
				StoreIdentifier: storeIdentifier,
				CoreName:        a.cfg.Tracker.CoreName,
			}
			var err error
			if p.FromNodeID, err = optInt64(cmd, "from-node"); err != nil {
				return err
			}
			if p.ToNodeID, err = optInt64(cmd, "to-node"); err != nil {
				return err
			}
			if p.IncludeAspects, err = parseQNames(includeAspects); err != nil {
				return err
			}
			if p.ExcludeAspects, err = parseQNames(excludeAspects); err != nil {
				return err
			}
			if shardProperty != "" {
				q, err := dictionary.ParseQName(shardProperty)
				if err != nil {
					return err
				}
				p.ShardProperty = &q
			}

			ctx, c, err := a.client(cmd.Context(), tracking.OpGetNodes)
			if err != nil {
				return err
			}
			nodes, err := c.GetNodes(ctx, p, maxResults)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return outputJSON(a.out, tracking.NodesToWire(nodes))
			}
			rows := make([][]string, 0, len(nodes))
			for _, n := range nodes {
				shard := "-"
				if n.ShardPropertyValue != nil {
					shard = *n.ShardPropertyValue
				}
				rows = append(rows, []string{
					itoa(n.ID), itoa(n.TxnID), n.Status.String(), n.NodeRef, itoa(n.AclID), shard,
				})
			}
			return table(a.out, "ID\tTXN\tSTATUS\tNODE REF\tACL\tSHARD VALUE", rows)
		},
	}
	cmd.Flags().Int64SliceVar(&txnIDs, "txns", nil, "transaction ids (comma separated)")
	cmd.Flags().Int64("from-node", 0, "lowest node id, inclusive")
	cmd.Flags().Int64("to-node", 0, "highest node id, inclusive")
	cmd.Flags().StringSliceVar(&includeAspects, "include-aspect", nil, "only nodes with these aspects")
	cmd.Flags().StringSliceVar(&excludeAspects, "exclude-aspect", nil, "skip nodes with these aspects")
	cmd.Flags().StringVar(&storeProtocol, "store-protocol", "", "store protocol, e.g. workspace")
	cmd.Flags().StringVar(&storeIdentifier, "store-identifier", "", "store identifier, e.g. SpacesStore")
	cmd.Flags().StringVar(&shardProperty, "shard-property", "", "property whose value is returned for shard routing")
	cmd.Flags().IntVar(&maxResults, "max", 0, "maximum nodes to return (0 for server default)")
	return cmd
}

func newMetadataCmd(a *app) *cobra.Command {
	var (
		nodeIDs    []int64
		maxResults int
		noProps    bool
		noPaths    bool
	)

	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Fetch node metadata",
		Long: `Fetch the metadata of nodes by id or by id range. Properties are decoded
with the property dictionary.

Examples:
  repotrack metadata --ids 100,101 --json
  repotrack metadata --from-node 100 --to-node 200 --max 50 --no-paths`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := tracking.NewNodeMetaDataParameters()
			p.NodeIDs = nodeIDs
			p.IncludeProperties = !noProps
			p.IncludePaths = !noPaths
			var err error
			if p.FromNodeID, err = optInt64(cmd, "from-node"); err != nil {
				return err
			}
			if p.ToNodeID, err = optInt64(cmd, "to-node"); err != nil {
				return err
			}
			if cmd.Flags().Changed("max") {
				p.MaxResults = &maxResults
			}

			ctx, c, err := a.client(cmd.Context(), tracking.OpGetNodesMetaData)
			if err != nil {
				return err
			}
			nodes, err := c.GetNodesMetaData(ctx, p)
			if err != nil {
				return err
			}
			if a.jsonOut {
				out := wire.NodesResponse[wire.NodeMetaData]{Nodes: make([]wire.NodeMetaData, 0, len(nodes))}
				for _, md := range nodes {
					w, err := tracking.NodeMetaDataToWire(md)
					if err != nil {
						return err
					}
					out.Nodes = append(out.Nodes, w)
				}
				return outputJSON(a.out, out)
			}
			rows := make([][]string, 0, len(nodes))
			for _, md := range nodes {
				typ := "-"
				if md.Type != nil {
					typ = md.Type.String()
				}
				nodeRef := "-"
				if md.NodeRef != nil {
					nodeRef = *md.NodeRef
				}
				rows = append(rows, []string{
					itoa(md.ID), optString(md.TxnID), optString(md.AclID), nodeRef, typ,
					fmt.Sprint(len(md.Aspects)), fmt.Sprint(len(md.Properties)), fmt.Sprint(len(md.Paths)),
				})
			}
			return table(a.out, "ID\tTXN\tACL\tNODE REF\tTYPE\tASPECTS\tPROPERTIES\tPATHS", rows)
		},
	}
	cmd.Flags().Int64SliceVar(&nodeIDs, "ids", nil, "node ids (comma separated)")
	cmd.Flags().Int64("from-node", 0, "lowest node id, inclusive")
	cmd.Flags().Int64("to-node", 0, "highest node id, inclusive")
	cmd.Flags().IntVar(&maxResults, "max", 0, "maximum nodes to return")
	cmd.Flags().BoolVar(&noProps, "no-properties", false, "leave out properties")
	cmd.Flags().BoolVar(&noPaths, "no-paths", false, "leave out paths")
	return cmd
}

func newTextContentCmd(a *app) *cobra.Command {
	var (
		prop  string
		since string
	)

	cmd := &cobra.Command{
		Use:   "text-content <nodeId>",
		Short: "Fetch the extracted text of a node",
		Long: `Fetch the extracted text of a node's content property and write it to
stdout. The transform status is logged.

Examples:
  repotrack text-content 100
  repotrack text-content 100 --since 2026-01-02T15:04:05Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeID, err := parseInt64Arg("node id", args[0])
			if err != nil {
				return err
			}
			propQName, err := dictionary.ParseQName(prop)
			if err != nil {
				return err
			}
			var modifiedSince *time.Time
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
				modifiedSince = &t
			}

			ctx, c, err := a.client(cmd.Context(), tracking.OpGetTextContent)
			if err != nil {
				return err
			}
			tc, err := c.GetTextContent(ctx, nodeID, propQName, modifiedSince)
			if err != nil {
				return err
			}
			defer tc.Close()

			if a.jsonOut {
				body, err := io.ReadAll(tc)
				if err != nil {
					return err
				}
				res := struct {
					Status              string `json:"status"`
					TransformStatus     string `json:"transformStatus,omitempty"`
					TransformException  string `json:"transformException,omitempty"`
					TransformDurationMs *int64 `json:"transformDurationMs,omitempty"`
					Text                string `json:"text"`
				}{
					Status:             tc.Status.String(),
					TransformStatus:    tc.TransformStatus,
					TransformException: tc.TransformException,
					Text:               string(body),
				}
				if tc.TransformDuration != nil {
					ms := tc.TransformDuration.Milliseconds()
					res.TransformDurationMs = &ms
				}
				return outputJSON(a.out, res)
			}

			a.logger.Info(ctx, "text content", contentFields(tc)...)
			_, err = io.Copy(a.out, tc)
			return err
		},
	}
	cmd.Flags().StringVar(&prop, "property", "{http://www.alfresco.org/model/content/1.0}content", "content property")
	cmd.Flags().StringVar(&since, "since", "", "only return content modified after this RFC3339 time")
	return cmd
}

func contentFields(tc *tracking.TextContent) []zap.Field {
	fields := []zap.Field{zap.Stringer("status", tc.Status)}
	if tc.TransformStatus != "" {
		fields = append(fields, zap.String("transform_status", tc.TransformStatus))
	}
	if tc.TransformException != "" {
		fields = append(fields, zap.String("transform_exception", tc.TransformException))
	}
	if tc.TransformDuration != nil {
		fields = append(fields, zap.Duration("transform_duration", *tc.TransformDuration))
	}
	return fields
}
